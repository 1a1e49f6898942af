package mysql

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

func translateFormat(t *testing.T, f records.Format, strict bool) (LoadOptions, error) {
	t.Helper()
	pi := records.DefaultProcessingInstructions()
	pi.FailIfCantHandleHint = strict
	var o LoadOptions
	_, err := db.Translate("mysql", f, pi, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		var err error
		o, err = Translate(v, u, p)
		return err
	})
	return o, err
}

func TestLoadSQL_WindowsFilename(t *testing.T) {
	o := LoadOptions{CharacterSet: "utf8", FieldsTerminatedBy: ",", LinesTerminatedBy: "\n"}
	got := LoadSQL(`c:\Some Path\X~1.CSV`, "`t`", o)
	assert.Contains(t, got, `'c:\\Some Path\\X~1.CSV'`)
	assert.Equal(t,
		"LOAD DATA LOCAL INFILE 'c:\\\\Some Path\\\\X~1.CSV' INTO TABLE `t` CHARACTER SET utf8 "+
			`FIELDS TERMINATED BY ',' ENCLOSED BY '' ESCAPED BY '' LINES TERMINATED BY '\n'`,
		got)
}

func TestTranslate_KnownFormats(t *testing.T) {
	d := New(nil, nil)
	for _, f := range d.Loader().KnownSupportedFormats() {
		assert.True(t, d.Loader().CanLoad(f), f.String())
	}

	o, err := translateFormat(t, d.Loader().KnownSupportedFormats()[1], true)
	require.NoError(t, err)
	assert.Equal(t, LoadOptions{
		CharacterSet:       "utf8",
		FieldsTerminatedBy: ",",
		EnclosedBy:         `"`,
		OptionallyEnclosed: true,
		LinesTerminatedBy:  "\n",
		IgnoreLines:        1,
	}, o)
	assert.Equal(t,
		`LOAD DATA LOCAL INFILE '/x.csv' INTO TABLE t CHARACTER SET utf8 FIELDS TERMINATED BY ',' `+
			`OPTIONALLY ENCLOSED BY '"' ESCAPED BY '' LINES TERMINATED BY '\n' IGNORE 1 LINES`,
		LoadSQL("/x.csv", "t", o))

	o, err = translateFormat(t, d.Loader().KnownSupportedFormats()[0], true)
	require.NoError(t, err)
	assert.Equal(t, "", o.EnclosedBy)
	assert.Equal(t, `\`, o.EscapedBy)
}

func TestTranslate_Quoting(t *testing.T) {
	base := hints.Set{
		hints.Compression:      nil,
		hints.DoubleQuote:      true,
		hints.Escape:           nil,
		hints.DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SS",
	}
	all := hints.Merge(base, hints.Set{hints.Quoting: "all"})
	o, err := translateFormat(t, records.DelimitedFormat(hints.Bluelabs, all), true)
	require.NoError(t, err)
	assert.Equal(t, `"`, o.EnclosedBy)
	assert.False(t, o.OptionallyEnclosed)

	nonnumeric := hints.Merge(base, hints.Set{hints.Quoting: "nonnumeric"})
	o, err = translateFormat(t, records.DelimitedFormat(hints.Bluelabs, nonnumeric), true)
	require.NoError(t, err)
	assert.True(t, o.OptionallyEnclosed)

	undoubled := hints.Merge(base, hints.Set{hints.Quoting: "minimal", hints.DoubleQuote: false})
	_, err = translateFormat(t, records.DelimitedFormat(hints.Bluelabs, undoubled), true)
	var uh *errors.UnsupportedHintError
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "doublequote", uh.Hint)
}

func TestTranslate_Encodings(t *testing.T) {
	cases := map[string]string{
		"UTF8": "utf8", "UTF16": "utf16", "UTF16LE": "utf16le", "UTF16BE": "utf16",
		"LATIN1": "latin1", "CP1252": "latin1",
	}
	for enc, want := range cases {
		f := records.DelimitedFormat(hints.Bluelabs, hints.Set{
			hints.Compression: nil, hints.Encoding: enc, hints.DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SS",
		})
		o, err := translateFormat(t, f, true)
		require.NoError(t, err, enc)
		assert.Equal(t, want, o.CharacterSet, enc)
	}

	bom := records.DelimitedFormat(hints.Bluelabs, hints.Set{
		hints.Compression: nil, hints.Encoding: "UTF8BOM", hints.DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SS",
	})
	_, err := translateFormat(t, bom, true)
	var uh *errors.UnsupportedHintError
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "encoding", uh.Hint)

	o, err := translateFormat(t, bom, false)
	require.NoError(t, err)
	assert.Equal(t, "utf8", o.CharacterSet)
}

func TestTranslate_Rejections(t *testing.T) {
	_, err := translateFormat(t, records.DelimitedFormat(hints.Bluelabs, nil), true)
	var uh *errors.UnsupportedHintError
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "compression", uh.Hint)

	_, err = translateFormat(t, records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: nil}), true)
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "datetimeformattz", uh.Hint)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `'it\'s'`, Literal("it's"))
	assert.Equal(t, `'\t'`, Literal("\t"))
	assert.Equal(t, "'\x01'", Literal("\x01"))
}

func TestDriverTypes(t *testing.T) {
	d := New(nil, nil)
	assert.Equal(t, "`a``b`", d.QuoteIdent("a`b"))

	lo, hi := schema.IntRange(8, true)
	assert.Equal(t, "TINYINT", d.TypeForInteger(lo, hi))
	lo, hi = schema.IntRange(24, true)
	assert.Equal(t, "MEDIUMINT", d.TypeForInteger(lo, hi))
	assert.Equal(t, "BIGINT", d.TypeForInteger(nil, nil))
	assert.Equal(t, "DOUBLE", d.TypeForFloatingPoint(64, 53))
	assert.Equal(t, "DATETIME(6)", d.TypeForDatePlusTime(false))
	assert.Equal(t, "?", d.Placeholder(3))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	d := New(conn, nil)

	loc := location.NewResolver(nil)
	dir := directory.New(loc, location.FileURL(t.TempDir()), nil)
	f := d.Loader().KnownSupportedFormats()[0]
	u0 := dir.DataFileURL(0, f)
	require.NoError(t, loc.WriteFile(ctx, u0, []byte("1,a\n")))
	require.NoError(t, dir.Finalize(ctx, f, nil, []string{u0}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("LOAD DATA LOCAL INFILE ") + ".*" + regexp.QuoteMeta("0.csv' INTO TABLE `db`.`t` CHARACTER SET utf8")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := d.Loader().Load(ctx, db.LoadRequest{
		Table:     db.TableRef{Schema: "db", Table: "t"},
		Directory: dir,
		Format:    f,
		PI:        records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

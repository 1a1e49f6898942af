package redshift

import (
	"context"
	"os"
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

func loadOptions(t *testing.T, f records.Format, pi records.ProcessingInstructions) (CopyOptions, error) {
	t.Helper()
	var o CopyOptions
	_, err := db.Translate("redshift", f, pi, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		var err error
		o, err = LoadOptions(v, u, p, pi)
		return err
	})
	return o, err
}

func TestLoadOptions_CSVDefaults(t *testing.T) {
	pi := records.DefaultProcessingInstructions()
	pi.FailIfRowInvalid = false

	o, err := loadOptions(t, records.DelimitedFormat(hints.CSV, nil), pi)
	require.NoError(t, err)
	assert.True(t, o.CSV)
	assert.Equal(t, `"`, o.Quote)
	assert.Equal(t, 1, o.IgnoreHeader)
	assert.Equal(t, "auto", o.DateFormat)
	assert.Equal(t, "auto", o.TimeFormat)
	assert.Equal(t, int64(100000), o.MaxError)
	assert.Equal(t, "GZIP", o.Compression)
	assert.Equal(t,
		`CSV QUOTE AS '"' GZIP ENCODING UTF8 IGNOREHEADER 1 DATEFORMAT 'auto' TIMEFORMAT 'auto' MAXERROR 100000`,
		o.SQL())
}

func TestLoadOptions_MaxError(t *testing.T) {
	f := records.DelimitedFormat(hints.CSV, nil)

	o, err := loadOptions(t, f, records.DefaultProcessingInstructions())
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.MaxError)

	pi := records.DefaultProcessingInstructions()
	pi.FailIfRowInvalid = false
	n := int64(12)
	pi.MaxFailureRows = &n
	o, err = loadOptions(t, f, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(12), o.MaxError)

	n = 5_000_000
	o, err = loadOptions(t, f, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), o.MaxError, "clamped to what Redshift accepts")
}

func TestLoadOptions_Bluelabs(t *testing.T) {
	o, err := loadOptions(t, records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: "BZIP"}), records.DefaultProcessingInstructions())
	require.NoError(t, err)
	assert.False(t, o.CSV)
	assert.True(t, o.Escape)
	assert.Equal(t, "BZIP2", o.Compression)
	assert.Equal(t, "YYYY-MM-DD", o.DateFormat)
	assert.Equal(t, "auto", o.TimeFormat, "datetime hints disagree")
	assert.Equal(t,
		`DELIMITER ',' ESCAPE BZIP2 ENCODING UTF8 DATEFORMAT 'YYYY-MM-DD' TIMEFORMAT 'auto' MAXERROR 0`,
		o.SQL())
}

func TestLoadOptions_TimeFormatPassesThroughWhenHintsAgree(t *testing.T) {
	f := records.DelimitedFormat(hints.Bluelabs, hints.Set{
		hints.DateTimeFormat:   "YYYY-MM-DD HH24:MI:SS",
		hints.DateTimeFormatTZ: "YYYY-MM-DD HH24:MI:SS",
	})
	o, err := loadOptions(t, f, records.DefaultProcessingInstructions())
	require.NoError(t, err)
	assert.Equal(t, "YYYY-MM-DD HH24:MI:SS", o.TimeFormat)
}

func TestLoadOptions_Rejections(t *testing.T) {
	cases := []struct {
		name string
		over hints.Set
		hint string
	}{
		{"latin1", hints.Set{hints.Encoding: "LATIN1"}, "encoding"},
		{"carriage return", hints.Set{hints.RecordTerminator: "\r\n"}, "record-terminator"},
		{"csv with tabs", hints.Set{hints.Quoting: "minimal", hints.FieldDelimiter: "\t", hints.Escape: nil, hints.DoubleQuote: true}, "field-delimiter"},
		{"doubled quotes outside csv", hints.Set{hints.DoubleQuote: true}, "doublequote"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadOptions(t, records.DelimitedFormat(hints.Bluelabs, tc.over), records.DefaultProcessingInstructions())
			var uh *errors.UnsupportedHintError
			require.True(t, errors.As(err, &uh), "got %v", err)
			assert.Equal(t, tc.hint, uh.Hint)
		})
	}
}

func TestUnloadOptions(t *testing.T) {
	var o UnloadOptions
	_, err := db.Translate("redshift", records.DelimitedFormat(hints.Bluelabs, nil), records.DefaultProcessingInstructions(),
		func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
			var err error
			o, err = UnloadOptionsFor(v, u, p)
			return err
		})
	require.NoError(t, err)
	assert.Equal(t, `DELIMITER AS ',' ESCAPE GZIP`, o.SQL())
	assert.Equal(t, "FORMAT AS PARQUET", UnloadOptions{Parquet: true}.SQL())

	d := New(nil, "x", nil)
	assert.False(t, d.Unloader().CanUnload(records.DelimitedFormat(hints.CSV, nil)), "csv dates are not ISO")
	assert.True(t, d.Unloader().CanUnload(records.ParquetFormat()))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `'\001'`, Literal("\x01"))
	assert.Equal(t, `'it''s'`, Literal("it's"))
	assert.Equal(t, `'\011'`, Literal("\t"))
}

func TestDriverTypes(t *testing.T) {
	d := New(nil, "", nil)
	assert.Equal(t, "VARCHAR(65535)", d.TypeForString(100000))
	assert.False(t, d.SupportsTimeType())
	assert.False(t, d.VarcharLengthIsInChars())
	assert.Equal(t, "first_name", d.MakeColumnNameValid("First Name"))

	s := &schema.Schema{Fields: []schema.Field{{Name: "t", Type: schema.Time}}}
	cols := s.ToColumns(d)
	assert.Equal(t, "VARCHAR(8)", cols[0].Type)
}

func TestFeasibility(t *testing.T) {
	d := New(nil, "", nil)
	for _, f := range d.Loader().KnownSupportedFormats() {
		assert.True(t, d.Loader().CanLoad(f), f.String())
	}
	for _, f := range d.Unloader().KnownSupportedFormats() {
		assert.True(t, d.Unloader().CanUnload(f), f.String())
	}
	assert.Equal(t, []string{"s3"}, d.Loader().AcceptedSchemes())
}

func newMockDriver(t *testing.T, creds string) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return New(conn, creds, nil), mock
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	d, mock := newMockDriver(t, "aws_iam_role=arn:aws:iam::1:role/r")
	dir := directory.New(location.NewResolver(nil), location.FileURL(t.TempDir()), nil)

	want := `COPY "public"."t" FROM '` + dir.URL + `_manifest' CREDENTIALS 'aws_iam_role=arn:aws:iam::1:role/r' MANIFEST ` +
		`CSV QUOTE AS '"' GZIP ENCODING UTF8 IGNOREHEADER 1 DATEFORMAT 'auto' TIMEFORMAT 'auto' MAXERROR 0`
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(want)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_last_copy_count()")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(42)))
	mock.ExpectCommit()

	n, err := d.Loader().Load(ctx, db.LoadRequest{
		Table:     db.TableRef{Schema: "public", Table: "t"},
		Directory: dir,
		Format:    records.DelimitedFormat(hints.CSV, nil),
		PI:        records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_Failures(t *testing.T) {
	ctx := context.Background()
	dir := directory.New(location.NewResolver(nil), location.FileURL(t.TempDir()), nil)
	req := db.LoadRequest{
		Table:     db.TableRef{Table: "t"},
		Directory: dir,
		Format:    records.ParquetFormat(),
		PI:        records.DefaultProcessingInstructions(),
	}

	d, _ := newMockDriver(t, "")
	_, err := d.Loader().Load(ctx, req)
	var ce *errors.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "redshift.credentials", ce.Option)

	d, mock := newMockDriver(t, "c")
	mock.ExpectBegin()
	mock.ExpectExec("COPY").WillReturnError(errors.New("S3ServiceException"))
	mock.ExpectRollback()
	_, err = d.Loader().Load(ctx, req)
	var le *errors.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "redshift", le.Engine)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnload(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	dir := directory.New(loc, location.FileURL(t.TempDir()), nil)
	manifest := `{"entries":[` +
		`{"url":"s3://b/p/part_0000_part_00.gz","mandatory":true,"meta":{"content_length":10}},` +
		`{"url":"s3://b/p/part_0001_part_00.gz","mandatory":true,"meta":{"content_length":12}}]}`
	require.NoError(t, loc.WriteFile(ctx, dir.URL+"part_manifest", []byte(manifest)))

	d, mock := newMockDriver(t, "c")
	want := `UNLOAD ('SELECT * FROM "public"."t"') TO '` + dir.URL + `part_' CREDENTIALS 'c' MANIFEST ALLOWOVERWRITE ` +
		`DELIMITER AS ',' ESCAPE GZIP`
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(want)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_last_unload_count()")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(7)))
	mock.ExpectCommit()

	res, err := d.Unloader().Unload(ctx, db.UnloadRequest{
		Table:     db.TableRef{Schema: "public", Table: "t"},
		Directory: dir,
		Format:    records.DelimitedFormat(hints.Bluelabs, nil),
		PI:        records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Rows)
	assert.Equal(t, []string{"s3://b/p/part_0000_part_00.gz", "s3://b/p/part_0001_part_00.gz"}, res.URLs)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = loc.ReadFile(ctx, dir.URL+"part_manifest")
	assert.True(t, errors.Is(err, os.ErrNotExist), "UNLOAD manifest is removed")
}

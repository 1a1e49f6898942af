package targets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/db/bigquery"
	"github.com/bluelabsio/records-mover-sub001/internal/db/postgres"
	"github.com/bluelabsio/records-mover-sub001/internal/db/sqlite"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

var people = &schema.Schema{Fields: []schema.Field{
	{Name: "id", Type: schema.Integer},
	{Name: "name", Type: schema.String},
}}

func plain() records.Format {
	return records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: nil})
}

func seed(t *testing.T, loc *location.Resolver) *directory.Directory {
	t.Helper()
	ctx := context.Background()
	dir := directory.New(loc, location.FileURL(t.TempDir()), nil)
	u := dir.DataFileURL(0, plain())
	require.NoError(t, loc.WriteFile(ctx, u, []byte("1,alice\n2,bob\n")))
	require.NoError(t, dir.Finalize(ctx, plain(), people, []string{u}))
	return dir
}

func peopleRecord(t *testing.T) (*arrow.Schema, arrow.Record) {
	t.Helper()
	as := people.ArrowSchema()
	rb := array.NewRecordBuilder(memory.DefaultAllocator, as)
	defer rb.Release()
	for _, v := range []string{"1", "2", "3"} {
		require.NoError(t, schema.AppendParsed(rb.Field(0), schema.Integer, v))
		require.NoError(t, schema.AppendParsed(rb.Field(1), schema.String, "n"+v))
	}
	return as, rb.NewRecord()
}

func TestDirectoryTarget_CanLoad(t *testing.T) {
	tgt := NewDirectoryTarget(location.NewResolver(nil), location.FileURL(t.TempDir()), plain(), nil)
	assert.True(t, tgt.CanLoad(plain()))
	assert.False(t, tgt.CanLoad(records.DelimitedFormat(hints.Bluelabs, nil)))
	assert.False(t, tgt.CanLoad(records.ParquetFormat()))
	assert.True(t, tgt.CanLoadDataframes())

	_, f := tgt.Destination()
	assert.True(t, f.Equal(plain()))
}

func TestDirectoryTarget_LoadDirectoryCopies(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	src := seed(t, loc)
	url := location.FileURL(t.TempDir())
	tgt := NewDirectoryTarget(loc, url, plain(), nil)

	n, err := tgt.LoadDirectory(ctx, src, plain(), people, records.DefaultProcessingInstructions())
	require.NoError(t, err)
	assert.Equal(t, int64(records.UnknownCount), n)

	out := directory.New(loc, url, nil)
	urls, err := out.DataURLs(ctx)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	data, err := loc.ReadFile(ctx, urls[0])
	require.NoError(t, err)
	assert.Equal(t, "1,alice\n2,bob\n", string(data))

	_, err = tgt.LoadDirectory(ctx, src, records.ParquetFormat(), people, records.DefaultProcessingInstructions())
	assert.Error(t, err)
}

func TestDirectoryTarget_LoadDataframes(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	url := location.FileURL(t.TempDir())
	tgt := NewDirectoryTarget(loc, url, records.ParquetFormat(), nil)

	as, rec := peopleRecord(t)
	defer rec.Release()
	pi := records.DefaultProcessingInstructions()
	n, err := tgt.LoadDataframes(ctx, dataframe.NewSliceIterator(as, []arrow.Record{rec}), people, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out := directory.New(loc, url, nil)
	f, err := out.LoadFormat(ctx)
	require.NoError(t, err)
	assert.Equal(t, records.Parquet, f.Type)
	r, err := out.NewReader(ctx, f, people, pi, nil)
	require.NoError(t, err)
	defer r.Close()
	recs, err := dataframe.Collect(ctx, r)
	require.NoError(t, err)
	defer dataframe.Release(recs)
	var rows int64
	for _, rec := range recs {
		rows += rec.NumRows()
	}
	assert.Equal(t, int64(3), rows)
}

func TestDataframeCollector(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	c := NewDataframeCollector()
	assert.False(t, c.CanLoad(plain()))
	assert.True(t, c.CanLoadDataframes())

	n, err := c.LoadDirectory(ctx, seed(t, loc), plain(), people, records.DefaultProcessingInstructions())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, people, c.Schema())
	require.NotEmpty(t, c.Records())

	require.NoError(t, c.Close())
	assert.Empty(t, c.Records())
}

func TestTableTarget_SQLite(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	d, err := sqlite.Open(ctx, db.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	defer d.Close()

	tgt := NewTableTarget(d, db.TableRef{Table: "people"}, db.Append, nil)
	assert.Equal(t, "sqlite:people", tgt.Name())
	assert.True(t, tgt.CanLoad(plain()))
	assert.True(t, tgt.CanLoadDataframes())
	assert.NoError(t, tgt.CheckLoad(plain(), records.DefaultProcessingInstructions()))

	pi := records.DefaultProcessingInstructions()
	n, err := tgt.LoadDirectory(ctx, seed(t, loc), plain(), people, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	as, rec := peopleRecord(t)
	defer rec.Release()
	n, err = tgt.LoadDataframes(ctx, dataframe.NewSliceIterator(as, []arrow.Record{rec}), people, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var total int
	require.NoError(t, d.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM people").Scan(&total))
	assert.Equal(t, 5, total)
}

func TestTableTarget_CheckLoadExplains(t *testing.T) {
	pg := postgres.New(postgres.NewBase(nil, "postgres"), nil, nil)
	tgt := NewTableTarget(pg, db.TableRef{Table: "t"}, db.Append, nil)
	assert.False(t, tgt.CanLoadDataframes())

	pi := records.DefaultProcessingInstructions()
	pi.FailIfCantHandleHint = true
	err := tgt.CheckLoad(records.DelimitedFormat(hints.Bluelabs, nil), pi)
	var uh *errors.UnsupportedHintError
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "compression", uh.Hint)
	assert.NoError(t, tgt.CheckLoad(plain(), pi))
}

func TestTableTarget_AdjustSchema(t *testing.T) {
	bqd := bigquery.New(nil, "ds", nil)
	tgt := NewTableTarget(bqd, db.TableRef{Table: "t"}, db.Append, nil)
	s := &schema.Schema{Fields: []schema.Field{{Name: "at", Type: schema.DateTime}}}

	assert.Equal(t, schema.DateTimeTZ, tgt.AdjustSchema(records.ParquetFormat(), s).Fields[0].Type)
	assert.Equal(t, schema.DateTime, tgt.AdjustSchema(records.DelimitedFormat(hints.BigQuery, nil), s).Fields[0].Type)

	sq := NewTableTarget(postgres.New(postgres.NewBase(nil, "postgres"), nil, nil), db.TableRef{Table: "t"}, db.Append, nil)
	assert.Same(t, s, sq.AdjustSchema(records.ParquetFormat(), s))
}

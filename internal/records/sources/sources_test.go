package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
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

func countRows(t *testing.T, it dataframe.Iterator) int64 {
	t.Helper()
	recs, err := dataframe.Collect(context.Background(), it)
	require.NoError(t, err)
	defer dataframe.Release(recs)
	var n int64
	for _, r := range recs {
		n += r.NumRows()
	}
	return n
}

// shape lists "name:type" per field.
func shape(s *schema.Schema) []string {
	var out []string
	for _, f := range s.Fields {
		out = append(out, f.Name+":"+string(f.Type))
	}
	return out
}

func seedDirectory(t *testing.T, loc *location.Resolver, s *schema.Schema) string {
	t.Helper()
	ctx := context.Background()
	url := location.FileURL(t.TempDir())
	dir := directory.New(loc, url, nil)
	f := plain()
	u := dir.DataFileURL(0, f)
	require.NoError(t, loc.WriteFile(ctx, u, []byte("1,alice\n2,bob\n3,carol\n")))
	require.NoError(t, dir.Finalize(ctx, f, s, []string{u}))
	return url
}

func TestDirectorySource(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	url := seedDirectory(t, loc, people)

	src, err := NewDirectorySource(ctx, loc, url, nil)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "directory:"+location.AsDir(url), src.Name())
	assert.True(t, src.CanEmit(plain()))
	assert.False(t, src.CanEmit(records.ParquetFormat()))
	assert.Nil(t, src.AcceptedSchemes())
	dir, f := src.Directory()
	assert.Equal(t, location.AsDir(url), dir.URL)
	assert.True(t, f.Equal(plain()))

	pi := records.DefaultProcessingInstructions()
	s, err := src.Schema(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, shape(people), shape(s))

	it, err := src.Dataframes(ctx, pi)
	require.NoError(t, err)
	defer it.Close()
	assert.Equal(t, int64(3), countRows(t, it))
}

func TestDirectorySource_ToDirectory(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	src, err := NewDirectorySource(ctx, loc, seedDirectory(t, loc, people), nil)
	require.NoError(t, err)

	out := directory.New(loc, location.FileURL(t.TempDir()), nil)
	pi := records.DefaultProcessingInstructions()
	n, err := src.ToDirectory(ctx, out, plain(), pi)
	require.NoError(t, err)
	assert.Equal(t, int64(records.UnknownCount), n)

	urls, err := out.DataURLs(ctx)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	data, err := loc.ReadFile(ctx, urls[0])
	require.NoError(t, err)
	assert.Equal(t, "1,alice\n2,bob\n3,carol\n", string(data))

	_, err = src.ToDirectory(ctx, out, records.ParquetFormat(), pi)
	assert.Error(t, err)
}

func TestDirectorySource_InfersMissingSchema(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	src, err := NewDirectorySource(ctx, loc, seedDirectory(t, loc, nil), nil)
	require.NoError(t, err)

	s, err := src.Schema(ctx, records.DefaultProcessingInstructions())
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, schema.Integer, s.Fields[0].Type)
	assert.Equal(t, schema.String, s.Fields[1].Type)
}

func TestDirectorySource_MissingFormat(t *testing.T) {
	_, err := NewDirectorySource(context.Background(), location.NewResolver(nil), location.FileURL(t.TempDir()), nil)
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	loc := location.NewResolver(nil)
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,alice\n2,bob\n"), 0o644))
	url := location.FileURL(path)

	src, err := NewFileSource(ctx, loc, url, hints.Set{hints.HeaderRow: true}, nil)
	require.NoError(t, err)
	defer src.Close()

	f := src.Format()
	require.Equal(t, records.Delimited, f.Type)
	assert.Equal(t, ",", f.Hints[hints.FieldDelimiter])
	assert.Equal(t, true, f.Hints[hints.HeaderRow])
	assert.True(t, src.CanEmit(f))
	assert.Equal(t, []records.Format{f}, src.KnownSupportedFormats())

	pi := records.DefaultProcessingInstructions()
	s, err := src.Schema(ctx, pi)
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "id", s.Fields[0].Name)
	assert.Equal(t, schema.Integer, s.Fields[0].Type)
	assert.Equal(t, "name", s.Fields[1].Name)
	assert.Equal(t, schema.String, s.Fields[1].Type)

	it, err := src.Dataframes(ctx, pi)
	require.NoError(t, err)
	defer it.Close()
	assert.Equal(t, int64(2), countRows(t, it))

	out := directory.New(loc, location.FileURL(t.TempDir()), nil)
	_, err = src.ToDirectory(ctx, out, f, pi)
	require.NoError(t, err)
	got, err := out.LoadFormat(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(f))
	saved, err := out.LoadSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, shape(s), shape(saved))
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(context.Background(), location.NewResolver(nil),
		location.FileURL(filepath.Join(t.TempDir(), "nope.csv")), nil, nil)
	assert.Error(t, err)
}

func TestDataframeSource(t *testing.T) {
	ctx := context.Background()
	as := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	rb := array.NewRecordBuilder(memory.DefaultAllocator, as)
	defer rb.Release()
	rb.Field(0).(*array.Int64Builder).AppendValues([]int64{10, 20}, nil)
	rb.Field(1).(*array.StringBuilder).AppendValues([]string{"x", "y"}, nil)
	rec := rb.NewRecord()
	defer rec.Release()

	src := NewDataframeSource(as, []arrow.Record{rec}, nil)
	assert.Equal(t, "dataframe", src.Name())
	assert.Nil(t, src.KnownSupportedFormats())
	assert.False(t, src.CanEmit(plain()))

	pi := records.DefaultProcessingInstructions()
	s, err := src.Schema(ctx, pi)
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, schema.Integer, s.Fields[0].Type)
	assert.Equal(t, schema.String, s.Fields[1].Type)

	it, err := src.Dataframes(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, as, it.Schema())
	recs, err := dataframe.Collect(ctx, it)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].NumRows())

	_, err = src.ToDirectory(ctx, directory.New(location.NewResolver(nil), location.FileURL(t.TempDir()), nil), plain(), pi)
	assert.Error(t, err)
}

func TestTableSource_SQLite(t *testing.T) {
	ctx := context.Background()
	d, err := sqlite.Open(ctx, db.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Exec(ctx, "CREATE TABLE people (id INTEGER NOT NULL, name VARCHAR(20))"))
	require.NoError(t, d.Exec(ctx, "INSERT INTO people VALUES (1, 'alice'), (2, 'bob')"))

	src := NewTableSource(d, db.TableRef{Table: "people"}, nil)
	assert.Equal(t, "sqlite:people", src.Name())
	assert.Nil(t, src.KnownSupportedFormats())
	assert.False(t, src.CanEmit(plain()))

	pi := records.DefaultProcessingInstructions()
	s, err := src.Schema(ctx, pi)
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, schema.Integer, s.Fields[0].Type)
	assert.True(t, s.Fields[0].Required())
	assert.Equal(t, schema.String, s.Fields[1].Type)

	it, err := src.Dataframes(ctx, pi)
	require.NoError(t, err)
	defer it.Close()
	assert.Equal(t, int64(2), countRows(t, it))

	_, err = src.ToDirectory(ctx, directory.New(location.NewResolver(nil), location.FileURL(t.TempDir()), nil), plain(), pi)
	var ue *errors.UnloadError
	assert.True(t, errors.As(err, &ue))
}

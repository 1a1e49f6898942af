package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

func openTemp(t *testing.T) *Driver {
	t.Helper()
	d, err := Open(context.Background(), db.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d.(*Driver)
}

func TestColumnInfo(t *testing.T) {
	c := columnInfo("amount", "NUMERIC(10,2)", true)
	assert.Equal(t, "NUMERIC", c.DataType)
	assert.Equal(t, 10, *c.NumericPrecision)
	assert.Equal(t, 2, *c.NumericScale)

	c = columnInfo("name", "VARCHAR(80)", false)
	assert.Equal(t, "VARCHAR", c.DataType)
	assert.Equal(t, 80, *c.CharMaxLength)
	assert.Equal(t, "VARCHAR(80)", c.DDL)

	c = columnInfo("id", "INTEGER", false)
	assert.Equal(t, "INTEGER", c.DataType)
	assert.Nil(t, c.CharMaxLength)
}

func TestLoadAndSelect(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	s := &schema.Schema{Fields: []schema.Field{
		{Name: "id", Type: schema.Integer, Constraints: &schema.Constraints{Required: true}},
		{Name: "name", Type: schema.String, Constraints: &schema.Constraints{MaxLengthChars: schema.IntPtr(20)}},
	}}
	table := db.TableRef{Table: "people"}
	created, err := db.PrepareTable(ctx, d, table, s, db.Append, nil)
	require.NoError(t, err)
	assert.True(t, created)

	loc := location.NewResolver(nil)
	dir := directory.New(loc, location.FileURL(t.TempDir()), nil)
	f := records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: nil})
	u := dir.DataFileURL(0, f)
	require.NoError(t, loc.WriteFile(ctx, u, []byte("1,alice\n2,bob\n")))
	require.NoError(t, dir.Finalize(ctx, f, s, []string{u}))

	n, err := d.Loader().Load(ctx, db.LoadRequest{
		Table:     table,
		Directory: dir,
		Format:    f,
		Schema:    s,
		PI:        records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	back, err := schema.FromDBTable(ctx, d, "", "people")
	require.NoError(t, err)
	require.Len(t, back.Fields, 2)
	assert.Equal(t, schema.Integer, back.Fields[0].Type)
	assert.True(t, back.Fields[0].Required())
	assert.Equal(t, schema.String, back.Fields[1].Type)
	assert.Equal(t, 20, *back.Fields[1].Constraints.MaxLengthChars)

	it, err := db.SelectAll(ctx, d, table, s, 10, nil)
	require.NoError(t, err)
	defer it.Close()
	recs, err := dataframe.Collect(ctx, it)
	require.NoError(t, err)
	defer dataframe.Release(recs)
	var rows int64
	for _, r := range recs {
		rows += r.NumRows()
	}
	assert.Equal(t, int64(2), rows)
}

func TestPrepareTable_Truncate(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)
	require.NoError(t, d.Exec(ctx, `CREATE TABLE "t" ("id" INTEGER)`))
	require.NoError(t, d.Exec(ctx, `INSERT INTO "t" VALUES (1), (2)`))

	created, err := db.PrepareTable(ctx, d, db.TableRef{Table: "t"}, nil, db.TruncateAndOverwrite, nil)
	require.NoError(t, err)
	assert.False(t, created)

	var n int
	require.NoError(t, d.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "t"`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestTableExists_Missing(t *testing.T) {
	d := openTemp(t)
	ok, err := db.TableExists(context.Background(), d, db.TableRef{Table: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)
}

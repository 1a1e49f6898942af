package bigquery

import (
	"context"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

type fakeJobs struct {
	tables  map[string]*bq.TableMetadata
	queries []string
	loads   []bq.LoadSource
	rows    int64
}

func (f *fakeJobs) Metadata(_ context.Context, dataset, table string) (*bq.TableMetadata, error) {
	md, ok := f.tables[dataset+"."+table]
	if !ok {
		return nil, &googleapi.Error{Code: 404, Message: "not found"}
	}
	return md, nil
}

func (f *fakeJobs) Query(_ context.Context, stmt string) error {
	f.queries = append(f.queries, stmt)
	return nil
}

func (f *fakeJobs) Load(_ context.Context, _, _ string, src bq.LoadSource) (*bq.JobStatus, error) {
	f.loads = append(f.loads, src)
	return &bq.JobStatus{
		State:      bq.Done,
		Statistics: &bq.JobStatistics{Details: &bq.LoadStatistics{OutputRows: f.rows}},
	}, nil
}

func (f *fakeJobs) Extract(context.Context, string, string, *bq.GCSReference) (*bq.JobStatus, error) {
	return &bq.JobStatus{State: bq.Done}, nil
}

func (f *fakeJobs) Close() error { return nil }

func TestCanLoad(t *testing.T) {
	l := New(&fakeJobs{}, "ds", nil).Loader()
	cases := []struct {
		name string
		f    records.Format
		want bool
	}{
		{"parquet", records.ParquetFormat(), true},
		{"bigquery", records.DelimitedFormat(hints.BigQuery, nil), true},
		{"bigquery uncompressed", records.DelimitedFormat(hints.BigQuery, hints.Set{hints.Compression: nil}), true},
		{"bigquery bzip", records.DelimitedFormat(hints.BigQuery, hints.Set{hints.Compression: "BZIP"}), false},
		{"bluelabs", records.DelimitedFormat(hints.Bluelabs, nil), false},
		{"csv", records.DelimitedFormat(hints.CSV, nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, l.CanLoad(tc.f))
		})
	}
}

func TestLoadOptionsFor_BigQueryVariant(t *testing.T) {
	var o LoadOptions
	pi := records.DefaultProcessingInstructions()
	_, err := db.Translate("bigquery", records.DelimitedFormat(hints.BigQuery, nil), pi,
		func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
			var err error
			o, err = LoadOptionsFor(v, u, p, pi)
			return err
		})
	require.NoError(t, err)
	fc := o.FileConfig()
	assert.Equal(t, bq.CSV, fc.SourceFormat)
	assert.Equal(t, ",", fc.FieldDelimiter)
	assert.Equal(t, `"`, fc.Quote)
	assert.Equal(t, int64(1), fc.SkipLeadingRows)
	assert.True(t, fc.AllowQuotedNewlines)
	assert.Equal(t, bq.UTF_8, fc.Encoding)
}

func TestLoadOptionsFor_RejectsEscape(t *testing.T) {
	pi := records.DefaultProcessingInstructions()
	f := records.DelimitedFormat(hints.BigQuery, hints.Set{hints.Escape: `\`})
	_, err := db.Translate("bigquery", f, pi, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		_, err := LoadOptionsFor(v, u, p, pi)
		return err
	})
	var uh *errors.UnsupportedHintError
	require.True(t, errors.As(err, &uh))
	assert.Equal(t, "escape", string(uh.Hint))
}

func TestTypes(t *testing.T) {
	d := New(&fakeJobs{}, "ds", nil)
	assert.Equal(t, "NUMERIC", d.TypeForFixedPoint(10, 2))
	assert.Equal(t, "BIGNUMERIC", d.TypeForFixedPoint(40, 2))
	assert.Equal(t, "BIGNUMERIC", d.TypeForFixedPoint(20, 12))
	assert.Equal(t, "TIMESTAMP", d.TypeForDatePlusTime(true))
	assert.Equal(t, "DATETIME", d.TypeForDatePlusTime(false))
	assert.Equal(t, "INT64", d.TypeForInteger(nil, nil))
	assert.Equal(t, "`ds`.`t`", db.TableRef{Schema: "ds", Table: "t"}.Qualified(d))
}

func TestColumns(t *testing.T) {
	ctx := context.Background()
	api := &fakeJobs{tables: map[string]*bq.TableMetadata{
		"ds.t": {Schema: bq.Schema{
			{Name: "id", Type: bq.IntegerFieldType, Required: true},
			{Name: "amount", Type: bq.NumericFieldType},
			{Name: "at", Type: bq.TimestampFieldType},
			{Name: "name", Type: bq.StringFieldType, MaxLength: 20},
		}},
	}}
	d := New(api, "ds", nil)

	s, err := schema.FromDBTable(ctx, d, "", "t")
	require.NoError(t, err)
	require.Len(t, s.Fields, 4)
	assert.Equal(t, schema.Integer, s.Fields[0].Type)
	assert.True(t, s.Fields[0].Required())
	assert.Equal(t, schema.Decimal, s.Fields[1].Type)
	assert.Equal(t, 38, *s.Fields[1].Constraints.FixedPrecision)
	assert.Equal(t, 9, *s.Fields[1].Constraints.FixedScale)
	assert.Equal(t, schema.DateTimeTZ, s.Fields[2].Type)
	assert.Equal(t, schema.String, s.Fields[3].Type)
	assert.Equal(t, 20, *s.Fields[3].Constraints.MaxLengthChars)

	exists, err := db.TableExists(ctx, d, db.TableRef{Table: "missing"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPrepareTable_DeleteNeedsWhere(t *testing.T) {
	api := &fakeJobs{tables: map[string]*bq.TableMetadata{
		"ds.t": {Schema: bq.Schema{{Name: "id", Type: bq.IntegerFieldType}}},
	}}
	d := New(api, "ds", nil)
	created, err := db.PrepareTable(context.Background(), d, db.TableRef{Schema: "ds", Table: "t"}, nil, db.DeleteAndOverwrite, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"DELETE FROM `ds`.`t` WHERE true"}, api.queries)
}

func TestAdjustSchema(t *testing.T) {
	d := New(&fakeJobs{}, "ds", nil)
	s := &schema.Schema{Fields: []schema.Field{
		{Name: "at", Type: schema.DateTime},
		{Name: "n", Type: schema.Integer},
	}}

	adj := d.AdjustSchema(records.ParquetFormat(), s)
	assert.Equal(t, schema.DateTimeTZ, adj.Fields[0].Type)
	assert.Equal(t, schema.Integer, adj.Fields[1].Type)
	assert.Equal(t, schema.DateTime, s.Fields[0].Type)

	same := d.AdjustSchema(records.DelimitedFormat(hints.BigQuery, nil), s)
	assert.Equal(t, schema.DateTime, same.Fields[0].Type)
}

func TestLoad_UploadsEachFile(t *testing.T) {
	ctx := context.Background()
	api := &fakeJobs{rows: 3}
	d := New(api, "ds", nil)

	loc := location.NewResolver(nil)
	dir := directory.New(loc, location.FileURL(t.TempDir()), nil)
	f := records.DelimitedFormat(hints.BigQuery, hints.Set{hints.Compression: nil})
	u0, u1 := dir.DataFileURL(0, f), dir.DataFileURL(1, f)
	require.NoError(t, loc.WriteFile(ctx, u0, []byte("id\n1\n2\n3\n")))
	require.NoError(t, loc.WriteFile(ctx, u1, []byte("id\n4\n5\n6\n")))
	require.NoError(t, dir.Finalize(ctx, f, nil, []string{u0, u1}))

	s := &schema.Schema{Fields: []schema.Field{{Name: "id", Type: schema.Integer}}}
	n, err := d.Loader().Load(ctx, db.LoadRequest{
		Table:     db.TableRef{Table: "t"},
		Directory: dir,
		Format:    f,
		Schema:    s,
		PI:        records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	require.Len(t, api.loads, 2)
	src, ok := api.loads[0].(*bq.ReaderSource)
	require.True(t, ok)
	assert.Equal(t, bq.IntegerFieldType, src.Schema[0].Type)
	assert.Equal(t, int64(1), src.SkipLeadingRows)
}

func TestLoad_RejectsOtherVariants(t *testing.T) {
	d := New(&fakeJobs{}, "ds", nil)
	loc := location.NewResolver(nil)
	_, err := d.Loader().Load(context.Background(), db.LoadRequest{
		Table:     db.TableRef{Table: "t"},
		Directory: directory.New(loc, location.FileURL(t.TempDir()), nil),
		Format:    records.DelimitedFormat(hints.Bluelabs, nil),
		PI:        records.DefaultProcessingInstructions(),
	})
	require.Error(t, err)
}

func TestUnload_RequiresGCS(t *testing.T) {
	d := New(&fakeJobs{}, "ds", nil)
	loc := location.NewResolver(nil)
	_, err := d.Unloader().Unload(context.Background(), db.UnloadRequest{
		Table:     db.TableRef{Table: "t"},
		Directory: directory.New(loc, location.FileURL(t.TempDir()), nil),
		Format:    records.ParquetFormat(),
		PI:        records.DefaultProcessingInstructions(),
	})
	var ue *errors.UnloadError
	require.True(t, errors.As(err, &ue))
}

func TestAllGCS(t *testing.T) {
	assert.True(t, allGCS([]string{"gs://b/a", "gs://b/c"}))
	assert.False(t, allGCS([]string{"gs://b/a", "file:///tmp/c"}))
}

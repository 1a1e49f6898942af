package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

func TestParseEndpoint(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		raw  string
		want endpoint
	}{
		{"qualified table", "db://warehouse/public.orders",
			endpoint{kind: tableEndpoint, database: "warehouse", table: db.TableRef{Schema: "public", Table: "orders"}}},
		{"bare table", "db://lite/people",
			endpoint{kind: tableEndpoint, database: "lite", table: db.TableRef{Table: "people"}}},
		{"s3 directory", "s3://bucket/out/", endpoint{kind: directoryEndpoint, url: "s3://bucket/out/"}},
		{"gs file", "gs://bucket/in.csv", endpoint{kind: fileEndpoint, url: "gs://bucket/in.csv"}},
		{"local directory", dir + "/", endpoint{kind: directoryEndpoint, url: location.FileURL(dir + "/")}},
		{"local file", filepath.Join(dir, "x.csv"), endpoint{kind: fileEndpoint, url: location.FileURL(filepath.Join(dir, "x.csv"))}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseEndpoint(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseEndpoint_Malformed(t *testing.T) {
	for _, raw := range []string{"", "db://", "db://warehouse", "db:///orders"} {
		_, err := parseEndpoint(raw)
		var ce *errors.ConfigError
		assert.True(t, errors.As(err, &ce), raw)
	}
}

func TestTargetFormat(t *testing.T) {
	f, err := targetFormat("parquet", nil)
	require.NoError(t, err)
	assert.Equal(t, records.Parquet, f.Type)

	f, err = targetFormat("csv", hints.Set{hints.Compression: nil})
	require.NoError(t, err)
	assert.Equal(t, records.Delimited, f.Type)
	assert.Equal(t, hints.CSV, f.Variant)
	assert.True(t, f.Hints.Has(hints.Compression))

	_, err = targetFormat("excel", nil)
	var ce *errors.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "format", ce.Option)

	_, err = targetFormat("parquet", hints.Set{hints.HeaderRow: true})
	assert.Error(t, err)
}

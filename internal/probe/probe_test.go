package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

const sample = "id,category,value\n1,a,10\n2,a,11\n3,b,12\n4,b,13\n5,c,\n"

func writeSample(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sample.csv")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o600))
	return p
}

func TestProbe_SniffsAndInfers(t *testing.T) {
	res, err := Probe(context.Background(), location.NewResolver(nil), writeSample(t), Options{
		Hints: hints.Set{hints.HeaderRow: true},
		PI:    records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.URL, "file://"))
	assert.Equal(t, records.Delimited, res.Format.Type)
	assert.Equal(t, ",", res.Format.Hints[hints.FieldDelimiter])
	require.Len(t, res.Schema.Fields, 3)
	assert.Equal(t, "id", res.Schema.Fields[0].Name)
	assert.Equal(t, schema.Integer, res.Schema.Fields[0].Type)
	assert.Equal(t, schema.String, res.Schema.Fields[1].Type)
	assert.Nil(t, res.Uniqueness)
}

func TestProbe_Uniqueness(t *testing.T) {
	res, err := Probe(context.Background(), location.NewResolver(nil), writeSample(t), Options{
		Hints:      hints.Set{hints.HeaderRow: true},
		PI:         records.DefaultProcessingInstructions(),
		Uniqueness: true,
	})
	require.NoError(t, err)
	u := res.Uniqueness
	require.NotNil(t, u)

	assert.Equal(t, 5, u.TotalRows)
	assert.Equal(t, []string{"id", "category", "value"}, u.ColumnOrder)
	assert.Equal(t, 5, u.PerColumnDistinct["id"])
	assert.Equal(t, 3, u.PerColumnDistinct["category"])
	assert.Equal(t, 4, u.PerColumnTotal["value"])

	report := FormatUniquenessReport(u)
	assert.True(t, strings.HasPrefix(report, "uniqueness report:\tsampled_rows=5"))
	lines := strings.Split(report, "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "category"), "least unique column first")
}

func TestProbe_MaxRowsBoundsSample(t *testing.T) {
	res, err := Probe(context.Background(), location.NewResolver(nil), writeSample(t), Options{
		Hints:      hints.Set{hints.HeaderRow: true},
		PI:         records.DefaultProcessingInstructions(),
		Uniqueness: true,
		MaxRows:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uniqueness.TotalRows)
	assert.Equal(t, 1, res.Uniqueness.PerColumnDistinct["category"])
}

func TestProbe_Errors(t *testing.T) {
	loc := location.NewResolver(nil)
	_, err := Probe(context.Background(), loc, filepath.Join(t.TempDir(), "absent.csv"), Options{
		PI: records.DefaultProcessingInstructions(),
	})
	assert.Error(t, err)

	_, err = Probe(context.Background(), loc, writeSample(t), Options{})
	assert.Error(t, err, "zero-value instructions do not validate")
}

func TestWriteJSON(t *testing.T) {
	res, err := Probe(context.Background(), location.NewResolver(nil), writeSample(t), Options{
		Hints: hints.Set{hints.HeaderRow: true},
		PI:    records.DefaultProcessingInstructions(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.WriteJSON(&buf))

	var doc struct {
		URL    string         `json:"url"`
		Format map[string]any `json:"format"`
		Schema struct {
			Fields map[string]any `json:"fields"`
		} `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, res.URL, doc.URL)
	assert.Equal(t, "delimited", doc.Format["type"])
	assert.Len(t, doc.Schema.Fields, 3)
}

func TestAccumulator_CapsDistinct(t *testing.T) {
	a := newUniquenessAccumulator([]string{"k", "c"})
	for i := 0; i < distinctCapPerColumn+5; i++ {
		a.add([]any{int64(i), "same"})
	}
	a.add([]any{"short row"})
	u := a.finish()

	assert.Equal(t, distinctCapPerColumn+5, u.TotalRows)
	assert.True(t, u.PerColumnCapped["k"])
	assert.Equal(t, distinctCapPerColumn, u.PerColumnDistinct["k"])
	assert.False(t, u.PerColumnCapped["c"])
	assert.Equal(t, 1, u.PerColumnDistinct["c"])
}

func TestAccumulator_SkipsBlankAndNull(t *testing.T) {
	a := newUniquenessAccumulator([]string{"v"})
	for _, v := range []any{nil, "  ", "x", " x ", true} {
		a.add([]any{v})
	}
	u := a.finish()
	assert.Equal(t, 5, u.TotalRows)
	assert.Equal(t, 3, u.PerColumnTotal["v"])
	assert.Equal(t, 2, u.PerColumnDistinct["v"])
}

func TestFormatUniquenessReport_Empty(t *testing.T) {
	assert.Equal(t, "uniqueness: no rows sampled", FormatUniquenessReport(nil))
	assert.Equal(t, "uniqueness: no rows sampled", FormatUniquenessReport(newUniquenessAccumulator(nil).finish()))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "s3://b/k.csv", NormalizeURL("s3://b/k.csv"))
	abs := filepath.Join(t.TempDir(), "x.csv")
	assert.Equal(t, fmt.Sprintf("file://%s", filepath.ToSlash(abs)), NormalizeURL(abs))
}

// Package probe sniffs a single data file and reports what mvrec would make
// of it: the records format, the inferred schema and, on request, a bounded
// per-column uniqueness report over the sampled rows.
//
// The uniqueness numbers are sample statistics. They help pick keys and
// spot low-cardinality columns before a move; they are not a profile of the
// whole file.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
	"github.com/bluelabsio/records-mover-sub001/internal/records/sources"
)

// distinctCapPerColumn bounds the distinct set kept per column.
const distinctCapPerColumn = 10000

// Options controls a probe run.
type Options struct {
	// Hints override what the sniffer finds.
	Hints hints.Set
	PI    records.ProcessingInstructions
	// Uniqueness enables the per-column report.
	Uniqueness bool
	// MaxRows bounds the rows sampled for the report. Zero means
	// PI.MaxInferenceRows.
	MaxRows int
	Logger  *zap.SugaredLogger
}

// Result is what a probe learned about one file.
type Result struct {
	URL        string
	Format     records.Format
	Schema     *schema.Schema
	Uniqueness *Uniqueness
}

// Uniqueness captures bounded distinct counts for a sample.
//
// Ratios use PerColumnTotal, the rows where the column had a value, never
// TotalRows.
type Uniqueness struct {
	TotalRows         int
	PerColumnTotal    map[string]int
	PerColumnDistinct map[string]int
	PerColumnCapped   map[string]bool
	ColumnOrder       []string
}

// NormalizeURL turns a bare filesystem path into a file:// URL.
func NormalizeURL(u string) string {
	if strings.Contains(u, "://") {
		return u
	}
	return location.FileURL(u)
}

// Probe sniffs url and infers its schema.
func Probe(ctx context.Context, loc *location.Resolver, url string, opt Options) (*Result, error) {
	log := logging.Or(opt.Logger)
	if err := opt.PI.Validate(); err != nil {
		return nil, err
	}
	url = NormalizeURL(url)
	start := time.Now()

	src, err := sources.NewFileSource(ctx, loc, url, opt.Hints, log)
	if err != nil {
		return nil, errors.Wrapf(err, "sniff %s", url)
	}
	defer src.Close()

	s, err := src.Schema(ctx, opt.PI)
	if err != nil {
		return nil, err
	}
	res := &Result{URL: url, Format: src.Format(), Schema: s}

	if opt.Uniqueness {
		limit := opt.MaxRows
		if limit <= 0 {
			limit = opt.PI.MaxInferenceRows
		}
		it, err := src.Dataframes(ctx, opt.PI)
		if err != nil {
			return nil, err
		}
		u, err := sampleUniqueness(ctx, it, limit)
		it.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "sample %s", url)
		}
		res.Uniqueness = u
	}

	log.Infow("probe complete",
		"url", url,
		"format", res.Format.String(),
		"fields", len(s.Fields),
		"elapsed", time.Since(start).String(),
	)
	return res, nil
}

// sampleUniqueness reads at most limit rows from it.
func sampleUniqueness(ctx context.Context, it dataframe.Iterator, limit int) (*Uniqueness, error) {
	var cols []string
	for _, f := range it.Schema().Fields() {
		cols = append(cols, f.Name)
	}
	acc := newUniquenessAccumulator(cols)
	row := make([]any, 0, len(cols))
	for acc.stats.TotalRows < limit {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		n := int(rec.NumRows())
		for i := 0; i < n && acc.stats.TotalRows < limit; i++ {
			row = dataframe.RowValues(rec, i, row[:0])
			acc.add(row)
		}
		rec.Release()
	}
	return acc.finish(), nil
}

type uniquenessAccumulator struct {
	stats Uniqueness
	sets  []map[string]struct{}
}

func newUniquenessAccumulator(cols []string) *uniquenessAccumulator {
	a := &uniquenessAccumulator{
		stats: Uniqueness{
			PerColumnTotal:    make(map[string]int, len(cols)),
			PerColumnDistinct: make(map[string]int, len(cols)),
			PerColumnCapped:   make(map[string]bool, len(cols)),
			ColumnOrder:       append([]string(nil), cols...),
		},
		sets: make([]map[string]struct{}, len(cols)),
	}
	for i := range a.sets {
		a.sets[i] = make(map[string]struct{})
	}
	return a
}

// add counts one row. Rows of the wrong width are skipped.
func (a *uniquenessAccumulator) add(row []any) {
	cols := a.stats.ColumnOrder
	if len(row) != len(cols) {
		return
	}
	a.stats.TotalRows++
	for i, col := range cols {
		v := stringifyForUniq(row[i])
		if v == "" {
			continue
		}
		a.stats.PerColumnTotal[col]++
		if a.stats.PerColumnCapped[col] {
			continue
		}
		a.sets[i][v] = struct{}{}
		if len(a.sets[i]) >= distinctCapPerColumn {
			a.stats.PerColumnCapped[col] = true
			a.sets[i] = nil
		}
	}
}

func (a *uniquenessAccumulator) finish() *Uniqueness {
	for i, col := range a.stats.ColumnOrder {
		if a.stats.PerColumnCapped[col] {
			a.stats.PerColumnDistinct[col] = distinctCapPerColumn
			continue
		}
		a.stats.PerColumnDistinct[col] = len(a.sets[i])
	}
	return &a.stats
}

func stringifyForUniq(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// FormatUniquenessReport renders stats least unique first.
func FormatUniquenessReport(stats *Uniqueness) string {
	if stats == nil || stats.TotalRows <= 0 {
		return "uniqueness: no rows sampled"
	}

	type row struct {
		Col    string
		Dist   int
		Ratio  float64
		Capped bool
		Den    int
	}
	rows := make([]row, 0, len(stats.ColumnOrder))
	for _, col := range stats.ColumnOrder {
		den := stats.PerColumnTotal[col]
		if den <= 0 {
			continue
		}
		d := stats.PerColumnDistinct[col]
		rows = append(rows, row{
			Col:    col,
			Dist:   d,
			Ratio:  float64(d) / float64(den),
			Capped: stats.PerColumnCapped[col],
			Den:    den,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Ratio == rows[j].Ratio {
			return rows[i].Col < rows[j].Col
		}
		return rows[i].Ratio < rows[j].Ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tsampled_rows=%d\n", stats.TotalRows)
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\t%.1f%%\t%t\n", r.Col, r.Dist, r.Den, r.Ratio*100, r.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}

type resultDoc struct {
	URL    string          `json:"url"`
	Format records.Format  `json:"format"`
	Schema json.RawMessage `json:"schema"`
}

// WriteJSON writes the format and schema as one indented JSON document.
func (r *Result) WriteJSON(w io.Writer) error {
	sj, err := schema.ToJSON(r.Schema)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resultDoc{URL: r.URL, Format: r.Format, Schema: sj})
}

package targets

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// DataframeCollector collects records in memory.
type DataframeCollector struct {
	schema *schema.Schema
	recs   []arrow.Record
}

func NewDataframeCollector() *DataframeCollector { return &DataframeCollector{} }

func (t *DataframeCollector) Name() string { return "dataframe" }

func (t *DataframeCollector) KnownSupportedFormats() []records.Format { return nil }
func (t *DataframeCollector) AcceptedSchemes() []string               { return nil }

// CanLoad is false so the planner always streams into the collector.
func (t *DataframeCollector) CanLoad(records.Format) bool { return false }

func (t *DataframeCollector) LoadDirectory(ctx context.Context, dir *directory.Directory, f records.Format, s *schema.Schema, pi records.ProcessingInstructions) (int64, error) {
	r, err := dir.NewReader(ctx, f, s, pi, nil)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return t.LoadDataframes(ctx, r, s, pi)
}

func (t *DataframeCollector) CanLoadDataframes() bool { return true }

func (t *DataframeCollector) LoadDataframes(ctx context.Context, it dataframe.Iterator, s *schema.Schema, _ records.ProcessingInstructions) (int64, error) {
	recs, err := dataframe.Collect(ctx, it)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range recs {
		n += r.NumRows()
	}
	t.schema = s
	t.recs = append(t.recs, recs...)
	return n, nil
}

// Records returns the collected chunks. The collector keeps ownership
// until Close.
func (t *DataframeCollector) Records() []arrow.Record { return t.recs }

func (t *DataframeCollector) Schema() *schema.Schema { return t.schema }

// Close releases the collected chunks.
func (t *DataframeCollector) Close() error {
	dataframe.Release(t.recs)
	t.recs = nil
	return nil
}

package sources

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// DataframeSource serves Arrow records held in memory. It can only stream.
type DataframeSource struct {
	as     *arrow.Schema
	recs   []arrow.Record
	schema *schema.Schema
}

// NewDataframeSource serves recs, which all share as. The caller keeps
// ownership of recs. A nil s is inferred from recs.
func NewDataframeSource(as *arrow.Schema, recs []arrow.Record, s *schema.Schema) *DataframeSource {
	return &DataframeSource{as: as, recs: recs, schema: s}
}

func (s *DataframeSource) Name() string { return "dataframe" }

func (s *DataframeSource) KnownSupportedFormats() []records.Format { return nil }
func (s *DataframeSource) CanEmit(records.Format) bool             { return false }
func (s *DataframeSource) AcceptedSchemes() []string               { return nil }

func (s *DataframeSource) Schema(_ context.Context, pi records.ProcessingInstructions) (*schema.Schema, error) {
	if s.schema == nil {
		s.schema = schema.Refine(schema.FromDataframe(s.as, false), s.recs, pi)
	}
	return s.schema, nil
}

func (s *DataframeSource) ToDirectory(context.Context, *directory.Directory, records.Format, records.ProcessingInstructions) (int64, error) {
	return 0, errors.New("dataframe source cannot write a records directory; transcode instead")
}

func (s *DataframeSource) Dataframes(context.Context, records.ProcessingInstructions) (dataframe.Iterator, error) {
	return dataframe.NewSliceIterator(s.as, s.recs), nil
}

func (s *DataframeSource) Close() error { return nil }

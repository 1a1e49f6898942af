// Package targets holds the places a move writes records to.
//
// A Target loads records directories in the formats it advertises. Targets
// that can also take Arrow chunks implement DataframeTarget, which is what
// the transcoded strategy prefers; the rest are fed a temporary directory
// written in their first loadable format.
package targets

import (
	"context"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Target is where a move writes records to.
type Target interface {
	Name() string

	// KnownSupportedFormats lists loadable formats, most preferred first.
	KnownSupportedFormats() []records.Format
	// CanLoad reports whether f loads without dropping any hint.
	CanLoad(f records.Format) bool
	// AcceptedSchemes lists the URL schemes LoadDirectory reads from. Nil
	// means any scheme the resolver supports.
	AcceptedSchemes() []string

	// LoadDirectory loads the finalized directory dir, whose data is in
	// format f and shaped by s. It returns the row count or
	// records.UnknownCount.
	LoadDirectory(ctx context.Context, dir *directory.Directory, f records.Format, s *schema.Schema, pi records.ProcessingInstructions) (int64, error)

	Close() error
}

// DataframeTarget is implemented by targets that can take Arrow chunks.
type DataframeTarget interface {
	// CanLoadDataframes is false when this particular target still needs
	// a records directory.
	CanLoadDataframes() bool
	// LoadDataframes drains it. The caller closes it.
	LoadDataframes(ctx context.Context, it dataframe.Iterator, s *schema.Schema, pi records.ProcessingInstructions) (int64, error)
}

// Destination is implemented by targets that are themselves a records
// directory, so a source can write straight into them.
type Destination interface {
	Destination() (*directory.Directory, records.Format)
}

// Checker is implemented by targets that can explain why they refuse a
// format. The error names the offending hint.
type Checker interface {
	CheckLoad(f records.Format, pi records.ProcessingInstructions) error
}

// SchemaAdjuster is implemented by targets that change the records schema
// before loading format f.
type SchemaAdjuster interface {
	AdjustSchema(f records.Format, s *schema.Schema) *schema.Schema
}

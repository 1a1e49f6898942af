// Package sources holds the places a move reads records from.
//
// A Source can do up to two things:
//   - materialize itself as a records directory in one of its known formats
//     (ToDirectory), which is what the direct and staged strategies use
//   - stream itself as Arrow chunks (Dataframes), which is what the
//     transcoded strategy uses
//
// Every source can stream. Sources whose KnownSupportedFormats is empty can
// only stream.
package sources

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Source is where a move reads records from.
type Source interface {
	// Name identifies the source in logs, e.g. "postgres:public.orders".
	Name() string

	// KnownSupportedFormats lists the formats ToDirectory can write, most
	// preferred first.
	KnownSupportedFormats() []records.Format
	// CanEmit reports whether ToDirectory can write f exactly.
	CanEmit(f records.Format) bool
	// AcceptedSchemes lists the URL schemes ToDirectory can write to. Nil
	// means any scheme the resolver supports.
	AcceptedSchemes() []string

	// Schema returns the records schema of the data.
	Schema(ctx context.Context, pi records.ProcessingInstructions) (*schema.Schema, error)

	// ToDirectory writes the data into dir in format f and finalizes dir.
	// It returns the row count or records.UnknownCount.
	ToDirectory(ctx context.Context, dir *directory.Directory, f records.Format, pi records.ProcessingInstructions) (int64, error)

	// Dataframes streams the data as chunks typed by Schema.
	Dataframes(ctx context.Context, pi records.ProcessingInstructions) (dataframe.Iterator, error)

	Close() error
}

// InPlace is implemented by sources that already are a records directory,
// so a target may read them where they sit.
type InPlace interface {
	Directory() (*directory.Directory, records.Format)
}

// Fixed is implemented by sources whose bytes already exist in one format.
type Fixed interface {
	Format() records.Format
}

// inferSchema reads up to pi.MaxInferenceRows rows from it and returns a
// schema refined by that sample. it is closed.
func inferSchema(ctx context.Context, it dataframe.Iterator, pi records.ProcessingInstructions) (*schema.Schema, error) {
	defer it.Close()

	var (
		sample []arrow.Record
		rows   int64
	)
	defer func() { dataframe.Release(sample) }()
	for rows < int64(pi.MaxInferenceRows) {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		sample = append(sample, rec)
		rows += rec.NumRows()
	}
	return schema.Refine(schema.FromDataframe(it.Schema(), false), sample, pi), nil
}

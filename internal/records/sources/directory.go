package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// DirectorySource reads an existing records directory.
type DirectorySource struct {
	dir    *directory.Directory
	format records.Format
	schema *schema.Schema
	log    *zap.SugaredLogger
}

// NewDirectorySource reads the format and schema documents of the directory
// at url. A missing _schema.json is inferred later from the data.
func NewDirectorySource(ctx context.Context, loc *location.Resolver, url string, l *zap.SugaredLogger) (*DirectorySource, error) {
	log := logging.Or(l)
	dir := directory.New(loc, url, log)
	f, err := dir.LoadFormat(ctx)
	if err != nil {
		return nil, err
	}
	s, err := dir.LoadSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &DirectorySource{dir: dir, format: f, schema: s, log: log}, nil
}

func (s *DirectorySource) Name() string { return "directory:" + s.dir.URL }

func (s *DirectorySource) Directory() (*directory.Directory, records.Format) {
	return s.dir, s.format
}

// Format is the format recorded in the directory.
func (s *DirectorySource) Format() records.Format { return s.format }

func (s *DirectorySource) KnownSupportedFormats() []records.Format {
	return []records.Format{s.format}
}

// CanEmit accepts only the directory's own format; the bytes are copied
// as they are.
func (s *DirectorySource) CanEmit(f records.Format) bool { return s.format.Equal(f) }

func (s *DirectorySource) AcceptedSchemes() []string { return nil }

func (s *DirectorySource) Schema(ctx context.Context, pi records.ProcessingInstructions) (*schema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	r, err := s.dir.NewReader(ctx, s.format, nil, pi, nil)
	if err != nil {
		return nil, err
	}
	inferred, err := inferSchema(ctx, r, pi)
	if err != nil {
		return nil, errors.Wrapf(err, "infer schema of %s", s.dir.URL)
	}
	s.schema = inferred
	return inferred, nil
}

// ToDirectory copies every data file into dir, keeping manifest order.
func (s *DirectorySource) ToDirectory(ctx context.Context, dir *directory.Directory, f records.Format, pi records.ProcessingInstructions) (int64, error) {
	if !s.CanEmit(f) {
		return 0, errors.Newf("directory %s holds %s, not %s", s.dir.URL, s.format, f)
	}
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	urls, err := s.dir.DataURLs(ctx)
	if err != nil {
		return 0, err
	}
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = dir.DataFileURL(i, f)
		n, err := dir.Resolver().Copy(ctx, u, out[i])
		if err != nil {
			return 0, err
		}
		s.log.Debugw("copied data file", "from", u, "to", out[i], "bytes", n)
	}
	if err := dir.Finalize(ctx, f, sc, out); err != nil {
		return 0, err
	}
	return records.UnknownCount, nil
}

func (s *DirectorySource) Dataframes(ctx context.Context, pi records.ProcessingInstructions) (dataframe.Iterator, error) {
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return nil, err
	}
	return s.dir.NewReader(ctx, s.format, sc, pi, nil)
}

func (s *DirectorySource) Close() error { return nil }

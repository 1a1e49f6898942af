package sources

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
	"github.com/bluelabsio/records-mover-sub001/internal/records/sniff"
)

// spoolBytes bounds how much of a non-seekable object is copied locally
// for sniffing. It comfortably exceeds the sniffer's decompressed sample.
const spoolBytes = 8 << 20

// FileSource reads one data file whose format is sniffed.
type FileSource struct {
	loc    *location.Resolver
	url    string
	format records.Format
	schema *schema.Schema
	log    *zap.SugaredLogger
}

// NewFileSource sniffs the file at url. Hints in initial override what the
// sniffer finds.
func NewFileSource(ctx context.Context, loc *location.Resolver, url string, initial hints.Set, l *zap.SugaredLogger) (*FileSource, error) {
	log := logging.Or(l)
	f, err := sniffURL(ctx, loc, url, initial, log)
	if err != nil {
		return nil, err
	}
	log.Infow("sniffed data file", "url", url, "format", f.String())
	return &FileSource{loc: loc, url: url, format: f, log: log}, nil
}

func sniffURL(ctx context.Context, loc *location.Resolver, url string, initial hints.Set, log *zap.SugaredLogger) (records.Format, error) {
	rc, err := loc.Open(ctx, url)
	if err != nil {
		return records.Format{}, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if _, ok := rc.(io.ReadSeeker); !ok {
		tmp, err := os.CreateTemp("", "mvrec-sniff-*")
		if err != nil {
			return records.Format{}, errors.Wrap(err, "spool for sniffing")
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()
		if _, err := io.Copy(tmp, io.LimitReader(rc, spoolBytes)); err != nil {
			return records.Format{}, errors.Wrapf(err, "spool %s", url)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return records.Format{}, err
		}
		r = tmp
	}
	return sniff.Sniff(ctx, r, location.Base(url), initial, sniff.Options{Logger: log})
}

func (s *FileSource) Name() string { return "file:" + s.url }

// Format is the sniffed format.
func (s *FileSource) Format() records.Format { return s.format }

func (s *FileSource) KnownSupportedFormats() []records.Format {
	return []records.Format{s.format}
}

func (s *FileSource) CanEmit(f records.Format) bool { return s.format.Equal(f) }

func (s *FileSource) AcceptedSchemes() []string { return nil }

// Schema infers a schema from the first rows of the file.
func (s *FileSource) Schema(ctx context.Context, pi records.ProcessingInstructions) (*schema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	it, err := directory.OpenFile(ctx, s.loc, s.url, s.format, nil, pi, nil)
	if err != nil {
		return nil, err
	}
	inferred, err := inferSchema(ctx, it, pi)
	if err != nil {
		return nil, errors.Wrapf(err, "infer schema of %s", s.url)
	}
	s.schema = inferred
	return inferred, nil
}

// ToDirectory copies the file in as the directory's only data file.
func (s *FileSource) ToDirectory(ctx context.Context, dir *directory.Directory, f records.Format, pi records.ProcessingInstructions) (int64, error) {
	if !s.CanEmit(f) {
		return 0, errors.Newf("%s holds %s, not %s", s.url, s.format, f)
	}
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	dst := dir.DataFileURL(0, f)
	if _, err := dir.Resolver().Copy(ctx, s.url, dst); err != nil {
		return 0, err
	}
	if err := dir.Finalize(ctx, f, sc, []string{dst}); err != nil {
		return 0, err
	}
	return records.UnknownCount, nil
}

func (s *FileSource) Dataframes(ctx context.Context, pi records.ProcessingInstructions) (dataframe.Iterator, error) {
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return nil, err
	}
	return directory.OpenFile(ctx, s.loc, s.url, s.format, sc, pi, nil)
}

func (s *FileSource) Close() error { return nil }

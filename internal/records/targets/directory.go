package targets

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// DirectoryTarget writes a records directory in one fixed format.
type DirectoryTarget struct {
	dir    *directory.Directory
	format records.Format
	log    *zap.SugaredLogger
}

// NewDirectoryTarget writes to url in format f.
func NewDirectoryTarget(loc *location.Resolver, url string, f records.Format, l *zap.SugaredLogger) *DirectoryTarget {
	log := logging.Or(l)
	return &DirectoryTarget{dir: directory.New(loc, url, log), format: f, log: log}
}

func (t *DirectoryTarget) Name() string { return "directory:" + t.dir.URL }

func (t *DirectoryTarget) Destination() (*directory.Directory, records.Format) {
	return t.dir, t.format
}

func (t *DirectoryTarget) KnownSupportedFormats() []records.Format {
	return []records.Format{t.format}
}

// CanLoad accepts formats whose bytes already read as the target format.
func (t *DirectoryTarget) CanLoad(f records.Format) bool {
	return records.Compatible(f, t.format, hints.Names())
}

func (t *DirectoryTarget) AcceptedSchemes() []string { return nil }

// LoadDirectory copies the data files of dir in and writes the target's
// metadata over them.
func (t *DirectoryTarget) LoadDirectory(ctx context.Context, dir *directory.Directory, f records.Format, s *schema.Schema, pi records.ProcessingInstructions) (int64, error) {
	if !t.CanLoad(f) {
		return 0, errors.Newf("directory %s is %s and cannot take %s", t.dir.URL, t.format, f)
	}
	urls, err := dir.DataURLs(ctx)
	if err != nil {
		return 0, err
	}
	out := urls
	if location.AsDir(dir.URL) != location.AsDir(t.dir.URL) {
		out = make([]string, len(urls))
		for i, u := range urls {
			out[i] = t.dir.DataFileURL(i, t.format)
			if _, err := t.dir.Resolver().Copy(ctx, u, out[i]); err != nil {
				return 0, err
			}
		}
	}
	if err := t.dir.Finalize(ctx, t.format, s, out); err != nil {
		return 0, err
	}
	return records.UnknownCount, nil
}

func (t *DirectoryTarget) CanLoadDataframes() bool { return true }

// LoadDataframes writes every chunk into a single data file.
func (t *DirectoryTarget) LoadDataframes(ctx context.Context, it dataframe.Iterator, s *schema.Schema, pi records.ProcessingInstructions) (int64, error) {
	w, err := t.dir.NewWriter(ctx, 0, t.format, it.Schema(), pi)
	if err != nil {
		return 0, err
	}
	defer w.Close()
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		err = w.WriteChunk(ctx, rec)
		rec.Release()
		if err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if err := t.dir.Finalize(ctx, t.format, s, []string{w.URL()}); err != nil {
		return 0, err
	}
	t.log.Infow("wrote records directory", "url", t.dir.URL, "rows", w.Rows())
	return w.Rows(), nil
}

func (t *DirectoryTarget) Close() error { return nil }

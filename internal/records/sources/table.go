package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// TableSource reads a database table, through the engine's unloader when
// it has one and through SELECT otherwise.
type TableSource struct {
	d      db.Driver
	table  db.TableRef
	schema *schema.Schema
	log    *zap.SugaredLogger
}

func NewTableSource(d db.Driver, t db.TableRef, l *zap.SugaredLogger) *TableSource {
	return &TableSource{d: d, table: t, log: logging.Or(l)}
}

func (s *TableSource) Name() string { return s.d.Name() + ":" + s.table.String() }

func (s *TableSource) KnownSupportedFormats() []records.Format {
	if u := s.d.Unloader(); u != nil {
		return u.KnownSupportedFormats()
	}
	return nil
}

func (s *TableSource) CanEmit(f records.Format) bool {
	u := s.d.Unloader()
	return u != nil && u.CanUnload(f)
}

func (s *TableSource) AcceptedSchemes() []string {
	if u := s.d.Unloader(); u != nil {
		return u.AcceptedSchemes()
	}
	return nil
}

func (s *TableSource) Schema(ctx context.Context, _ records.ProcessingInstructions) (*schema.Schema, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	sc, err := schema.FromDBTable(ctx, s.d, s.table.Schema, s.table.Table)
	if err != nil {
		return nil, err
	}
	s.schema = sc
	return sc, nil
}

// ToDirectory unloads the table into dir and writes its metadata.
func (s *TableSource) ToDirectory(ctx context.Context, dir *directory.Directory, f records.Format, pi records.ProcessingInstructions) (int64, error) {
	u := s.d.Unloader()
	if u == nil {
		return 0, errors.NewUnloadError(s.d.Name(), errors.New("engine has no bulk unload path"))
	}
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	res, err := u.Unload(ctx, db.UnloadRequest{Table: s.table, Directory: dir, Format: f, PI: pi})
	if err != nil {
		return 0, err
	}
	if res.Format.Type != "" {
		f = res.Format
	}
	if err := dir.Finalize(ctx, f, sc, res.URLs); err != nil {
		return 0, err
	}
	s.log.Infow("unloaded table", "table", s.table.String(), "directory", dir.URL, "rows", res.Rows)
	return res.Rows, nil
}

func (s *TableSource) Dataframes(ctx context.Context, pi records.ProcessingInstructions) (dataframe.Iterator, error) {
	sc, err := s.Schema(ctx, pi)
	if err != nil {
		return nil, err
	}
	return db.SelectAll(ctx, s.d, s.table, sc, pi.ChunkRows, nil)
}

// Close leaves the driver open; its owner closes it.
func (s *TableSource) Close() error { return nil }

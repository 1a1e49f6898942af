package targets

import (
	"context"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// TableTarget loads into a database table. Engines without a bulk loader
// get the generic INSERT loader.
type TableTarget struct {
	d      db.Driver
	table  db.TableRef
	mode   db.ExistingTable
	loader db.Loader
	log    *zap.SugaredLogger
}

func NewTableTarget(d db.Driver, t db.TableRef, mode db.ExistingTable, l *zap.SugaredLogger) *TableTarget {
	log := logging.Or(l)
	loader := d.Loader()
	if loader == nil {
		loader = db.NewInsertLoader(d, log)
	}
	return &TableTarget{d: d, table: t, mode: mode, loader: loader, log: log}
}

func (t *TableTarget) Name() string { return t.d.Name() + ":" + t.table.String() }

func (t *TableTarget) KnownSupportedFormats() []records.Format {
	return t.loader.KnownSupportedFormats()
}

func (t *TableTarget) CanLoad(f records.Format) bool { return t.loader.CanLoad(f) }

func (t *TableTarget) AcceptedSchemes() []string { return t.loader.AcceptedSchemes() }

// CheckLoad asks the engine loader for its reason. Loaders that cannot
// explain themselves report nothing.
func (t *TableTarget) CheckLoad(f records.Format, pi records.ProcessingInstructions) error {
	if c, ok := t.loader.(db.LoadChecker); ok {
		return c.CheckLoad(f, pi)
	}
	return nil
}

func (t *TableTarget) AdjustSchema(f records.Format, s *schema.Schema) *schema.Schema {
	if a, ok := t.d.(db.SchemaAdjuster); ok {
		return a.AdjustSchema(f, s)
	}
	if a, ok := t.loader.(db.SchemaAdjuster); ok {
		return a.AdjustSchema(f, s)
	}
	return s
}

func (t *TableTarget) LoadDirectory(ctx context.Context, dir *directory.Directory, f records.Format, s *schema.Schema, pi records.ProcessingInstructions) (int64, error) {
	s = t.AdjustSchema(f, s)
	if _, err := db.PrepareTable(ctx, t.d, t.table, s, t.mode, t.log); err != nil {
		return 0, err
	}
	return t.loader.Load(ctx, db.LoadRequest{
		Table:     t.table,
		Directory: dir,
		Format:    f,
		Schema:    s,
		PI:        pi,
	})
}

// CanLoadDataframes is true only for the INSERT path; bulk loaders read
// files.
func (t *TableTarget) CanLoadDataframes() bool {
	_, ok := t.loader.(*db.InsertLoader)
	return ok
}

func (t *TableTarget) LoadDataframes(ctx context.Context, it dataframe.Iterator, s *schema.Schema, pi records.ProcessingInstructions) (int64, error) {
	il, ok := t.loader.(*db.InsertLoader)
	if !ok {
		il = db.NewInsertLoader(t.d, t.log)
	}
	if _, err := db.PrepareTable(ctx, t.d, t.table, s, t.mode, t.log); err != nil {
		return 0, err
	}
	return il.InsertAll(ctx, t.table, it)
}

// Close leaves the driver open; its owner closes it.
func (t *TableTarget) Close() error { return nil }

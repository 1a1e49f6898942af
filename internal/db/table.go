package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// ExistingTable says what a table target does when the table exists.
type ExistingTable string

const (
	Append               ExistingTable = "append"
	TruncateAndOverwrite ExistingTable = "truncate_and_overwrite"
	DeleteAndOverwrite   ExistingTable = "delete_and_overwrite"
	DropAndRecreate      ExistingTable = "drop_and_recreate"
)

// ParseExistingTable accepts the mode names above; "" means Append.
func ParseExistingTable(s string) (ExistingTable, error) {
	switch ExistingTable(s) {
	case "", Append:
		return Append, nil
	case TruncateAndOverwrite, DeleteAndOverwrite, DropAndRecreate:
		return ExistingTable(s), nil
	}
	return "", errors.WithStack(&errors.ConfigError{
		Option: "existing_table",
		Reason: fmt.Sprintf("unknown mode %q", s),
	})
}

// TableExists reports whether t has at least one column in the catalog.
func TableExists(ctx context.Context, d Driver, t TableRef) (bool, error) {
	cols, err := d.Columns(ctx, t.Schema, t.Table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// PrepareTable applies mode to t and creates it from s when it is missing.
// It returns whether the table was created.
func PrepareTable(ctx context.Context, d Driver, t TableRef, s *schema.Schema, mode ExistingTable, l *zap.SugaredLogger) (bool, error) {
	log := logging.Or(l)
	exists, err := TableExists(ctx, d, t)
	if err != nil {
		return false, err
	}
	name := t.Qualified(d)

	if exists {
		var stmt string
		switch mode {
		case Append, "":
		case TruncateAndOverwrite:
			stmt = "TRUNCATE TABLE " + name
			if tr, ok := d.(Truncater); ok {
				stmt = tr.TruncateSQL(name)
			}
		case DeleteAndOverwrite:
			stmt = "DELETE FROM " + name
			if dl, ok := d.(Deleter); ok {
				stmt = dl.DeleteSQL(name)
			}
		case DropAndRecreate:
			stmt = "DROP TABLE " + name
			exists = false
		default:
			return false, errors.Newf("unknown existing-table mode %q", mode)
		}
		if stmt != "" {
			log.Infow("preparing existing table", "table", t.String(), "mode", mode)
			if err := d.Exec(ctx, stmt); err != nil {
				return false, err
			}
		}
		if exists {
			return false, nil
		}
	}

	if s == nil {
		return false, errors.Newf("table %s does not exist and no records schema is available to create it", t)
	}
	ddl := schema.CreateTableSQL(name, s.ToColumns(d), d.QuoteIdent)
	log.Infow("creating table", "table", t.String(), "ddl", ddl)
	if err := d.Exec(ctx, ddl); err != nil {
		return false, errors.Wrapf(err, "create table %s", t)
	}
	return true, nil
}

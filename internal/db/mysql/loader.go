package mysql

import (
	"context"
	"database/sql"
	"io"
	"net/url"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// Loader runs one LOAD DATA LOCAL INFILE per data file in a single
// transaction.
type Loader struct {
	d *Driver
}

func (l *Loader) KnownSupportedFormats() []records.Format {
	naive := "YYYY-MM-DD HH24:MI:SS"
	return []records.Format{
		records.DelimitedFormat(hints.Bluelabs, hints.Set{
			hints.Compression:      nil,
			hints.DateTimeFormatTZ: naive,
		}),
		records.DelimitedFormat(hints.CSV, hints.Set{
			hints.Compression:      nil,
			hints.DateFormat:       "YYYY-MM-DD",
			hints.DateTimeFormat:   naive,
			hints.DateTimeFormatTZ: naive,
		}),
	}
}

func (l *Loader) CanLoad(f records.Format) bool { return db.Feasible(f, translate) }

func (l *Loader) AcceptedSchemes() []string { return nil }

func (l *Loader) CheckLoad(f records.Format, pi records.ProcessingInstructions) error {
	_, err := db.Translate(l.d.Name(), f, pi, translate)
	return err
}

func translate(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
	_, err := Translate(v, u, p)
	return err
}

func (l *Loader) Load(ctx context.Context, req db.LoadRequest) (int64, error) {
	var o LoadOptions
	_, err := db.Translate(l.d.Name(), req.Format, req.PI, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		var err error
		o, err = Translate(v, u, p)
		return err
	})
	if err != nil {
		return 0, err
	}
	urls, err := req.Directory.DataURLs(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := l.d.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	var total int64
	for _, u := range urls {
		n, err := l.loadFile(ctx, tx, req.Directory, u, req.Table.Qualified(l.d), o)
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.NewLoadError(l.d.Name(), errors.Wrapf(err, "load %s", u))
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", total, "files", len(urls))
	return total, nil
}

// loadFile names local files directly and streams anything else through a
// registered reader handler.
func (l *Loader) loadFile(ctx context.Context, tx *sql.Tx, dir *directory.Directory, raw, table string, o LoadOptions) (int64, error) {
	var name string
	if u, err := url.Parse(raw); err == nil && u.Scheme == "file" {
		name = location.LocalPath(u)
		mysql.RegisterLocalFile(name)
		defer mysql.DeregisterLocalFile(name)
	} else {
		rc, err := dir.Open(ctx, raw)
		if err != nil {
			return 0, err
		}
		defer rc.Close()
		handler := "mvrec-" + uuid.NewString()
		mysql.RegisterReaderHandler(handler, func() io.Reader { return rc })
		defer mysql.DeregisterReaderHandler(handler)
		name = "Reader::" + handler
	}

	stmt := LoadSQL(name, table, o)
	l.d.log.Debugw("load data", "sql", stmt)
	res, err := tx.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

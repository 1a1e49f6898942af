package vertica

import (
	"context"
	"database/sql"

	vertigo "github.com/vertica/vertica-sql-go"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// exportDir is where EXPORT writes inside a records directory; EXPORT
// refuses to write into a directory that already exists.
const exportDir = "data"

// Loader streams each data file through COPY FROM STDIN.
type Loader struct {
	d *Driver
}

func (l *Loader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.DelimitedFormat(hints.Vertica, nil),
		records.DelimitedFormat(hints.Bluelabs, nil),
	}
}

func (l *Loader) CanLoad(f records.Format) bool {
	return db.Feasible(f, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		_, err := LoadOptions(v, u, p, records.DefaultProcessingInstructions())
		return err
	})
}

func (l *Loader) AcceptedSchemes() []string { return nil }

func (l *Loader) CheckLoad(f records.Format, pi records.ProcessingInstructions) error {
	_, err := db.Translate(l.d.Name(), f, pi, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		_, err := LoadOptions(v, u, p, pi)
		return err
	})
	return err
}

func (l *Loader) Load(ctx context.Context, req db.LoadRequest) (int64, error) {
	var o CopyOptions
	_, err := db.Translate(l.d.Name(), req.Format, req.PI, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		var err error
		o, err = LoadOptions(v, u, p, req.PI)
		return err
	})
	if err != nil {
		return 0, err
	}
	urls, err := req.Directory.DataURLs(ctx)
	if err != nil {
		return 0, err
	}
	stmt := CopySQL(req.Table.Qualified(l.d), o)

	tx, err := l.d.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	var total int64
	for _, u := range urls {
		n, err := l.copyFile(ctx, tx, req, u, stmt)
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.NewLoadError(l.d.Name(), errors.Wrapf(err, "copy %s", u))
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", total, "copy", stmt)
	return total, nil
}

func (l *Loader) copyFile(ctx context.Context, tx *sql.Tx, req db.LoadRequest, url, stmt string) (int64, error) {
	rc, err := req.Directory.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	vctx := vertigo.NewVerticaContext(ctx)
	if err := vctx.SetCopyInputStream(rc); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(vctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Unloader runs EXPORT TO DELIMITED into a directory on S3.
type Unloader struct {
	d *Driver
}

func (u *Unloader) KnownSupportedFormats() []records.Format {
	return []records.Format{records.DelimitedFormat(hints.Vertica, nil)}
}

func (u *Unloader) CanUnload(f records.Format) bool {
	return db.Feasible(f, func(v hints.Validated, un hints.Unhandled, p hints.Policy) error {
		_, err := ExportOptionsFor(v, un, p)
		return err
	})
}

func (u *Unloader) AcceptedSchemes() []string { return []string{"s3"} }

func (u *Unloader) Unload(ctx context.Context, req db.UnloadRequest) (db.UnloadResult, error) {
	var o ExportOptions
	_, err := db.Translate(u.d.Name(), req.Format, req.PI, func(v hints.Validated, un hints.Unhandled, p hints.Policy) error {
		var err error
		o, err = ExportOptionsFor(v, un, p)
		return err
	})
	if err != nil {
		return db.UnloadResult{}, err
	}

	out := location.Join(req.Directory.URL, exportDir)
	stmt := ExportSQL(req.Table.Qualified(u.d), out, o)
	var n int64
	err = func() error {
		conn, err := u.d.DB().Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		if u.d.awsAuth != "" {
			if _, err := conn.ExecContext(ctx, "ALTER SESSION SET AWSAuth = "+Literal(u.d.awsAuth)); err != nil {
				return err
			}
		}
		return conn.QueryRowContext(ctx, stmt).Scan(&n)
	}()
	if err != nil {
		return db.UnloadResult{}, errors.NewUnloadError(u.d.Name(), err)
	}

	all, err := req.Directory.Resolver().List(ctx, out)
	if err != nil {
		return db.UnloadResult{}, errors.NewUnloadError(u.d.Name(), err)
	}
	var urls []string
	for _, f := range all {
		if name := location.Base(f); name != "" && name[0] != '_' && name[0] != '.' {
			urls = append(urls, f)
		}
	}
	u.d.log.Infow("unloaded table", "table", req.Table.String(), "rows", n, "files", len(urls))
	return db.UnloadResult{URLs: urls, Rows: n}, nil
}

package redshift

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// unloadPrefix names the files UNLOAD writes; Redshift appends slice
// numbers and writes the manifest as <prefix>manifest.
const unloadPrefix = "part_"

// Loader runs COPY from the manifest of a directory on S3.
type Loader struct {
	d *Driver
}

func (l *Loader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.DelimitedFormat(hints.Bluelabs, nil),
		records.DelimitedFormat(hints.CSV, nil),
		records.DelimitedFormat(hints.BigQuery, nil),
		records.ParquetFormat(),
	}
}

func (l *Loader) CanLoad(f records.Format) bool {
	if f.Type == records.Parquet {
		return true
	}
	return db.Feasible(f, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		_, err := LoadOptions(v, u, p, records.DefaultProcessingInstructions())
		return err
	})
}

func (l *Loader) AcceptedSchemes() []string { return []string{"s3"} }

func (l *Loader) CheckLoad(f records.Format, pi records.ProcessingInstructions) error {
	if f.Type == records.Parquet {
		return nil
	}
	_, err := db.Translate(l.d.Name(), f, pi, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		_, err := LoadOptions(v, u, p, pi)
		return err
	})
	return err
}

// CopySQL renders the COPY for a directory's manifest.
func CopySQL(table, manifestURL, credentials, format string) string {
	return "COPY " + table + " FROM " + Literal(manifestURL) + " " + credentials + " MANIFEST " + format
}

func (l *Loader) Load(ctx context.Context, req db.LoadRequest) (int64, error) {
	creds, err := l.d.credentialsClause()
	if err != nil {
		return 0, err
	}
	format := "FORMAT AS PARQUET"
	if req.Format.IsDelimited() {
		var o CopyOptions
		_, err := db.Translate(l.d.Name(), req.Format, req.PI, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
			var err error
			o, err = LoadOptions(v, u, p, req.PI)
			return err
		})
		if err != nil {
			return 0, err
		}
		format = o.SQL()
	}

	stmt := CopySQL(req.Table.Qualified(l.d), location.Join(req.Directory.URL, directory.ManifestName), creds, format)
	var n int64
	err = l.d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, "SELECT pg_last_copy_count()").Scan(&n)
	})
	if err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", n, "manifest", req.Directory.URL)
	return n, nil
}

// Unloader runs UNLOAD into a directory on S3.
type Unloader struct {
	d *Driver
}

func (u *Unloader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.DelimitedFormat(hints.Bluelabs, nil),
		records.ParquetFormat(),
	}
}

func (u *Unloader) CanUnload(f records.Format) bool {
	if f.Type == records.Parquet {
		return true
	}
	return db.Feasible(f, func(v hints.Validated, un hints.Unhandled, p hints.Policy) error {
		_, err := UnloadOptionsFor(v, un, p)
		return err
	})
}

func (u *Unloader) AcceptedSchemes() []string { return []string{"s3"} }

// UnloadSQL renders the UNLOAD of a whole table to prefix.
func UnloadSQL(table, prefix, credentials, format string) string {
	query := "SELECT * FROM " + table
	return "UNLOAD (" + Literal(query) + ") TO " + Literal(prefix) + " " + credentials +
		" MANIFEST ALLOWOVERWRITE " + format
}

func (u *Unloader) Unload(ctx context.Context, req db.UnloadRequest) (db.UnloadResult, error) {
	creds, err := u.d.credentialsClause()
	if err != nil {
		return db.UnloadResult{}, err
	}
	o := UnloadOptions{Parquet: true}
	if req.Format.IsDelimited() {
		_, err := db.Translate(u.d.Name(), req.Format, req.PI, func(v hints.Validated, un hints.Unhandled, p hints.Policy) error {
			var err error
			o, err = UnloadOptionsFor(v, un, p)
			return err
		})
		if err != nil {
			return db.UnloadResult{}, err
		}
	}

	prefix := location.Join(req.Directory.URL, unloadPrefix)
	stmt := UnloadSQL(req.Table.Qualified(u.d), prefix, creds, o.SQL())
	var n int64
	err = u.d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, "SELECT pg_last_unload_count()").Scan(&n)
	})
	if err != nil {
		return db.UnloadResult{}, errors.NewUnloadError(u.d.Name(), err)
	}

	urls, err := adoptManifest(ctx, req.Directory, prefix+"manifest")
	if err != nil {
		return db.UnloadResult{}, errors.NewUnloadError(u.d.Name(), err)
	}
	u.d.log.Infow("unloaded table", "table", req.Table.String(), "rows", n, "files", len(urls))
	return db.UnloadResult{URLs: urls, Rows: n}, nil
}

// adoptManifest reads the manifest UNLOAD wrote and removes it; the caller
// writes the directory's own _manifest when finalizing.
func adoptManifest(ctx context.Context, dir *directory.Directory, url string) ([]string, error) {
	loc := dir.Resolver()
	b, err := loc.ReadFile(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "read UNLOAD manifest")
	}
	var m directory.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "decode UNLOAD manifest")
	}
	if err := loc.Remove(ctx, url); err != nil {
		return nil, err
	}
	return m.URLs(), nil
}

func (d *Driver) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

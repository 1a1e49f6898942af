package postgres

import (
	"context"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// Loader runs COPY FROM STDIN for every data file of a directory.
type Loader struct {
	d *Driver
}

func (l *Loader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: nil}),
		records.DelimitedFormat(hints.CSV, hints.Set{hints.Compression: nil}),
	}
}

func (l *Loader) CanLoad(f records.Format) bool { return db.Feasible(f, translateLoad) }

func (l *Loader) AcceptedSchemes() []string { return nil }

func (l *Loader) CheckLoad(f records.Format, pi records.ProcessingInstructions) error {
	_, err := db.Translate(l.d.Name(), f, pi, translateLoad)
	return err
}

func translateLoad(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
	_, _, err := LoadOptions(v, u, p)
	return err
}

func (l *Loader) Load(ctx context.Context, req db.LoadRequest) (int64, error) {
	var (
		opts CopyOptions
		ds   DateStyle
	)
	_, err := db.Translate(l.d.Name(), req.Format, req.PI, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
		var err error
		opts, ds, err = LoadOptions(v, u, p)
		return err
	})
	if err != nil {
		return 0, err
	}
	urls, err := req.Directory.DataURLs(ctx)
	if err != nil {
		return 0, err
	}

	stmt := CopyFromSQL(req.Table.Qualified(l.d), opts)
	n, err := l.d.inTx(ctx, ds, func(s session) (int64, error) {
		var total int64
		for _, url := range urls {
			rc, err := req.Directory.Open(ctx, url)
			if err != nil {
				return 0, err
			}
			n, err := s.CopyFrom(ctx, rc, stmt)
			rc.Close()
			if err != nil {
				return 0, errors.Wrapf(err, "copy %s", url)
			}
			l.d.log.Debugw("copied data file", "url", url, "rows", n)
			total += n
		}
		return total, nil
	})
	if err != nil {
		return 0, errors.NewLoadError(l.d.Name(), err)
	}
	l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", n, "copy", stmt)
	return n, nil
}

// Unloader runs COPY TO STDOUT into a single data file.
type Unloader struct {
	d *Driver
}

func (u *Unloader) KnownSupportedFormats() []records.Format {
	return []records.Format{records.DelimitedFormat(hints.Bluelabs, hints.Set{hints.Compression: nil})}
}

func (u *Unloader) CanUnload(f records.Format) bool { return db.Feasible(f, translateUnload) }

func (u *Unloader) AcceptedSchemes() []string { return nil }

func translateUnload(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
	_, _, err := UnloadOptions(v, u, p)
	return err
}

func (u *Unloader) Unload(ctx context.Context, req db.UnloadRequest) (db.UnloadResult, error) {
	var (
		opts CopyOptions
		ds   DateStyle
		term string
	)
	_, err := db.Translate(u.d.Name(), req.Format, req.PI, func(v hints.Validated, un hints.Unhandled, p hints.Policy) error {
		var err error
		opts, ds, err = UnloadOptions(v, un, p)
		term = v.RecordTerminator
		return err
	})
	if err != nil {
		return db.UnloadResult{}, err
	}

	url := req.Directory.DataFileURL(0, req.Format)
	stmt := CopyToSQL(req.Table.Qualified(u.d), opts)
	n, err := u.d.inTx(ctx, ds, func(s session) (int64, error) {
		if err := s.Exec(ctx, "SET LOCAL TIME ZONE 'UTC'"); err != nil {
			return 0, err
		}
		wc, err := req.Directory.Create(ctx, url)
		if err != nil {
			return 0, err
		}
		n, err := s.CopyTo(ctx, wc, stmt)
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
		return n, err
	})
	if err != nil {
		return db.UnloadResult{}, errors.NewUnloadError(u.d.Name(), err)
	}
	u.d.log.Infow("unloaded table", "table", req.Table.String(), "rows", n, "url", url)
	res := db.UnloadResult{URLs: []string{url}, Rows: n}
	if term != "\n" {
		res.Format = req.Format.WithHints(hints.Set{hints.RecordTerminator: "\n"})
	}
	return res, nil
}

// inTx runs fn in a transaction with the session DateStyle set.
func (d *Driver) inTx(ctx context.Context, ds DateStyle, fn func(s session) (int64, error)) (int64, error) {
	s, err := d.tx(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = s.Rollback(context.WithoutCancel(ctx))
		}
	}()
	if err := s.Exec(ctx, "SET LOCAL DateStyle = "+Literal(ds.String())); err != nil {
		return 0, err
	}
	n, err := fn(s)
	if err != nil {
		return 0, err
	}
	if err := s.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

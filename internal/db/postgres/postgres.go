// Package postgres moves records in and out of PostgreSQL with COPY.
//
// Loads stream each data file through COPY ... FROM STDIN inside one
// transaction per move; unloads stream COPY ... TO STDOUT into a data file.
// The session DateStyle and TimeZone are set with SET LOCAL so they do not
// leak past the transaction.
package postgres

import (
	"context"
	"database/sql"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

func init() {
	db.Register("postgres", Open)
}

// Driver is a PostgreSQL database.
type Driver struct {
	*db.Base
	pool *pgxpool.Pool
	tx   beginner
	log  *zap.SugaredLogger
}

// session is the part of a transaction COPY needs.
type session interface {
	Exec(ctx context.Context, sql string) error
	CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error)
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type beginner func(ctx context.Context) (session, error)

// Open connects with pgxpool and exposes the same pool through
// database/sql for catalog queries and DDL.
func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	d := New(NewBase(stdlib.OpenDBFromPool(pool), "postgres"), poolBeginner(pool), nil)
	d.pool = pool
	return d, nil
}

// NewBase returns the type and naming rules of PostgreSQL over conn.
// Redshift starts from the same rules.
func NewBase(conn *sql.DB, engine string) *db.Base {
	return &db.Base{
		Conn:          conn,
		Engine:        engine,
		DefaultSchema: "public",
		MaxIdentLen:   63,
		CharsVarchar:  true,
		Bind:          db.DollarBind,
	}
}

// New assembles a Driver from its parts. begin starts the transaction
// COPY runs in.
func New(base *db.Base, begin beginner, l *zap.SugaredLogger) *Driver {
	return &Driver{Base: base, tx: begin, log: logging.Or(l)}
}

func (d *Driver) Loader() db.Loader     { return &Loader{d: d} }
func (d *Driver) Unloader() db.Unloader { return &Unloader{d: d} }

func (d *Driver) Close() error {
	err := d.Base.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

func poolBeginner(pool *pgxpool.Pool) beginner {
	return func(ctx context.Context) (session, error) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return &pgxSession{tx: tx}, nil
	}
}

type pgxSession struct {
	tx pgx.Tx
}

func (s *pgxSession) Exec(ctx context.Context, sql string) error {
	_, err := s.tx.Exec(ctx, sql)
	return err
}

func (s *pgxSession) CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error) {
	tag, err := s.tx.Conn().PgConn().CopyFrom(ctx, r, sql)
	return rowsOf(tag), err
}

func (s *pgxSession) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	tag, err := s.tx.Conn().PgConn().CopyTo(ctx, w, sql)
	return rowsOf(tag), err
}

func (s *pgxSession) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s *pgxSession) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }

func rowsOf(tag pgconn.CommandTag) int64 { return tag.RowsAffected() }

// Package mssql registers SQL Server (go-mssqldb) as a move endpoint.
// Loads use batched INSERTs with @pN parameters.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// maxParams stays under SQL Server's 2100-parameter limit per request.
const maxParams = 2000

// maxVarchar is the widest sized NVARCHAR; longer strings use NVARCHAR(MAX).
const maxVarchar = 4000

func init() {
	db.Register("mssql", Open)
}

// Driver is a SQL Server database.
type Driver struct {
	*db.Base
	log *zap.SugaredLogger
}

func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	conn, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(16)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return New(conn, nil), nil
}

// New wraps conn.
func New(conn *sql.DB, l *zap.SugaredLogger) *Driver {
	return &Driver{
		Base: &db.Base{
			Conn:   conn,
			Engine: "mssql",
			IntegerTypes: []db.IntegerType{
				{Name: "TINYINT", Bits: 8, Signed: false},
				{Name: "SMALLINT", Bits: 16, Signed: true},
				{Name: "INT", Bits: 32, Signed: true},
				{Name: "BIGINT", Bits: 64, Signed: true},
			},
			DefaultSchema: "dbo",
			MaxIdentLen:   128,
			CharsVarchar:  true,
			Bind:          func(n int) string { return fmt.Sprintf("@p%d", n) },
			Quote:         quoteIdent,
		},
		log: logging.Or(l),
	}
}

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *Driver) TypeForFloatingPoint(totalBits, _ int) string {
	if totalBits <= 32 {
		return "REAL"
	}
	return "FLOAT"
}

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "DATETIMEOFFSET"
	}
	return "DATETIME2"
}

// TypeForTime drops the zone; SQL Server has no zoned TIME.
func (d *Driver) TypeForTime(_ bool) string { return "TIME" }

func (d *Driver) TypeForBoolean() string { return "BIT" }

func (d *Driver) TypeForString(length int) string {
	if length <= 0 || length > maxVarchar {
		return "NVARCHAR(MAX)"
	}
	return fmt.Sprintf("NVARCHAR(%d)", length)
}

func (d *Driver) Loader() db.Loader {
	il := db.NewInsertLoader(d, d.log)
	il.MaxParams = maxParams
	return il
}

// Package mysql loads records into MySQL with LOAD DATA LOCAL INFILE.
// Tables are read back with SELECT; MySQL has no unloader.
package mysql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

func init() {
	db.Register("mysql", Open)
}

// Driver is a MySQL database.
type Driver struct {
	*db.Base
	log *zap.SugaredLogger
}

// Open connects with go-sql-driver/mysql. The DSN's database becomes the
// default schema for catalog lookups.
func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	mc.ParseTime = true
	mc.AllowNativePasswords = true
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	conn := sql.OpenDB(connector)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	d := New(conn, nil)
	d.DefaultSchema = mc.DBName
	return d, nil
}

// New wraps conn.
func New(conn *sql.DB, l *zap.SugaredLogger) *Driver {
	return &Driver{
		Base: &db.Base{
			Conn:   conn,
			Engine: "mysql",
			IntegerTypes: []db.IntegerType{
				{Name: "TINYINT", Bits: 8, Signed: true},
				{Name: "SMALLINT", Bits: 16, Signed: true},
				{Name: "MEDIUMINT", Bits: 24, Signed: true},
				{Name: "INT", Bits: 32, Signed: true},
				{Name: "BIGINT", Bits: 64, Signed: true},
			},
			MaxIdentLen:  64,
			CharsVarchar: true,
			Quote:        QuoteIdent,
		},
		log: logging.Or(l),
	}
}

// QuoteIdent backtick-quotes name.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Driver) TypeForFloatingPoint(totalBits, _ int) string {
	if totalBits <= 32 {
		return "FLOAT"
	}
	return "DOUBLE"
}

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMP(6)"
	}
	return "DATETIME(6)"
}

// TypeForTime ignores hasTZ; MySQL TIME carries no offset.
func (d *Driver) TypeForTime(bool) string { return "TIME(6)" }

func (d *Driver) Loader() db.Loader { return &Loader{d: d} }

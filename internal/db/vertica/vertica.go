// Package vertica moves records in and out of Vertica.
//
// Loads stream data files through COPY ... FROM STDIN; unloads run EXPORT TO
// DELIMITED into S3.
package vertica

import (
	"context"
	"database/sql"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// maxVarchar is the widest VARCHAR Vertica accepts, in bytes.
const maxVarchar = 65000

func init() {
	db.Register("vertica", Open)
}

// Driver is a Vertica database.
type Driver struct {
	*db.Base
	// awsAuth is "key_id:secret" for EXPORT to S3; empty leaves the
	// session's AWSAuth alone.
	awsAuth string
	log     *zap.SugaredLogger
}

// Open connects with vertica-sql-go. The option "vertica.aws_auth" sets the
// session AWSAuth used by EXPORT.
func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	conn, err := sql.Open("vertica", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	d := New(conn, nil)
	d.awsAuth = cfg.Option("vertica.aws_auth", "")
	return d, nil
}

// New wraps conn.
func New(conn *sql.DB, l *zap.SugaredLogger) *Driver {
	return &Driver{
		Base: &db.Base{
			Conn:          conn,
			Engine:        "vertica",
			IntegerTypes:  []db.IntegerType{{Name: "INTEGER", Bits: 64, Signed: true}},
			DefaultSchema: "public",
			MaxIdentLen:   128,
		},
		log: logging.Or(l),
	}
}

// IntegerLimits reports 64 bits for every integer alias; Vertica stores
// them all as INTEGER.
func (d *Driver) IntegerLimits(sqlType string) (*big.Int, *big.Int, bool) {
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "INT8":
		lo, hi := schema.IntRange(64, true)
		return lo, hi, true
	}
	return nil, nil, false
}

func (d *Driver) TypeForInteger(_, _ *big.Int) string { return "INTEGER" }

func (d *Driver) TypeForFloatingPoint(int, int) string { return "FLOAT" }

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

func (d *Driver) TypeForTime(hasTZ bool) string {
	if hasTZ {
		return "TIMETZ"
	}
	return "TIME"
}

func (d *Driver) TypeForString(length int) string {
	if length > maxVarchar {
		length = maxVarchar
	}
	return d.Base.TypeForString(length)
}

func (d *Driver) Loader() db.Loader     { return &Loader{d: d} }
func (d *Driver) Unloader() db.Unloader { return &Unloader{d: d} }

var typeArgs = regexp.MustCompile(`^([a-z ]+?)\s*\((\d+)(?:\s*,\s*(\d+))?\)$`)

// Columns reads v_catalog.columns. Vertica reports types with their
// arguments, e.g. "varchar(80)" or "numeric(10,2)".
func (d *Driver) Columns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	if schemaName == "" {
		schemaName = d.DefaultSchema
	}
	rows, err := d.DB().QueryContext(ctx,
		"SELECT column_name, data_type, is_nullable FROM v_catalog.columns "+
			"WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position",
		schemaName, table)
	if err != nil {
		return nil, errors.Wrap(err, "query v_catalog.columns")
	}
	defer rows.Close()

	var out []schema.ColumnInfo
	for rows.Next() {
		var (
			name, dataType string
			nullable       bool
		)
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		out = append(out, columnInfo(name, dataType, nullable))
	}
	return out, rows.Err()
}

func columnInfo(name, dataType string, nullable bool) schema.ColumnInfo {
	c := schema.ColumnInfo{Name: name, DataType: strings.ToLower(dataType), Nullable: nullable, DDL: dataType}
	m := typeArgs.FindStringSubmatch(c.DataType)
	if m == nil {
		return c
	}
	c.DataType = m[1]
	a, _ := strconv.Atoi(m[2])
	if m[3] == "" {
		c.CharMaxLength = &a
		return c
	}
	s, _ := strconv.Atoi(m[3])
	c.NumericPrecision, c.NumericScale = &a, &s
	return c
}

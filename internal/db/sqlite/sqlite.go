// Package sqlite registers SQLite (modernc.org/sqlite) as a move endpoint.
// SQLite has no bulk path: loads go through db.InsertLoader and table
// sources read with SELECT.
package sqlite

import (
	"context"
	"database/sql"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

func init() {
	db.Register("sqlite", Open)
}

// Driver is one SQLite database file.
type Driver struct {
	*db.Base
	log *zap.SugaredLogger
}

func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	conn, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
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
			Conn:         conn,
			Engine:       "sqlite",
			IntegerTypes: []db.IntegerType{{Name: "INTEGER", Bits: 64, Signed: true}},
			MaxIdentLen:  1024,
			CharsVarchar: true,
		},
		log: logging.Or(l),
	}
}

// Every integer column is a 64-bit INTEGER whatever its declared name.
func (d *Driver) IntegerLimits(sqlType string) (*big.Int, *big.Int, bool) {
	if strings.Contains(strings.ToUpper(sqlType), "INT") {
		lo, hi := schema.IntRange(64, true)
		return lo, hi, true
	}
	return nil, nil, false
}

func (d *Driver) TypeForInteger(_, _ *big.Int) string { return "INTEGER" }

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMP WITH TIME ZONE"
	}
	return "DATETIME"
}

// TruncateSQL deletes every row; SQLite has no TRUNCATE.
func (d *Driver) TruncateSQL(qualifiedTable string) string {
	return "DELETE FROM " + qualifiedTable
}

func (d *Driver) Loader() db.Loader { return db.NewInsertLoader(d, d.log) }

var typeArgs = regexp.MustCompile(`^\s*([^(]+?)\s*\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)\s*$`)

// Columns reads pragma_table_info. Declared types keep their length and
// precision arguments in the DDL.
func (d *Driver) Columns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	if schemaName == "" {
		schemaName = "main"
	}
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?, ?) ORDER BY cid`, table, schemaName)
	if err != nil {
		return nil, errors.Wrap(err, "query pragma_table_info")
	}
	defer rows.Close()

	var out []schema.ColumnInfo
	for rows.Next() {
		var (
			name, declared string
			notNull        int
		)
		if err := rows.Scan(&name, &declared, &notNull); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		out = append(out, columnInfo(name, declared, notNull == 0))
	}
	return out, rows.Err()
}

func columnInfo(name, declared string, nullable bool) schema.ColumnInfo {
	c := schema.ColumnInfo{Name: name, DataType: declared, Nullable: nullable, DDL: declared}
	m := typeArgs.FindStringSubmatch(declared)
	if m == nil {
		return c
	}
	c.DataType = m[1]
	first, _ := strconv.Atoi(m[2])
	if m[3] != "" {
		scale, _ := strconv.Atoi(m[3])
		c.NumericPrecision, c.NumericScale = &first, &scale
	} else {
		c.CharMaxLength = &first
	}
	return c
}

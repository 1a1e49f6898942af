package db

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// IntegerType is one SQL integer type and its width.
type IntegerType struct {
	Name   string
	Bits   int
	Signed bool
}

// Base carries the behavior most engines share. Engine drivers embed it and
// override what differs.
type Base struct {
	Conn   *sql.DB
	Engine string

	// IntegerTypes are listed in increasing width.
	IntegerTypes []IntegerType
	// DefaultSchema filters catalog lookups when no schema is given.
	// Empty means the catalog is not filtered by schema.
	DefaultSchema string
	// MaxIdentLen bounds column names; 0 means 63.
	MaxIdentLen int
	// NormalizeNames lowercases names and strips characters outside
	// [a-z0-9_].
	NormalizeNames bool
	// CharsVarchar is true when VARCHAR(n) counts characters.
	CharsVarchar bool
	NoTimeType   bool
	// Bind renders the n-th placeholder; nil means "?".
	Bind func(n int) string
	// Quote quotes an identifier; nil means ANSI double quotes.
	Quote func(name string) string
}

// DefaultIntegerTypes are the ANSI integer types.
var DefaultIntegerTypes = []IntegerType{
	{"SMALLINT", 16, true},
	{"INTEGER", 32, true},
	{"BIGINT", 64, true},
}

func (b *Base) Name() string   { return b.Engine }
func (b *Base) DB() *sql.DB    { return b.Conn }
func (b *Base) Loader() Loader { return nil }

func (b *Base) Unloader() Unloader { return nil }

func (b *Base) Close() error {
	if b.Conn == nil {
		return nil
	}
	return b.Conn.Close()
}

func (b *Base) Exec(ctx context.Context, stmt string, args ...any) error {
	if _, err := b.Conn.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "%s", stmt)
	}
	return nil
}

func (b *Base) QuoteIdent(name string) string {
	if b.Quote != nil {
		return b.Quote(name)
	}
	return ANSIQuote(name)
}

// ANSIQuote double-quotes name, doubling embedded quotes.
func ANSIQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DollarBind renders $1, $2, ...
func DollarBind(n int) string { return fmt.Sprintf("$%d", n) }

func (b *Base) Placeholder(n int) string {
	if b.Bind != nil {
		return b.Bind(n)
	}
	return "?"
}

func (b *Base) integerTypes() []IntegerType {
	if len(b.IntegerTypes) == 0 {
		return DefaultIntegerTypes
	}
	return b.IntegerTypes
}

func (b *Base) IntegerLimits(sqlType string) (*big.Int, *big.Int, bool) {
	want := strings.ToUpper(strings.TrimSpace(sqlType))
	for _, t := range b.integerTypes() {
		if t.Name == want {
			lo, hi := schema.IntRange(t.Bits, t.Signed)
			return lo, hi, true
		}
	}
	switch want {
	case "INT", "INT4":
		lo, hi := schema.IntRange(32, true)
		return lo, hi, true
	case "INT2":
		lo, hi := schema.IntRange(16, true)
		return lo, hi, true
	case "INT8":
		lo, hi := schema.IntRange(64, true)
		return lo, hi, true
	}
	return nil, nil, false
}

func (b *Base) TypeForInteger(min, max *big.Int) string {
	types := b.integerTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return schema.SmallestIntegerType(names, b.IntegerLimits, min, max)
}

func (b *Base) TypeForFixedPoint(precision, scale int) string {
	return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
}

func (b *Base) TypeForFloatingPoint(totalBits, _ int) string {
	if totalBits <= 32 {
		return "REAL"
	}
	return "DOUBLE PRECISION"
}

func (b *Base) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMP WITH TIME ZONE"
	}
	return "TIMESTAMP"
}

func (b *Base) TypeForDate() string { return "DATE" }

func (b *Base) TypeForTime(hasTZ bool) string {
	if hasTZ {
		return "TIME WITH TIME ZONE"
	}
	return "TIME"
}

func (b *Base) TypeForBoolean() string { return "BOOLEAN" }

func (b *Base) TypeForString(length int) string {
	return fmt.Sprintf("VARCHAR(%d)", length)
}

func (b *Base) SupportsTimeType() bool       { return !b.NoTimeType }
func (b *Base) VarcharLengthIsInChars() bool { return b.CharsVarchar }

// MakeColumnNameValid returns a name the engine accepts as a column.
func (b *Base) MakeColumnNameValid(name string) string {
	max := b.MaxIdentLen
	if max <= 0 {
		max = 63
	}
	if b.NormalizeNames {
		name = NormalizeIdent(name)
		if name == "" {
			name = "col"
		}
	}
	return TruncateIdent(name, max)
}

// Columns reads information_schema.columns in ordinal order.
func (b *Base) Columns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	if schemaName == "" {
		schemaName = b.DefaultSchema
	}
	q := "SELECT column_name, data_type, character_maximum_length, numeric_precision, numeric_scale, is_nullable " +
		"FROM information_schema.columns WHERE table_name = " + b.Placeholder(1)
	args := []any{table}
	if schemaName != "" {
		q += " AND table_schema = " + b.Placeholder(2)
		args = append(args, schemaName)
	}
	q += " ORDER BY ordinal_position"

	rows, err := b.Conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query information_schema.columns")
	}
	defer rows.Close()

	var out []schema.ColumnInfo
	for rows.Next() {
		var (
			name, dataType, nullable string
			charLen, prec, scale     sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &charLen, &prec, &scale, &nullable); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		c := schema.ColumnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
			DDL:      dataType,
		}
		// NVARCHAR(MAX) and friends report -1.
		if charLen.Valid && charLen.Int64 > 0 {
			n := int(charLen.Int64)
			c.CharMaxLength = &n
			c.DDL = fmt.Sprintf("%s(%d)", dataType, n)
		}
		if prec.Valid && scale.Valid && isFixedPoint(dataType) {
			p, s := int(prec.Int64), int(scale.Int64)
			c.NumericPrecision, c.NumericScale = &p, &s
			c.DDL = fmt.Sprintf("%s(%d,%d)", dataType, p, s)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isFixedPoint(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "numeric", "decimal", "number":
		return true
	}
	return false
}

package schema

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// DefaultVarcharLength is used for string fields without any length hint.
const DefaultVarcharLength = 256

// TypeChooser is the part of a database driver that picks column types.
type TypeChooser interface {
	// TypeForInteger returns the smallest integer type covering [min, max].
	// Nil bounds mean unknown; drivers then answer with a 64-bit type.
	TypeForInteger(min, max *big.Int) string
	TypeForFixedPoint(precision, scale int) string
	TypeForFloatingPoint(totalBits, significandBits int) string
	TypeForDatePlusTime(hasTZ bool) string
	TypeForDate() string
	TypeForTime(hasTZ bool) string
	TypeForBoolean() string
	TypeForString(length int) string
	SupportsTimeType() bool
	// IntegerLimits reports the range of an integer SQL type.
	IntegerLimits(sqlType string) (min, max *big.Int, ok bool)
	MakeColumnNameValid(name string) string
	VarcharLengthIsInChars() bool
}

// Column is a database column chosen for a field.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// ToColumns picks a column type for every field.
func (s *Schema) ToColumns(d TypeChooser) []Column {
	out := make([]Column, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, Column{
			Name:     d.MakeColumnNameValid(f.Name),
			Type:     columnType(f, d),
			Nullable: !f.Required(),
		})
	}
	return out
}

func columnType(f Field, d TypeChooser) string {
	c := f.Constraints
	if c == nil {
		c = &Constraints{}
	}
	switch f.Type {
	case Integer:
		return d.TypeForInteger(c.Min, c.Max)
	case Decimal:
		if c.FixedPrecision != nil && c.FixedScale != nil {
			return d.TypeForFixedPoint(*c.FixedPrecision, *c.FixedScale)
		}
		if c.FPTotalBits != nil && c.FPSignificandBits != nil {
			return d.TypeForFloatingPoint(*c.FPTotalBits, *c.FPSignificandBits)
		}
		return d.TypeForFloatingPoint(64, 53)
	case Boolean:
		return d.TypeForBoolean()
	case Date:
		return d.TypeForDate()
	case Time, TimeTZ:
		if d.SupportsTimeType() {
			return d.TypeForTime(f.Type == TimeTZ)
		}
		if f.Type == TimeTZ {
			return d.TypeForString(len("00:00:00+00:00"))
		}
		return d.TypeForString(len("00:00:00"))
	case DateTime:
		return d.TypeForDatePlusTime(false)
	case DateTimeTZ:
		return d.TypeForDatePlusTime(true)
	default:
		return d.TypeForString(VarcharLength(f, d.VarcharLengthIsInChars()))
	}
}

// VarcharLength picks the declared length of a string column.
//
// Byte-counting engines use the byte length when known and otherwise four
// bytes per character. Character-counting engines use the character length,
// or the byte length unchanged when only that is known. Constraints win over
// statistics; 256 is the final fallback.
func VarcharLength(f Field, inChars bool) int {
	var bytesLen, charsLen *int
	if c := f.Constraints; c != nil {
		bytesLen, charsLen = c.MaxLengthBytes, c.MaxLengthChars
	}
	if bytesLen == nil && charsLen == nil && f.Statistics != nil {
		bytesLen, charsLen = f.Statistics.MaxLengthBytes, f.Statistics.MaxLengthChars
	}
	switch {
	case !inChars && bytesLen != nil:
		return *bytesLen
	case inChars && charsLen != nil:
		return *charsLen
	case !inChars && charsLen != nil:
		return *charsLen * 4
	case inChars && bytesLen != nil:
		return *bytesLen
	}
	return DefaultVarcharLength
}

// SmallestIntegerType returns the first candidate whose limits cover
// [min, max]. Candidates are expected in increasing width; with nil bounds
// the last candidate is returned.
func SmallestIntegerType(candidates []string, limits func(string) (*big.Int, *big.Int, bool), min, max *big.Int) string {
	if len(candidates) == 0 {
		return ""
	}
	if min == nil || max == nil {
		return candidates[len(candidates)-1]
	}
	for _, c := range candidates {
		lo, hi, ok := limits(c)
		if ok && Covers(lo, hi, min, max) {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// ColumnInfo is one column as reported by a database catalog.
type ColumnInfo struct {
	Name string
	// DataType is the catalog's type name, e.g. "character varying".
	DataType         string
	CharMaxLength    *int
	NumericPrecision *int
	NumericScale     *int
	Nullable         bool
	// DDL is the type as it would appear in CREATE TABLE.
	DDL string
}

// Introspector lists the columns of a table.
type Introspector interface {
	TypeChooser
	Name() string
	Columns(ctx context.Context, schemaName, table string) ([]ColumnInfo, error)
}

// FromDBTable builds a schema from a table's catalog entry. Uniqueness is
// left unknown and no statistics are produced.
func FromDBTable(ctx context.Context, in Introspector, schemaName, table string) (*Schema, error) {
	cols, err := in.Columns(ctx, schemaName, table)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect %s.%s", schemaName, table)
	}
	if len(cols) == 0 {
		return nil, errors.Newf("table %s.%s has no columns or does not exist", schemaName, table)
	}
	repType := "sql/" + in.Name()
	s := &Schema{
		Fields: make([]Field, 0, len(cols)),
		KnownRepresentations: map[string]KnownRepresentation{
			"origin": {Type: repType},
		},
	}
	for _, c := range cols {
		f := fieldFromColumn(c, in)
		ddl := c.DDL
		if ddl == "" {
			ddl = c.DataType
		}
		f.Representations = map[string]Representation{"origin": {Type: repType, ColDDL: ddl}}
		s.Fields = append(s.Fields, f)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func fieldFromColumn(c ColumnInfo, in TypeChooser) Field {
	t := strings.ToLower(strings.TrimSpace(c.DataType))
	cons := &Constraints{Required: !c.Nullable}
	f := Field{Name: c.Name, Constraints: cons}

	switch {
	case t == "boolean" || t == "bool" || t == "bit":
		f.Type = Boolean
	case strings.Contains(t, "int") && !strings.Contains(t, "interval") && !strings.Contains(t, "point"):
		f.Type = Integer
		lo, hi, ok := in.IntegerLimits(strings.ToUpper(t))
		if !ok {
			lo, hi = IntRange(64, true)
		}
		cons.Min, cons.Max = lo, hi
	case t == "numeric" || t == "decimal" || t == "number" || t == "bignumeric":
		f.Type = Decimal
		if c.NumericPrecision != nil && c.NumericScale != nil {
			cons.FixedPrecision = copyPtr(c.NumericPrecision)
			cons.FixedScale = copyPtr(c.NumericScale)
		} else {
			cons.FPTotalBits, cons.FPSignificandBits = IntPtr(64), IntPtr(53)
		}
	case t == "real" || t == "float4":
		f.Type = Decimal
		cons.FPTotalBits, cons.FPSignificandBits = IntPtr(32), IntPtr(24)
	case t == "double precision" || t == "float8" || t == "float" || t == "double" || t == "float64":
		f.Type = Decimal
		cons.FPTotalBits, cons.FPSignificandBits = IntPtr(64), IntPtr(53)
	case t == "date":
		f.Type = Date
	case t == "time with time zone" || t == "timetz":
		f.Type = TimeTZ
	case t == "time" || t == "time without time zone":
		f.Type = Time
	case t == "timestamp with time zone" || t == "timestamptz" || t == "datetimeoffset":
		f.Type = DateTimeTZ
	case strings.HasPrefix(t, "timestamp") || t == "datetime" || t == "datetime2" || t == "smalldatetime":
		f.Type = DateTime
	default:
		f.Type = String
		if c.CharMaxLength != nil {
			if in.VarcharLengthIsInChars() {
				cons.MaxLengthChars = copyPtr(c.CharMaxLength)
			} else {
				cons.MaxLengthBytes = copyPtr(c.CharMaxLength)
			}
		}
	}
	return f
}

// CreateTableSQL renders a CREATE TABLE statement for columns. quote must
// return a safely quoted identifier.
func CreateTableSQL(qualifiedTable string, cols []Column, quote func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", qualifiedTable)
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

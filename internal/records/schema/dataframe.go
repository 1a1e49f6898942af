package schema

import (
	"math/big"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// IndexColumnPrefix marks columns that carry a dataframe index rather than
// data.
const IndexColumnPrefix = "__index_level_"

const arrowRepType = "dataframe/arrow"

// FromDataframe maps an Arrow schema onto logical types. Constraints come from
// the Arrow type ranges; statistics stay empty until Refine.
func FromDataframe(as *arrow.Schema, includeIndex bool) *Schema {
	s := &Schema{Fields: make([]Field, 0, len(as.Fields()))}
	for _, af := range as.Fields() {
		if !includeIndex && strings.HasPrefix(af.Name, IndexColumnPrefix) {
			continue
		}
		f := fieldFromArrow(af)
		f.Representations = map[string]Representation{
			"origin": {Type: arrowRepType, ArrowType: af.Type.String()},
		}
		s.Fields = append(s.Fields, f)
	}
	return s
}

func fieldFromArrow(af arrow.Field) Field {
	cons := &Constraints{Required: !af.Nullable}
	f := Field{Name: af.Name, Type: String, Constraints: cons}

	intField := func(bits int, signed bool) {
		f.Type = Integer
		cons.Min, cons.Max = IntRange(bits, signed)
	}
	floatField := func(total, significand int) {
		f.Type = Decimal
		cons.FPTotalBits, cons.FPSignificandBits = IntPtr(total), IntPtr(significand)
	}

	switch dt := af.Type.(type) {
	case *arrow.Int8Type:
		intField(8, true)
	case *arrow.Int16Type:
		intField(16, true)
	case *arrow.Int32Type:
		intField(32, true)
	case *arrow.Int64Type:
		intField(64, true)
	case *arrow.Uint8Type:
		intField(8, false)
	case *arrow.Uint16Type:
		intField(16, false)
	case *arrow.Uint32Type:
		intField(32, false)
	case *arrow.Uint64Type:
		intField(64, false)
	case *arrow.Float16Type:
		floatField(16, 11)
	case *arrow.Float32Type:
		floatField(32, 24)
	case *arrow.Float64Type:
		floatField(64, 53)
	case *arrow.Decimal128Type:
		f.Type = Decimal
		cons.FixedPrecision, cons.FixedScale = IntPtr(int(dt.Precision)), IntPtr(int(dt.Scale))
	case *arrow.Decimal256Type:
		f.Type = Decimal
		cons.FixedPrecision, cons.FixedScale = IntPtr(int(dt.Precision)), IntPtr(int(dt.Scale))
	case *arrow.BooleanType:
		f.Type = Boolean
	case *arrow.Date32Type, *arrow.Date64Type:
		f.Type = Date
	case *arrow.TimestampType:
		if dt.TimeZone == "" {
			f.Type = DateTime
		} else {
			f.Type = DateTimeTZ
		}
	case *arrow.Time32Type, *arrow.Time64Type, *arrow.DurationType:
		f.Type = Time
	case *arrow.StringType, *arrow.LargeStringType:
		f.Type = String
	default:
		logging.Logger.Debugw("mapping unsupported arrow type to string", "field", af.Name, "arrow_type", af.Type.String())
	}
	return f
}

// ArrowSchema returns the Arrow schema a dataframe holding s would use.
// Arrow arrays always carry a validity bitmap, so nullable integers keep
// their integer type.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		fields = append(fields, arrow.Field{Name: f.Name, Type: ArrowType(f), Nullable: !f.Required()})
	}
	return arrow.NewSchema(fields, nil)
}

// ArrowType returns the Arrow data type for one field.
func ArrowType(f Field) arrow.DataType {
	c := f.Constraints
	if c == nil {
		c = &Constraints{}
	}
	switch f.Type {
	case Integer:
		return arrowIntegerType(c.Min, c.Max)
	case Decimal:
		if c.FixedPrecision != nil && c.FixedScale != nil {
			if *c.FixedPrecision <= 38 {
				return &arrow.Decimal128Type{Precision: int32(*c.FixedPrecision), Scale: int32(*c.FixedScale)}
			}
			return &arrow.Decimal256Type{Precision: int32(*c.FixedPrecision), Scale: int32(*c.FixedScale)}
		}
		if c.FPTotalBits != nil && *c.FPTotalBits <= 32 {
			return arrow.PrimitiveTypes.Float32
		}
		return arrow.PrimitiveTypes.Float64
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Date:
		return arrow.FixedWidthTypes.Date32
	case Time, TimeTZ:
		return arrow.FixedWidthTypes.Time64us
	case DateTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case DateTimeTZ:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

var arrowIntegerCandidates = []struct {
	bits   int
	signed bool
	dt     arrow.DataType
}{
	{8, true, arrow.PrimitiveTypes.Int8},
	{8, false, arrow.PrimitiveTypes.Uint8},
	{16, true, arrow.PrimitiveTypes.Int16},
	{16, false, arrow.PrimitiveTypes.Uint16},
	{32, true, arrow.PrimitiveTypes.Int32},
	{32, false, arrow.PrimitiveTypes.Uint32},
	{64, true, arrow.PrimitiveTypes.Int64},
	{64, false, arrow.PrimitiveTypes.Uint64},
}

func arrowIntegerType(min, max *big.Int) arrow.DataType {
	if min == nil || max == nil {
		return arrow.PrimitiveTypes.Int64
	}
	for _, c := range arrowIntegerCandidates {
		lo, hi := IntRange(c.bits, c.signed)
		if Covers(lo, hi, min, max) {
			return c.dt
		}
	}
	logging.Logger.Warnw("integer range exceeds 64 bits; using float64 with precision loss",
		"min", min.String(), "max", max.String())
	return arrow.PrimitiveTypes.Float64
}

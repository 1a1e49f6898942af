package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

const microsPerDay = int64(24 * time.Hour / time.Microsecond)

// CastDataframeTypes converts the columns of rec to the Arrow types the
// fields of s call for. String columns of promoted fields are parsed, and
// time-of-day values held as elapsed durations become wall-clock times.
// Columns already of the right type, or absent from s, pass through.
//
// The caller owns the returned record and must Release it.
func CastDataframeTypes(mem memory.Allocator, rec arrow.Record, s *Schema) (arrow.Record, error) {
	cols := make([]arrow.Array, rec.NumCols())
	fields := make([]arrow.Field, rec.NumCols())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i := 0; i < int(rec.NumCols()); i++ {
		af := rec.Schema().Field(i)
		col := rec.Column(i)
		f, ok := s.Field(af.Name)
		if !ok {
			col.Retain()
			cols[i], fields[i] = col, af
			continue
		}
		want := ArrowType(f)
		if arrow.TypeEqual(col.DataType(), want) {
			col.Retain()
			cols[i], fields[i] = col, af
			continue
		}
		converted, err := castColumn(mem, col, f, want)
		if err != nil {
			return nil, errors.Wrapf(err, "cast column %q", af.Name)
		}
		cols[i] = converted
		fields[i] = arrow.Field{Name: af.Name, Type: want, Nullable: af.Nullable}
	}

	sch := arrow.NewSchema(fields, nil)
	return array.NewRecord(sch, cols, rec.NumRows()), nil
}

func castColumn(mem memory.Allocator, col arrow.Array, f Field, want arrow.DataType) (arrow.Array, error) {
	if d, ok := col.(*array.Duration); ok && (f.Type == Time || f.Type == TimeTZ) {
		return durationToTime(mem, d), nil
	}
	if ts, ok := col.(*array.Timestamp); ok {
		if tt, ok := want.(*arrow.TimestampType); ok {
			return retimestamp(mem, ts, tt)
		}
	}
	get, ok := stringGetter(col)
	if !ok {
		return nil, errors.Newf("cannot convert %s to %s", col.DataType(), want)
	}

	b := array.NewBuilder(mem, want)
	defer b.Release()
	for row := 0; row < col.Len(); row++ {
		if col.IsNull(row) {
			b.AppendNull()
			continue
		}
		v := strings.TrimSpace(get(row))
		if v == "" {
			b.AppendNull()
			continue
		}
		if err := AppendParsed(b, f.Type, v); err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
	}
	return b.NewArray(), nil
}

// AppendParsed parses v as logical type t and appends it to b, whose Arrow
// type must be the one ArrowType picks for t.
func AppendParsed(b array.Builder, t FieldType, v string) error {
	bad := func() error { return errors.Newf("cannot parse %q as %s", v, t) }
	switch bb := b.(type) {
	case *array.Int8Builder:
		n, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			return bad()
		}
		bb.Append(int8(n))
	case *array.Int16Builder:
		n, err := strconv.ParseInt(v, 10, 16)
		if err != nil {
			return bad()
		}
		bb.Append(int16(n))
	case *array.Int32Builder:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return bad()
		}
		bb.Append(int32(n))
	case *array.Int64Builder:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return bad()
		}
		bb.Append(n)
	case *array.Uint8Builder:
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return bad()
		}
		bb.Append(uint8(n))
	case *array.Uint16Builder:
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return bad()
		}
		bb.Append(uint16(n))
	case *array.Uint32Builder:
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return bad()
		}
		bb.Append(uint32(n))
	case *array.Uint64Builder:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return bad()
		}
		bb.Append(n)
	case *array.Float32Builder:
		n, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return bad()
		}
		bb.Append(float32(n))
	case *array.Float64Builder:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bad()
		}
		bb.Append(n)
	case *array.Decimal128Builder:
		dt := bb.Type().(*arrow.Decimal128Type)
		n, err := decimal128.FromString(v, dt.Precision, dt.Scale)
		if err != nil {
			return bad()
		}
		bb.Append(n)
	case *array.BooleanBuilder:
		x, ok := ParseBoolLoose(v)
		if !ok {
			return bad()
		}
		bb.Append(x)
	case *array.Date32Builder:
		ts, ok := ParseDateLoose(v)
		if !ok {
			return bad()
		}
		bb.Append(arrow.Date32FromTime(ts))
	case *array.Time64Builder:
		ts, ok := ParseTimeLoose(v)
		if !ok {
			return bad()
		}
		bb.Append(timeOfDay(ts))
	case *array.TimestampBuilder:
		var ts time.Time
		var ok bool
		if t == DateTimeTZ {
			ts, ok = ParseDateTimeTZLoose(v)
		}
		if !ok {
			ts, ok = ParseDateTimeLoose(v)
		}
		if !ok {
			return bad()
		}
		bb.Append(arrow.Timestamp(ts.UnixMicro()))
	case *array.StringBuilder:
		bb.Append(v)
	default:
		return errors.Newf("no parser for %s into %s", t, b.Type())
	}
	return nil
}

func timeOfDay(ts time.Time) arrow.Time64 {
	h, m, s := ts.Clock()
	us := (int64(h)*3600+int64(m)*60+int64(s))*1e6 + int64(ts.Nanosecond()/1000)
	return arrow.Time64(us)
}

func durationToTime(mem memory.Allocator, d *array.Duration) arrow.Array {
	unit := d.DataType().(*arrow.DurationType).Unit
	b := array.NewTime64Builder(mem, &arrow.Time64Type{Unit: arrow.Microsecond})
	defer b.Release()
	for i := 0; i < d.Len(); i++ {
		if d.IsNull(i) {
			b.AppendNull()
			continue
		}
		us := int64(d.Value(i)) * int64(unit.Multiplier()) / int64(time.Microsecond)
		us %= microsPerDay
		if us < 0 {
			us += microsPerDay
		}
		b.Append(arrow.Time64(us))
	}
	return b.NewArray()
}

// retimestamp changes the unit or zone of a timestamp column. Naive values
// are taken as UTC.
func retimestamp(mem memory.Allocator, ts *array.Timestamp, want *arrow.TimestampType) (arrow.Array, error) {
	unit := ts.DataType().(*arrow.TimestampType).Unit
	b := array.NewTimestampBuilder(mem, want)
	defer b.Release()
	for i := 0; i < ts.Len(); i++ {
		if ts.IsNull(i) {
			b.AppendNull()
			continue
		}
		v, err := arrow.TimestampFromTime(ts.Value(i).ToTime(unit), want.Unit)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		b.Append(v)
	}
	return b.NewArray(), nil
}

package dataframe

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

var isoLayouts = layouts{date: isoDate, timeOnly: isoTime, dateTime: isoDateTime, dateTimeTZ: isoDateTimeTZ}

// RowValues appends the cells of row i of rec to dst as values a
// database/sql driver accepts, nil for nulls.
func RowValues(rec arrow.Record, i int, dst []any) []any {
	for _, col := range rec.Columns() {
		dst = append(dst, cellValue(col, i))
	}
	return dst
}

func cellValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		if v := a.Value(i); v <= math.MaxInt64 {
			return int64(v)
		}
		return strconv.FormatUint(a.Value(i), 10)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	case *array.Time64:
		unit := a.DataType().(*arrow.Time64Type).Unit
		return a.Value(i).ToTime(unit).Format(isoTime)
	default:
		return col.ValueStr(i)
	}
}

// RowBuilder accumulates database rows into Arrow records.
type RowBuilder struct {
	b       *array.RecordBuilder
	parsers []parseFunc
	n       int
}

// NewRowBuilder returns a builder for as.
func NewRowBuilder(as *arrow.Schema, mem memory.Allocator) *RowBuilder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rb := &RowBuilder{b: array.NewRecordBuilder(mem, as)}
	for _, f := range as.Fields() {
		rb.parsers = append(rb.parsers, parserFor(f.Type, isoLayouts))
	}
	return rb
}

// Append adds one row of scanned driver values.
func (rb *RowBuilder) Append(values []any) error {
	if len(values) != len(rb.parsers) {
		return errors.Newf("row has %d values, schema has %d fields", len(values), len(rb.parsers))
	}
	for i, v := range values {
		fb := rb.b.Field(i)
		if v == nil {
			fb.AppendNull()
			continue
		}
		if ts, ok := v.(time.Time); ok {
			if err := appendTime(fb, ts); err != nil {
				return errors.Wrapf(err, "field %s", rb.b.Schema().Field(i).Name)
			}
			continue
		}
		parsed, err := rb.parsers[i](driverString(v))
		if err != nil {
			return errors.Wrapf(err, "field %s", rb.b.Schema().Field(i).Name)
		}
		appendValue(fb, parsed)
	}
	rb.n++
	return nil
}

func driverString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func appendTime(b array.Builder, ts time.Time) error {
	switch bb := b.(type) {
	case *array.Date32Builder:
		bb.Append(arrow.Date32FromTime(ts))
	case *array.TimestampBuilder:
		v, err := arrow.TimestampFromTime(ts, bb.Type().(*arrow.TimestampType).Unit)
		if err != nil {
			return err
		}
		bb.Append(v)
	case *array.Time64Builder:
		h, m, s := ts.Clock()
		us := (int64(h)*3600+int64(m)*60+int64(s))*1e6 + int64(ts.Nanosecond()/1e3)
		unit := bb.Type().(*arrow.Time64Type).Unit
		bb.Append(arrow.Time64(us * int64(time.Microsecond) / int64(unit.Multiplier())))
	case *array.StringBuilder:
		bb.Append(ts.Format(time.RFC3339Nano))
	default:
		return errors.Newf("cannot store a timestamp in %s", b.Type())
	}
	return nil
}

// Len is the number of rows appended since the last NewRecord.
func (rb *RowBuilder) Len() int { return rb.n }

// NewRecord returns the buffered rows and resets the builder.
func (rb *RowBuilder) NewRecord() arrow.Record {
	rb.n = 0
	return rb.b.NewRecord()
}

func (rb *RowBuilder) Release() { rb.b.Release() }

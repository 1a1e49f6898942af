package dataframe

import (
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/decimal256"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Fallback layouts used when a date/time hint is none.
const (
	isoDate       = "2006-01-02"
	isoTime       = "15:04:05.999999"
	isoDateTime   = "2006-01-02 15:04:05.999999"
	isoDateTimeTZ = "2006-01-02 15:04:05.999999-07"
)

// layouts holds the Go layouts derived from a hint set.
type layouts struct {
	date, timeOnly, dateTime, dateTimeTZ string
}

func layoutsFor(v hints.Validated) layouts {
	conv := func(format, fallback string) string {
		if format == "" {
			return fallback
		}
		l, err := hints.GoLayout(format)
		if err != nil {
			return fallback
		}
		return l
	}
	return layouts{
		date:       conv(v.DateFormat, isoDate),
		timeOnly:   conv(v.TimeOnlyFormat, isoTime),
		dateTime:   conv(v.DateTimeFormat, isoDateTime),
		dateTimeTZ: conv(v.DateTimeFormatTZ, isoDateTimeTZ),
	}
}

// withFraction lets a layout carry microseconds on output. Parsing accepts
// fractional seconds regardless.
func withFraction(layout string) string {
	if strings.Contains(layout, ":05.") {
		return layout
	}
	return strings.Replace(layout, ":05", ":05.999999", 1)
}

// parseFunc converts one non-empty cell into the Go value appendValue
// expects for the column's Arrow type.
type parseFunc func(string) (any, error)

func parserFor(dt arrow.DataType, l layouts) parseFunc {
	intParser := func(bits int, conv func(int64) any) parseFunc {
		return func(s string) (any, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, bits)
			if err != nil {
				return nil, err
			}
			return conv(n), nil
		}
	}
	uintParser := func(bits int, conv func(uint64) any) parseFunc {
		return func(s string) (any, error) {
			n, err := strconv.ParseUint(strings.TrimSpace(s), 10, bits)
			if err != nil {
				return nil, err
			}
			return conv(n), nil
		}
	}
	withLayouts := func(primary string, loose func(string) (time.Time, bool)) func(string) (time.Time, error) {
		alt := strings.Replace(primary, "-07", "-07:00", 1)
		return func(s string) (time.Time, error) {
			s = strings.TrimSpace(s)
			if t, err := time.Parse(primary, s); err == nil {
				return t, nil
			}
			if alt != primary {
				if t, err := time.Parse(alt, s); err == nil {
					return t, nil
				}
			}
			if t, ok := loose(s); ok {
				return t, nil
			}
			return time.Time{}, errors.Newf("%q does not match %q", s, primary)
		}
	}

	switch t := dt.(type) {
	case *arrow.Int8Type:
		return intParser(8, func(n int64) any { return int8(n) })
	case *arrow.Int16Type:
		return intParser(16, func(n int64) any { return int16(n) })
	case *arrow.Int32Type:
		return intParser(32, func(n int64) any { return int32(n) })
	case *arrow.Int64Type:
		return intParser(64, func(n int64) any { return n })
	case *arrow.Uint8Type:
		return uintParser(8, func(n uint64) any { return uint8(n) })
	case *arrow.Uint16Type:
		return uintParser(16, func(n uint64) any { return uint16(n) })
	case *arrow.Uint32Type:
		return uintParser(32, func(n uint64) any { return uint32(n) })
	case *arrow.Uint64Type:
		return uintParser(64, func(n uint64) any { return n })
	case *arrow.Float32Type:
		return func(s string) (any, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
			return float32(f), err
		}
	case *arrow.Float64Type:
		return func(s string) (any, error) {
			return strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
	case *arrow.Decimal128Type:
		return func(s string) (any, error) {
			return decimal128.FromString(strings.TrimSpace(s), t.Precision, t.Scale)
		}
	case *arrow.Decimal256Type:
		return func(s string) (any, error) {
			return decimal256.FromString(strings.TrimSpace(s), t.Precision, t.Scale)
		}
	case *arrow.BooleanType:
		return func(s string) (any, error) {
			b, ok := schema.ParseBoolLoose(s)
			if !ok {
				return nil, errors.Newf("%q is not a boolean", s)
			}
			return b, nil
		}
	case *arrow.Date32Type:
		parse := withLayouts(l.date, schema.ParseDateLoose)
		return func(s string) (any, error) {
			ts, err := parse(s)
			if err != nil {
				return nil, err
			}
			return arrow.Date32FromTime(ts), nil
		}
	case *arrow.Time64Type:
		parse := withLayouts(l.timeOnly, schema.ParseTimeLoose)
		return func(s string) (any, error) {
			ts, err := parse(s)
			if err != nil {
				return nil, err
			}
			h, m, sec := ts.Clock()
			us := (int64(h)*3600+int64(m)*60+int64(sec))*1e6 + int64(ts.Nanosecond()/1e3)
			return arrow.Time64(us * int64(time.Microsecond) / int64(t.Unit.Multiplier())), nil
		}
	case *arrow.TimestampType:
		var parse func(string) (time.Time, error)
		if t.TimeZone != "" {
			tz := withLayouts(l.dateTimeTZ, schema.ParseDateTimeTZLoose)
			naive := withLayouts(l.dateTime, schema.ParseDateTimeLoose)
			parse = func(s string) (time.Time, error) {
				if ts, err := tz(s); err == nil {
					return ts, nil
				}
				return naive(s)
			}
		} else {
			parse = withLayouts(l.dateTime, schema.ParseDateTimeLoose)
		}
		return func(s string) (any, error) {
			ts, err := parse(s)
			if err != nil {
				return nil, err
			}
			return arrow.TimestampFromTime(ts, t.Unit)
		}
	default:
		return func(s string) (any, error) { return s, nil }
	}
}

// appendValue appends a value produced by parserFor.
func appendValue(b array.Builder, v any) {
	switch bb := b.(type) {
	case *array.Int8Builder:
		bb.Append(v.(int8))
	case *array.Int16Builder:
		bb.Append(v.(int16))
	case *array.Int32Builder:
		bb.Append(v.(int32))
	case *array.Int64Builder:
		bb.Append(v.(int64))
	case *array.Uint8Builder:
		bb.Append(v.(uint8))
	case *array.Uint16Builder:
		bb.Append(v.(uint16))
	case *array.Uint32Builder:
		bb.Append(v.(uint32))
	case *array.Uint64Builder:
		bb.Append(v.(uint64))
	case *array.Float32Builder:
		bb.Append(v.(float32))
	case *array.Float64Builder:
		bb.Append(v.(float64))
	case *array.Decimal128Builder:
		bb.Append(v.(decimal128.Num))
	case *array.Decimal256Builder:
		bb.Append(v.(decimal256.Num))
	case *array.BooleanBuilder:
		bb.Append(v.(bool))
	case *array.Date32Builder:
		bb.Append(v.(arrow.Date32))
	case *array.Time64Builder:
		bb.Append(v.(arrow.Time64))
	case *array.TimestampBuilder:
		bb.Append(v.(arrow.Timestamp))
	case *array.StringBuilder:
		bb.Append(v.(string))
	default:
		b.AppendNull()
	}
}

// formatFunc renders one non-null cell.
type formatFunc func(arr arrow.Array, i int) string

func formatterFor(dt arrow.DataType, l layouts) formatFunc {
	switch t := dt.(type) {
	case *arrow.StringType:
		return func(a arrow.Array, i int) string { return a.(*array.String).Value(i) }
	case *arrow.LargeStringType:
		return func(a arrow.Array, i int) string { return a.(*array.LargeString).Value(i) }
	case *arrow.BooleanType:
		return func(a arrow.Array, i int) string {
			return strconv.FormatBool(a.(*array.Boolean).Value(i))
		}
	case *arrow.Float32Type:
		return func(a arrow.Array, i int) string {
			return strconv.FormatFloat(float64(a.(*array.Float32).Value(i)), 'g', -1, 32)
		}
	case *arrow.Float64Type:
		return func(a arrow.Array, i int) string {
			return strconv.FormatFloat(a.(*array.Float64).Value(i), 'g', -1, 64)
		}
	case *arrow.Date32Type:
		return func(a arrow.Array, i int) string {
			return a.(*array.Date32).Value(i).ToTime().Format(l.date)
		}
	case *arrow.Date64Type:
		return func(a arrow.Array, i int) string {
			return a.(*array.Date64).Value(i).ToTime().Format(l.date)
		}
	case *arrow.Time32Type:
		layout := withFraction(l.timeOnly)
		return func(a arrow.Array, i int) string {
			return a.(*array.Time32).Value(i).ToTime(t.Unit).Format(layout)
		}
	case *arrow.Time64Type:
		layout := withFraction(l.timeOnly)
		return func(a arrow.Array, i int) string {
			return a.(*array.Time64).Value(i).ToTime(t.Unit).Format(layout)
		}
	case *arrow.TimestampType:
		layout := withFraction(l.dateTime)
		if t.TimeZone != "" {
			layout = withFraction(l.dateTimeTZ)
		}
		return func(a arrow.Array, i int) string {
			return a.(*array.Timestamp).Value(i).ToTime(t.Unit).UTC().Format(layout)
		}
	case *arrow.DurationType:
		return func(a arrow.Array, i int) string {
			d := time.Duration(a.(*array.Duration).Value(i)) * t.Unit.Multiplier()
			return time.Time{}.Add(d).Format(withFraction(l.timeOnly))
		}
	default:
		return func(a arrow.Array, i int) string { return a.ValueStr(i) }
	}
}

// isNumeric reports whether values of dt are left unquoted under
// nonnumeric quoting.
func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DECIMAL128, arrow.DECIMAL256:
		return true
	}
	return false
}

package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

var (
	dateLayouts = []string{
		"2006-01-02",
		"02.01.2006",
		"02/01/2006",
		"01/02/2006",
	}
	datetimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999",
		"02.01.2006 15:04:05",
	}
	datetimeTZLayouts = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.000Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05-07",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05.999999-07:00",
	}
	timeLayouts = []string{
		"15:04:05",
		"15:04:05.999999",
		"15:04",
		"03:04 PM",
	}
)

func init() {
	// Every layout the hint vocabulary can describe is also recognized.
	add := func(dst *[]string, values []any) {
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			lay, err := hints.GoLayout(s)
			if err != nil {
				continue
			}
			*dst = appendUnique(*dst, lay)
		}
	}
	add(&dateLayouts, hints.DateFormatValues)
	add(&timeLayouts, hints.TimeOnlyFormatValues)
	add(&datetimeLayouts, hints.DateTimeFormatValues)
	for _, v := range hints.DateTimeFormatTZValues {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lay, err := hints.GoLayout(s)
		if err != nil {
			continue
		}
		if strings.Contains(lay, "-07") {
			datetimeTZLayouts = appendUnique(datetimeTZLayouts, lay)
		} else {
			datetimeLayouts = appendUnique(datetimeLayouts, lay)
		}
	}
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// ParseBoolLoose accepts the usual textual spellings of a boolean.
func ParseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func parseWith(layouts []string, s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range layouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateLoose parses a date in any recognized layout.
func ParseDateLoose(s string) (time.Time, bool) { return parseWith(dateLayouts, s) }

// ParseDateTimeLoose parses a timestamp without offset.
func ParseDateTimeLoose(s string) (time.Time, bool) { return parseWith(datetimeLayouts, s) }

// ParseDateTimeTZLoose parses a timestamp carrying an offset.
func ParseDateTimeTZLoose(s string) (time.Time, bool) { return parseWith(datetimeTZLayouts, s) }

// ParseTimeLoose parses a time of day.
func ParseTimeLoose(s string) (time.Time, bool) { return parseWith(timeLayouts, s) }

// InferValueType returns the most specific logical type every non-empty
// value parses as, or String. Integers win over booleans so 0/1 columns stay
// numeric.
func InferValueType(values []string) FieldType {
	var seen bool
	allInt, allFloat, allBool := true, true, true
	allDate, allTS, allTSTZ, allTime := true, true, true, true

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		seen = true
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := ParseBoolLoose(v); !ok {
				allBool = false
			}
		}
		if allDate {
			if _, ok := ParseDateLoose(v); !ok {
				allDate = false
			}
		}
		if allTS {
			if _, ok := ParseDateTimeLoose(v); !ok {
				allTS = false
			}
		}
		if allTSTZ {
			if _, ok := ParseDateTimeTZLoose(v); !ok {
				allTSTZ = false
			}
		}
		if allTime {
			if _, ok := ParseTimeLoose(v); !ok {
				allTime = false
			}
		}
	}

	if !seen {
		return String
	}
	switch {
	case allInt:
		return Integer
	case allBool:
		return Boolean
	case allDate:
		return Date
	case allTSTZ:
		return DateTimeTZ
	case allTS:
		return DateTime
	case allTime:
		return Time
	case allFloat:
		return Decimal
	default:
		return String
	}
}

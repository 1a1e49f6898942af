package hints

import (
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// layoutTokens maps hint date/time tokens to Go reference-time fragments.
// Longer tokens come first so HH24 wins over HH. HH alone is a 24-hour clock.
var layoutTokens = []struct{ token, layout string }{
	{"HH24", "15"},
	{"HH12", "03"},
	{"HH", "15"},
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MM", "01"},
	{"MI", "04"},
	{"DD", "02"},
	{"SS", "05"},
	{"AM", "PM"},
	{"OF", "-07"},
}

// GoLayout converts a date/time hint value such as "YYYY-MM-DD HH24:MI:SS"
// into a layout usable with time.Parse and time.Format.
func GoLayout(format string) (string, error) {
	if format == "" {
		return "", errors.New("empty date/time format")
	}
	var b strings.Builder
	i := 0
	for i < len(format) {
		matched := false
		for _, t := range layoutTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		c := format[i]
		if c >= 'A' && c <= 'Z' {
			return "", errors.Newf("unrecognized token in date/time format %q", format)
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

// DayFirst reports whether a date or datetime hint value orders the day
// before the month.
func DayFirst(format string) bool {
	return strings.HasPrefix(format, "DD")
}

// MonthFirst reports whether a date or datetime hint value orders the month
// before the day.
func MonthFirst(format string) bool {
	return strings.HasPrefix(format, "MM")
}

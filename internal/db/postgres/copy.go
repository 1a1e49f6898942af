package postgres

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// CopyOptions are the native options of one COPY statement.
type CopyOptions struct {
	// Format is "csv" or "text".
	Format    string
	Delimiter string
	// Quote and Escape apply to csv only.
	Quote  string
	Escape string
	// Null applies to text only; the empty string reads as NULL.
	Null     string
	Header   bool
	Encoding string
	// ForceQuoteAll quotes every column on unload.
	ForceQuoteAll bool
}

// DateStyle is the session setting that decides how dates are read.
type DateStyle struct {
	Output string
	Order  string
}

func (d DateStyle) String() string { return d.Output + ", " + d.Order }

var encodings = map[hints.EncodingType]string{
	hints.UTF8:   "UTF8",
	hints.LATIN1: "LATIN1",
	hints.CP1252: "WIN1252",
}

// LoadOptions translates hints into COPY FROM options.
func LoadOptions(v hints.Validated, u hints.Unhandled, p hints.Policy) (CopyOptions, DateStyle, error) {
	o, err := copyOptions(v, u, p, true)
	if err != nil {
		return CopyOptions{}, DateStyle{}, err
	}
	ds, err := loadDateStyle(v, u, p)
	return o, ds, err
}

// UnloadOptions translates hints into COPY TO options.
func UnloadOptions(v hints.Validated, u hints.Unhandled, p hints.Policy) (CopyOptions, DateStyle, error) {
	o, err := copyOptions(v, u, p, false)
	if err != nil {
		return CopyOptions{}, DateStyle{}, err
	}
	u.Handle(hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)
	checks := []struct {
		name    hints.Name
		value   string
		allowed []string
	}{
		{hints.DateFormat, v.DateFormat, db.ISODate},
		{hints.TimeOnlyFormat, v.TimeOnlyFormat, db.ISOTime},
		{hints.DateTimeFormat, v.DateTimeFormat, db.ISODateTime},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ, db.ISODateTimeTZ},
	}
	for _, c := range checks {
		if !db.OneOf(c.value, c.allowed) {
			if err := p.CantHandle(c.name, c.value, "COPY TO writes ISO dates and times"); err != nil {
				return CopyOptions{}, DateStyle{}, err
			}
		}
	}
	return o, DateStyle{Output: "ISO", Order: "MDY"}, nil
}

func copyOptions(v hints.Validated, u hints.Unhandled, p hints.Policy, load bool) (CopyOptions, error) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding)

	o := CopyOptions{Delimiter: v.FieldDelimiter}

	if v.Compression != hints.CompressionNone {
		if err := p.CantHandle(hints.Compression, string(v.Compression), "COPY reads and writes uncompressed data only"); err != nil {
			return o, err
		}
	}

	enc, ok := encodings[v.Encoding]
	if !ok {
		if err := p.CantHandle(hints.Encoding, string(v.Encoding), "no matching server encoding"); err != nil {
			return o, err
		}
		enc = "UTF8"
	}
	o.Encoding = enc

	if utf8.RuneCountInString(v.FieldDelimiter) != 1 {
		if err := p.CantHandle(hints.FieldDelimiter, v.FieldDelimiter, "COPY needs a single-character delimiter"); err != nil {
			return o, err
		}
	}

	if v.HeaderRow || v.Quoting != hints.QuotingNone {
		o.Format = "csv"
		o.Header = v.HeaderRow
		o.Quote = v.QuoteChar
		o.Escape = v.QuoteChar
		switch {
		case v.Quoting == hints.QuotingMinimal:
		case v.Quoting == hints.QuotingAll && !load:
			o.ForceQuoteAll = true
		default:
			if err := p.CantHandle(hints.Quoting, v.Value(hints.Quoting), "CSV mode quotes minimally"); err != nil {
				return o, err
			}
		}
		if !v.DoubleQuote {
			if err := p.CantHandle(hints.DoubleQuote, false, "CSV mode escapes quotes by doubling them"); err != nil {
				return o, err
			}
		}
		if v.Escape != "" {
			if err := p.CantHandle(hints.Escape, v.Escape, "CSV mode has no escape character"); err != nil {
				return o, err
			}
		}
	} else {
		o.Format = "text"
		if v.Escape != `\` {
			if err := p.CantHandle(hints.Escape, v.Value(hints.Escape), "text mode always uses backslash escapes"); err != nil {
				return o, err
			}
		}
		if v.DoubleQuote {
			if err := p.CantHandle(hints.DoubleQuote, true, "text mode does not double quotes"); err != nil {
				return o, err
			}
		}
	}

	term := v.RecordTerminator
	if load {
		if !db.OneOf(term, []string{"\n", "\r", "\r\n"}) {
			if err := p.CantHandle(hints.RecordTerminator, term, "COPY FROM reads newline-terminated records"); err != nil {
				return o, err
			}
		}
	} else if term != "\n" {
		if err := p.CantHandle(hints.RecordTerminator, v.Value(hints.RecordTerminator), "COPY TO ends records with a newline"); err != nil {
			return o, err
		}
	}
	return o, nil
}

// loadDateStyle derives the day/month order the date hints agree on.
func loadDateStyle(v hints.Validated, u hints.Unhandled, p hints.Policy) (DateStyle, error) {
	u.Handle(hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)
	order := ""
	formats := []struct {
		name  hints.Name
		value string
	}{
		{hints.DateFormat, v.DateFormat},
		{hints.DateTimeFormat, v.DateTimeFormat},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ},
	}
	for _, f := range formats {
		var o string
		switch {
		case hints.MonthFirst(f.value):
			o = "MDY"
		case hints.DayFirst(f.value):
			o = "DMY"
		default:
			continue
		}
		if order == "" {
			order = o
			continue
		}
		if order != o {
			if err := p.CantHandle(f.name, f.value, "day/month order conflicts with "+order); err != nil {
				return DateStyle{}, err
			}
		}
	}
	if order == "" {
		order = "MDY"
	}
	return DateStyle{Output: "ISO", Order: order}, nil
}

// Literal renders s as a Postgres string literal, using the escape string
// syntax when s holds control characters or backslashes.
func Literal(s string) string {
	needsE := false
	for _, r := range s {
		if r < 0x20 || r == '\\' || r == 0x7f {
			needsE = true
			break
		}
	}
	if !needsE {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	var b strings.Builder
	b.WriteString("E'")
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\'':
			b.WriteString(`\'`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("'")
	return b.String()
}

// With renders the option list of a COPY statement.
func (o CopyOptions) With(load bool) string {
	parts := []string{"FORMAT " + o.Format}
	if o.Delimiter != "" {
		parts = append(parts, "DELIMITER "+Literal(o.Delimiter))
	}
	if o.Format == "csv" {
		parts = append(parts, fmt.Sprintf("HEADER %t", o.Header))
		parts = append(parts, "QUOTE "+Literal(o.Quote), "ESCAPE "+Literal(o.Escape))
		if o.ForceQuoteAll && !load {
			parts = append(parts, "FORCE_QUOTE *")
		}
	} else {
		parts = append(parts, "NULL "+Literal(o.Null))
	}
	parts = append(parts, "ENCODING "+Literal(o.Encoding))
	return "(" + strings.Join(parts, ", ") + ")"
}

// CopyFromSQL renders COPY ... FROM STDIN for qualifiedTable.
func CopyFromSQL(qualifiedTable string, o CopyOptions) string {
	return "COPY " + qualifiedTable + " FROM STDIN WITH " + o.With(true)
}

// CopyToSQL renders COPY ... TO STDOUT for qualifiedTable.
func CopyToSQL(qualifiedTable string, o CopyOptions) string {
	return "COPY " + qualifiedTable + " TO STDOUT WITH " + o.With(false)
}

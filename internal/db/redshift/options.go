package redshift

import (
	"strconv"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// maxErrorCap is the largest MAXERROR Redshift honors.
const maxErrorCap = 100000

// CopyOptions are the data format parameters of a COPY.
type CopyOptions struct {
	// CSV selects FORMAT AS CSV; Quote applies only then.
	CSV          bool
	Quote        string
	Delimiter    string
	Escape       bool
	RemoveQuotes bool
	Compression  string
	Encoding     string
	IgnoreHeader int
	DateFormat   string
	TimeFormat   string
	MaxError     int64
}

// UnloadOptions are the data format parameters of an UNLOAD.
type UnloadOptions struct {
	CSV         bool
	Delimiter   string
	AddQuotes   bool
	Escape      bool
	Compression string
	Header      bool
	Parquet     bool
}

var loadEncodings = map[hints.EncodingType]string{
	hints.UTF8:    "UTF8",
	hints.UTF16:   "UTF16",
	hints.UTF16LE: "UTF16LE",
	hints.UTF16BE: "UTF16BE",
}

var compressions = map[hints.CompressionType]string{
	hints.GZIP: "GZIP",
	hints.BZIP: "BZIP2",
	hints.LZO:  "LZOP",
}

// LoadOptions translates hints into COPY parameters. pi supplies the
// bad-row tolerance.
func LoadOptions(v hints.Validated, u hints.Unhandled, p hints.Policy, pi records.ProcessingInstructions) (CopyOptions, error) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding,
		hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)

	var o CopyOptions
	if v.Quoting == hints.QuotingMinimal {
		o.CSV = true
		o.Quote = v.QuoteChar
		if v.Escape != "" {
			if err := p.CantHandle(hints.Escape, v.Escape, "CSV format has no escape character"); err != nil {
				return o, err
			}
		}
		if v.FieldDelimiter != "," {
			if err := p.CantHandle(hints.FieldDelimiter, v.FieldDelimiter, "CSV format reads comma-delimited fields"); err != nil {
				return o, err
			}
		}
		if !v.DoubleQuote {
			if err := p.CantHandle(hints.DoubleQuote, false, "CSV format expects doubled quotes"); err != nil {
				return o, err
			}
		}
	} else {
		o.Delimiter = v.FieldDelimiter
		o.Escape = v.Escape == `\`
		switch v.Quoting {
		case hints.QuotingAll:
			o.RemoveQuotes = true
		case hints.QuotingNonNumeric:
			if err := p.CantHandle(hints.Quoting, string(v.Quoting), "REMOVEQUOTES expects every field quoted"); err != nil {
				return o, err
			}
			o.RemoveQuotes = true
		}
		if o.RemoveQuotes && v.QuoteChar != `"` {
			if err := p.CantHandle(hints.QuoteChar, v.QuoteChar, "REMOVEQUOTES strips double quotes only"); err != nil {
				return o, err
			}
		}
		if v.DoubleQuote {
			if err := p.CantHandle(hints.DoubleQuote, true, "only CSV format reads doubled quotes"); err != nil {
				return o, err
			}
		}
	}

	if v.Compression != hints.CompressionNone {
		o.Compression = compressions[v.Compression]
	}

	enc, ok := loadEncodings[v.Encoding]
	if !ok {
		if err := p.CantHandle(hints.Encoding, string(v.Encoding), "COPY reads UTF8 and UTF16 only"); err != nil {
			return o, err
		}
		enc = "UTF8"
	}
	o.Encoding = enc

	if v.RecordTerminator != "" && v.RecordTerminator != "\n" {
		if err := p.CantHandle(hints.RecordTerminator, v.RecordTerminator, "COPY reads newline-terminated records"); err != nil {
			return o, err
		}
	}
	if v.HeaderRow {
		o.IgnoreHeader = 1
	}

	o.DateFormat = dateFormat(v.DateFormat)
	o.TimeFormat = timeFormat(v.DateTimeFormat, v.DateTimeFormatTZ)

	switch {
	case pi.MaxFailureRows != nil:
		o.MaxError = min(*pi.MaxFailureRows, maxErrorCap)
	case pi.FailIfRowInvalid:
		o.MaxError = 0
	default:
		o.MaxError = maxErrorCap
	}
	return o, nil
}

// dateFormat passes explicit formats through. MM/DD/YY is what 'auto'
// assumes for slash dates, so it is left to auto as well.
func dateFormat(f string) string {
	if f == "" || f == "MM/DD/YY" {
		return "auto"
	}
	return f
}

// timeFormat passes a timestamp format through only when both timestamp
// hints agree on an offset-free ISO form. COPY takes a single TIMEFORMAT for
// both column kinds; anything else falls back to auto.
func timeFormat(dt, dttz string) string {
	if dt != "" && dt == dttz && strings.HasPrefix(dt, "YYYY-MM-DD ") && !strings.HasSuffix(dt, "OF") {
		return dt
	}
	return "auto"
}

// SQL renders the parameters in COPY clause order.
func (o CopyOptions) SQL() string {
	var parts []string
	if o.CSV {
		parts = append(parts, "CSV QUOTE AS "+Literal(o.Quote))
	} else {
		parts = append(parts, "DELIMITER "+Literal(o.Delimiter))
		if o.Escape {
			parts = append(parts, "ESCAPE")
		}
		if o.RemoveQuotes {
			parts = append(parts, "REMOVEQUOTES")
		}
	}
	if o.Compression != "" {
		parts = append(parts, o.Compression)
	}
	parts = append(parts, "ENCODING "+o.Encoding)
	if o.IgnoreHeader > 0 {
		parts = append(parts, "IGNOREHEADER "+strconv.Itoa(o.IgnoreHeader))
	}
	parts = append(parts,
		"DATEFORMAT "+Literal(o.DateFormat),
		"TIMEFORMAT "+Literal(o.TimeFormat),
		"MAXERROR "+strconv.FormatInt(o.MaxError, 10),
	)
	return strings.Join(parts, " ")
}

// UnloadOptionsFor translates hints into UNLOAD parameters. UNLOAD writes
// UTF8, newline-terminated, ISO-dated output.
func UnloadOptionsFor(v hints.Validated, u hints.Unhandled, p hints.Policy) (UnloadOptions, error) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding,
		hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)

	o := UnloadOptions{Delimiter: v.FieldDelimiter, Header: v.HeaderRow}
	cant := func(name hints.Name, reason string) error {
		return p.CantHandle(name, v.Value(name), reason)
	}

	if v.Encoding != hints.UTF8 {
		if err := cant(hints.Encoding, "UNLOAD writes UTF8"); err != nil {
			return o, err
		}
	}
	if v.RecordTerminator != "\n" {
		if err := cant(hints.RecordTerminator, "UNLOAD ends records with a newline"); err != nil {
			return o, err
		}
	}
	switch v.Compression {
	case hints.CompressionNone:
	case hints.GZIP, hints.BZIP:
		o.Compression = compressions[v.Compression]
	default:
		if err := cant(hints.Compression, "UNLOAD compresses with GZIP or BZIP2 only"); err != nil {
			return o, err
		}
	}

	switch v.Quoting {
	case hints.QuotingMinimal:
		o.CSV = true
		if !v.DoubleQuote {
			if err := cant(hints.DoubleQuote, "CSV format doubles quotes"); err != nil {
				return o, err
			}
		}
		if v.Escape != "" {
			if err := cant(hints.Escape, "CSV format has no escape character"); err != nil {
				return o, err
			}
		}
	case hints.QuotingAll:
		o.AddQuotes = true
		o.Escape = true
		if v.Escape != `\` {
			if err := cant(hints.Escape, "ADDQUOTES escapes quotes with a backslash"); err != nil {
				return o, err
			}
		}
		if v.DoubleQuote {
			if err := cant(hints.DoubleQuote, "ADDQUOTES does not double quotes"); err != nil {
				return o, err
			}
		}
	case hints.QuotingNonNumeric:
		if err := cant(hints.Quoting, "UNLOAD quotes all fields or none"); err != nil {
			return o, err
		}
	default:
		o.Escape = v.Escape == `\`
		if v.DoubleQuote {
			if err := cant(hints.DoubleQuote, "only CSV format doubles quotes"); err != nil {
				return o, err
			}
		}
	}
	if v.Quoting != hints.QuotingNone && v.QuoteChar != `"` {
		if err := cant(hints.QuoteChar, "UNLOAD quotes with double quotes"); err != nil {
			return o, err
		}
	}

	checks := []struct {
		name    hints.Name
		value   string
		allowed []string
	}{
		{hints.DateFormat, v.DateFormat, db.ISODate},
		{hints.DateTimeFormat, v.DateTimeFormat, db.ISODateTime},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ, db.ISODateTimeTZ},
	}
	for _, c := range checks {
		if !db.OneOf(c.value, c.allowed) {
			if err := p.CantHandle(c.name, c.value, "UNLOAD writes ISO dates and timestamps"); err != nil {
				return o, err
			}
		}
	}
	return o, nil
}

// SQL renders the parameters in UNLOAD clause order.
func (o UnloadOptions) SQL() string {
	if o.Parquet {
		return "FORMAT AS PARQUET"
	}
	var parts []string
	if o.CSV {
		parts = append(parts, "FORMAT AS CSV")
	}
	parts = append(parts, "DELIMITER AS "+Literal(o.Delimiter))
	if o.AddQuotes {
		parts = append(parts, "ADDQUOTES")
	}
	if o.Escape {
		parts = append(parts, "ESCAPE")
	}
	if o.Compression != "" {
		parts = append(parts, o.Compression)
	}
	if o.Header {
		parts = append(parts, "HEADER")
	}
	return strings.Join(parts, " ")
}

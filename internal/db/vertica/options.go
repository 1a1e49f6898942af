package vertica

import (
	"strconv"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// CopyOptions are the parser options of a COPY FROM STDIN.
type CopyOptions struct {
	Compression      string
	Delimiter        string
	RecordTerminator string
	// EnclosedBy is empty when fields are never enclosed.
	EnclosedBy string
	// EscapeAs is empty for NO ESCAPE.
	EscapeAs string
	Skip     int
	// RejectMax < 0 means unset.
	RejectMax    int64
	AbortOnError bool
}

// ExportOptions are the parameters of EXPORT TO DELIMITED.
type ExportOptions struct {
	Delimiter        string
	RecordTerminator string
	EnclosedBy       string
	EscapeAs         string
	AddHeader        bool
	Compression      string
}

var compressions = map[hints.CompressionType]string{
	hints.GZIP: "GZIP",
	hints.BZIP: "BZIP",
	hints.LZO:  "LZO",
}

var (
	dateTimeFormats   = []string{"YYYY-MM-DD HH24:MI:SS", "YYYY-MM-DD HH:MI:SS"}
	dateTimeTZFormats = []string{"YYYY-MM-DD HH24:MI:SSOF", "YYYY-MM-DD HH:MI:SSOF"}
)

// checkDates rejects anything but ISO formats. HH and HH24 both mean a
// 24-hour clock in the hint model, so both spellings are accepted.
func checkDates(v hints.Validated, p hints.Policy) error {
	checks := []struct {
		name    hints.Name
		value   string
		allowed []string
	}{
		{hints.DateFormat, v.DateFormat, db.ISODate},
		{hints.TimeOnlyFormat, v.TimeOnlyFormat, db.ISOTime},
		{hints.DateTimeFormat, v.DateTimeFormat, dateTimeFormats},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ, dateTimeTZFormats},
	}
	for _, c := range checks {
		if !db.OneOf(c.value, c.allowed) {
			if err := p.CantHandle(c.name, c.value, "Vertica reads and writes ISO dates and times"); err != nil {
				return err
			}
		}
	}
	return nil
}

func handleAll(u hints.Unhandled) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding,
		hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)
}

// LoadOptions translates hints into COPY options. pi supplies the
// rejected-row policy.
func LoadOptions(v hints.Validated, u hints.Unhandled, p hints.Policy, pi records.ProcessingInstructions) (CopyOptions, error) {
	handleAll(u)
	o := CopyOptions{
		Compression:      compressions[v.Compression],
		Delimiter:        v.FieldDelimiter,
		RecordTerminator: v.RecordTerminator,
		EscapeAs:         v.Escape,
		RejectMax:        -1,
	}
	if v.Encoding != hints.UTF8 {
		if err := p.CantHandle(hints.Encoding, string(v.Encoding), "COPY reads UTF-8 only"); err != nil {
			return o, err
		}
	}
	if v.RecordTerminator == "" {
		if err := p.CantHandle(hints.RecordTerminator, nil, "COPY needs a record terminator"); err != nil {
			return o, err
		}
		o.RecordTerminator = "\n"
	}
	if v.Quoting != hints.QuotingNone {
		o.EnclosedBy = v.QuoteChar
	}
	if v.DoubleQuote {
		if err := p.CantHandle(hints.DoubleQuote, true, "COPY reads escaped quotes, not doubled ones"); err != nil {
			return o, err
		}
	}
	if v.HeaderRow {
		o.Skip = 1
	}
	if err := checkDates(v, p); err != nil {
		return o, err
	}

	switch {
	case pi.MaxFailureRows != nil:
		o.RejectMax = *pi.MaxFailureRows
	case pi.FailIfRowInvalid:
		o.AbortOnError = true
	}
	return o, nil
}

// ExportOptionsFor translates hints into EXPORT TO DELIMITED parameters.
func ExportOptionsFor(v hints.Validated, u hints.Unhandled, p hints.Policy) (ExportOptions, error) {
	handleAll(u)
	o := ExportOptions{
		Delimiter:        v.FieldDelimiter,
		RecordTerminator: v.RecordTerminator,
		EscapeAs:         v.Escape,
		AddHeader:        v.HeaderRow,
		Compression:      "Uncompressed",
	}
	cant := func(name hints.Name, reason string) error {
		return p.CantHandle(name, v.Value(name), reason)
	}
	if v.Encoding != hints.UTF8 {
		if err := cant(hints.Encoding, "EXPORT writes UTF-8"); err != nil {
			return o, err
		}
	}
	switch v.Compression {
	case hints.CompressionNone:
	case hints.GZIP:
		o.Compression = "GZip"
	case hints.BZIP:
		o.Compression = "BZip"
	default:
		if err := cant(hints.Compression, "EXPORT compresses with GZip or BZip only"); err != nil {
			return o, err
		}
	}
	if v.RecordTerminator == "" {
		if err := cant(hints.RecordTerminator, "EXPORT needs a record terminator"); err != nil {
			return o, err
		}
		o.RecordTerminator = "\n"
	}
	switch v.Quoting {
	case hints.QuotingNone:
	case hints.QuotingNonNumeric:
		o.EnclosedBy = v.QuoteChar
	default:
		if err := cant(hints.Quoting, "EXPORT encloses string and date values only"); err != nil {
			return o, err
		}
		o.EnclosedBy = v.QuoteChar
	}
	if v.DoubleQuote {
		if err := cant(hints.DoubleQuote, "EXPORT escapes quotes instead of doubling them"); err != nil {
			return o, err
		}
	}
	return o, checkDates(v, p)
}

// Literal renders s as a Vertica string, using escape string syntax for control
// characters and backslashes.
func Literal(s string) string {
	plain := true
	for _, r := range s {
		if r < 0x20 || r == '\\' || r == 0x7f {
			plain = false
			break
		}
	}
	if plain {
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
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatInt(int64(r)>>4, 16))
			b.WriteString(strconv.FormatInt(int64(r)&0xf, 16))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("'")
	return b.String()
}

// CopySQL renders COPY ... FROM STDIN for table.
func CopySQL(table string, o CopyOptions) string {
	parts := []string{"COPY " + table + " FROM STDIN"}
	if o.Compression != "" {
		parts = append(parts, o.Compression)
	}
	parts = append(parts,
		"DELIMITER "+Literal(o.Delimiter),
		"RECORD TERMINATOR "+Literal(o.RecordTerminator),
	)
	if o.EnclosedBy != "" {
		parts = append(parts, "ENCLOSED BY "+Literal(o.EnclosedBy))
	}
	if o.EscapeAs != "" {
		parts = append(parts, "ESCAPE AS "+Literal(o.EscapeAs))
	} else {
		parts = append(parts, "NO ESCAPE")
	}
	if o.Skip > 0 {
		parts = append(parts, "SKIP "+strconv.Itoa(o.Skip))
	}
	if o.RejectMax >= 0 {
		parts = append(parts, "REJECTMAX "+strconv.FormatInt(o.RejectMax, 10))
	}
	if o.AbortOnError {
		parts = append(parts, "ABORT ON ERROR")
	}
	return strings.Join(parts, " ")
}

// ExportSQL renders EXPORT TO DELIMITED of a whole table into dirURL.
func ExportSQL(table, dirURL string, o ExportOptions) string {
	params := []string{
		"directory=" + Literal(dirURL),
		"delimiter=" + Literal(o.Delimiter),
		"recordTerminator=" + Literal(o.RecordTerminator),
	}
	if o.EnclosedBy != "" {
		params = append(params, "enclosedBy="+Literal(o.EnclosedBy))
	}
	if o.EscapeAs != "" {
		params = append(params, "escapeAs="+Literal(o.EscapeAs))
	}
	params = append(params,
		"addHeader="+strconv.FormatBool(o.AddHeader),
		"compression="+Literal(o.Compression),
	)
	return "EXPORT TO DELIMITED (" + strings.Join(params, ", ") + ") OVER (PARTITION BEST) AS SELECT * FROM " + table
}

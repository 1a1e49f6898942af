package mysql

import (
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// LoadOptions are the clauses of one LOAD DATA statement.
type LoadOptions struct {
	CharacterSet       string
	FieldsTerminatedBy string
	// EnclosedBy is empty when fields are never enclosed.
	EnclosedBy         string
	OptionallyEnclosed bool
	EscapedBy          string
	LinesTerminatedBy  string
	IgnoreLines        int
}

var charsets = map[hints.EncodingType]string{
	hints.UTF8:    "utf8",
	hints.UTF16:   "utf16",
	hints.UTF16LE: "utf16le",
	hints.UTF16BE: "utf16",
	hints.LATIN1:  "latin1",
	hints.CP1252:  "latin1",
}

// naiveDateTime lists timestamp formats MySQL parses. It has no notion of
// an offset, so tz-aware values must be written in UTC without one.
var naiveDateTime = []string{"YYYY-MM-DD HH24:MI:SS", "YYYY-MM-DD HH:MI:SS"}

// Translate turns hints into LOAD DATA clauses.
func Translate(v hints.Validated, u hints.Unhandled, p hints.Policy) (LoadOptions, error) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding,
		hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)

	o := LoadOptions{FieldsTerminatedBy: v.FieldDelimiter, EscapedBy: v.Escape}

	cs, ok := charsets[v.Encoding]
	if !ok {
		if err := p.CantHandle(hints.Encoding, string(v.Encoding), "no matching MySQL character set"); err != nil {
			return o, err
		}
		cs = "utf8"
	}
	o.CharacterSet = cs

	if v.Compression != hints.CompressionNone {
		if err := p.CantHandle(hints.Compression, string(v.Compression), "LOAD DATA reads uncompressed files only"); err != nil {
			return o, err
		}
	}

	switch v.Quoting {
	case hints.QuotingAll:
		o.EnclosedBy = v.QuoteChar
	case hints.QuotingMinimal, hints.QuotingNonNumeric:
		o.EnclosedBy = v.QuoteChar
		o.OptionallyEnclosed = true
	}
	if v.Quoting != hints.QuotingNone && !v.DoubleQuote {
		if err := p.CantHandle(hints.DoubleQuote, false, "enclosed fields must double the enclosure character"); err != nil {
			return o, err
		}
	}

	o.LinesTerminatedBy = v.RecordTerminator
	if v.RecordTerminator == "" {
		if err := p.CantHandle(hints.RecordTerminator, nil, "LOAD DATA needs a line terminator"); err != nil {
			return o, err
		}
		o.LinesTerminatedBy = "\n"
	}
	if v.HeaderRow {
		o.IgnoreLines = 1
	}

	checks := []struct {
		name    hints.Name
		value   string
		allowed []string
	}{
		{hints.DateFormat, v.DateFormat, db.ISODate},
		{hints.TimeOnlyFormat, v.TimeOnlyFormat, db.ISOTime},
		{hints.DateTimeFormat, v.DateTimeFormat, naiveDateTime},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ, naiveDateTime},
	}
	for _, c := range checks {
		if !db.OneOf(c.value, c.allowed) {
			if err := p.CantHandle(c.name, c.value, "MySQL reads ISO dates and times without offsets"); err != nil {
				return o, err
			}
		}
	}
	return o, nil
}

// Literal renders s as a MySQL string literal. Backslashes are doubled,
// which is how Windows paths survive as LOAD DATA file names.
func Literal(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// LoadSQL renders LOAD DATA LOCAL INFILE for filename into table.
func LoadSQL(filename, table string, o LoadOptions) string {
	var b strings.Builder
	b.WriteString("LOAD DATA LOCAL INFILE ")
	b.WriteString(Literal(filename))
	b.WriteString(" INTO TABLE ")
	b.WriteString(table)
	b.WriteString(" CHARACTER SET ")
	b.WriteString(o.CharacterSet)
	b.WriteString(" FIELDS TERMINATED BY ")
	b.WriteString(Literal(o.FieldsTerminatedBy))
	if o.OptionallyEnclosed {
		b.WriteString(" OPTIONALLY")
	}
	b.WriteString(" ENCLOSED BY ")
	b.WriteString(Literal(o.EnclosedBy))
	b.WriteString(" ESCAPED BY ")
	b.WriteString(Literal(o.EscapedBy))
	b.WriteString(" LINES TERMINATED BY ")
	b.WriteString(Literal(o.LinesTerminatedBy))
	if o.IgnoreLines > 0 {
		b.WriteString(" IGNORE 1 LINES")
	}
	return b.String()
}

package hints

import (
	"fmt"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// Typed literal values of a Validated hint set. The empty string means none.
type (
	CompressionType string
	QuotingType     string
	EncodingType    string
)

const (
	CompressionNone CompressionType = ""
	GZIP            CompressionType = "GZIP"
	BZIP            CompressionType = "BZIP"
	LZO             CompressionType = "LZO"

	QuotingNone       QuotingType = ""
	QuotingMinimal    QuotingType = "minimal"
	QuotingAll        QuotingType = "all"
	QuotingNonNumeric QuotingType = "nonnumeric"

	UTF8     EncodingType = "UTF8"
	UTF16    EncodingType = "UTF16"
	UTF16LE  EncodingType = "UTF16LE"
	UTF16BE  EncodingType = "UTF16BE"
	UTF8BOM  EncodingType = "UTF8BOM"
	UTF16BOM EncodingType = "UTF16BOM"
	LATIN1   EncodingType = "LATIN1"
	CP1252   EncodingType = "CP1252"
)

// Validated is a complete, type-checked hint set.
type Validated struct {
	HeaderRow        bool
	FieldDelimiter   string
	RecordTerminator string
	Compression      CompressionType
	Quoting          QuotingType
	QuoteChar        string
	DoubleQuote      bool
	Escape           string
	Encoding         EncodingType
	DateFormat       string
	TimeOnlyFormat   string
	DateTimeFormat   string
	DateTimeFormatTZ string
}

// Value returns the raw value of name, nil for none.
func (v Validated) Value(name Name) any {
	str := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}
	switch name {
	case HeaderRow:
		return v.HeaderRow
	case FieldDelimiter:
		return v.FieldDelimiter
	case RecordTerminator:
		return str(v.RecordTerminator)
	case Compression:
		return str(string(v.Compression))
	case Quoting:
		return str(string(v.Quoting))
	case QuoteChar:
		return v.QuoteChar
	case DoubleQuote:
		return v.DoubleQuote
	case Escape:
		return str(v.Escape)
	case Encoding:
		return string(v.Encoding)
	case DateFormat:
		return str(v.DateFormat)
	case TimeOnlyFormat:
		return str(v.TimeOnlyFormat)
	case DateTimeFormat:
		return str(v.DateTimeFormat)
	case DateTimeFormatTZ:
		return str(v.DateTimeFormatTZ)
	}
	return nil
}

// Set returns v as a raw Set holding every recognized hint.
func (v Validated) Set() Set {
	out := make(Set, len(definitions))
	for _, d := range definitions {
		out[d.Name] = v.Value(d.Name)
	}
	return out
}

// EqualOn reports whether a and b agree on every listed hint.
func EqualOn(a, b Validated, names []Name) bool {
	for _, n := range names {
		if !sameValue(a.Value(n), b.Value(n)) {
			return false
		}
	}
	return true
}

// CheckUnderstood reports every unrecognized name in s through p.
func CheckUnderstood(s Set, p Policy) error {
	for _, n := range s.Unknown() {
		if err := p.CantHandle(n, s[n], "hint name not recognized"); err != nil {
			return err
		}
	}
	return nil
}

// Validate type-checks s and fills in defaults for missing hints.
//
// Illegal values are reported through p. When p lets the caller continue,
// the hint's default is substituted. Unrecognized names are skipped; use
// CheckUnderstood to report them.
//
// Errors:
//   - whatever p returns for an illegal value
//   - ConfigError when hints contradict each other (a delimiter equal to the
//     quote or escape character), regardless of p
func Validate(s Set, p Policy) (Validated, error) {
	merged := Defaults()
	for _, d := range definitions {
		raw, ok := s[d.Name]
		if !ok {
			continue
		}
		if !d.Accepts(raw) {
			if err := p.CantHandle(d.Name, raw, "value not recognized"); err != nil {
				return Validated{}, err
			}
			continue
		}
		merged[d.Name] = raw
	}

	asString := func(n Name) string {
		if s, ok := merged[n].(string); ok {
			return s
		}
		return ""
	}
	v := Validated{
		HeaderRow:        merged[HeaderRow] == true,
		FieldDelimiter:   asString(FieldDelimiter),
		RecordTerminator: asString(RecordTerminator),
		Compression:      CompressionType(asString(Compression)),
		Quoting:          QuotingType(asString(Quoting)),
		QuoteChar:        asString(QuoteChar),
		DoubleQuote:      merged[DoubleQuote] == true,
		Escape:           asString(Escape),
		Encoding:         EncodingType(asString(Encoding)),
		DateFormat:       asString(DateFormat),
		TimeOnlyFormat:   asString(TimeOnlyFormat),
		DateTimeFormat:   asString(DateTimeFormat),
		DateTimeFormatTZ: asString(DateTimeFormatTZ),
	}

	if v.Quoting != QuotingNone && v.FieldDelimiter == v.QuoteChar {
		return Validated{}, contradiction(FieldDelimiter, QuoteChar, v.FieldDelimiter)
	}
	if v.Escape != "" && v.FieldDelimiter == v.Escape {
		return Validated{}, contradiction(FieldDelimiter, Escape, v.FieldDelimiter)
	}
	return v, nil
}

func contradiction(a, b Name, value string) error {
	return errors.WithStack(&errors.ConfigError{
		Option: string(a),
		Reason: fmt.Sprintf("%s and %s are both %q", a, b, value),
	})
}

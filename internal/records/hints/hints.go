// Package hints defines the closed vocabulary that describes how a delimited
// file is encoded: delimiters, quoting, escaping, compression, character set
// and date/time layouts.
//
// A hint Set is the raw, possibly incomplete mapping read from a
// _format_delimited file, a CLI flag or a sniffer. Validate turns a Set into a
// Validated value where every hint is present and type-checked. Values that
// mean "none" are stored as nil in a Set (JSON null) and as the zero value in
// a Validated.
package hints

import (
	"reflect"
	"sort"
	"unicode/utf8"
)

// Name is the canonical name of a hint.
type Name string

const (
	HeaderRow        Name = "header-row"
	FieldDelimiter   Name = "field-delimiter"
	RecordTerminator Name = "record-terminator"
	Compression      Name = "compression"
	Quoting          Name = "quoting"
	QuoteChar        Name = "quotechar"
	DoubleQuote      Name = "doublequote"
	Escape           Name = "escape"
	Encoding         Name = "encoding"
	DateFormat       Name = "dateformat"
	TimeOnlyFormat   Name = "timeonlyformat"
	DateTimeFormat   Name = "datetimeformat"
	DateTimeFormatTZ Name = "datetimeformattz"
)

// Kind separates hints with an enumerated value set from free strings.
type Kind int

const (
	KindLiteral Kind = iota
	KindString
)

// Definition describes one recognized hint.
type Definition struct {
	Name    Name
	Kind    Kind
	Default any
	// Values lists legal literal values. nil is legal only when listed.
	Values []any
	// Nullable allows nil for string hints.
	Nullable bool
	// MaxRunes bounds string hints; 0 means unbounded.
	MaxRunes int
}

// Accepts reports whether v is a legal value for the hint.
func (d Definition) Accepts(v any) bool {
	switch d.Kind {
	case KindLiteral:
		for _, allowed := range d.Values {
			if sameValue(allowed, v) {
				return true
			}
		}
		return false
	default:
		if v == nil {
			return d.Nullable
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return false
		}
		return d.MaxRunes == 0 || utf8.RuneCountInString(s) <= d.MaxRunes
	}
}

// Literal value sets. nil stands for "none".
var (
	CompressionValues = []any{nil, "GZIP", "BZIP", "LZO"}
	QuotingValues     = []any{nil, "minimal", "all", "nonnumeric"}
	EscapeValues      = []any{nil, `\`}
	EncodingValues    = []any{"UTF8", "UTF16", "UTF16LE", "UTF16BE", "UTF8BOM", "UTF16BOM", "LATIN1", "CP1252"}

	DateFormatValues = []any{
		nil, "YYYY-MM-DD", "MM-DD-YYYY", "DD-MM-YYYY", "MM/DD/YY", "DD/MM/YY", "DD-MM-YY",
	}
	TimeOnlyFormatValues = []any{nil, "HH12:MI AM", "HH:MI:SS", "HH24:MI:SS"}
	DateTimeFormatValues = []any{
		nil,
		"YYYY-MM-DD HH24:MI:SS",
		"YYYY-MM-DD HH:MI:SS",
		"YYYY-MM-DD HH12:MI AM",
		"MM/DD/YY HH24:MI",
		"MM-DD-YYYY HH24:MI:SS",
		"DD-MM-YYYY HH24:MI:SS",
		"DD/MM/YY HH24:MI",
		"DD-MM-YY HH24:MI",
	}
	DateTimeFormatTZValues = []any{
		nil,
		"YYYY-MM-DD HH:MI:SSOF",
		"YYYY-MM-DD HH24:MI:SSOF",
		"YYYY-MM-DD HH:MI:SS",
		"YYYY-MM-DD HH24:MI:SS",
		"MM/DD/YY HH24:MI",
		"MM-DD-YYYY HH24:MI:SSOF",
		"DD-MM-YYYY HH24:MI:SSOF",
		"DD/MM/YY HH24:MI",
	}
)

var definitions = []Definition{
	{Name: HeaderRow, Kind: KindLiteral, Default: true, Values: []any{true, false}},
	{Name: FieldDelimiter, Kind: KindString, Default: ",", MaxRunes: 1},
	{Name: RecordTerminator, Kind: KindString, Default: "\n", Nullable: true},
	{Name: Compression, Kind: KindLiteral, Default: nil, Values: CompressionValues},
	{Name: Quoting, Kind: KindLiteral, Default: "minimal", Values: QuotingValues},
	{Name: QuoteChar, Kind: KindString, Default: `"`, MaxRunes: 1},
	{Name: DoubleQuote, Kind: KindLiteral, Default: false, Values: []any{true, false}},
	{Name: Escape, Kind: KindLiteral, Default: `\`, Values: EscapeValues},
	{Name: Encoding, Kind: KindLiteral, Default: "UTF8", Values: EncodingValues},
	{Name: DateFormat, Kind: KindLiteral, Default: "YYYY-MM-DD", Values: DateFormatValues},
	{Name: TimeOnlyFormat, Kind: KindLiteral, Default: "HH24:MI:SS", Values: TimeOnlyFormatValues},
	{Name: DateTimeFormat, Kind: KindLiteral, Default: "YYYY-MM-DD HH24:MI:SS", Values: DateTimeFormatValues},
	{Name: DateTimeFormatTZ, Kind: KindLiteral, Default: "YYYY-MM-DD HH:MI:SSOF", Values: DateTimeFormatTZValues},
}

var byName = func() map[Name]Definition {
	m := make(map[Name]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Name] = d
	}
	return m
}()

// Definitions returns every recognized hint in table order.
func Definitions() []Definition {
	return append([]Definition(nil), definitions...)
}

// Lookup returns the definition for name.
func Lookup(name Name) (Definition, bool) {
	d, ok := byName[name]
	return d, ok
}

// Names returns all recognized hint names, sorted.
func Names() []Name {
	out := make([]Name, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d.Name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set is a bootstrapping hint mapping. Missing names are "not yet known".
type Set map[Name]any

// Clone returns a shallow copy of s. A nil Set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Has reports whether name is present, including when its value is nil.
func (s Set) Has(name Name) bool {
	_, ok := s[name]
	return ok
}

// Unknown returns the names in s that are not recognized hints, sorted.
func (s Set) Unknown() []Name {
	var out []Name
	for k := range s {
		if _, ok := byName[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge returns base overridden key-wise by override. Neither input is
// modified.
func Merge(base, override Set) Set {
	out := base.Clone()
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Equal reports whether a and b hold the same names and values.
func Equal(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !sameValue(v, w) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

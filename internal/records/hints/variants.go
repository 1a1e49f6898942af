package hints

import (
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// Variant names a preset hint set identifying a common CSV dialect.
type Variant string

const (
	Bluelabs Variant = "bluelabs"
	CSV      Variant = "csv"
	BigQuery Variant = "bigquery"
	Vertica  Variant = "vertica"
)

var variantDefaults = map[Variant]Set{
	Bluelabs: {
		FieldDelimiter:   ",",
		RecordTerminator: "\n",
		Compression:      "GZIP",
		Quoting:          nil,
		QuoteChar:        `"`,
		DoubleQuote:      false,
		Escape:           `\`,
		Encoding:         "UTF8",
		DateFormat:       "YYYY-MM-DD",
		TimeOnlyFormat:   "HH24:MI:SS",
		DateTimeFormat:   "YYYY-MM-DD HH24:MI:SS",
		DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SSOF",
		HeaderRow:        false,
	},
	CSV: {
		FieldDelimiter:   ",",
		RecordTerminator: "\n",
		Compression:      "GZIP",
		Quoting:          "minimal",
		QuoteChar:        `"`,
		DoubleQuote:      true,
		Escape:           nil,
		Encoding:         "UTF8",
		DateFormat:       "MM/DD/YY",
		TimeOnlyFormat:   "HH24:MI:SS",
		DateTimeFormat:   "MM/DD/YY HH24:MI",
		DateTimeFormatTZ: "MM/DD/YY HH24:MI",
		HeaderRow:        true,
	},
	BigQuery: {
		FieldDelimiter:   ",",
		RecordTerminator: "\n",
		Compression:      "GZIP",
		Quoting:          "minimal",
		QuoteChar:        `"`,
		DoubleQuote:      true,
		Escape:           nil,
		Encoding:         "UTF8",
		DateFormat:       "YYYY-MM-DD",
		TimeOnlyFormat:   "HH24:MI:SS",
		DateTimeFormat:   "YYYY-MM-DD HH24:MI:SS",
		DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SSOF",
		HeaderRow:        true,
	},
	Vertica: {
		FieldDelimiter:   "\001",
		RecordTerminator: "\002",
		Compression:      nil,
		Quoting:          nil,
		QuoteChar:        `"`,
		DoubleQuote:      false,
		Escape:           nil,
		Encoding:         "UTF8",
		DateFormat:       "YYYY-MM-DD",
		TimeOnlyFormat:   "HH24:MI:SS",
		DateTimeFormat:   "YYYY-MM-DD HH:MI:SS",
		DateTimeFormatTZ: "YYYY-MM-DD HH:MI:SSOF",
		HeaderRow:        false,
	},
}

// Variants returns the recognized variants in a stable order.
func Variants() []Variant {
	return []Variant{Bluelabs, CSV, BigQuery, Vertica}
}

// ApplyVariant returns a fresh Set holding the preset for v.
func ApplyVariant(v Variant) (Set, error) {
	preset, ok := variantDefaults[v]
	if !ok {
		return nil, errors.WithStack(&errors.ConfigError{
			Option: "variant",
			Reason: "unknown variant " + string(v),
		})
	}
	return preset.Clone(), nil
}

// Defaults returns the hint-level defaults used when no variant applies.
func Defaults() Set {
	out := make(Set, len(definitions))
	for _, d := range definitions {
		out[d.Name] = d.Default
	}
	return out
}

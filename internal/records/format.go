// Package records holds the types shared by every part of a move: the
// records Format, the processing instructions that govern strictness, and
// the result of a move.
package records

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// FormatType is the kind of data file a records directory holds.
type FormatType string

const (
	Delimited FormatType = "delimited"
	Parquet   FormatType = "parquet"
	Avro      FormatType = "avro"
)

// Format describes how data files are encoded. Only delimited formats carry
// a variant and hints; Hints holds overrides on top of the variant preset.
type Format struct {
	Type    FormatType
	Variant hints.Variant
	Hints   hints.Set
}

// DelimitedFormat returns a delimited format for variant with overrides.
func DelimitedFormat(variant hints.Variant, overrides hints.Set) Format {
	return Format{Type: Delimited, Variant: variant, Hints: overrides.Clone()}
}

// ParquetFormat returns the parquet format.
func ParquetFormat() Format {
	return Format{Type: Parquet}
}

// IsDelimited reports whether f has hint semantics.
func (f Format) IsDelimited() bool { return f.Type == Delimited }

// WithHints returns a copy of f whose overrides are merged with over.
func (f Format) WithHints(over hints.Set) Format {
	out := f
	out.Hints = hints.Merge(f.Hints, over)
	return out
}

// EffectiveHints returns the variant preset merged with the overrides.
func (f Format) EffectiveHints() (hints.Set, error) {
	if !f.IsDelimited() {
		return nil, errors.Newf("%s format has no hints", f.Type)
	}
	variant := f.Variant
	if variant == "" {
		variant = hints.Bluelabs
	}
	base, err := hints.ApplyVariant(variant)
	if err != nil {
		return nil, err
	}
	return hints.Merge(base, f.Hints), nil
}

// Validate resolves f into a complete hint set under the policies of pi.
func (f Format) Validate(pi ProcessingInstructions) (hints.Validated, error) {
	if err := hints.CheckUnderstood(f.Hints, pi.DontUnderstandPolicy()); err != nil {
		return hints.Validated{}, err
	}
	eff, err := f.EffectiveHints()
	if err != nil {
		return hints.Validated{}, err
	}
	return hints.Validate(eff, pi.HintPolicy())
}

// Equal reports whether f and o describe the same format declaration.
func (f Format) Equal(o Format) bool {
	if f.Type != o.Type {
		return false
	}
	if !f.IsDelimited() {
		return true
	}
	return f.Variant == o.Variant && hints.Equal(f.Hints, o.Hints)
}

// Compatible reports whether bytes written in format f can be read unchanged
// by a consumer declaring format o. Delimited formats match when they share
// variant and overrides, or when their effective hints agree on every name in
// consumed.
func Compatible(f, o Format, consumed []hints.Name) bool {
	if f.Type != o.Type {
		return false
	}
	if !f.IsDelimited() {
		return true
	}
	if f.Variant == o.Variant && hints.Equal(f.Hints, o.Hints) {
		return true
	}
	if len(consumed) == 0 {
		return false
	}
	fs, err := f.EffectiveHints()
	if err != nil {
		return false
	}
	os, err := o.EffectiveHints()
	if err != nil {
		return false
	}
	fv, err := hints.Validate(fs, hints.StrictPolicy{})
	if err != nil {
		return false
	}
	ov, err := hints.Validate(os, hints.StrictPolicy{})
	if err != nil {
		return false
	}
	return hints.EqualOn(fv, ov, consumed)
}

// MetadataName is the file name holding the serialized format inside a
// records directory.
func (f Format) MetadataName() string {
	return "_format_" + string(f.Type)
}

// Extension returns the data-file suffix matching f, compression included.
func (f Format) Extension() string {
	switch f.Type {
	case Parquet:
		return ".parquet"
	case Avro:
		return ".avro"
	}
	eff, err := f.EffectiveHints()
	if err != nil {
		return ".csv"
	}
	switch eff[hints.Compression] {
	case "GZIP":
		return ".csv.gz"
	case "BZIP":
		return ".csv.bz2"
	case "LZO":
		return ".csv.lzo"
	}
	return ".csv"
}

// String renders f for logs, e.g. delimited/bluelabs{compression=null}.
func (f Format) String() string {
	if !f.IsDelimited() {
		return string(f.Type)
	}
	names := make([]string, 0, len(f.Hints))
	for k := range f.Hints {
		names = append(names, string(k))
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		v, _ := json.Marshal(f.Hints[hints.Name(n)])
		parts = append(parts, n+"="+string(v))
	}
	return fmt.Sprintf("%s/%s{%s}", f.Type, f.Variant, strings.Join(parts, ","))
}

type formatJSON struct {
	Type    FormatType      `json:"type"`
	Variant *hints.Variant  `json:"variant,omitempty"`
	Hints   *map[string]any `json:"hints,omitempty"`
}

// MarshalJSON writes the _format_<type> document.
func (f Format) MarshalJSON() ([]byte, error) {
	doc := formatJSON{Type: f.Type}
	if f.IsDelimited() {
		v := f.Variant
		if v == "" {
			v = hints.Bluelabs
		}
		h := make(map[string]any, len(f.Hints))
		for k, val := range f.Hints {
			h[string(k)] = val
		}
		doc.Variant = &v
		doc.Hints = &h
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a _format_<type> document. A delimited document
// without a variant defaults to bluelabs.
func (f *Format) UnmarshalJSON(b []byte) error {
	var doc formatJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.Wrap(err, "decode records format")
	}
	switch doc.Type {
	case Delimited, Parquet, Avro:
	default:
		return errors.WithStack(&errors.ConfigError{Option: "type", Reason: fmt.Sprintf("unknown records format type %q", doc.Type)})
	}
	out := Format{Type: doc.Type}
	if doc.Type == Delimited {
		out.Variant = hints.Bluelabs
		if doc.Variant != nil {
			out.Variant = *doc.Variant
		}
		out.Hints = hints.Set{}
		if doc.Hints != nil {
			for k, v := range *doc.Hints {
				out.Hints[hints.Name(k)] = v
			}
		}
	}
	*f = out
	return nil
}

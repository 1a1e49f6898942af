// Package schema describes the columns of a records set in a portable way.
//
// A Schema is an ordered list of Fields. Each Field has a logical type,
// optional constraints, optional statistics gathered from samples and
// optional per-system representations echoing where it came from. Schemas
// convert to and from the _schema.json document, database column types and
// Arrow dataframe types.
package schema

import (
	"fmt"
	"math/big"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// FieldType is a logical column type.
type FieldType string

const (
	Integer    FieldType = "integer"
	Decimal    FieldType = "decimal"
	String     FieldType = "string"
	Boolean    FieldType = "boolean"
	Date       FieldType = "date"
	Time       FieldType = "time"
	TimeTZ     FieldType = "timetz"
	DateTime   FieldType = "datetime"
	DateTimeTZ FieldType = "datetimetz"
)

// Known reports whether t is one of the recognized logical types.
func (t FieldType) Known() bool {
	switch t {
	case Integer, Decimal, String, Boolean, Date, Time, TimeTZ, DateTime, DateTimeTZ:
		return true
	}
	return false
}

// Constraints restrict the values of a field. Integer bounds apply only to
// integer fields, precision and float widths only to decimal fields, and
// lengths only to string fields.
type Constraints struct {
	Required bool
	Unique   *bool

	Min *big.Int
	Max *big.Int

	FixedPrecision    *int
	FixedScale        *int
	FPTotalBits       *int
	FPSignificandBits *int

	MaxLengthBytes *int
	MaxLengthChars *int
}

// Statistics are observations from a sample of the data.
type Statistics struct {
	RowsSampled    int64
	TotalRows      int64
	MaxLengthBytes *int
	MaxLengthChars *int
}

// Representation records how a field is expressed in another system, e.g.
// the SQL column DDL it was introspected from.
type Representation struct {
	Type      string `json:"rep_type"`
	ColDDL    string `json:"col_ddl,omitempty"`
	ArrowType string `json:"arrow_type,omitempty"`
}

// KnownRepresentation echoes the origin of the whole schema.
type KnownRepresentation struct {
	Type     string `json:"type"`
	TableDDL string `json:"table_ddl,omitempty"`
}

// Field is one column.
type Field struct {
	Name            string
	Type            FieldType
	Constraints     *Constraints
	Statistics      *Statistics
	Representations map[string]Representation
}

// Schema is an ordered list of fields plus known representations.
type Schema struct {
	Fields               []Field
	KnownRepresentations map[string]KnownRepresentation
}

// Required reports whether the field rejects nulls.
func (f Field) Required() bool {
	return f.Constraints != nil && f.Constraints.Required
}

// FieldNames returns the field names in order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Field returns the field called name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks name uniqueness and type/constraint consistency.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return errors.New("field with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return errors.Newf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := f.validateConstraints(); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) validateConstraints() error {
	c := f.Constraints
	if c == nil {
		return nil
	}
	bad := func(what string) error {
		return errors.Newf("field %q of type %s cannot carry %s constraints", f.Name, f.Type, what)
	}
	if (c.Min != nil || c.Max != nil) && f.Type != Integer {
		return bad("integer")
	}
	if (c.FixedPrecision != nil || c.FixedScale != nil || c.FPTotalBits != nil || c.FPSignificandBits != nil) && f.Type != Decimal {
		return bad("decimal")
	}
	if (c.MaxLengthBytes != nil || c.MaxLengthChars != nil) && f.Type != String {
		return bad("string")
	}
	if c.Min != nil && c.Max != nil && c.Min.Cmp(c.Max) > 0 {
		return errors.Newf("field %q: min %s exceeds max %s", f.Name, c.Min, c.Max)
	}
	if (c.FixedPrecision == nil) != (c.FixedScale == nil) {
		return errors.Newf("field %q: fixed precision and scale must be set together", f.Name)
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	out := &Schema{Fields: make([]Field, len(s.Fields))}
	for i, f := range s.Fields {
		out.Fields[i] = f.clone()
	}
	if s.KnownRepresentations != nil {
		out.KnownRepresentations = make(map[string]KnownRepresentation, len(s.KnownRepresentations))
		for k, v := range s.KnownRepresentations {
			out.KnownRepresentations[k] = v
		}
	}
	return out
}

func (f Field) clone() Field {
	out := f
	if f.Constraints != nil {
		c := *f.Constraints
		c.Unique = copyPtr(c.Unique)
		c.Min = copyBig(c.Min)
		c.Max = copyBig(c.Max)
		c.FixedPrecision = copyPtr(c.FixedPrecision)
		c.FixedScale = copyPtr(c.FixedScale)
		c.FPTotalBits = copyPtr(c.FPTotalBits)
		c.FPSignificandBits = copyPtr(c.FPSignificandBits)
		c.MaxLengthBytes = copyPtr(c.MaxLengthBytes)
		c.MaxLengthChars = copyPtr(c.MaxLengthChars)
		out.Constraints = &c
	}
	if f.Statistics != nil {
		st := *f.Statistics
		st.MaxLengthBytes = copyPtr(st.MaxLengthBytes)
		st.MaxLengthChars = copyPtr(st.MaxLengthChars)
		out.Statistics = &st
	}
	if f.Representations != nil {
		out.Representations = make(map[string]Representation, len(f.Representations))
		for k, v := range f.Representations {
			out.Representations[k] = v
		}
	}
	return out
}

// Equal compares schemas by value, ignoring map ordering and the internal
// layout of big integers.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Fields) != len(o.Fields) || len(s.KnownRepresentations) != len(o.KnownRepresentations) {
		return false
	}
	for k, v := range s.KnownRepresentations {
		if w, ok := o.KnownRepresentations[k]; !ok || w != v {
			return false
		}
	}
	for i := range s.Fields {
		if !s.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// Equal compares fields by value.
func (f Field) Equal(o Field) bool {
	if f.Name != o.Name || f.Type != o.Type {
		return false
	}
	if len(f.Representations) != len(o.Representations) {
		return false
	}
	for k, v := range f.Representations {
		if w, ok := o.Representations[k]; !ok || w != v {
			return false
		}
	}
	if (f.Constraints == nil) != (o.Constraints == nil) || (f.Statistics == nil) != (o.Statistics == nil) {
		return false
	}
	if f.Constraints != nil {
		a, b := f.Constraints, o.Constraints
		if a.Required != b.Required || !eqPtr(a.Unique, b.Unique) ||
			!eqBig(a.Min, b.Min) || !eqBig(a.Max, b.Max) ||
			!eqPtr(a.FixedPrecision, b.FixedPrecision) || !eqPtr(a.FixedScale, b.FixedScale) ||
			!eqPtr(a.FPTotalBits, b.FPTotalBits) || !eqPtr(a.FPSignificandBits, b.FPSignificandBits) ||
			!eqPtr(a.MaxLengthBytes, b.MaxLengthBytes) || !eqPtr(a.MaxLengthChars, b.MaxLengthChars) {
			return false
		}
	}
	if f.Statistics != nil {
		a, b := f.Statistics, o.Statistics
		if a.RowsSampled != b.RowsSampled || a.TotalRows != b.TotalRows ||
			!eqPtr(a.MaxLengthBytes, b.MaxLengthBytes) || !eqPtr(a.MaxLengthChars, b.MaxLengthChars) {
			return false
		}
	}
	return true
}

func (f Field) String() string {
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqBig(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// IntRange returns the value range of a two's-complement or unsigned
// integer of the given width.
func IntRange(bits int, signed bool) (min, max *big.Int) {
	one := big.NewInt(1)
	if signed {
		half := new(big.Int).Lsh(one, uint(bits-1))
		return new(big.Int).Neg(half), new(big.Int).Sub(half, one)
	}
	return big.NewInt(0), new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
}

// Covers reports whether [min, max] of a type contains [lo, hi]. A nil lo or
// hi is unbounded and only covered by the widest type, which callers handle.
func Covers(typeMin, typeMax, lo, hi *big.Int) bool {
	if lo == nil || hi == nil {
		return false
	}
	return typeMin.Cmp(lo) <= 0 && typeMax.Cmp(hi) >= 0
}

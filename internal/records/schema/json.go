package schema

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// Version is the only schema document version understood.
const Version = "bltypes/v1"

type document struct {
	Schema               string                         `json:"schema"`
	Fields               map[string]fieldDoc            `json:"fields"`
	KnownRepresentations map[string]KnownRepresentation `json:"known_representations"`
}

type fieldDoc struct {
	Type            FieldType                 `json:"type"`
	Constraints     *constraintsDoc           `json:"constraints,omitempty"`
	Statistics      *statisticsDoc            `json:"statistics,omitempty"`
	Representations map[string]Representation `json:"representations,omitempty"`
	Index           int                       `json:"index"`
}

type constraintsDoc struct {
	Required          bool            `json:"required"`
	Unique            *bool           `json:"unique,omitempty"`
	Min               json.RawMessage `json:"min,omitempty"`
	Max               json.RawMessage `json:"max,omitempty"`
	FixedPrecision    *int            `json:"fixed_precision,omitempty"`
	FixedScale        *int            `json:"fixed_scale,omitempty"`
	FPTotalBits       *int            `json:"fp_total_bits,omitempty"`
	FPSignificandBits *int            `json:"fp_significand_bits,omitempty"`
	MaxLengthBytes    *int            `json:"max_length_bytes,omitempty"`
	MaxLengthChars    *int            `json:"max_length_chars,omitempty"`
}

type statisticsDoc struct {
	RowsSampled    int64 `json:"rows_sampled"`
	TotalRows      int64 `json:"total_rows"`
	MaxLengthBytes *int  `json:"max_length_bytes,omitempty"`
	MaxLengthChars *int  `json:"max_length_chars,omitempty"`
}

// ToJSON serializes s as a bltypes/v1 document. Field indexes follow
// declaration order starting at 1; object keys are emitted sorted.
func ToJSON(s *Schema) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	doc := document{
		Schema:               Version,
		Fields:               make(map[string]fieldDoc, len(s.Fields)),
		KnownRepresentations: s.KnownRepresentations,
	}
	if doc.KnownRepresentations == nil {
		doc.KnownRepresentations = map[string]KnownRepresentation{}
	}
	for i, f := range s.Fields {
		fd := fieldDoc{Type: f.Type, Index: i + 1, Representations: f.Representations}
		if c := f.Constraints; c != nil {
			fd.Constraints = &constraintsDoc{
				Required:          c.Required,
				Unique:            c.Unique,
				Min:               bigToRaw(c.Min),
				Max:               bigToRaw(c.Max),
				FixedPrecision:    c.FixedPrecision,
				FixedScale:        c.FixedScale,
				FPTotalBits:       c.FPTotalBits,
				FPSignificandBits: c.FPSignificandBits,
				MaxLengthBytes:    c.MaxLengthBytes,
				MaxLengthChars:    c.MaxLengthChars,
			}
		}
		if st := f.Statistics; st != nil {
			fd.Statistics = &statisticsDoc{
				RowsSampled:    st.RowsSampled,
				TotalRows:      st.TotalRows,
				MaxLengthBytes: st.MaxLengthBytes,
				MaxLengthChars: st.MaxLengthChars,
			}
		}
		doc.Fields[f.Name] = fd
	}
	return json.Marshal(doc)
}

// FromJSON parses a schema document.
//
// Errors:
//   - UnsupportedSchemaError when the version tag is not bltypes/v1
//   - a plain error for malformed JSON, duplicate or missing indexes, or
//     inconsistent constraints
//
// Unknown field types are kept as-is and logged; SQL and dataframe mappings
// treat them as strings.
func FromJSON(b []byte) (*Schema, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode records schema")
	}
	if doc.Schema != Version {
		return nil, errors.WithStack(&errors.UnsupportedSchemaError{Version: doc.Schema})
	}

	type indexed struct {
		name string
		doc  fieldDoc
	}
	all := make([]indexed, 0, len(doc.Fields))
	for name, fd := range doc.Fields {
		all = append(all, indexed{name: name, doc: fd})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].doc.Index != all[j].doc.Index {
			return all[i].doc.Index < all[j].doc.Index
		}
		return all[i].name < all[j].name
	})

	s := &Schema{Fields: make([]Field, 0, len(all))}
	for i, it := range all {
		if it.doc.Index != i+1 {
			return nil, errors.Newf("field %q has index %d, expected %d", it.name, it.doc.Index, i+1)
		}
		if !it.doc.Type.Known() {
			logging.Logger.Warnw("unknown field type in records schema", "field", it.name, "type", it.doc.Type)
		}
		f := Field{Name: it.name, Type: it.doc.Type}
		if len(it.doc.Representations) > 0 {
			f.Representations = it.doc.Representations
		}
		if cd := it.doc.Constraints; cd != nil {
			min, err := rawToBig(cd.Min)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q min", it.name)
			}
			max, err := rawToBig(cd.Max)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q max", it.name)
			}
			f.Constraints = &Constraints{
				Required:          cd.Required,
				Unique:            cd.Unique,
				Min:               min,
				Max:               max,
				FixedPrecision:    cd.FixedPrecision,
				FixedScale:        cd.FixedScale,
				FPTotalBits:       cd.FPTotalBits,
				FPSignificandBits: cd.FPSignificandBits,
				MaxLengthBytes:    cd.MaxLengthBytes,
				MaxLengthChars:    cd.MaxLengthChars,
			}
		}
		if sd := it.doc.Statistics; sd != nil {
			f.Statistics = &Statistics{
				RowsSampled:    sd.RowsSampled,
				TotalRows:      sd.TotalRows,
				MaxLengthBytes: sd.MaxLengthBytes,
				MaxLengthChars: sd.MaxLengthChars,
			}
		}
		s.Fields = append(s.Fields, f)
	}
	if len(doc.KnownRepresentations) > 0 {
		s.KnownRepresentations = doc.KnownRepresentations
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Integer bounds are written as decimal strings so 64-bit unsigned limits
// survive JSON readers that only have doubles.
func bigToRaw(b *big.Int) json.RawMessage {
	if b == nil {
		return nil
	}
	out, _ := json.Marshal(b.String())
	return out
}

func rawToBig(raw json.RawMessage) (*big.Int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Newf("not an integer: %s", raw)
	}
	return v, nil
}

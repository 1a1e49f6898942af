package schema

import (
	"math/rand/v2"
	"sort"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/bluelabsio/records-mover-sub001/internal/records"
)

// sampleSeed keeps refinement deterministic for a given dataframe.
const sampleSeed = 0x5eed

// Refine returns a copy of s tightened by a sample of recs.
//
// Up to pi.MaxInferenceRows rows are sampled uniformly without replacement.
// String fields get max-length statistics and are promoted to a more specific
// type when every sampled non-null value parses as that type. Types are never
// widened, so refining twice with the same data is a no-op.
func Refine(s *Schema, recs []arrow.Record, pi records.ProcessingInstructions) *Schema {
	out := s.Clone()

	var total int64
	for _, r := range recs {
		total += r.NumRows()
	}
	k := int64(pi.MaxInferenceRows)
	if k <= 0 || k > total {
		k = total
	}
	picks := sampleIndices(total, k)

	for i := range out.Fields {
		f := &out.Fields[i]
		if f.Type != String {
			continue
		}
		values, ok := sampleStrings(recs, f.Name, picks)
		if !ok {
			continue
		}

		var maxChars, maxBytes int
		nonNull := make([]string, 0, len(values))
		for _, v := range values {
			if v == nil {
				continue
			}
			nonNull = append(nonNull, *v)
			if n := utf8.RuneCountInString(*v); n > maxChars {
				maxChars = n
			}
			if n := len(*v); n > maxBytes {
				maxBytes = n
			}
		}

		stats := &Statistics{RowsSampled: k, TotalRows: total}
		promoted := InferValueType(nonNull)
		if promoted == String {
			stats.MaxLengthChars = IntPtr(maxChars)
			stats.MaxLengthBytes = IntPtr(maxBytes)
			f.Statistics = stats
			continue
		}

		f.Type = promoted
		f.Statistics = stats
		required := f.Required()
		f.Constraints = &Constraints{Required: required}
		switch promoted {
		case Integer:
			f.Constraints.Min, f.Constraints.Max = IntRange(64, true)
		case Decimal:
			f.Constraints.FPTotalBits, f.Constraints.FPSignificandBits = IntPtr(64), IntPtr(53)
		}
	}
	return out
}

// sampleIndices picks k distinct indices out of [0, n) with Floyd's
// algorithm and returns them sorted.
func sampleIndices(n, k int64) []int64 {
	if k >= n {
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(i)
		}
		return out
	}
	rng := rand.New(rand.NewPCG(sampleSeed, uint64(n)))
	chosen := make(map[int64]struct{}, k)
	for j := n - k; j < n; j++ {
		t := rng.Int64N(j + 1)
		if _, dup := chosen[t]; dup {
			t = j
		}
		chosen[t] = struct{}{}
	}
	out := make([]int64, 0, k)
	for i := range chosen {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// sampleStrings gathers the values of column name at the global row
// positions picks. It reports false when the column is missing or is not a
// string column.
func sampleStrings(recs []arrow.Record, name string, picks []int64) ([]*string, bool) {
	out := make([]*string, 0, len(picks))
	var offset int64
	p := 0
	for _, r := range recs {
		idx := r.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, false
		}
		col := r.Column(idx[0])
		get, ok := stringGetter(col)
		if !ok {
			return nil, false
		}
		end := offset + r.NumRows()
		for p < len(picks) && picks[p] < end {
			row := int(picks[p] - offset)
			if col.IsNull(row) {
				out = append(out, nil)
			} else {
				v := get(row)
				out = append(out, &v)
			}
			p++
		}
		offset = end
	}
	return out, true
}

func stringGetter(col arrow.Array) (func(int) string, bool) {
	switch a := col.(type) {
	case *array.String:
		return a.Value, true
	case *array.LargeString:
		return a.Value, true
	}
	return nil, false
}

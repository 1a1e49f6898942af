// Package dataframe moves records through memory as chunks of Arrow
// records. Readers turn delimited or Parquet bytes into chunks; writers
// turn chunks back into bytes.
package dataframe

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
)

// Iterator yields chunks of records sharing one schema.
//
// Next returns io.EOF after the last chunk. The caller owns each returned
// record and must Release it before requesting the next one.
type Iterator interface {
	Schema() *arrow.Schema
	Next(ctx context.Context) (arrow.Record, error)
	Close() error
}

// ChunkWriter accepts chunks in order.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, rec arrow.Record) error
	Close() error
}

// SliceIterator serves records already held in memory.
type SliceIterator struct {
	schema *arrow.Schema
	recs   []arrow.Record
	pos    int
}

// NewSliceIterator iterates over recs. Each record is retained when
// handed out, so the caller keeps ownership of recs.
func NewSliceIterator(schema *arrow.Schema, recs []arrow.Record) *SliceIterator {
	if schema == nil && len(recs) > 0 {
		schema = recs[0].Schema()
	}
	return &SliceIterator{schema: schema, recs: recs}
}

func (it *SliceIterator) Schema() *arrow.Schema { return it.schema }

func (it *SliceIterator) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.recs) {
		return nil, io.EOF
	}
	rec := it.recs[it.pos]
	it.pos++
	rec.Retain()
	return rec, nil
}

func (it *SliceIterator) Close() error { return nil }

// Collect drains it into memory. The caller releases the returned records.
func Collect(ctx context.Context, it Iterator) ([]arrow.Record, error) {
	var out []arrow.Record
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			Release(out)
			return nil, err
		}
		out = append(out, rec)
	}
}

// Release releases every record in recs.
func Release(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

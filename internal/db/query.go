package db

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// QueryIterator streams a SELECT result as Arrow records.
type QueryIterator struct {
	rows   *sql.Rows
	as     *arrow.Schema
	rb     *dataframe.RowBuilder
	chunk  int
	done   bool
	scan   []any
	values []any
}

// SelectAll returns an iterator over every row of t, typed by s.
func SelectAll(ctx context.Context, d Driver, t TableRef, s *schema.Schema, chunkRows int, mem memory.Allocator) (*QueryIterator, error) {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = d.QuoteIdent(f.Name)
	}
	if d.DB() == nil {
		return nil, errors.Newf("%s has no SQL connection to select from", d.Name())
	}
	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + t.Qualified(d)
	rows, err := d.DB().QueryContext(ctx, q)
	if err != nil {
		return nil, errors.NewUnloadError(d.Name(), errors.Wrapf(err, "select from %s", t))
	}
	return NewQueryIterator(rows, s.ArrowSchema(), chunkRows, mem), nil
}

// NewQueryIterator wraps rows, whose columns must line up with as.
func NewQueryIterator(rows *sql.Rows, as *arrow.Schema, chunkRows int, mem memory.Allocator) *QueryIterator {
	if chunkRows <= 0 {
		chunkRows = records.DefaultChunkRows
	}
	n := as.NumFields()
	it := &QueryIterator{
		rows:   rows,
		as:     as,
		rb:     dataframe.NewRowBuilder(as, mem),
		chunk:  chunkRows,
		scan:   make([]any, n),
		values: make([]any, n),
	}
	for i := range it.values {
		it.scan[i] = &it.values[i]
	}
	return it
}

func (it *QueryIterator) Schema() *arrow.Schema { return it.as }

func (it *QueryIterator) Next(ctx context.Context) (arrow.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	for it.rb.Len() < it.chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !it.rows.Next() {
			it.done = true
			if err := it.rows.Err(); err != nil {
				return nil, errors.Wrap(err, "read rows")
			}
			break
		}
		if err := it.rows.Scan(it.scan...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		if err := it.rb.Append(it.values); err != nil {
			return nil, err
		}
	}
	if it.rb.Len() == 0 {
		return nil, io.EOF
	}
	return it.rb.NewRecord(), nil
}

func (it *QueryIterator) Close() error {
	it.rb.Release()
	return it.rows.Close()
}

package dataframe

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/delimited"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// DelimitedReader turns delimited text into Arrow chunks.
type DelimitedReader struct {
	r       *delimited.Reader
	schema  *arrow.Schema
	parsers []parseFunc
	mem     memory.Allocator
	pi      records.ProcessingInstructions
	log     *zap.SugaredLogger

	pending  []*string
	read     int64
	rows     int64
	failures int64
	done     bool
}

// NewDelimitedReader reads src as described by v. When s is nil every
// column is read as a string, named from the header row or col_1..col_N.
// Otherwise columns are typed per s and matched by position.
func NewDelimitedReader(src io.Reader, v hints.Validated, s *schema.Schema, pi records.ProcessingInstructions, mem memory.Allocator) (*DelimitedReader, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	r, err := delimited.NewReader(src, v)
	if err != nil {
		return nil, err
	}
	dr := &DelimitedReader{r: r, mem: mem, pi: pi, log: logging.Or(pi.Logger)}

	if s != nil {
		dr.schema = s.ArrowSchema()
	} else {
		names := r.Header()
		if names == nil {
			first, err := r.Read()
			if err != nil && err != io.EOF {
				r.Close()
				return nil, err
			}
			dr.pending = first
			if err == io.EOF {
				dr.done = true
			}
			for i := range first {
				names = append(names, fmt.Sprintf("col_%d", i+1))
			}
		}
		fields := make([]arrow.Field, len(names))
		for i, n := range names {
			fields[i] = arrow.Field{Name: n, Type: arrow.BinaryTypes.String, Nullable: true}
		}
		dr.schema = arrow.NewSchema(fields, nil)
	}

	l := layoutsFor(v)
	dr.parsers = make([]parseFunc, dr.schema.NumFields())
	for i, f := range dr.schema.Fields() {
		dr.parsers[i] = parserFor(f.Type, l)
	}
	return dr, nil
}

func (dr *DelimitedReader) Schema() *arrow.Schema { return dr.schema }

// Rows returns the number of rows delivered so far.
func (dr *DelimitedReader) Rows() int64 { return dr.rows }

// Next returns up to pi.ChunkRows rows.
//
// A row that does not parse is fatal under FailIfRowInvalid. Otherwise it
// is skipped and counted, failing once MaxFailureRows is exceeded.
func (dr *DelimitedReader) Next(ctx context.Context) (arrow.Record, error) {
	if dr.done && dr.pending == nil {
		return nil, io.EOF
	}
	b := array.NewRecordBuilder(dr.mem, dr.schema)
	defer b.Release()

	chunk := dr.pi.ChunkRows
	if chunk <= 0 {
		chunk = records.DefaultChunkRows
	}
	width := dr.schema.NumFields()
	values := make([]any, width)
	n := 0
	for n < chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := dr.next()
		if err == io.EOF {
			dr.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if err := dr.parseRow(rec, values); err != nil {
			if ferr := dr.rowFailed(err); ferr != nil {
				return nil, ferr
			}
			continue
		}
		for i := 0; i < width; i++ {
			if values[i] == nil {
				b.Field(i).AppendNull()
			} else {
				appendValue(b.Field(i), values[i])
			}
		}
		n++
	}
	if n == 0 {
		return nil, io.EOF
	}
	dr.rows += int64(n)
	return b.NewRecord(), nil
}

func (dr *DelimitedReader) next() ([]*string, error) {
	if dr.pending != nil {
		rec := dr.pending
		dr.pending = nil
		dr.read++
		return rec, nil
	}
	if dr.done {
		return nil, io.EOF
	}
	rec, err := dr.r.Read()
	if err == nil {
		dr.read++
	}
	return rec, err
}

func (dr *DelimitedReader) parseRow(rec []*string, values []any) error {
	if len(rec) > len(values) {
		return errors.Newf("expected %d fields, found %d", len(values), len(rec))
	}
	for i := range values {
		values[i] = nil
		if i >= len(rec) || rec[i] == nil {
			continue
		}
		cell := *rec[i]
		if cell == "" && dr.schema.Field(i).Type.ID() != arrow.STRING {
			continue
		}
		v, err := dr.parsers[i](cell)
		if err != nil {
			return errors.Wrapf(err, "column %q", dr.schema.Field(i).Name)
		}
		values[i] = v
	}
	return nil
}

func (dr *DelimitedReader) rowFailed(err error) error {
	dr.failures++
	row := dr.read
	if dr.pi.FailIfRowInvalid {
		return errors.Wrapf(err, "row %d", row)
	}
	if dr.pi.MaxFailureRows != nil && dr.failures > *dr.pi.MaxFailureRows {
		return errors.Wrapf(err, "row %d: more than %d invalid rows", row, *dr.pi.MaxFailureRows)
	}
	dr.log.Warnw("skipping invalid row", "row", row, "error", err)
	return nil
}

func (dr *DelimitedReader) Close() error { return dr.r.Close() }

// DelimitedWriter renders Arrow chunks as delimited text.
type DelimitedWriter struct {
	w          *delimited.Writer
	formatters []formatFunc
	rows       int64
}

// NewDelimitedWriter writes chunks shaped like as to dst. The header row,
// when the hints ask for one, is written immediately.
func NewDelimitedWriter(dst io.Writer, v hints.Validated, as *arrow.Schema) (*DelimitedWriter, error) {
	w, err := delimited.NewWriter(dst, v)
	if err != nil {
		return nil, err
	}
	l := layoutsFor(v)
	names := make([]string, as.NumFields())
	numeric := make([]bool, as.NumFields())
	formatters := make([]formatFunc, as.NumFields())
	for i, f := range as.Fields() {
		names[i] = f.Name
		numeric[i] = isNumeric(f.Type)
		formatters[i] = formatterFor(f.Type, l)
	}
	w.SetNumericColumns(numeric)
	if err := w.WriteHeader(names); err != nil {
		return nil, err
	}
	return &DelimitedWriter{w: w, formatters: formatters}, nil
}

// WriteChunk writes every row of rec.
func (dw *DelimitedWriter) WriteChunk(ctx context.Context, rec arrow.Record) error {
	if int(rec.NumCols()) != len(dw.formatters) {
		return errors.Newf("chunk has %d columns, writer expects %d", rec.NumCols(), len(dw.formatters))
	}
	row := make([]*string, rec.NumCols())
	cells := make([]string, rec.NumCols())
	for i := 0; i < int(rec.NumRows()); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for c := range row {
			col := rec.Column(c)
			if col.IsNull(i) {
				row[c] = nil
				continue
			}
			cells[c] = dw.formatters[c](col, i)
			row[c] = &cells[c]
		}
		if err := dw.w.Write(row); err != nil {
			return errors.Wrapf(err, "row %d", dw.rows+int64(i)+1)
		}
	}
	dw.rows += rec.NumRows()
	return nil
}

// Rows returns the number of rows written so far.
func (dw *DelimitedWriter) Rows() int64 { return dw.rows }

// Close flushes the writer. The destination is left open.
func (dw *DelimitedWriter) Close() error { return dw.w.Close() }

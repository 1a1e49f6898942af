package directory

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Resolver returns the resolver d reads and writes through.
func (d *Directory) Resolver() *location.Resolver { return d.loc }

// Open opens one file of the directory by URL.
func (d *Directory) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return d.loc.Open(ctx, url)
}

// Create creates one file of the directory by URL.
func (d *Directory) Create(ctx context.Context, url string) (io.WriteCloser, error) {
	return d.loc.Create(ctx, url)
}

// Reader yields the rows of every data file, in manifest order, as Arrow
// records.
type Reader struct {
	d    *Directory
	f    records.Format
	s    *schema.Schema
	pi   records.ProcessingInstructions
	mem  memory.Allocator
	urls []string
	as   *arrow.Schema
	cur  dataframe.Iterator
	rows int64
}

// NewReader opens the data files of d in format f. With a nil schema the
// first file decides the Arrow schema (strings for untyped delimited
// files).
func (d *Directory) NewReader(ctx context.Context, f records.Format, s *schema.Schema, pi records.ProcessingInstructions, mem memory.Allocator) (*Reader, error) {
	urls, err := d.DataURLs(ctx)
	if err != nil {
		return nil, err
	}
	r := &Reader{d: d, f: f, s: s, pi: pi, mem: mem, urls: urls}
	if s != nil {
		r.as = s.ArrowSchema()
		return r, nil
	}
	if len(urls) == 0 {
		return nil, errors.Newf("records directory %s has no data files and no schema", d.URL)
	}
	if err := r.open(ctx); err != nil {
		return nil, err
	}
	r.as = r.cur.Schema()
	return r, nil
}

func (r *Reader) Schema() *arrow.Schema { return r.as }

// Rows is the number of rows returned so far.
func (r *Reader) Rows() int64 { return r.rows }

func (r *Reader) open(ctx context.Context) error {
	url := r.urls[0]
	r.urls = r.urls[1:]
	it, err := OpenFile(ctx, r.d.loc, url, r.f, r.s, r.pi, r.mem)
	if err != nil {
		return err
	}
	r.cur = it
	r.d.log.Debugw("reading data file", "url", url, "format", r.f.String())
	return nil
}

func (r *Reader) closeCurrent() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

// fileIterator closes the underlying file along with the chunk reader.
type fileIterator struct {
	dataframe.Iterator
	rc io.Closer
}

func (fi *fileIterator) Close() error {
	err := fi.Iterator.Close()
	if cerr := fi.rc.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenFile reads the single data file at url in format f. With a nil
// schema delimited columns come back as strings.
func OpenFile(ctx context.Context, loc *location.Resolver, url string, f records.Format, s *schema.Schema, pi records.ProcessingInstructions, mem memory.Allocator) (dataframe.Iterator, error) {
	rc, err := loc.Open(ctx, url)
	if err != nil {
		return nil, err
	}

	switch f.Type {
	case records.Delimited:
		v, err := f.Validate(pi)
		if err != nil {
			rc.Close()
			return nil, err
		}
		dr, err := dataframe.NewDelimitedReader(rc, v, s, pi, mem)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &fileIterator{Iterator: dr, rc: rc}, nil
	case records.Parquet:
		src, ok := rc.(parquet.ReaderAtSeeker)
		if !ok {
			b, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, errors.Wrapf(err, "read %s", url)
			}
			src, rc = bytes.NewReader(b), io.NopCloser(nil)
		}
		pr, err := dataframe.NewParquetReader(ctx, src, pi.ChunkRows, mem)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &fileIterator{Iterator: pr, rc: rc}, nil
	}
	rc.Close()
	return nil, errors.WithStack(&errors.UnsupportedHintError{Hint: "format", Value: string(f.Type), Reason: "no reader for this format type"})
}

func (r *Reader) Next(ctx context.Context) (arrow.Record, error) {
	for {
		if r.cur == nil {
			if len(r.urls) == 0 {
				return nil, io.EOF
			}
			if err := r.open(ctx); err != nil {
				return nil, err
			}
		}
		rec, err := r.cur.Next(ctx)
		if err == io.EOF {
			if err := r.closeCurrent(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		r.rows += rec.NumRows()
		return rec, nil
	}
}

func (r *Reader) Close() error { return r.closeCurrent() }

// rowCounter is implemented by the dataframe chunk writers.
type rowCounter interface {
	dataframe.ChunkWriter
	Rows() int64
}

// Writer writes Arrow chunks into one data file of the directory.
type Writer struct {
	d    *Directory
	f    records.Format
	url  string
	wc   io.WriteCloser
	cw   rowCounter
	done bool
}

// NewWriter creates data file number index in format f for records shaped
// like as.
func (d *Directory) NewWriter(ctx context.Context, index int, f records.Format, as *arrow.Schema, pi records.ProcessingInstructions) (*Writer, error) {
	url := d.DataFileURL(index, f)
	var (
		cw  rowCounter
		err error
	)
	wc, err := d.Create(ctx, url)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case records.Delimited:
		v, verr := f.Validate(pi)
		if verr != nil {
			wc.Close()
			return nil, verr
		}
		cw, err = dataframe.NewDelimitedWriter(wc, v, as)
	case records.Parquet:
		cw, err = dataframe.NewParquetWriter(wc, as)
	default:
		err = errors.WithStack(&errors.UnsupportedHintError{Hint: "format", Value: string(f.Type), Reason: "no writer for this format type"})
	}
	if err != nil {
		wc.Close()
		return nil, err
	}
	return &Writer{d: d, f: f, url: url, wc: wc, cw: cw}, nil
}

// URL is the data file being written.
func (w *Writer) URL() string { return w.url }

func (w *Writer) WriteChunk(ctx context.Context, rec arrow.Record) error {
	return w.cw.WriteChunk(ctx, rec)
}

func (w *Writer) Rows() int64 { return w.cw.Rows() }

// Close flushes the chunk writer and commits the data file.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	err := w.cw.Close()
	if cerr := w.wc.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "write %s", w.url)
}

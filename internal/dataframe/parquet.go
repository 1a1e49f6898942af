package dataframe

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// ParquetWriter writes chunks into one Parquet file.
type ParquetWriter struct {
	fw   *pqarrow.FileWriter
	rows int64
}

// sink hides Close from the Parquet writer, which would otherwise close
// the destination.
type sink struct{ io.Writer }

// source does the same for the reader, whose Close closes a source that
// implements io.Closer.
type source struct{ parquet.ReaderAtSeeker }

// NewParquetWriter starts a Snappy-compressed Parquet file on dst with the
// Arrow schema stored in the file metadata.
func NewParquetWriter(dst io.Writer, as *arrow.Schema) (*ParquetWriter, error) {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy("mvrec"),
	)
	fw, err := pqarrow.NewFileWriter(as, sink{dst}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, errors.Wrap(err, "create parquet writer")
	}
	return &ParquetWriter{fw: fw}, nil
}

func (pw *ParquetWriter) WriteChunk(ctx context.Context, rec arrow.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pw.fw.Write(rec); err != nil {
		return errors.Wrap(err, "write parquet row group")
	}
	pw.rows += rec.NumRows()
	return nil
}

// Rows returns the number of rows written so far.
func (pw *ParquetWriter) Rows() int64 { return pw.rows }

// Close writes the footer. The destination is left open.
func (pw *ParquetWriter) Close() error {
	return errors.Wrap(pw.fw.Close(), "finish parquet file")
}

// ParquetReader yields the record batches of one Parquet file.
type ParquetReader struct {
	pf *file.Reader
	rr pqarrow.RecordReader
}

// NewParquetReader opens src, reading batchRows rows per chunk. Closing the
// reader leaves src open.
func NewParquetReader(ctx context.Context, src parquet.ReaderAtSeeker, batchRows int, mem memory.Allocator) (*ParquetReader, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	pf, err := file.NewParquetReader(source{src})
	if err != nil {
		return nil, errors.Wrap(err, "open parquet file")
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchRows), Parallel: false}, mem)
	if err != nil {
		pf.Close()
		return nil, errors.Wrap(err, "open parquet arrow reader")
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, errors.Wrap(err, "read parquet row groups")
	}
	return &ParquetReader{pf: pf, rr: rr}, nil
}

func (pr *ParquetReader) Schema() *arrow.Schema { return pr.rr.Schema() }

func (pr *ParquetReader) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !pr.rr.Next() {
		if err := pr.rr.Err(); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "read parquet batch")
		}
		return nil, io.EOF
	}
	rec := pr.rr.Record()
	rec.Retain()
	return rec, nil
}

func (pr *ParquetReader) Close() error {
	pr.rr.Release()
	return pr.pf.Close()
}

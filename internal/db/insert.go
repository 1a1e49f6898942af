package db

import (
	"context"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/dataframe"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// DefaultMaxParams keeps multi-row INSERTs under common bind limits.
const DefaultMaxParams = 999

// BuildInsertSQL constructs a single INSERT statement with rows rows of
// placeholders.
//
// Constraints:
//   - columns must be non-empty.
//   - rows must be at least 1.
func BuildInsertSQL(d Driver, table string, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	p := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			p++
		}
		b.WriteString(")")
	}
	return b.String()
}

// InsertLoader loads rows with batched multi-row INSERTs inside one
// transaction. It serves engines without a bulk path and any target whose
// bulk loader cannot take the offered format.
type InsertLoader struct {
	D Driver
	// MaxParams bounds placeholders per statement; 0 means DefaultMaxParams.
	MaxParams int
	Log       *zap.SugaredLogger
}

// NewInsertLoader returns an InsertLoader for d.
func NewInsertLoader(d Driver, l *zap.SugaredLogger) *InsertLoader {
	return &InsertLoader{D: d, Log: logging.Or(l)}
}

// KnownSupportedFormats lists what the loader reads through the dataframe
// readers. Any delimited format works; these are advertised for
// negotiation.
func (il *InsertLoader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.ParquetFormat(),
		records.DelimitedFormat(hints.Bluelabs, nil),
		records.DelimitedFormat(hints.CSV, nil),
	}
}

func (il *InsertLoader) CanLoad(f records.Format) bool {
	return f.Type == records.Parquet || f.Type == records.Delimited
}

func (il *InsertLoader) AcceptedSchemes() []string { return nil }

// Load reads every data file of req.Directory and inserts the rows.
func (il *InsertLoader) Load(ctx context.Context, req LoadRequest) (int64, error) {
	r, err := req.Directory.NewReader(ctx, req.Format, req.Schema, req.PI, nil)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return il.InsertAll(ctx, req.Table, r)
}

// InsertAll drains it into t. Column names come from the iterator's
// schema.
func (il *InsertLoader) InsertAll(ctx context.Context, t TableRef, it dataframe.Iterator) (int64, error) {
	log := logging.Or(il.Log)
	engine := il.D.Name()

	as := it.Schema()
	columns := make([]string, as.NumFields())
	for i, f := range as.Fields() {
		columns[i] = il.D.MakeColumnNameValid(f.Name)
	}
	if len(columns) == 0 {
		return 0, errors.NewLoadError(engine, errors.New("no columns to insert"))
	}
	maxParams := il.MaxParams
	if maxParams <= 0 {
		maxParams = DefaultMaxParams
	}
	perStmt := maxParams / len(columns)
	if perStmt < 1 {
		perStmt = 1
	}

	if il.D.DB() == nil {
		return 0, errors.NewLoadError(engine, errors.New("no SQL connection to insert through"))
	}
	tx, err := il.D.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewLoadError(engine, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	table := t.Qualified(il.D)
	var (
		total int64
		batch []any
		n     int
		full  string
	)
	flush := func() error {
		if n == 0 {
			return nil
		}
		q := full
		if n != perStmt || q == "" {
			q = BuildInsertSQL(il.D, table, columns, n)
		}
		res, err := tx.ExecContext(ctx, q, batch...)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil {
			total += affected
		} else {
			total += int64(n)
		}
		batch, n = batch[:0], 0
		return nil
	}
	full = BuildInsertSQL(il.D, table, columns, perStmt)

	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		err = il.appendRecord(rec, &batch, &n, perStmt, flush)
		rec.Release()
		if err != nil {
			return 0, errors.NewLoadError(engine, err)
		}
	}
	if err := flush(); err != nil {
		return 0, errors.NewLoadError(engine, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewLoadError(engine, err)
	}
	committed = true
	log.Infow("inserted rows", "engine", engine, "table", t.String(), "rows", total)
	return total, nil
}

func (il *InsertLoader) appendRecord(rec arrow.Record, batch *[]any, n *int, perStmt int, flush func() error) error {
	for i := 0; i < int(rec.NumRows()); i++ {
		*batch = dataframe.RowValues(rec, i, *batch)
		*n++
		if *n == perStmt {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

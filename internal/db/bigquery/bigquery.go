// Package bigquery moves records in and out of Google BigQuery through load
// and extract jobs.
package bigquery

import (
	"context"
	"database/sql"
	"math/big"
	"strings"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

const (
	maxNumericPrecision = 38
	maxNumericScale     = 9
)

func init() {
	db.Register("bigquery", Open)
}

// jobs is the slice of the BigQuery API the driver needs.
type jobs interface {
	Metadata(ctx context.Context, dataset, table string) (*bq.TableMetadata, error)
	Query(ctx context.Context, stmt string) error
	Load(ctx context.Context, dataset, table string, src bq.LoadSource) (*bq.JobStatus, error)
	Extract(ctx context.Context, dataset, table string, dst *bq.GCSReference) (*bq.JobStatus, error)
	Close() error
}

// Driver is one BigQuery project with a default dataset.
type Driver struct {
	*db.Base
	api     jobs
	dataset string
	log     *zap.SugaredLogger
}

// Open creates a client for the project named by "bigquery.project" (or
// the DSN). "bigquery.dataset" is used for unqualified tables and
// "bigquery.credentials_file" overrides application default credentials.
func Open(ctx context.Context, cfg db.Config) (db.Driver, error) {
	project := cfg.Option("bigquery.project", cfg.DSN)
	if project == "" {
		return nil, errors.WithStack(&errors.ConfigError{Option: "bigquery.project", Reason: "required"})
	}
	var opts []option.ClientOption
	if f := cfg.Option("bigquery.credentials_file", ""); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	c, err := bq.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create bigquery client")
	}
	return New(&client{c: c}, cfg.Option("bigquery.dataset", ""), nil), nil
}

// New wraps api. dataset is used for tables without a schema part.
func New(api jobs, dataset string, l *zap.SugaredLogger) *Driver {
	return &Driver{
		Base: &db.Base{
			Engine:         "bigquery",
			IntegerTypes:   []db.IntegerType{{Name: "INT64", Bits: 64, Signed: true}},
			MaxIdentLen:    300,
			NormalizeNames: true,
			CharsVarchar:   true,
			Quote:          quoteIdent,
		},
		api:     api,
		dataset: dataset,
		log:     logging.Or(l),
	}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// DB returns nil; BigQuery has no database/sql driver here.
func (d *Driver) DB() *sql.DB { return nil }

func (d *Driver) Close() error { return d.api.Close() }

// Exec runs stmt as a query job. Bind arguments are not supported.
func (d *Driver) Exec(ctx context.Context, stmt string, args ...any) error {
	if len(args) > 0 {
		return errors.Newf("bigquery: Exec does not take arguments")
	}
	return d.api.Query(ctx, stmt)
}

// DeleteSQL adds the WHERE clause BigQuery requires on DELETE.
func (d *Driver) DeleteSQL(qualifiedTable string) string {
	return "DELETE FROM " + qualifiedTable + " WHERE true"
}

func (d *Driver) datasetFor(s string) string {
	if s != "" {
		return s
	}
	return d.dataset
}

func (d *Driver) IntegerLimits(sqlType string) (*big.Int, *big.Int, bool) {
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "INT64", "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		lo, hi := schema.IntRange(64, true)
		return lo, hi, true
	}
	return nil, nil, false
}

func (d *Driver) TypeForInteger(_, _ *big.Int) string { return "INT64" }

func (d *Driver) TypeForFixedPoint(precision, scale int) string {
	if precision <= maxNumericPrecision && scale <= maxNumericScale && precision-scale <= maxNumericPrecision-maxNumericScale {
		return "NUMERIC"
	}
	return "BIGNUMERIC"
}

func (d *Driver) TypeForFloatingPoint(_, _ int) string { return "FLOAT64" }

func (d *Driver) TypeForDatePlusTime(hasTZ bool) string {
	if hasTZ {
		return "TIMESTAMP"
	}
	return "DATETIME"
}

// TypeForTime drops the zone; BigQuery has no TIME WITH TIME ZONE.
func (d *Driver) TypeForTime(_ bool) string { return "TIME" }

func (d *Driver) TypeForBoolean() string { return "BOOL" }

func (d *Driver) TypeForString(_ int) string { return "STRING" }

// Columns reads the table schema. A missing table yields no columns.
func (d *Driver) Columns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	md, err := d.api.Metadata(ctx, d.datasetFor(schemaName), table)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read metadata of %s", table)
	}
	out := make([]schema.ColumnInfo, 0, len(md.Schema))
	for _, f := range md.Schema {
		out = append(out, columnInfo(f))
	}
	return out, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 404
}

// columnInfo maps a BigQuery field onto catalog-style names understood by
// schema.FromDBTable.
func columnInfo(f *bq.FieldSchema) schema.ColumnInfo {
	c := schema.ColumnInfo{Name: f.Name, Nullable: !f.Required, DDL: string(f.Type)}
	switch f.Type {
	case bq.IntegerFieldType:
		c.DataType = "int64"
	case bq.FloatFieldType:
		c.DataType = "float64"
	case bq.NumericFieldType, bq.BigNumericFieldType:
		c.DataType = strings.ToLower(string(f.Type))
		p, s := int(f.Precision), int(f.Scale)
		if p == 0 {
			p, s = maxNumericPrecision, maxNumericScale
			if f.Type == bq.BigNumericFieldType {
				p, s = 76, 38
			}
		}
		c.NumericPrecision, c.NumericScale = &p, &s
	case bq.BooleanFieldType:
		c.DataType = "boolean"
	case bq.DateFieldType:
		c.DataType = "date"
	case bq.TimeFieldType:
		c.DataType = "time"
	case bq.DateTimeFieldType:
		c.DataType = "datetime"
	case bq.TimestampFieldType:
		c.DataType = "timestamptz"
	default:
		c.DataType = "string"
		if f.MaxLength > 0 {
			n := int(f.MaxLength)
			c.CharMaxLength = &n
		}
	}
	return c
}

// TableSchema builds the load-job schema for s.
func (d *Driver) TableSchema(s *schema.Schema) bq.Schema {
	out := make(bq.Schema, 0, len(s.Fields))
	for _, f := range s.Fields {
		fs := &bq.FieldSchema{Name: d.MakeColumnNameValid(f.Name), Required: f.Required()}
		switch f.Type {
		case schema.Integer:
			fs.Type = bq.IntegerFieldType
		case schema.Decimal:
			c := f.Constraints
			if c != nil && c.FixedPrecision != nil && c.FixedScale != nil {
				fs.Type = bq.FieldType(d.TypeForFixedPoint(*c.FixedPrecision, *c.FixedScale))
				fs.Precision, fs.Scale = int64(*c.FixedPrecision), int64(*c.FixedScale)
			} else {
				fs.Type = bq.FloatFieldType
			}
		case schema.Boolean:
			fs.Type = bq.BooleanFieldType
		case schema.Date:
			fs.Type = bq.DateFieldType
		case schema.Time, schema.TimeTZ:
			fs.Type = bq.TimeFieldType
		case schema.DateTime:
			fs.Type = bq.DateTimeFieldType
		case schema.DateTimeTZ:
			fs.Type = bq.TimestampFieldType
		default:
			fs.Type = bq.StringFieldType
		}
		out = append(out, fs)
	}
	return out
}

// AdjustSchema promotes datetime fields to datetimetz for Parquet loads;
// Parquet timestamps land in BigQuery as TIMESTAMP.
func (d *Driver) AdjustSchema(f records.Format, s *schema.Schema) *schema.Schema {
	if f.Type != records.Parquet || s == nil {
		return s
	}
	out := s.Clone()
	for i := range out.Fields {
		if out.Fields[i].Type == schema.DateTime {
			d.log.Infow("promoting datetime field for parquet load", "field", out.Fields[i].Name)
			out.Fields[i].Type = schema.DateTimeTZ
		}
	}
	return out
}

func (d *Driver) Loader() db.Loader { return &Loader{d: d} }

func (d *Driver) Unloader() db.Unloader { return &Unloader{d: d} }

// client adapts *bq.Client to jobs.
type client struct {
	c *bq.Client
}

func (c *client) Metadata(ctx context.Context, dataset, table string) (*bq.TableMetadata, error) {
	return c.c.Dataset(dataset).Table(table).Metadata(ctx)
}

func (c *client) Query(ctx context.Context, stmt string) error {
	job, err := c.c.Query(stmt).Run(ctx)
	if err != nil {
		return err
	}
	return wait(ctx, job)
}

func (c *client) Load(ctx context.Context, dataset, table string, src bq.LoadSource) (*bq.JobStatus, error) {
	l := c.c.Dataset(dataset).Table(table).LoaderFrom(src)
	l.WriteDisposition = bq.WriteAppend
	l.CreateDisposition = bq.CreateIfNeeded
	job, err := l.Run(ctx)
	if err != nil {
		return nil, err
	}
	return waitStatus(ctx, job)
}

func (c *client) Extract(ctx context.Context, dataset, table string, dst *bq.GCSReference) (*bq.JobStatus, error) {
	job, err := c.c.Dataset(dataset).Table(table).ExtractorTo(dst).Run(ctx)
	if err != nil {
		return nil, err
	}
	return waitStatus(ctx, job)
}

func (c *client) Close() error { return c.c.Close() }

func wait(ctx context.Context, job *bq.Job) error {
	_, err := waitStatus(ctx, job)
	return err
}

func waitStatus(ctx context.Context, job *bq.Job) (*bq.JobStatus, error) {
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if err := status.Err(); err != nil {
		return status, errors.Wrapf(err, "job %s", job.ID())
	}
	return status, nil
}

package bigquery

import (
	"context"
	"sort"
	"strings"

	bq "cloud.google.com/go/bigquery"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// extractPattern names the files an extract job writes; BigQuery replaces
// the wildcard with a shard number.
const extractPattern = "part-*.parquet"

// Loader runs load jobs. gs:// data files are loaded by reference in one
// job; anything else is uploaded one file per job.
type Loader struct {
	d *Driver
}

func (l *Loader) KnownSupportedFormats() []records.Format {
	return []records.Format{
		records.ParquetFormat(),
		records.DelimitedFormat(hints.BigQuery, nil),
	}
}

// CanLoad accepts Parquet and the bigquery delimited variant.
func (l *Loader) CanLoad(f records.Format) bool {
	switch f.Type {
	case records.Parquet:
		return true
	case records.Delimited:
		if f.Variant != hints.BigQuery {
			return false
		}
		return db.Feasible(f, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
			_, err := LoadOptionsFor(v, u, p, records.DefaultProcessingInstructions())
			return err
		})
	}
	return false
}

func (l *Loader) AcceptedSchemes() []string { return nil }

func (l *Loader) fileConfig(req db.LoadRequest) (bq.FileConfig, error) {
	var fc bq.FileConfig
	switch {
	case req.Format.Type == records.Parquet:
		fc.SourceFormat = bq.Parquet
	case req.Format.IsDelimited():
		if req.Format.Variant != hints.BigQuery {
			return fc, errors.Newf("bigquery loads only the %s delimited variant, not %s", hints.BigQuery, req.Format.Variant)
		}
		var o LoadOptions
		_, err := db.Translate(l.d.Name(), req.Format, req.PI, func(v hints.Validated, u hints.Unhandled, p hints.Policy) error {
			var err error
			o, err = LoadOptionsFor(v, u, p, req.PI)
			return err
		})
		if err != nil {
			return fc, err
		}
		fc = o.FileConfig()
	default:
		return fc, errors.Newf("bigquery cannot load %s", req.Format.Type)
	}
	if req.Schema != nil {
		fc.Schema = l.d.TableSchema(req.Schema)
	} else if fc.SourceFormat == bq.CSV {
		fc.AutoDetect = true
	}
	return fc, nil
}

func (l *Loader) Load(ctx context.Context, req db.LoadRequest) (int64, error) {
	fc, err := l.fileConfig(req)
	if err != nil {
		return 0, err
	}
	urls, err := req.Directory.DataURLs(ctx)
	if err != nil {
		return 0, err
	}
	dataset := l.d.datasetFor(req.Table.Schema)

	if len(urls) > 0 && allGCS(urls) {
		ref := bq.NewGCSReference(urls...)
		ref.FileConfig = fc
		n, err := l.run(ctx, dataset, req.Table.Table, ref)
		if err != nil {
			return 0, errors.NewLoadError(l.d.Name(), err)
		}
		l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", n, "files", len(urls))
		return n, nil
	}

	var total int64
	for _, u := range urls {
		n, err := l.upload(ctx, req, dataset, u, fc)
		if err != nil {
			return 0, errors.NewLoadError(l.d.Name(), errors.Wrapf(err, "load %s", u))
		}
		total += n
	}
	l.d.log.Infow("loaded table", "table", req.Table.String(), "rows", total, "files", len(urls))
	return total, nil
}

func (l *Loader) upload(ctx context.Context, req db.LoadRequest, dataset, url string, fc bq.FileConfig) (int64, error) {
	rc, err := req.Directory.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	src := bq.NewReaderSource(rc)
	src.FileConfig = fc
	return l.run(ctx, dataset, req.Table.Table, src)
}

func (l *Loader) run(ctx context.Context, dataset, table string, src bq.LoadSource) (int64, error) {
	status, err := l.d.api.Load(ctx, dataset, table, src)
	if err != nil {
		return 0, err
	}
	return outputRows(status), nil
}

func outputRows(status *bq.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return records.UnknownCount
	}
	ls, ok := status.Statistics.Details.(*bq.LoadStatistics)
	if !ok {
		return records.UnknownCount
	}
	return ls.OutputRows
}

func allGCS(urls []string) bool {
	for _, u := range urls {
		if location.Scheme(u) != "gs" {
			return false
		}
	}
	return true
}

// Unloader extracts tables to Parquet files on GCS.
type Unloader struct {
	d *Driver
}

func (u *Unloader) KnownSupportedFormats() []records.Format {
	return []records.Format{records.ParquetFormat()}
}

func (u *Unloader) CanUnload(f records.Format) bool { return f.Type == records.Parquet }

func (u *Unloader) AcceptedSchemes() []string { return []string{"gs"} }

func (u *Unloader) Unload(ctx context.Context, req db.UnloadRequest) (db.UnloadResult, error) {
	res := db.UnloadResult{Rows: records.UnknownCount}
	if !u.CanUnload(req.Format) {
		return res, errors.NewUnloadError(u.d.Name(), errors.Newf("cannot extract %s", req.Format))
	}
	if s := location.Scheme(req.Directory.URL); s != "gs" {
		return res, errors.NewUnloadError(u.d.Name(), errors.Newf("extract writes to gs://, not %s://", s))
	}
	dataset := u.d.datasetFor(req.Table.Schema)

	md, err := u.d.api.Metadata(ctx, dataset, req.Table.Table)
	if err != nil {
		return res, errors.NewUnloadError(u.d.Name(), err)
	}
	dst := bq.NewGCSReference(location.Join(req.Directory.URL, extractPattern))
	dst.DestinationFormat = bq.Parquet
	if _, err := u.d.api.Extract(ctx, dataset, req.Table.Table, dst); err != nil {
		return res, errors.NewUnloadError(u.d.Name(), err)
	}

	all, err := req.Directory.Resolver().List(ctx, req.Directory.URL)
	if err != nil {
		return res, errors.NewUnloadError(u.d.Name(), err)
	}
	for _, f := range all {
		if strings.HasPrefix(location.Base(f), "part-") {
			res.URLs = append(res.URLs, f)
		}
	}
	sort.Strings(res.URLs)
	res.Rows = int64(md.NumRows)
	u.d.log.Infow("extracted table", "table", req.Table.String(), "rows", res.Rows, "files", len(res.URLs))
	return res, nil
}

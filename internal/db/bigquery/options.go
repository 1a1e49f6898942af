package bigquery

import (
	bq "cloud.google.com/go/bigquery"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// LoadOptions holds the CSV settings of a load job.
type LoadOptions struct {
	FieldDelimiter      string
	Quote               string
	ForceZeroQuote      bool
	AllowQuotedNewlines bool
	SkipLeadingRows     int64
	Encoding            bq.Encoding
	MaxBadRecords       int64
}

var encodings = map[hints.EncodingType]bq.Encoding{
	hints.UTF8:   bq.UTF_8,
	hints.LATIN1: bq.ISO_8859_1,
}

// LoadOptionsFor translates hints into CSV load settings. BigQuery detects
// gzip on its own and reads ISO dates only.
func LoadOptionsFor(v hints.Validated, u hints.Unhandled, p hints.Policy, pi records.ProcessingInstructions) (LoadOptions, error) {
	u.Handle(hints.HeaderRow, hints.FieldDelimiter, hints.RecordTerminator, hints.Compression,
		hints.Quoting, hints.QuoteChar, hints.DoubleQuote, hints.Escape, hints.Encoding,
		hints.DateFormat, hints.TimeOnlyFormat, hints.DateTimeFormat, hints.DateTimeFormatTZ)
	o := LoadOptions{
		FieldDelimiter: v.FieldDelimiter,
		Encoding:       bq.UTF_8,
	}
	cant := func(name hints.Name, reason string) error {
		return p.CantHandle(name, v.Value(name), reason)
	}

	if e, ok := encodings[v.Encoding]; ok {
		o.Encoding = e
	} else if err := cant(hints.Encoding, "BigQuery reads UTF-8 and ISO-8859-1 only"); err != nil {
		return o, err
	}
	switch v.Compression {
	case hints.CompressionNone, hints.GZIP:
	default:
		if err := cant(hints.Compression, "BigQuery reads uncompressed or gzip files only"); err != nil {
			return o, err
		}
	}
	switch v.RecordTerminator {
	case "\n", "\r\n":
	default:
		if err := cant(hints.RecordTerminator, "BigQuery splits records on newlines only"); err != nil {
			return o, err
		}
	}
	if v.Escape != "" {
		if err := cant(hints.Escape, "BigQuery has no escape character"); err != nil {
			return o, err
		}
	}
	if v.Quoting == hints.QuotingNone {
		o.ForceZeroQuote = true
	} else {
		o.Quote = v.QuoteChar
		o.AllowQuotedNewlines = true
		if !v.DoubleQuote {
			if err := cant(hints.DoubleQuote, "BigQuery expects embedded quotes to be doubled"); err != nil {
				return o, err
			}
		}
	}
	if v.HeaderRow {
		o.SkipLeadingRows = 1
	}
	checks := []struct {
		name    hints.Name
		value   string
		allowed []string
	}{
		{hints.DateFormat, v.DateFormat, db.ISODate},
		{hints.TimeOnlyFormat, v.TimeOnlyFormat, db.ISOTime},
		{hints.DateTimeFormat, v.DateTimeFormat, db.ISODateTime},
		{hints.DateTimeFormatTZ, v.DateTimeFormatTZ, db.ISODateTimeTZ},
	}
	for _, c := range checks {
		if !db.OneOf(c.value, c.allowed) {
			if err := cant(c.name, "BigQuery reads ISO dates and times only"); err != nil {
				return o, err
			}
		}
	}
	if pi.MaxFailureRows != nil {
		o.MaxBadRecords = *pi.MaxFailureRows
	}
	return o, nil
}

// FileConfig returns the load-job file settings for o.
func (o LoadOptions) FileConfig() bq.FileConfig {
	return bq.FileConfig{
		SourceFormat:  bq.CSV,
		MaxBadRecords: o.MaxBadRecords,
		CSVOptions: bq.CSVOptions{
			AllowQuotedNewlines: o.AllowQuotedNewlines,
			Encoding:            o.Encoding,
			FieldDelimiter:      o.FieldDelimiter,
			Quote:               o.Quote,
			ForceZeroQuote:      o.ForceZeroQuote,
			SkipLeadingRows:     o.SkipLeadingRows,
		},
	}
}

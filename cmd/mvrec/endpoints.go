package main

import (
	"context"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/db"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/sources"
	"github.com/bluelabsio/records-mover-sub001/internal/records/targets"
)

type endpointKind int

const (
	fileEndpoint endpointKind = iota
	directoryEndpoint
	tableEndpoint
)

// endpoint is one side of a move as written on the command line:
//
//	db://<database>/<schema>.<table>   table in a configured database
//	<url-or-path>/                     records directory
//	<url-or-path>                      single data file
type endpoint struct {
	kind     endpointKind
	url      string
	database string
	table    db.TableRef
}

func parseEndpoint(raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return endpoint{}, errors.WithStack(&errors.ConfigError{Option: "endpoint", Reason: "empty"})
	}
	if rest, ok := strings.CutPrefix(raw, "db://"); ok {
		name, tbl, _ := strings.Cut(rest, "/")
		if name == "" || tbl == "" {
			return endpoint{}, errors.WithHint(
				errors.WithStack(&errors.ConfigError{Option: "endpoint", Reason: "malformed table endpoint " + raw}),
				"use db://<database>/<schema>.<table>")
		}
		ref := db.TableRef{Table: tbl}
		if s, t, ok := strings.Cut(tbl, "."); ok {
			ref = db.TableRef{Schema: s, Table: t}
		}
		return endpoint{kind: tableEndpoint, database: name, table: ref}, nil
	}

	url := raw
	if !strings.Contains(url, "://") {
		url = location.FileURL(raw)
	}
	if strings.HasSuffix(url, "/") {
		return endpoint{kind: directoryEndpoint, url: url}, nil
	}
	return endpoint{kind: fileEndpoint, url: url}, nil
}

// targetFormat parses --format: parquet or a delimited variant name.
func targetFormat(name string, h hints.Set) (records.Format, error) {
	if name == string(records.Parquet) {
		if len(h) > 0 {
			return records.Format{}, errors.WithStack(&errors.ConfigError{Option: "hints", Reason: "parquet takes no hints"})
		}
		return records.ParquetFormat(), nil
	}
	v := hints.Variant(name)
	if _, err := hints.ApplyVariant(v); err != nil {
		return records.Format{}, errors.WithStack(&errors.ConfigError{Option: "format", Reason: err.Error()})
	}
	return records.DelimitedFormat(v, h), nil
}

// openDriver connects to a database named in the configuration.
func (a *app) openDriver(ctx context.Context, name string) (db.Driver, error) {
	cfg, err := a.cfg.Database(name)
	if err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", name)
	}
	a.closers = append(a.closers, func() { _ = d.Close() })
	return d, nil
}

// source opens ep for reading. Hints only apply to file sources.
func (a *app) source(ctx context.Context, ep endpoint, h hints.Set) (sources.Source, error) {
	log := logging.Logger
	switch ep.kind {
	case tableEndpoint:
		d, err := a.openDriver(ctx, ep.database)
		if err != nil {
			return nil, err
		}
		return sources.NewTableSource(d, ep.table, log), nil
	case directoryEndpoint:
		if err := a.ensureBackends(ctx, ep.url); err != nil {
			return nil, err
		}
		return sources.NewDirectorySource(ctx, a.loc, ep.url, log)
	default:
		if err := a.ensureBackends(ctx, ep.url); err != nil {
			return nil, err
		}
		return sources.NewFileSource(ctx, a.loc, ep.url, h, log)
	}
}

// target opens ep for writing. Data files are not targets: a move writes
// whole records directories.
func (a *app) target(ctx context.Context, ep endpoint, f records.Format, mode db.ExistingTable) (targets.Target, error) {
	log := logging.Logger
	switch ep.kind {
	case tableEndpoint:
		d, err := a.openDriver(ctx, ep.database)
		if err != nil {
			return nil, err
		}
		return targets.NewTableTarget(d, ep.table, mode, log), nil
	case directoryEndpoint:
		if err := a.ensureBackends(ctx, ep.url); err != nil {
			return nil, err
		}
		return targets.NewDirectoryTarget(a.loc, ep.url, f, log), nil
	default:
		return nil, errors.WithHint(
			errors.WithStack(&errors.ConfigError{Option: "target", Reason: ep.url + " is a file, not a records directory"}),
			"end directory targets with /")
	}
}

func (a *app) ensureBackends(ctx context.Context, urls ...string) error {
	s3 := a.cfg.S3
	release, err := location.EnsureBackends(ctx, a.loc, location.S3Config{
		Region:         s3.Region,
		Endpoint:       s3.Endpoint,
		ForcePathStyle: s3.ForcePathStyle,
	}, urls...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, release)
	return nil
}

// Package directory reads and writes records directories: a data-file
// manifest, the serialized records format and schema, and the data files
// the manifest lists.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

const (
	ManifestName = "_manifest"
	SchemaName   = "_schema.json"
)

// sizeConcurrency bounds parallel size lookups while writing a manifest.
const sizeConcurrency = 8

type EntryMeta struct {
	ContentLength int64 `json:"content_length"`
}

type ManifestEntry struct {
	URL       string    `json:"url"`
	Mandatory bool      `json:"mandatory"`
	Meta      EntryMeta `json:"meta"`
}

// Manifest lists data files in the order they are consumed.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

// URLs returns the entry URLs in order.
func (m Manifest) URLs() []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.URL
	}
	return out
}

// Directory is a records directory at a URL.
type Directory struct {
	URL string
	loc *location.Resolver
	log *zap.SugaredLogger
}

// New returns the directory at url. Nothing is read or written yet.
func New(loc *location.Resolver, url string, l *zap.SugaredLogger) *Directory {
	return &Directory{URL: location.AsDir(url), loc: loc, log: logging.Or(l)}
}

func (d *Directory) path(name string) string { return location.Join(d.URL, name) }

// DataFileURL names the i-th data file written in format f.
func (d *Directory) DataFileURL(i int, f records.Format) string {
	return d.path(fmt.Sprintf("%d%s", i, f.Extension()))
}

// SaveFormat writes the _format_<type> document.
func (d *Directory) SaveFormat(ctx context.Context, f records.Format) error {
	b, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode records format")
	}
	return d.loc.WriteFile(ctx, d.path(f.MetadataName()), b)
}

// LoadFormat reads whichever _format_<type> document is present.
func (d *Directory) LoadFormat(ctx context.Context) (records.Format, error) {
	for _, t := range []records.FormatType{records.Delimited, records.Parquet, records.Avro} {
		name := records.Format{Type: t}.MetadataName()
		b, err := d.loc.ReadFile(ctx, d.path(name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return records.Format{}, err
		}
		var f records.Format
		if err := json.Unmarshal(b, &f); err != nil {
			return records.Format{}, errors.Wrapf(err, "decode %s", name)
		}
		return f, nil
	}
	return records.Format{}, errors.Newf("no _format_* document in %s", d.URL)
}

// SaveSchema writes _schema.json.
func (d *Directory) SaveSchema(ctx context.Context, s *schema.Schema) error {
	b, err := schema.ToJSON(s)
	if err != nil {
		return err
	}
	return d.loc.WriteFile(ctx, d.path(SchemaName), b)
}

// LoadSchema reads _schema.json. It returns nil without error when the
// directory carries no schema.
func (d *Directory) LoadSchema(ctx context.Context) (*schema.Schema, error) {
	b, err := d.loc.ReadFile(ctx, d.path(SchemaName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return schema.FromJSON(b)
}

// SaveManifest sizes every data file and writes _manifest. Sizes are looked
// up concurrently; entry order follows urls.
func (d *Directory) SaveManifest(ctx context.Context, urls []string) error {
	m := Manifest{Entries: make([]ManifestEntry, len(urls))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			n, err := d.loc.Size(gctx, u)
			if err != nil {
				return err
			}
			m.Entries[i] = ManifestEntry{URL: u, Mandatory: true, Meta: EntryMeta{ContentLength: n}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "size data files")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	return d.loc.WriteFile(ctx, d.path(ManifestName), b)
}

// LoadManifest reads _manifest.
func (d *Directory) LoadManifest(ctx context.Context) (Manifest, error) {
	b, err := d.loc.ReadFile(ctx, d.path(ManifestName))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, errors.Wrap(err, "decode manifest")
	}
	return m, nil
}

// DataURLs returns the data files in consumption order. Without a
// manifest, every non-metadata object in the directory is used in name
// order.
func (d *Directory) DataURLs(ctx context.Context) ([]string, error) {
	m, err := d.LoadManifest(ctx)
	if err == nil {
		return m.URLs(), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	all, err := d.loc.List(ctx, d.URL)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, u := range all {
		if !strings.HasPrefix(location.Base(u), "_") {
			out = append(out, u)
		}
	}
	d.log.Debugw("no manifest; listing directory", "url", d.URL, "files", len(out))
	return out, nil
}

// Finalize writes the metadata documents for data files already in place.
// The manifest goes last so readers never see a partial directory.
func (d *Directory) Finalize(ctx context.Context, f records.Format, s *schema.Schema, dataURLs []string) error {
	if err := d.SaveFormat(ctx, f); err != nil {
		return err
	}
	if s != nil {
		if err := d.SaveSchema(ctx, s); err != nil {
			return err
		}
	}
	if err := d.SaveManifest(ctx, dataURLs); err != nil {
		return err
	}
	d.log.Debugw("records directory written", "url", d.URL, "format", f.String(), "files", len(dataURLs))
	return nil
}

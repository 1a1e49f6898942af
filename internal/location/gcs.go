package location

import (
	"context"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// GCSBackend serves gs://bucket/object URLs.
type GCSBackend struct {
	client *storage.Client
}

// NewGCSBackend builds a client from application default credentials
// plus any extra options.
func NewGCSBackend(ctx context.Context, opts ...option.ClientOption) (*GCSBackend, error) {
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gcs client")
	}
	return &GCSBackend{client: c}, nil
}

func (g *GCSBackend) object(u *url.URL) *storage.ObjectHandle {
	return g.client.Bucket(u.Host).Object(strings.TrimPrefix(u.Path, "/"))
}

func (g *GCSBackend) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	r, err := g.object(u).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create returns the object writer; the object appears when it is closed.
func (g *GCSBackend) Create(ctx context.Context, u *url.URL) (io.WriteCloser, error) {
	return g.object(u).NewWriter(ctx), nil
}

func (g *GCSBackend) Size(ctx context.Context, u *url.URL) (int64, error) {
	attrs, err := g.object(u).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (g *GCSBackend) List(ctx context.Context, u *url.URL) ([]string, error) {
	bucket := u.Host
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: strings.TrimPrefix(u.Path, "/")})
	var out []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, "gs://"+bucket+"/"+attrs.Name)
	}
}

func (g *GCSBackend) Remove(ctx context.Context, u *url.URL) error {
	if !strings.HasSuffix(u.Path, "/") {
		return g.object(u).Delete(ctx)
	}
	urls, err := g.List(ctx, u)
	if err != nil {
		return err
	}
	for _, raw := range urls {
		ou, err := url.Parse(raw)
		if err != nil {
			return err
		}
		if err := g.object(ou).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return err
		}
	}
	return nil
}

// Close releases the client.
func (g *GCSBackend) Close() error { return g.client.Close() }

// Package location resolves records URLs (file://, s3://, gs://) to
// byte streams and scoped scratch directories.
//
// Directory URLs always end in "/". Object stores have no real directories:
// a directory is the set of keys sharing its prefix.
package location

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// Backend serves one URL scheme.
type Backend interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
	// Create returns a writer whose Close commits the object.
	Create(ctx context.Context, u *url.URL) (io.WriteCloser, error)
	Size(ctx context.Context, u *url.URL) (int64, error)
	// List returns the URLs of every object under the directory u.
	List(ctx context.Context, u *url.URL) ([]string, error)
	// Remove deletes u, recursively when u is a directory.
	Remove(ctx context.Context, u *url.URL) error
}

// Resolver dispatches URLs to backends by scheme.
type Resolver struct {
	mu       sync.RWMutex
	backends map[string]Backend
	log      *zap.SugaredLogger
}

// NewResolver returns a resolver serving file:// URLs. Register adds
// object stores.
func NewResolver(l *zap.SugaredLogger) *Resolver {
	r := &Resolver{backends: map[string]Backend{}, log: logging.Or(l)}
	r.Register("file", FileBackend{})
	return r
}

// Register installs b for scheme, replacing any previous backend.
func (r *Resolver) Register(scheme string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = b
}

// Schemes lists the registered schemes in sorted order.
func (r *Resolver) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether scheme has a backend.
func (r *Resolver) Supports(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[scheme]
	return ok
}

func (r *Resolver) resolve(raw string) (Backend, *url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse url %q", raw)
	}
	r.mu.RLock()
	b, ok := r.backends[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errors.Newf("no backend for scheme %q (%s)", u.Scheme, raw)
	}
	return b, u, nil
}

func (r *Resolver) Open(ctx context.Context, raw string) (io.ReadCloser, error) {
	b, u, err := r.resolve(raw)
	if err != nil {
		return nil, err
	}
	rc, err := b.Open(ctx, u)
	return rc, errors.Wrapf(err, "open %s", raw)
}

func (r *Resolver) Create(ctx context.Context, raw string) (io.WriteCloser, error) {
	b, u, err := r.resolve(raw)
	if err != nil {
		return nil, err
	}
	wc, err := b.Create(ctx, u)
	return wc, errors.Wrapf(err, "create %s", raw)
}

func (r *Resolver) Size(ctx context.Context, raw string) (int64, error) {
	b, u, err := r.resolve(raw)
	if err != nil {
		return 0, err
	}
	n, err := b.Size(ctx, u)
	return n, errors.Wrapf(err, "stat %s", raw)
}

func (r *Resolver) List(ctx context.Context, dir string) ([]string, error) {
	b, u, err := r.resolve(AsDir(dir))
	if err != nil {
		return nil, err
	}
	out, err := b.List(ctx, u)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) Remove(ctx context.Context, raw string) error {
	b, u, err := r.resolve(raw)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.Remove(ctx, u), "remove %s", raw)
}

// WriteFile stores data at raw.
func (r *Resolver) WriteFile(ctx context.Context, raw string, data []byte) error {
	w, err := r.Create(ctx, raw)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "write %s", raw)
	}
	return errors.Wrapf(w.Close(), "commit %s", raw)
}

// ReadFile returns the whole object at raw.
func (r *Resolver) ReadFile(ctx context.Context, raw string) ([]byte, error) {
	rc, err := r.Open(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return b, errors.Wrapf(err, "read %s", raw)
}

// Copy streams src to dst, possibly across schemes, and returns the byte
// count.
func (r *Resolver) Copy(ctx context.Context, src, dst string) (int64, error) {
	in, err := r.Open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := r.Create(ctx, dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return n, errors.Wrapf(out.Close(), "commit %s", dst)
}

// TemporaryDirectory creates a uniquely named directory under root, runs
// fn with its URL, and removes it on every exit path.
func (r *Resolver) TemporaryDirectory(ctx context.Context, root string, fn func(dir string) error) (err error) {
	if _, _, rerr := r.resolve(root); rerr != nil {
		return rerr
	}
	dir := Join(AsDir(root), "mvrec-"+uuid.NewString()+"/")
	r.log.Debugw("temporary directory created", "url", dir)
	defer func() {
		// Cleanup must run even when ctx is already cancelled.
		rmErr := r.Remove(context.WithoutCancel(ctx), dir)
		if rmErr != nil {
			r.log.Warnw("temporary directory not removed", "url", dir, "error", rmErr)
			if err == nil {
				err = rmErr
			}
			return
		}
		r.log.Debugw("temporary directory removed", "url", dir)
	}()
	return fn(dir)
}

// Scheme returns the scheme of raw, or "" when it does not parse.
func Scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// AsDir returns raw with a trailing slash.
func AsDir(raw string) string {
	if strings.HasSuffix(raw, "/") {
		return raw
	}
	return raw + "/"
}

// Join appends name to the directory URL dir.
func Join(dir, name string) string {
	return AsDir(dir) + strings.TrimPrefix(name, "/")
}

// Base returns the last path element of raw.
func Base(raw string) string {
	raw = strings.TrimSuffix(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

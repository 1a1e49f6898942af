package location

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// FileBackend serves file:// URLs from the local filesystem.
type FileBackend struct{}

// LocalPath returns the filesystem path of a file:// URL.
func LocalPath(u *url.URL) string {
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = "/" + u.Host + p
	}
	return filepath.FromSlash(p)
}

// FileURL returns the file:// URL of a local path.
func FileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	if strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		u.Path += "/"
	}
	return u.String()
}

func (FileBackend) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	f, err := os.Open(LocalPath(u))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (FileBackend) Create(_ context.Context, u *url.URL) (io.WriteCloser, error) {
	p := LocalPath(u)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (FileBackend) Size(_ context.Context, u *url.URL) (int64, error) {
	fi, err := os.Stat(LocalPath(u))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (FileBackend) List(_ context.Context, u *url.URL) ([]string, error) {
	root := LocalPath(u)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, Join(u.String(), filepath.ToSlash(rel)))
		return nil
	})
	return out, err
}

func (FileBackend) Remove(_ context.Context, u *url.URL) error {
	return os.RemoveAll(LocalPath(u))
}

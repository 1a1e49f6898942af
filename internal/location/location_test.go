package location

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// memBackend is an object store held in a map.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{objects: map[string][]byte{}} }

type memWriter struct {
	bytes.Buffer
	commit func([]byte)
}

func (w *memWriter) Close() error { w.commit(w.Bytes()); return nil }

func (m *memBackend) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[u.String()]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBackend) Create(_ context.Context, u *url.URL) (io.WriteCloser, error) {
	key := u.String()
	return &memWriter{commit: func(b []byte) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.objects[key] = append([]byte(nil), b...)
	}}, nil
}

func (m *memBackend) Size(_ context.Context, u *url.URL) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[u.String()]
	if !ok {
		return 0, os.ErrNotExist
	}
	return int64(len(b)), nil
}

func (m *memBackend) List(_ context.Context, u *url.URL) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, u.String()) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memBackend) Remove(_ context.Context, u *url.URL) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if k == u.String() || (strings.HasSuffix(u.String(), "/") && strings.HasPrefix(k, u.String())) {
			delete(m.objects, k)
		}
	}
	return nil
}

func TestFileBackend_WriteListReadRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewResolver(nil)
	dir := FileURL(t.TempDir()) + "/"

	require.NoError(t, r.WriteFile(ctx, Join(dir, "b/2.csv"), []byte("two")))
	require.NoError(t, r.WriteFile(ctx, Join(dir, "1.csv"), []byte("one!")))

	got, err := r.List(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{Join(dir, "1.csv"), Join(dir, "b/2.csv")}, got)

	n, err := r.Size(ctx, Join(dir, "1.csv"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	b, err := r.ReadFile(ctx, Join(dir, "b/2.csv"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	require.NoError(t, r.Remove(ctx, Join(dir, "b/")))
	got, err = r.List(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{Join(dir, "1.csv")}, got)

	_, err = r.Open(ctx, Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileBackend_ListMissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	got, err := r.List(context.Background(), FileURL(filepath.Join(t.TempDir(), "nope")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTemporaryDirectory_RemovedOnAllPaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewResolver(nil)
	mem := newMemBackend()
	r.Register("mem", mem)

	var seen string
	err := r.TemporaryDirectory(ctx, "mem://scratch/base", func(dir string) error {
		seen = dir
		return r.WriteFile(ctx, Join(dir, "x"), []byte("x"))
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(seen, "mem://scratch/base/mvrec-"))
	assert.True(t, strings.HasSuffix(seen, "/"))
	assert.Empty(t, mem.objects)

	boom := errors.New("boom")
	var second string
	err = r.TemporaryDirectory(ctx, "mem://scratch/base/", func(dir string) error {
		second = dir
		require.NoError(t, r.WriteFile(ctx, Join(dir, "y"), []byte("y")))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotEqual(t, seen, second)
	assert.Empty(t, mem.objects)
}

func TestResolver_Copy_AcrossSchemes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewResolver(nil)
	r.Register("mem", newMemBackend())
	src := Join(FileURL(t.TempDir()), "in.csv")
	require.NoError(t, r.WriteFile(ctx, src, []byte("a,b\n")))

	n, err := r.Copy(ctx, src, "mem://bucket/out.csv")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	b, err := r.ReadFile(ctx, "mem://bucket/out.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(b))

	assert.Equal(t, []string{"file", "mem"}, r.Schemes())
	assert.True(t, r.Supports("mem"))
	assert.False(t, r.Supports("s3"))
}

func TestResolver_UnknownScheme(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	_, err := r.Open(context.Background(), "ftp://host/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no backend for scheme "ftp"`)
}

func TestURLHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "s3://b/dir/", AsDir("s3://b/dir"))
	assert.Equal(t, "s3://b/dir/", AsDir("s3://b/dir/"))
	assert.Equal(t, "s3://b/dir/f.csv", Join("s3://b/dir", "/f.csv"))
	assert.Equal(t, "f.csv", Base("s3://b/dir/f.csv"))
	assert.Equal(t, "dir", Base("s3://b/dir/"))
	assert.Equal(t, "gs", Scheme("gs://bucket/x"))

	u, err := url.Parse("file:///tmp/a%20b/c.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/a b/c.csv"), LocalPath(u))
}

func TestEnsureBackends_LocalOnly(t *testing.T) {
	r := NewResolver(nil)
	release, err := EnsureBackends(context.Background(), r, S3Config{}, FileURL(t.TempDir()), "ftp://host/x")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, []string{"file"}, r.Schemes())
}

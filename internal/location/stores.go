package location

import (
	"context"
)

// EnsureBackends registers the object-store backends the given URLs need.
// Schemes already registered are left alone. The returned function releases
// clients opened here.
func EnsureBackends(ctx context.Context, r *Resolver, s3cfg S3Config, urls ...string) (func(), error) {
	var closers []func()
	release := func() {
		for _, c := range closers {
			c()
		}
	}
	for _, u := range urls {
		scheme := Scheme(u)
		if r.Supports(scheme) {
			continue
		}
		switch scheme {
		case "s3":
			b, err := NewS3Backend(ctx, s3cfg)
			if err != nil {
				release()
				return nil, err
			}
			r.Register("s3", b)
		case "gs":
			b, err := NewGCSBackend(ctx)
			if err != nil {
				release()
				return nil, err
			}
			r.Register("gs", b)
			closers = append(closers, func() { _ = b.Close() })
		}
	}
	return release, nil
}

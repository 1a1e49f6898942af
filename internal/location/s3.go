package location

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// S3Config configures the S3 backend. Empty fields use the SDK's default
// credential and region chain.
type S3Config struct {
	Region         string
	Endpoint       string // optional, for S3-compatible stores
	ForcePathStyle bool
}

// S3Backend serves s3://bucket/key URLs.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Backend loads AWS configuration and builds a client.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3BackendFromClient(client), nil
}

// NewS3BackendFromClient wraps an existing client.
func NewS3BackendFromClient(client *s3.Client) *S3Backend {
	return &S3Backend{client: client, uploader: manager.NewUploader(client)}
}

func bucketKey(u *url.URL) (string, string) {
	return u.Host, strings.TrimPrefix(u.Path, "/")
}

func (b *S3Backend) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket, key := bucketKey(u)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// Create streams writes into a multipart upload. Parts are uploaded
// concurrently by the SDK's upload manager while the caller writes.
func (b *S3Backend) Create(ctx context.Context, u *url.URL) (io.WriteCloser, error) {
	bucket, key := bucketKey(u)
	pr, pw := io.Pipe()
	w := &pipeUpload{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// pipeUpload feeds a background upload; Close waits for it to finish.
type pipeUpload struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *pipeUpload) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *pipeUpload) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (b *S3Backend) Size(ctx context.Context, u *url.URL) (int64, error) {
	bucket, key := bucketKey(u)
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (b *S3Backend) List(ctx context.Context, u *url.URL) ([]string, error) {
	bucket, prefix := bucketKey(u)
	var out []string
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, "s3://"+bucket+"/"+aws.ToString(obj.Key))
		}
	}
	return out, nil
}

// Remove deletes one object, or every object under a directory URL in
// batches of up to 1000 keys.
func (b *S3Backend) Remove(ctx context.Context, u *url.URL) error {
	bucket, key := bucketKey(u)
	if !strings.HasSuffix(key, "/") {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		return err
	}
	urls, err := b.List(ctx, u)
	if err != nil {
		return err
	}
	for start := 0; start < len(urls); start += 1000 {
		end := min(start+1000, len(urls))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, raw := range urls[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(strings.TrimPrefix(raw, "s3://"+bucket+"/"))})
		}
		if _, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return err
		}
	}
	return nil
}

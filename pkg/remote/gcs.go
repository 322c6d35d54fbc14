package remote

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS reads the public Google Cloud mirror of the GOES-R buckets.
type GCS struct {
	client  *storage.Client
	buckets map[string]string
}

// NewGCS creates an unauthenticated GCS client. buckets maps archive bucket
// names to mirror bucket names; unmapped names are used as-is.
func NewGCS(ctx context.Context, buckets map[string]string) (*GCS, error) {
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("could not create gcs client: %w", err)
	}
	return &GCS{client: client, buckets: buckets}, nil
}

func (c *GCS) Name() string { return BackendGCS }

func (c *GCS) bucket(name string) string {
	if m, ok := c.buckets[name]; ok && m != "" {
		return m
	}
	return name
}

func (c *GCS) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	b := c.bucket(bucket)
	it := c.client.Bucket(b).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", b, prefix, err)
		}
		out = append(out, Object{Key: attrs.Name, Size: attrs.Size, LastModified: attrs.Updated})
	}
}

func (c *GCS) Fetch(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	b := c.bucket(bucket)
	r, err := c.client.Bucket(b).Object(key).NewReader(ctx)
	if err != nil {
		return 0, fmt.Errorf("get gs://%s/%s: %w", b, key, err)
	}
	defer r.Close()
	return io.Copy(w, r)
}

// Close releases the underlying client.
func (c *GCS) Close() error {
	return c.client.Close()
}

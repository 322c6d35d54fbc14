// Package remote lists and fetches objects from the public GOES-R archive.
// All backends are anonymous and read-only.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Object is one listed archive object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client is implemented by every archive backend.
type Client interface {
	Name() string
	// List returns every object under prefix, following pagination.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// Fetch streams the object body into w and returns the bytes written.
	Fetch(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
}

// Backend names accepted by New.
const (
	BackendS3   = "s3"
	BackendHTTP = "http"
	BackendGCS  = "gcs"
)

// Options configure New.
type Options struct {
	Backend  string
	Endpoint string
	Region   string
	RetryMax int
	// BucketMap rewrites bucket names for mirrors, e.g. noaa-goes19 to
	// gcp-public-data-goes-19.
	BucketMap map[string]string
	Timeout   time.Duration
}

// New builds the client selected by opts.Backend.
func New(ctx context.Context, opts Options) (Client, error) {
	switch opts.Backend {
	case "", BackendS3:
		return NewS3(ctx, opts.Region, opts.Endpoint)
	case BackendHTTP:
		return NewHTTP(opts.Endpoint, opts.RetryMax, opts.Timeout), nil
	case BackendGCS:
		return NewGCS(ctx, opts.BucketMap)
	}
	return nil, fmt.Errorf("unknown remote backend %q (available: s3, http, gcs)", opts.Backend)
}

// Package store defines the blob storage contract and its S3
// implementation
package store

import (
	"context"
	"io"
	"time"
)

// Blob is the narrow storage contract the handlers consume. The S3
// implementation is the default, tests swap in fakes
type Blob interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error

	// SetExpiry mirrors the hosting deadline into the object's metadata.
	// The ledger advertisement stays authoritative, this is bookkeeping
	// for lifecycle tooling on the storage side
	SetExpiry(ctx context.Context, key string, t time.Time) error

	PresignUpload(ctx context.Context, key string, size int64, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

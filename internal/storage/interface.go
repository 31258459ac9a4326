package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of S3 operations the audit archive needs.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when the provider allows it.
	EnsureBucket(ctx context.Context) error

	// Upload writes an object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

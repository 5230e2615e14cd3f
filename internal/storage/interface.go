package storage

import (
	"context"
	"io"
)

// ObjectStorage is the bucket holding call recordings and transcript output.
type ObjectStorage interface {
	// Bucket returns the bucket this storage operates on.
	Bucket() string

	// Upload writes an object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the s3:// URI of key.
	URI(key string) string
}

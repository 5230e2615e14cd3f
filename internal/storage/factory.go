package storage

import (
	"context"
	"strings"
)

// NewStorage creates an ObjectStorage, detecting the storage type from the
// endpoint when it is not set.
func NewStorage(ctx context.Context, cfg *S3Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	return NewS3Storage(ctx, cfg)
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "amazonaws.com") {
		return StorageTypeS3
	}
	return StorageTypeS3Compatible
}

package storage

import (
	"context"
	"strings"

	"github.com/timmy/assetlens/internal/config"
)

// NewStorage creates an ObjectStorage from the storage configuration.
// Parameters:
//   - ctx: context for loading the AWS configuration.
//   - cfg: storage configuration including endpoint, credentials, and bucket.
//
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	storeType := StorageType(cfg.Type)
	if storeType == "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(ctx, &S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
	})
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"), endpoint == "":
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}

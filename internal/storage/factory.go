package storage

import (
	"context"
	"fmt"

	"github.com/imedwei/archive-upload/internal/config"
)

// NewStorage creates a storage provider based on configuration. Failed
// uploads are not retried here; the pending queue retries them next run.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	var storage Storage
	var err error

	switch cfg.Provider {
	case "s3":
		storage, err = NewS3Storage(ctx, S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			Profile:      cfg.S3.Profile,
		})

	case "gcs":
		storage, err = NewGCSStorage(ctx, GCSConfig{
			CredentialsFile: cfg.GCS.CredentialsFile,
		})

	case "file":
		storage, err = NewLocalStorage(cfg.File.Root)

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.Provider, err)
	}

	return storage, nil
}

// Factory creates a storage provider on demand.
type Factory func(ctx context.Context) (Storage, error)

// NewFactory returns a Factory that calls NewStorage with cfg.
func NewFactory(cfg config.StorageConfig) Factory {
	return func(ctx context.Context) (Storage, error) {
		return NewStorage(ctx, cfg)
	}
}

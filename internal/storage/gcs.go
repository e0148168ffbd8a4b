package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage implements Storage interface for Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
}

// GCSConfig holds GCS-specific configuration.
type GCSConfig struct {
	CredentialsFile string // Optional; application default credentials otherwise
}

// NewGCSStorage creates a new GCS storage provider.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if err := ValidateCredentialsFile(cfg.CredentialsFile); err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	// Create GCS client
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{client: client}, nil
}

// Upload implements Storage.Upload.
func (g *GCSStorage) Upload(ctx context.Context, bucket, key string, reader io.Reader, metadata map[string]string) error {
	// Cancelling the context aborts the write if it has not completed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.Metadata = metadata

	// Copy data
	if _, err := io.Copy(w, reader); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to upload to GCS: %w", err)
	}

	// Close writer to complete upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload: %w", err)
	}

	return nil
}

// Close closes the GCS client connection.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

// ValidateCredentialsFile checks that path holds a Google credentials JSON document.
func ValidateCredentialsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read GCS credentials file: %w", err)
	}

	return validateCredentialsJSON(data)
}

func validateCredentialsJSON(data []byte) error {
	var creds struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("invalid GCS credentials JSON: %w", err)
	}

	switch creds.Type {
	case "service_account", "authorized_user", "external_account":
		return nil
	default:
		return fmt.Errorf("invalid GCS credentials type: %s", creds.Type)
	}
}

// Package storage defines the interface for remote object stores.
package storage

import (
	"context"
	"io"
)

// Storage uploads archived files to a remote object store.
type Storage interface {
	// Upload stores the reader's content at bucket/key, overwriting any
	// existing object.
	Upload(ctx context.Context, bucket, key string, reader io.Reader, metadata map[string]string) error

	// Close releases client resources.
	Close() error
}

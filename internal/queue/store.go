package queue

import (
	"context"
	"errors"
	"fmt"
)

// ErrCorrupt is returned by Load when persisted state exists but cannot be decoded.
var ErrCorrupt = errors.New("pending queue state is corrupt")

// Store persists the queue between runs. State is read and written as a whole.
type Store interface {
	// Load returns the persisted entries, or an empty slice when nothing has
	// been saved yet.
	Load(ctx context.Context) ([]Entry, error)

	// Save replaces the persisted entries.
	Save(ctx context.Context, entries []Entry) error

	// Close releases any resources held by the store.
	Close() error
}

// NewStore opens the store for the given backend ("json" or "bolt") at path.
func NewStore(backend, path string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(path), nil
	case "bolt":
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", backend)
	}
}

package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("pending")
	boltKey    = []byte("entries")
)

// BoltStore keeps the queue as a single value in a bolt database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the bolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	// A second instance fails fast instead of blocking on the file lock.
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open pending queue %s: %w", path, err)
	}

	return &BoltStore{db: db}, nil
}

// Load implements Store.Load.
func (s *BoltStore) Load(ctx context.Context) ([]Entry, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(boltKey); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}

	if data == nil {
		return []Entry{}, nil
	}

	return decodeEntries(data)
}

// Save implements Store.Save.
func (s *BoltStore) Save(ctx context.Context, entries []Entry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		return b.Put(boltKey, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write pending queue: %w", err)
	}

	return nil
}

// Close implements Store.Close.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

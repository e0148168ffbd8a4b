package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/imedwei/archive-upload/internal/utils"
)

// LocalStorage implements Storage on a local directory tree laid out as
// root/<bucket>/<key>. It serves offline hosts, mounted network shares and tests.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a storage rooted at root.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid local storage root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// Upload implements Storage.Upload. The object is written to a temporary
// file and renamed into place.
func (l *LocalStorage) Upload(ctx context.Context, bucket, key string, reader io.Reader, metadata map[string]string) error {
	dest, err := l.ObjectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := utils.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}

	return nil
}

// Close implements Storage.Close.
func (l *LocalStorage) Close() error {
	return nil
}

// ObjectPath returns the file that holds bucket/key. Keys that would escape
// the bucket directory are rejected.
func (l *LocalStorage) ObjectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid object address %q/%q", bucket, key)
	}

	bucketDir := filepath.Join(l.root, bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes bucket %q", key, bucket)
	}

	return p, nil
}

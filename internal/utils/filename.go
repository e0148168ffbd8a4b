// Package utils provides utility functions for the archive service.
package utils

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidDestination is returned when a remote destination has no bucket or key.
var ErrInvalidDestination = errors.New("invalid remote destination")

// ArchivePath returns where the compressed copy of source is written:
// archiveDir/<source base name><ext>.
func ArchivePath(archiveDir, source, ext string) string {
	return filepath.Join(archiveDir, ArchiveFilename(source, ext))
}

// ArchiveFilename returns the base name of the compressed copy of source.
func ArchiveFilename(source, ext string) string {
	return filepath.Base(source) + ext
}

// RemoteDestination joins a "bucket/key-prefix" with an archive file name.
// Duplicate and trailing slashes in the prefix are cleaned.
func RemoteDestination(bucketAndKey, archiveName string) string {
	return path.Join(bucketAndKey, archiveName)
}

// SplitRemoteDestination splits "bucket/some/key" into its bucket and key.
// The key never has a leading separator.
func SplitRemoteDestination(dest string) (bucket, key string, err error) {
	trimmed := strings.TrimLeft(dest, "/")

	bucket, key, _ = strings.Cut(trimmed, "/")
	key = strings.TrimLeft(key, "/")

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDestination, dest)
	}

	return bucket, key, nil
}

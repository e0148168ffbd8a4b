// Package upload drains the pending queue into the object store.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/queue"
	"github.com/imedwei/archive-upload/internal/storage"
	"github.com/imedwei/archive-upload/internal/utils"
)

// ToolName is recorded in the metadata of every uploaded object.
const ToolName = "archive-upload"

// Upload statuses recorded in metrics.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusMissing = "missing"
)

// Result summarizes one upload pass.
type Result struct {
	Uploaded int
	Missing  int
	Failed   int
}

// Uploader sends queued archives to the object store.
type Uploader struct {
	storage storage.Storage
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewUploader creates a new uploader.
func NewUploader(s storage.Storage, m *metrics.Metrics, logger *slog.Logger) *Uploader {
	return &Uploader{
		storage: s,
		metrics: m,
		logger:  logger.With("component", "uploader"),
	}
}

// Run attempts every entry in q once, in queue order. Uploaded and missing
// entries are removed; failed entries stay for the next run.
func (u *Uploader) Run(ctx context.Context, q *queue.Queue) Result {
	var res Result

	for _, entry := range q.Snapshot() {
		if ctx.Err() != nil {
			u.logger.Warn("Upload interrupted, remaining entries stay queued", "remaining", q.Len())
			break
		}

		if _, err := os.Stat(entry.LocalPath); errors.Is(err, os.ErrNotExist) {
			q.Remove(entry)
			res.Missing++
			u.metrics.RecordUpload(StatusMissing)
			u.logger.Warn("Archive not uploaded, file missing", "file", entry.LocalPath)
			continue
		}

		n, elapsed, err := u.uploadEntry(ctx, entry)
		if err != nil {
			res.Failed++
			u.metrics.RecordUpload(StatusFailure)
			u.logger.Error("Error attempting to upload",
				"file", entry.LocalPath,
				"destination", entry.RemoteDestination,
				"error", err,
			)
			continue
		}

		q.Remove(entry)
		res.Uploaded++
		u.metrics.RecordUpload(StatusSuccess)
		u.metrics.UploadedBytes.Add(float64(n))
		u.logger.Info("Uploaded",
			"file", entry.LocalPath,
			"destination", entry.RemoteDestination,
			"size", utils.FormatBytes(n),
			"duration", elapsed.Round(time.Millisecond),
			"rate", utils.FormatRate(n, elapsed),
		)
	}

	return res
}

func (u *Uploader) uploadEntry(ctx context.Context, entry queue.Entry) (int64, time.Duration, error) {
	bucket, key, err := utils.SplitRemoteDestination(entry.RemoteDestination)
	if err != nil {
		return 0, 0, err
	}

	f, err := os.Open(entry.LocalPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	name := filepath.Base(entry.LocalPath)
	reader := utils.NewProgressReader(f, func(total int64, elapsed time.Duration) {
		u.logger.Info("Upload progress",
			"file", name,
			"sent", utils.FormatBytes(total),
			"rate", utils.FormatRate(total, elapsed),
		)
	})

	metadata := map[string]string{
		"archive-tool":  ToolName,
		"archived-file": name,
	}

	start := time.Now()
	if err := u.storage.Upload(ctx, bucket, key, reader, metadata); err != nil {
		return 0, 0, fmt.Errorf("failed to upload to %s/%s: %w", bucket, key, err)
	}

	return reader.BytesRead(), time.Since(start), nil
}

package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/imedwei/archive-upload/internal/age"
	"github.com/imedwei/archive-upload/internal/config"
	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/queue"
	"github.com/imedwei/archive-upload/internal/utils"
)

// Result summarizes one archiving pass.
type Result struct {
	Archived int
	Skipped  int // matched but not finished yet
	Failed   int
}

func (r *Result) add(o Result) {
	r.Archived += o.Archived
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Archiver turns finished source files into queued archive files.
type Archiver struct {
	filter  age.Filter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewArchiver creates a new archiver.
func NewArchiver(filter age.Filter, m *metrics.Metrics, logger *slog.Logger) *Archiver {
	return &Archiver{
		filter:  filter,
		metrics: m,
		logger:  logger.With("component", "archiver"),
	}
}

// Run archives every directory in configuration order, appending each
// archived file to q. Per-file errors are logged and never stop the pass.
func (a *Archiver) Run(ctx context.Context, dirs []config.DirectoryConfig, q *queue.Queue) Result {
	var total Result
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		total.add(a.ArchiveDirectory(ctx, dir, q))
	}
	return total
}

// ArchiveDirectory processes one directory's patterns in order.
func (a *Archiver) ArchiveDirectory(ctx context.Context, dir config.DirectoryConfig, q *queue.Queue) Result {
	var res Result
	logger := a.logger.With("directory", dir.Directory)

	codec, err := CodecFor(dir.Compression)
	if err != nil {
		logger.Error("Skipping directory", "error", err)
		return res
	}

	if err := os.MkdirAll(dir.ArchiveDir, 0755); err != nil {
		logger.Error("Failed to create archive directory, skipping", "archive_dir", dir.ArchiveDir, "error", err)
		return res
	}

	if _, err := os.Stat(dir.Directory); err != nil {
		logger.Warn("Source directory unavailable", "error", err)
		return res
	}

	fsys := os.DirFS(dir.Directory)
	for _, pat := range dir.FilePatterns {
		matches, err := doublestar.Glob(fsys, pat.Pattern)
		if err != nil {
			logger.Error("Invalid file pattern", "pattern", pat.Pattern, "error", err)
			continue
		}

		threshold := pat.FinishedAfter()
		for _, m := range matches {
			if ctx.Err() != nil {
				return res
			}

			src := filepath.Join(dir.Directory, filepath.FromSlash(m))
			if isArchiveOutput(src, dir, codec) {
				continue
			}

			switch a.archiveIfFinished(src, threshold, dir, codec, q, logger) {
			case outcomeArchived:
				res.Archived++
			case outcomeSkipped:
				res.Skipped++
			case outcomeFailed:
				res.Failed++
			}
		}
	}

	return res
}

type outcome int

const (
	outcomeIgnored outcome = iota
	outcomeSkipped
	outcomeArchived
	outcomeFailed
)

func (a *Archiver) archiveIfFinished(src string, threshold time.Duration, dir config.DirectoryConfig, codec Codec, q *queue.Queue, logger *slog.Logger) outcome {
	info, err := os.Stat(src)
	if err != nil {
		logger.Warn("Matched file disappeared", "file", src, "error", err)
		return outcomeIgnored
	}
	if !info.Mode().IsRegular() {
		return outcomeIgnored
	}

	finished, reason, err := a.filter.IsFinished(src, threshold)
	if err != nil {
		logger.Warn("Could not check file age", "file", src, "error", err)
		return outcomeIgnored
	}
	if !finished {
		logger.Debug("File not finished, leaving in place", "file", src, "reason", reason)
		return outcomeSkipped
	}

	dest := utils.ArchivePath(dir.ArchiveDir, src, codec.Extension())
	in, out, err := writeArchive(src, dest, codec)
	if err != nil {
		logger.Error("Error attempting to archive", "file", src, "error", err)
		a.metrics.ArchiveFailures.Inc()
		return outcomeFailed
	}

	// The entry must be queued before the source goes away.
	q.Append(queue.Entry{
		LocalPath:         dest,
		RemoteDestination: utils.RemoteDestination(dir.BucketAndKey, filepath.Base(dest)),
	})
	a.metrics.FilesArchived.Inc()

	if err := os.Remove(src); err != nil {
		logger.Error("Archived but failed to delete source file", "file", src, "error", err)
	}

	logger.Info("Archived",
		"file", src,
		"archive", dest,
		"reason", reason,
		"original_size", utils.FormatBytes(in),
		"compressed_size", utils.FormatBytes(out),
	)
	return outcomeArchived
}

// writeArchive compresses src into dest through a temporary file in dest's
// directory, so dest is either absent, the previous archive, or complete.
func writeArchive(src, dest string, codec Codec) (in, out int64, err error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	counter := utils.NewCountingWriter(tmp)
	zw, err := codec.NewWriter(counter)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create %s writer: %w", codec.Name(), err)
	}

	reader := utils.NewProgressReader(f, nil)
	if _, err := utils.Copy(zw, reader); err != nil {
		_ = zw.Close()
		return 0, 0, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to finish %s stream: %w", codec.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, 0, fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return 0, 0, fmt.Errorf("failed to move archive into place: %w", err)
	}
	committed = true

	return reader.BytesRead(), counter.BytesWritten(), nil
}

// isArchiveOutput reports whether src is an archive this directory produced.
// When the archive dir is nested inside the source dir everything below it is
// output. When the two are the same directory only files carrying the codec
// extension are. An archive dir above the source dir never holds matches.
func isArchiveOutput(src string, dir config.DirectoryConfig, codec Codec) bool {
	if isWithin(dir.ArchiveDir, dir.Directory) {
		return isWithin(src, dir.ArchiveDir)
	}
	return filepath.Dir(filepath.Clean(src)) == filepath.Clean(dir.ArchiveDir) &&
		strings.HasSuffix(src, codec.Extension())
}

// isWithin reports whether p is strictly inside dir.
func isWithin(p, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imedwei/archive-upload/internal/age"
	"github.com/imedwei/archive-upload/internal/config"
	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/queue"
)

// Retention deletes old archive files that are no longer pending upload.
type Retention struct {
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRetention creates a retention pass using the wall clock.
func NewRetention(m *metrics.Metrics, logger *slog.Logger) *Retention {
	return &Retention{
		now:     time.Now,
		metrics: m,
		logger:  logger.With("component", "retention"),
	}
}

// WithClock returns a copy that reads the time from now.
func (r *Retention) WithClock(now func() time.Time) *Retention {
	c := *r
	c.now = now
	return &c
}

// Run cleans every directory with a positive delete-after. The set of
// pending paths is taken once, before any deletion, and an archive listed
// there is never deleted. It returns the number of files removed.
func (r *Retention) Run(ctx context.Context, dirs []config.DirectoryConfig, q *queue.Queue) int {
	pending := q.LocalPaths()

	var deleted int
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		deleted += r.CleanDirectory(dir, pending)
	}
	return deleted
}

// CleanDirectory applies retention to one archive directory.
func (r *Retention) CleanDirectory(dir config.DirectoryConfig, pending map[string]struct{}) int {
	maxAge := dir.MaxArchiveAge()
	if maxAge <= 0 {
		return 0
	}

	codec, err := CodecFor(dir.Compression)
	if err != nil {
		r.logger.Error("Skipping retention", "archive_dir", dir.ArchiveDir, "error", err)
		return 0
	}

	entries, err := os.ReadDir(dir.ArchiveDir)
	if err != nil {
		r.logger.Error("Failed to list archive directory", "archive_dir", dir.ArchiveDir, "error", err)
		return 0
	}

	now := r.now()
	var deleted int
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), codec.Extension()) {
			continue
		}

		p := filepath.Join(dir.ArchiveDir, e.Name())
		if _, ok := pending[p]; ok {
			continue
		}

		fileAge, err := age.FileAge(p, now)
		if err != nil {
			r.logger.Warn("Could not check archive age", "file", p, "error", err)
			continue
		}
		if fileAge <= maxAge {
			continue
		}

		if err := os.Remove(p); err != nil {
			r.logger.Error("Failed to delete old archive", "file", p, "error", err)
			continue
		}

		deleted++
		r.metrics.ArchivesDeleted.Inc()
		r.logger.Info("Deleted archive exceeding max age",
			"file", p,
			"age_days", int(fileAge.Hours()/24),
		)
	}

	return deleted
}

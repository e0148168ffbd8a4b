// Package pipeline runs one archive-upload pass from queue load to queue save.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/imedwei/archive-upload/internal/age"
	"github.com/imedwei/archive-upload/internal/archive"
	"github.com/imedwei/archive-upload/internal/config"
	"github.com/imedwei/archive-upload/internal/health"
	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/queue"
	"github.com/imedwei/archive-upload/internal/storage"
	"github.com/imedwei/archive-upload/internal/upload"
)

const pushTimeout = 10 * time.Second

// Orchestrator coordinates a single run.
type Orchestrator struct {
	config     *config.Config
	store      queue.Store
	archiver   *archive.Archiver
	retention  *archive.Retention
	newStorage storage.Factory
	metrics    *metrics.Metrics
	tracker    *health.Tracker
	logger     *slog.Logger
}

// NewOrchestrator creates a new run orchestrator. newStorage is called once
// per run, when the upload phase starts.
func NewOrchestrator(cfg *config.Config, store queue.Store, newStorage storage.Factory, filter age.Filter, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		config:     cfg,
		store:      store,
		archiver:   archive.NewArchiver(filter, m, logger),
		retention:  archive.NewRetention(m, logger),
		newStorage: newStorage,
		metrics:    m,
		logger:     logger,
	}
}

// WithTracker reports phase progress to t.
func (o *Orchestrator) WithTracker(t *health.Tracker) *Orchestrator {
	o.tracker = t
	return o
}

// Run loads the pending queue, archives finished files, applies retention,
// uploads pending archives and saves the queue. A queue that was loaded is
// always saved, even when a phase panics. Per-file errors are logged and do
// not fail the run.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	startTime := time.Now()
	o.logger.Info("Starting archive-upload run", "directories", len(o.config.Directories))

	o.tracker.StartPhase("load")
	entries, err := o.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load pending queue: %w", err)
		o.tracker.Finish(err)
		return err
	}
	q := queue.New(entries)
	o.tracker.SetPending(q.Len())
	o.logger.Info("Loaded pending queue", "pending", q.Len())

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("General error", "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("run aborted: %v", r)
		}

		// The run context may already be cancelled; the queue must still be written.
		finishCtx := context.WithoutCancel(ctx)

		o.tracker.StartPhase("save")
		if saveErr := o.store.Save(finishCtx, q.Entries()); saveErr != nil {
			o.logger.Error("Failed to save pending queue", "pending", q.Len(), "error", saveErr)
		} else {
			o.logger.Info("Saved pending queue", "pending", q.Len())
		}

		o.metrics.PendingUploads.Set(float64(q.Len()))
		o.metrics.PhaseDuration.WithLabelValues("total").Observe(time.Since(startTime).Seconds())
		if err == nil {
			o.metrics.LastSuccessTimestamp.SetToCurrentTime()
		}
		o.tracker.SetPending(q.Len())
		o.tracker.Finish(err)
		o.pushMetrics(finishCtx)
	}()

	o.tracker.StartPhase("archive")
	phaseStart := time.Now()
	archived := o.archiver.Run(ctx, o.config.Directories, q)
	o.metrics.PhaseDuration.WithLabelValues("archive").Observe(time.Since(phaseStart).Seconds())
	o.logger.Info("Archive phase completed",
		"archived", archived.Archived,
		"not_finished", archived.Skipped,
		"failed", archived.Failed,
	)

	o.tracker.SetPending(q.Len())
	o.tracker.StartPhase("retention")
	phaseStart = time.Now()
	deleted := o.retention.Run(ctx, o.config.Directories, q)
	o.metrics.PhaseDuration.WithLabelValues("retention").Observe(time.Since(phaseStart).Seconds())
	o.logger.Info("Retention phase completed", "deleted_count", deleted)

	o.tracker.StartPhase("upload")
	phaseStart = time.Now()
	if err := o.upload(ctx, q); err != nil {
		return err
	}
	o.metrics.PhaseDuration.WithLabelValues("upload").Observe(time.Since(phaseStart).Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("run interrupted: %w", ctxErr)
	}

	o.logger.Info("Run completed", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// upload creates the storage provider and drains q into it. When the
// provider cannot be created every entry stays queued for the next run.
func (o *Orchestrator) upload(ctx context.Context, q *queue.Queue) error {
	s, err := o.newStorage(ctx)
	if err != nil {
		o.logger.Error("Failed to create storage provider, pending uploads stay queued",
			"provider", o.config.Storage.Provider,
			"pending", q.Len(),
			"error", err,
		)
		return fmt.Errorf("failed to create storage provider: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			o.logger.Warn("Failed to close storage provider", "error", err)
		}
	}()

	uploaded := upload.NewUploader(s, o.metrics, o.logger).Run(ctx, q)
	o.logger.Info("Upload phase completed",
		"uploaded", uploaded.Uploaded,
		"missing", uploaded.Missing,
		"failed", uploaded.Failed,
		"pending", q.Len(),
	)
	return nil
}

func (o *Orchestrator) pushMetrics(ctx context.Context) {
	url := o.config.Metrics.PushgatewayURL
	if url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := o.metrics.Push(ctx, url, o.config.Metrics.Job); err != nil {
		o.logger.Warn("Failed to push metrics", "url", url, "error", err)
	}
}

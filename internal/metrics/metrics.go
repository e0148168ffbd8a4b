// Package metrics provides Prometheus metrics for one archive-upload run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the collectors for a single run, registered on their own
// registry so a batch process can push them when it finishes.
type Metrics struct {
	registry *prometheus.Registry

	// FilesArchived counts source files compressed and queued.
	FilesArchived prometheus.Counter

	// ArchiveFailures counts source files left in place after an error.
	ArchiveFailures prometheus.Counter

	// ArchivesDeleted counts archive files removed by retention.
	ArchivesDeleted prometheus.Counter

	// Uploads counts upload outcomes by status: success, failure or missing.
	Uploads *prometheus.CounterVec

	// UploadedBytes counts bytes sent to the object store.
	UploadedBytes prometheus.Counter

	// PendingUploads is the queue length when the run ended.
	PendingUploads prometheus.Gauge

	// PhaseDuration tracks the duration of each pipeline phase.
	PhaseDuration *prometheus.HistogramVec

	// LastSuccessTimestamp is set when a run completes without a fatal error.
	LastSuccessTimestamp prometheus.Gauge
}

// New creates the run's collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesArchived: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_upload_files_archived_total",
			Help: "Total number of source files compressed into the archive directory",
		}),
		ArchiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_upload_archive_failures_total",
			Help: "Total number of source files that failed to archive",
		}),
		ArchivesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_upload_archives_deleted_total",
			Help: "Total number of archive files deleted by retention",
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_upload_uploads_total",
			Help: "Total number of pending uploads processed",
		}, []string{"status"}),
		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_upload_uploaded_bytes_total",
			Help: "Total number of bytes uploaded",
		}),
		PendingUploads: factory.NewGauge(prometheus.GaugeOpts{
			Name: "archive_upload_pending_uploads",
			Help: "Number of archive files still waiting to be uploaded",
		}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archive_upload_phase_duration_seconds",
			Help:    "Duration of pipeline phases in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}, []string{"phase"}),
		LastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "archive_upload_last_success_timestamp",
			Help: "Unix timestamp of the last run that completed without a fatal error",
		}),
	}
}

// RecordUpload records an upload outcome.
func (m *Metrics) RecordUpload(status string) {
	m.Uploads.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends all collected metrics to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

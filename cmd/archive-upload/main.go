package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imedwei/archive-upload/internal/age"
	"github.com/imedwei/archive-upload/internal/config"
	"github.com/imedwei/archive-upload/internal/health"
	"github.com/imedwei/archive-upload/internal/logging"
	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/pipeline"
	"github.com/imedwei/archive-upload/internal/queue"
	"github.com/imedwei/archive-upload/internal/server"
	"github.com/imedwei/archive-upload/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive-upload <config-file>",
		Short: "Archive finished files and upload them to object storage",
		Long: `archive-upload compresses files that have stopped changing into an archive
directory, deletes old archives that are already uploaded, and uploads pending
archives to S3, GCS or a local object directory. Uploads that fail are retried
on the next run.`,
		Version:      version,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, args[0])
		},
	}
}

func run(ctx context.Context, configPath string) error {
	// Console-only until the configured log directory is known.
	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger.Error("Failed to load configuration", "error", err)
		return err
	}

	logger, closer, err := logging.New(cfg.LogFileDir, cfg.LogLevel)
	if err != nil {
		bootLogger.Error("Failed to set up logging", "error", err)
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		"config_file", configPath,
		"app_dir", cfg.AppDir,
		"queue_backend", cfg.QueueBackend,
		"storage_provider", cfg.Storage.Provider,
		"directories", len(cfg.Directories),
	)

	if err := os.MkdirAll(cfg.AppDir, 0755); err != nil {
		logger.Error("Failed to create app directory", "app_dir", cfg.AppDir, "error", err)
		return fmt.Errorf("failed to create app directory: %w", err)
	}

	store, err := queue.NewStore(cfg.QueueBackend, cfg.QueuePath())
	if err != nil {
		logger.Error("Failed to open pending queue", "path", cfg.QueuePath(), "error", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close pending queue", "error", err)
		}
	}()

	m := metrics.New()
	tracker := health.NewTracker()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		httpServer := server.New(server.DefaultConfig(addr), m.Registry(), tracker, logger)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.Start(); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		defer func() {
			if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("HTTP server shutdown failed", "error", err)
			}
			wg.Wait()
		}()
	}

	orchestrator := pipeline.NewOrchestrator(cfg, store, storage.NewFactory(cfg.Storage), age.NewModTimeFilter(), m, logger).
		WithTracker(tracker)

	if err := orchestrator.Run(ctx); err != nil {
		logger.Error("Run failed", "error", err)
		return err
	}

	return nil
}

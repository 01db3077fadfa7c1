// Package main provides the HTTP server for homework marking.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/app"
	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/server"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all stored jobs and passages on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger, *wipeDB); err != nil {
		slog.Error("server failed", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, wipe bool) error {
	slog.Info("starting marker-server",
		"port", cfg.ServerPort,
		"llm", cfg.LLMProvider,
		"index", cfg.IndexBackend,
		"job_store", cfg.JobStore,
		"workers", cfg.Workers,
	)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger, collector)
	cancel()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Error("failed to close backends", "error", err)
		}
	}()

	if wipe || os.Getenv("MARKER_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.WipeData(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wipe data: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.UploadFolder, 0o755); err != nil {
		return fmt.Errorf("create upload folder: %w", err)
	}

	manager := a.NewJobManager()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	resumed, err := manager.ResumeIncompleteJobs(ctx)
	cancel()
	if err != nil {
		slog.Warn("failed to resume incomplete jobs", "error", err)
	} else if resumed > 0 {
		slog.Info("resumed incomplete jobs", "count", resumed)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	manager.Start(workerCtx)

	srv := server.New(manager, collector, logger, server.Options{
		UploadDir:      cfg.UploadFolder,
		MaxUploadBytes: cfg.MaxContentLength,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second, // Uploads of up to MaxContentLength
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			drainJobs(manager, cfg.ShutdownTimeout)
			return fmt.Errorf("serve: %w", err)
		}
	case <-quit:
	}

	slog.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	drainJobs(manager, cfg.ShutdownTimeout)

	slog.Info("server stopped")
	return nil
}

type jobDrainer interface {
	Shutdown(ctx context.Context) error
}

// drainJobs stops intake and waits for queued jobs, cancelling whatever is
// still running once timeout elapses.
func drainJobs(jobs jobDrainer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := jobs.Shutdown(ctx); err != nil {
		slog.Warn("marking jobs interrupted", "error", err)
	}
}

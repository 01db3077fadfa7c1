// Package app wires the configured backends into a marking pipeline.
// It is the dependency injection point shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/db"
	"github.com/raphaelgruber/homework-marker/internal/index"
	"github.com/raphaelgruber/homework-marker/internal/llm"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/redisstore"
	"github.com/raphaelgruber/homework-marker/internal/report"
	"github.com/raphaelgruber/homework-marker/internal/service"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Collector
	Index    index.Index
	Store    service.JobStore
	Pipeline *service.Pipeline

	db    *db.Client
	redis *redisstore.Store
}

// New builds every component named by cfg. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*App, error) {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	a := &App{Config: cfg, Metrics: collector}

	embedder, err := llm.NewEmbedder(cfg, collector)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	if cfg.IndexBackend == config.BackendSurrealDB || cfg.JobStore == config.BackendSurrealDB {
		a.db, err = db.NewClient(ctx, db.ConfigFrom(cfg), logger, collector)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := a.db.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}

	switch cfg.IndexBackend {
	case config.BackendMemory:
		a.Index = index.NewMemory(embedder, collector)
	case config.BackendSurrealDB:
		a.Index = index.NewSurreal(a.db, embedder, cfg.IndexName)
	default:
		_ = a.Close(ctx)
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.IndexBackend)
	}

	switch cfg.JobStore {
	case config.BackendMemory:
	case config.BackendSurrealDB:
		a.Store = a.db
	case config.BackendRedis:
		a.redis = redisstore.New(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.Store = a.redis
	default:
		_ = a.Close(ctx)
		return nil, fmt.Errorf("unsupported job store: %s", cfg.JobStore)
	}

	model, err := llm.NewModel(ctx, cfg, collector)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init model: %w", err)
	}

	a.Pipeline = service.NewPipeline(
		service.NewAssembler(a.Index, collector),
		service.NewGenerator(model),
		report.NewRenderer(collector),
		cfg.UploadFolder,
		collector,
	)

	slog.Info("components ready",
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"embed_provider", cfg.EmbedProvider,
		"index", cfg.IndexBackend,
		"job_store", cfg.JobStore)
	return a, nil
}

// NewJobManager creates a job manager over the app's pipeline and store.
func (a *App) NewJobManager() *service.JobManager {
	return service.NewJobManager(a.Pipeline, service.ManagerOptions{
		Workers:   a.Config.Workers,
		QueueSize: a.Config.QueueSize,
		Store:     a.Store,
		Metrics:   a.Metrics,
	})
}

// WipeData deletes indexed passages and persisted jobs. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.WipeData(ctx)
}

// Close releases backend connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

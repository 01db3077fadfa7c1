// Package server exposes the marking service over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/service"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Homework Marking System"

// JobService is the part of the job manager the HTTP layer needs.
type JobService interface {
	Submit(ctx context.Context, req service.JobRequest) (models.JobRecord, error)
	Get(ctx context.Context, id string) (models.JobRecord, error)
	List(ctx context.Context) ([]models.JobRecord, error)
	Workers() int
	Queued() int
}

// Options configures the HTTP layer.
type Options struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	jobs      JobService
	metrics   *metrics.Collector
	logger    *slog.Logger
	validate  *validator.Validate
	uploadDir string
	maxUpload int64
	router    chi.Router
}

// New creates the server and its router. collector may be nil.
func New(jobs JobService, collector *metrics.Collector, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}

	s := &Server{
		jobs:      jobs,
		metrics:   collector,
		logger:    logger,
		validate:  newValidator(),
		uploadDir: opts.UploadDir,
		maxUpload: opts.MaxUploadBytes,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		LoggingMiddleware(s.logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/upload/", s.handleUpload)
		r.Get("/results/{jobID}", s.handleResults)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/stats", s.handleStats)
	})

	return r
}

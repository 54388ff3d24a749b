package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ehrkit/internal/infrastructure"
	"ehrkit/internal/middleware"
)

// RouterConfig carries the handler set and shared infrastructure needed to
// assemble the API router.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  *infrastructure.Metrics
	Pipeline *PipelineHandler
	Health   *HealthHandler
}

// NewRouter builds the chi router with the standard middleware chain and
// all API routes mounted under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: []string{"*"}}))
	r.Use(middleware.Compress(5))
	r.Use(chimiddleware.StripSlashes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/pipeline", cfg.Pipeline.Routes())
		r.Mount("/health", cfg.Health.Routes())
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.HTTPHandler)
	}

	return r
}

// Package app assembles the service: configuration, logging, metrics, the
// pipeline manager and the HTTP server, with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ehrkit/internal/config"
	"ehrkit/internal/infrastructure"
	"ehrkit/internal/pipeline"
	"ehrkit/internal/services"
	transport "ehrkit/internal/transport/http"
)

const (
	AppName = "ehrkit"
	Version = "v1.0.0"
)

// Application is the dependency container for the running service.
type Application struct {
	Config          *config.Config
	Logger          *slog.Logger
	Metrics         *infrastructure.Metrics
	Manager         *pipeline.Manager
	RunStore        services.RunStore
	PipelineService *services.PipelineService
	HealthService   *services.HealthService
	Server          *http.Server
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	metrics, err := infrastructure.InitializeMetrics(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}
	app.initializeServices()
	app.createServer()

	return app, nil
}

func (a *Application) initializeServices() {
	a.Manager = pipeline.NewManager(a.Logger, a.Config.Pipeline, a.Metrics)
	a.RunStore = services.NewMemoryRunStore()
	a.PipelineService = services.NewPipelineService(a.Logger, a.Config, a.Manager, a.RunStore)
	a.HealthService = services.NewHealthService(a.Logger, a.RunStore, Version)
}

func (a *Application) createServer() {
	router := transport.NewRouter(transport.RouterConfig{
		Logger:   a.Logger,
		Metrics:  a.Metrics,
		Pipeline: transport.NewPipelineHandler(a.PipelineService, a.Logger),
		Health:   transport.NewHealthHandler(a.HealthService, a.Logger),
	})

	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and blocks until a shutdown signal arrives or
// the server fails.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	return a.Shutdown()
}

// Shutdown stops the server and flushes metrics and logs.
func (a *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
		firstErr = err
	}
	if err := a.Metrics.Shutdown(ctx); err != nil {
		a.Logger.Error("metrics shutdown failed", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}

	a.Logger.Info("application stopped")
	infrastructure.CloseLogFile()

	// Give the log writer a moment to flush.
	time.Sleep(50 * time.Millisecond)
	return firstErr
}

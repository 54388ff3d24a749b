package services

import (
	"log/slog"
	"time"

	"ehrkit/internal/pipeline"
)

// HealthService reports process liveness and run statistics.
type HealthService struct {
	logger  *slog.Logger
	store   RunStore
	started time.Time
	version string
}

// HealthStatus is the payload returned by the health endpoint.
type HealthStatus struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	Timestamp time.Time      `json:"timestamp"`
	Runs      map[string]int `json:"runs"`
}

// NewHealthService creates the health service.
func NewHealthService(logger *slog.Logger, store RunStore, version string) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		logger:  logger,
		store:   store,
		started: time.Now(),
		version: version,
	}
}

// Check returns the current health status.
func (s *HealthService) Check() HealthStatus {
	runs := map[string]int{
		"pending":   0,
		"running":   0,
		"completed": 0,
		"failed":    0,
		"cancelled": 0,
	}
	for _, state := range s.store.List(RunFilter{}) {
		switch state.CurrentStatus() {
		case pipeline.RunStatusPending:
			runs["pending"]++
		case pipeline.RunStatusRunning:
			runs["running"]++
		case pipeline.RunStatusCompleted:
			runs["completed"]++
		case pipeline.RunStatusFailed:
			runs["failed"]++
		case pipeline.RunStatusCancelled:
			runs["cancelled"]++
		}
	}

	return HealthStatus{
		Status:    "healthy",
		Version:   s.version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Runs:      runs,
	}
}

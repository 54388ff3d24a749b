// Package services wires the pipeline components behind the transport
// layer: run execution and bookkeeping, exports, and health reporting.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ehrkit/internal/config"
	"ehrkit/internal/dataset"
	apperrors "ehrkit/internal/errors"
	"ehrkit/internal/infrastructure"
	"ehrkit/internal/pipeline"
	"ehrkit/pkg/contracts/domain"
)

// PipelineService executes preprocessing runs and keeps their states for
// later retrieval.
type PipelineService struct {
	logger     *slog.Logger
	manager    *pipeline.Manager
	store      RunStore
	writer     *dataset.Writer
	runTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewPipelineService creates the service.
func NewPipelineService(
	logger *slog.Logger,
	cfg *config.Config,
	manager *pipeline.Manager,
	store RunStore,
) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		logger:     logger,
		manager:    manager,
		store:      store,
		writer:     dataset.NewWriter(logger, cfg.Paths.ExportDir),
		runTimeout: cfg.Server.RunTimeout,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Run executes a pipeline run synchronously and returns the result.
func (s *PipelineService) Run(ctx context.Context, rs *domain.RecordSet, options pipeline.RunOptions) (*domain.RunResult, error) {
	state := s.manager.NewRun(rs, options)
	if err := s.store.Create(state); err != nil {
		return nil, err
	}
	if err := s.manager.Run(ctx, state); err != nil {
		return nil, err
	}
	return state.Result(), nil
}

// Start launches a pipeline run in the background and returns its ID
// immediately. The run's state is polled via GetRun.
func (s *PipelineService) Start(ctx context.Context, rs *domain.RecordSet, options pipeline.RunOptions) (string, error) {
	state := s.manager.NewRun(rs, options)
	if err := s.store.Create(state); err != nil {
		return "", err
	}

	// Background runs outlive the request context; only the trace ID is
	// carried over.
	runCtx := infrastructure.ContextWithTraceID(context.Background())
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		runCtx = infrastructure.WithTraceID(context.Background(), traceID)
	}
	runCtx, cancel := context.WithTimeout(runCtx, s.runTimeout)

	s.mu.Lock()
	s.cancels[state.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, state.ID)
			s.mu.Unlock()
		}()
		if err := s.manager.Run(runCtx, state); err != nil {
			s.logger.Error("background run failed",
				slog.String("run_id", state.ID),
				slog.String("error", err.Error()))
		}
	}()

	return state.ID, nil
}

// GetRun returns the state of a run.
func (s *PipelineService) GetRun(id string) (*pipeline.RunState, error) {
	state, err := s.store.Get(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("run %s", id))
	}
	return state, nil
}

// GetResult returns the result of a completed run.
func (s *PipelineService) GetResult(id string) (*domain.RunResult, error) {
	state, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	switch state.CurrentStatus() {
	case pipeline.RunStatusCompleted:
		return state.Result(), nil
	case pipeline.RunStatusFailed, pipeline.RunStatusCancelled:
		return nil, apperrors.NewAppError(apperrors.ErrTypeQuality,
			fmt.Sprintf("run %s did not complete: %s", id, state.Error), nil)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("run %s is still %s", id, state.CurrentStatus()))
	}
}

// ListRuns returns runs matching the filter.
func (s *PipelineService) ListRuns(filter RunFilter) []*pipeline.RunState {
	return s.store.List(filter)
}

// Cancel stops a running pipeline run. Already-finished runs are left as
// they are.
func (s *PipelineService) Cancel(id string) error {
	state, err := s.GetRun(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel, running := s.cancels[id]
	s.mu.Unlock()
	if !running {
		return apperrors.NewValidationError(fmt.Sprintf("run %s is not running", id))
	}

	cancel()
	state.Cancel()
	s.logger.Info("run cancelled", slog.String("run_id", id))
	return nil
}

// Export writes the artifacts of a completed run under the export
// directory: the matrix as CSV, the quality report as CSV and JSON, and the
// full result including the encoding map as JSON.
func (s *PipelineService) Export(id string) ([]string, error) {
	result, err := s.GetResult(id)
	if err != nil {
		return nil, err
	}

	exports := []struct {
		name  string
		write func(string) error
	}{
		{fmt.Sprintf("%s_matrix.csv", id), func(n string) error { return s.writer.WriteMatrixCSV(n, result.Matrix) }},
		{fmt.Sprintf("%s_report.csv", id), func(n string) error { return s.writer.WriteReportCSV(n, result.Report) }},
		{fmt.Sprintf("%s_report.json", id), func(n string) error { return s.writer.WriteJSON(n, result.Report) }},
		{fmt.Sprintf("%s_result.json", id), func(n string) error { return s.writer.WriteJSON(n, result) }},
	}

	files := make([]string, 0, len(exports))
	for _, e := range exports {
		if err := e.write(e.name); err != nil {
			return nil, err
		}
		files = append(files, e.name)
	}

	s.logger.Info("run exported",
		slog.String("run_id", id),
		slog.Int("files", len(files)))
	return files, nil
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"ehrkit/internal/config"
	apperrors "ehrkit/internal/errors"
	"ehrkit/internal/infrastructure"
	"ehrkit/pkg/contracts/domain"
)

// Manager executes pipeline runs. Stages run sequentially in registration
// order; a failing stage aborts the run, and the manager returns a
// stage-tagged error instead of any partial artifact.
type Manager struct {
	logger   *slog.Logger
	registry *Registry
	metrics  *infrastructure.Metrics
}

// NewManager creates a manager with the standard stage order: classify,
// encode, impute, normalize, quality.
func NewManager(logger *slog.Logger, cfg config.PipelineConfig, metrics *infrastructure.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry()
	mustRegister(registry, NewClassifyStage(logger, cfg))
	mustRegister(registry, NewEncodeStage(logger, cfg))
	mustRegister(registry, NewImputeStage(logger, cfg))
	mustRegister(registry, NewNormalizeStage(logger))
	mustRegister(registry, NewQualityStage(logger, cfg))

	return &Manager{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
	}
}

// Registry exposes the stage registry, mainly for inspection in tests and
// status endpoints.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// NewRun prepares a pending run state with a fresh run ID and one pending
// stage state per registered stage. The state can be stored for status
// polling before Run starts executing it.
func (m *Manager) NewRun(rs *domain.RecordSet, options RunOptions) *RunState {
	state := NewRunState(uuid.NewString(), rs, options)
	for _, stage := range m.registry.List() {
		state.SetStage(stage.ID(), NewStageState(stage.ID(), stage.Name()))
	}
	return state
}

// Execute runs the full pipeline over a record set and returns the
// completed run state. On failure the returned state carries the error and
// no artifacts.
func (m *Manager) Execute(ctx context.Context, rs *domain.RecordSet, options RunOptions) (*RunState, error) {
	state := m.NewRun(rs, options)
	return state, m.Run(ctx, state)
}

// Run executes a prepared run state in place.
func (m *Manager) Run(ctx context.Context, state *RunState) error {
	ctx = infrastructure.EnsureTraceID(ctx)
	logger := m.logger
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	rs := state.RecordSet

	state.Start()
	m.countRunStarted(ctx, rs)
	logger.Info("pipeline run started",
		slog.String("run_id", state.ID),
		slog.Int("rows", rs.NumRows()),
		slog.Int("features", rs.NumFeatures()))

	for _, stage := range m.registry.List() {
		if err := m.executeStage(ctx, logger, stage, state); err != nil {
			state.Fail(err)
			m.countRunFailed(ctx)
			logger.Error("pipeline run failed",
				slog.String("run_id", state.ID),
				slog.String("stage", stage.ID()),
				slog.String("error", err.Error()))
			return err
		}
	}

	state.Complete()
	m.countRunCompleted(ctx)
	logger.Info("pipeline run completed",
		slog.String("run_id", state.ID),
		slog.Duration("duration", state.Duration()))

	return nil
}

func (m *Manager) executeStage(ctx context.Context, logger *slog.Logger, stage Stage, state *RunState) error {
	stageState := state.GetStage(stage.ID())

	if cond, ok := stage.(conditionalStage); ok && !cond.ShouldRun(state) {
		stageState.Skip("not requested")
		logger.Debug("stage skipped", slog.String("stage", stage.ID()))
		return nil
	}

	if err := ctx.Err(); err != nil {
		stageState.Fail(err)
		return err
	}
	if err := stage.Validate(state); err != nil {
		stageState.Fail(err)
		return &apperrors.StageError{Stage: stage.ID(), Feature: featureOf(err), Err: err}
	}

	stageState.Start()
	logger.Info("stage started", slog.String("stage", stage.ID()))

	start := time.Now()
	err := stage.Execute(ctx, state)
	m.recordStageDuration(ctx, stage.ID(), time.Since(start))

	if err != nil {
		stageState.Fail(err)
		return &apperrors.StageError{Stage: stage.ID(), Feature: featureOf(err), Err: err}
	}

	stageState.Complete()
	logger.Info("stage completed",
		slog.String("stage", stage.ID()),
		slog.Duration("duration", stageState.Duration()))
	return nil
}

func (m *Manager) countRunStarted(ctx context.Context, rs *domain.RecordSet) {
	if m.metrics == nil {
		return
	}
	m.metrics.RunsStarted.Add(ctx, 1)
	m.metrics.RowsProcessed.Add(ctx, int64(rs.NumRows()))
}

func (m *Manager) countRunCompleted(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.RunsCompleted.Add(ctx, 1)
}

func (m *Manager) countRunFailed(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.RunsFailed.Add(ctx, 1)
}

func (m *Manager) recordStageDuration(ctx context.Context, stageID string, d time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stageID)))
}

package pipeline

import (
	"sync"
	"time"

	"ehrkit/internal/imputer"
	"ehrkit/internal/normalize"
	"ehrkit/pkg/contracts/domain"
)

// RunStatus represents the overall status of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunOptions carries per-run overrides of the configured defaults. Zero
// values mean "use the configured default"; the pipeline itself holds no
// mutable global state, so concurrent runs with different options never
// interfere.
type RunOptions struct {
	// TypeOverrides pins features to a type instead of inferring one.
	TypeOverrides map[string]domain.FeatureType `json:"type_overrides,omitempty"`

	// EncodingStrategy replaces the configured global strategy.
	EncodingStrategy domain.EncodingStrategy `json:"encoding_strategy,omitempty"`

	// EncodingSelection assigns strategies to individual features. A
	// feature listed under two strategies fails the run.
	EncodingSelection map[domain.EncodingStrategy][]string `json:"encoding_selection,omitempty"`

	// EncodeMissing, when set, overrides the configured missing-category
	// behavior for categorical features.
	EncodeMissing *bool `json:"encode_missing,omitempty"`

	// ImputationStrategy replaces the configured global strategy.
	ImputationStrategy imputer.Strategy `json:"imputation_strategy,omitempty"`

	// ImputationSelection assigns strategies to individual features. For an
	// encoded categorical the strategy applies to its whole column block.
	ImputationSelection map[string]imputer.Strategy `json:"imputation_selection,omitempty"`

	// Normalization maps methods to the numeric columns they should
	// rescale after imputation. Empty means no normalization.
	Normalization map[normalize.Method][]string `json:"normalization,omitempty"`
}

// RunState is the shared state a run's stages read and write. Artifacts are
// typed; each stage consumes the previous stage's output and adds its own.
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`

	Stages map[string]*StageState `json:"stages"`

	Options RunOptions `json:"options"`

	// Stage artifacts, in production order.
	RecordSet     *domain.RecordSet          `json:"-"`
	Descriptors   []domain.FeatureDescriptor `json:"-"`
	Matrix        *domain.Matrix             `json:"-"`
	EncodingMap   *domain.EncodingMap        `json:"-"`
	Mask          *domain.MissingnessMask    `json:"-"`
	Report        *domain.QualityReport      `json:"-"`
	Warnings      []domain.QualityWarning    `json:"-"`
	Normalization map[string][]string        `json:"-"`
}

// NewRunState creates a pending run state for the given record set.
func NewRunState(id string, rs *domain.RecordSet, options RunOptions) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now().UTC(),
		Stages:    make(map[string]*StageState),
		Options:   options,
		RecordSet: rs,
	}
}

// Start marks the run as running.
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now().UTC()
}

// Complete marks the run as completed.
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed and clears every partial artifact. A failed
// run exposes no matrix, mask or report at all. A run already marked
// cancelled stays cancelled: the aborted background execution observing its
// dead context must not rewrite the status the client was told.
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EndTime == nil {
		now := time.Now().UTC()
		r.EndTime = &now
	}
	if r.Status != RunStatusCancelled {
		r.Status = RunStatusFailed
		if err != nil {
			r.Error = err.Error()
		}
	}
	r.Descriptors = nil
	r.Matrix = nil
	r.EncodingMap = nil
	r.Mask = nil
	r.Report = nil
	r.Warnings = nil
	r.Normalization = nil
}

// Cancel marks the run as cancelled and discards partial artifacts.
func (r *RunState) Cancel() {
	r.Fail(nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusCancelled
}

// GetStage returns the state of a specific stage.
func (r *RunState) GetStage(id string) *StageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Stages[id]
}

// SetStage records the state of a specific stage.
func (r *RunState) SetStage(id string, state *StageState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages[id] = state
}

// CurrentStatus returns the run status under the read lock.
func (r *RunState) CurrentStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Duration returns how long the run has been executing, or executed.
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// Result assembles the immutable run result from a completed state.
func (r *RunState) Result() *domain.RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	finished := time.Now().UTC()
	if r.EndTime != nil {
		finished = *r.EndTime
	}
	return &domain.RunResult{
		RunID:         r.ID,
		StartedAt:     r.StartTime,
		FinishedAt:    finished,
		Descriptors:   r.Descriptors,
		Matrix:        r.Matrix,
		EncodingMap:   r.EncodingMap,
		Mask:          r.Mask,
		Report:        r.Report,
		Warnings:      r.Warnings,
		Normalization: r.Normalization,
	}
}

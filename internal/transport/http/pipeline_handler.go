// Package http exposes the pipeline over a chi-routed REST API.
package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "ehrkit/internal/errors"
	"ehrkit/internal/imputer"
	"ehrkit/internal/normalize"
	"ehrkit/internal/pipeline"
	"ehrkit/internal/services"
	"ehrkit/pkg/contracts/domain"
)

var validate = validator.New()

// PipelineHandler handles pipeline run requests.
type PipelineHandler struct {
	service *services.PipelineService
	logger  *slog.Logger
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(service *services.PipelineService, logger *slog.Logger) *PipelineHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "pipeline")),
	}
}

// Routes mounts the pipeline endpoints.
func (h *PipelineHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/run", h.StartRun)
	r.Get("/runs", h.ListRuns)
	r.Route("/runs/{runID}", func(r chi.Router) {
		r.Get("/", h.GetRun)
		r.Get("/result", h.GetResult)
		r.Post("/cancel", h.CancelRun)
		r.Post("/export", h.ExportRun)
	})
	return r
}

// RunRequest is the body of a run submission: the records inline plus
// per-run option overrides.
type RunRequest struct {
	Features []string   `json:"features" validate:"required,min=1"`
	Rows     [][]string `json:"rows" validate:"required,min=1"`

	// MissingMarkers override the default missing-value markers.
	MissingMarkers []string `json:"missing_markers,omitempty"`

	TypeOverrides       map[string]domain.FeatureType        `json:"type_overrides,omitempty"`
	EncodingStrategy    domain.EncodingStrategy              `json:"encoding_strategy,omitempty"`
	EncodingSelection   map[domain.EncodingStrategy][]string `json:"encoding_selection,omitempty"`
	EncodeMissing       *bool                                `json:"encode_missing,omitempty"`
	ImputationStrategy  imputer.Strategy                     `json:"imputation_strategy,omitempty"`
	ImputationSelection map[string]imputer.Strategy          `json:"imputation_selection,omitempty"`
	Normalization       map[normalize.Method][]string        `json:"normalization,omitempty"`

	// Wait makes the submission synchronous: the response carries the full
	// result instead of a run ID to poll.
	Wait bool `json:"wait,omitempty"`
}

// Bind implements render.Binder.
func (r *RunRequest) Bind(req *http.Request) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.EncodingStrategy != "" && !r.EncodingStrategy.Valid() {
		return fmt.Errorf("unknown encoding strategy %q", r.EncodingStrategy)
	}
	if r.ImputationStrategy != "" && !r.ImputationStrategy.Valid() {
		return fmt.Errorf("unknown imputation strategy %q", r.ImputationStrategy)
	}
	for feature, t := range r.TypeOverrides {
		if !t.Valid() {
			return fmt.Errorf("unknown feature type %q for feature %s", t, feature)
		}
	}
	for _, s := range r.ImputationSelection {
		if !s.Valid() {
			return fmt.Errorf("unknown imputation strategy %q in selection", s)
		}
	}
	for m := range r.Normalization {
		if !m.Valid() {
			return fmt.Errorf("unknown normalization method %q", m)
		}
	}
	return nil
}

func (r *RunRequest) recordSet() *domain.RecordSet {
	markers := r.MissingMarkers
	if markers == nil {
		markers = domain.DefaultMissingMarkers
	}
	return &domain.RecordSet{
		Features:       r.Features,
		Rows:           r.Rows,
		MissingMarkers: markers,
	}
}

func (r *RunRequest) options() pipeline.RunOptions {
	return pipeline.RunOptions{
		TypeOverrides:       r.TypeOverrides,
		EncodingStrategy:    r.EncodingStrategy,
		EncodingSelection:   r.EncodingSelection,
		EncodeMissing:       r.EncodeMissing,
		ImputationStrategy:  r.ImputationStrategy,
		ImputationSelection: r.ImputationSelection,
		Normalization:       r.Normalization,
	}
}

// StartRunResponse acknowledges an asynchronous run submission.
type StartRunResponse struct {
	RunID  string             `json:"run_id"`
	Status pipeline.RunStatus `json:"status"`
}

// StartRun handles POST /run.
func (h *PipelineHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	data := &RunRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}

	rs := data.recordSet()
	if err := rs.Validate(); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}

	if data.Wait {
		result, err := h.service.Run(r.Context(), rs, data.options())
		if err != nil {
			render.Render(w, r, apperrors.NewErrorResponse(apperrors.FromPipelineError(err)))
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, result)
		return
	}

	runID, err := h.service.Start(r.Context(), rs, data.options())
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.FromPipelineError(err)))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, StartRunResponse{RunID: runID, Status: pipeline.RunStatusPending})
}

// GetRun handles GET /runs/{runID}.
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.ErrRunNotFound))
		return
	}
	render.JSON(w, r, state)
}

// GetResult handles GET /runs/{runID}/result.
func (h *PipelineHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetResult(chi.URLParam(r, "runID"))
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(resultError(err)))
		return
	}
	render.JSON(w, r, result)
}

// ListRuns handles GET /runs.
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := services.RunFilter{
		Status: pipeline.RunStatus(r.URL.Query().Get("status")),
	}
	render.JSON(w, r, map[string]interface{}{
		"runs": h.service.ListRuns(filter),
	})
}

// CancelRun handles POST /runs/{runID}/cancel.
func (h *PipelineHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := h.service.Cancel(runID); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(resultError(err)))
		return
	}
	render.JSON(w, r, map[string]string{"run_id": runID, "status": "cancelled"})
}

// ExportRun handles POST /runs/{runID}/export.
func (h *PipelineHandler) ExportRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	files, err := h.service.Export(runID)
	if err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(resultError(err)))
		return
	}
	render.JSON(w, r, map[string]interface{}{"run_id": runID, "files": files})
}

// resultError maps service errors onto API errors.
func resultError(err error) *apperrors.APIError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrTypeNotFound:
			return apperrors.ErrRunNotFound
		case apperrors.ErrTypeValidation:
			return apperrors.NewWithDetails(http.StatusConflict, "RUN_NOT_READY", appErr.Message, nil)
		}
	}
	return apperrors.FromPipelineError(err)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ehrkit/internal/config"
	"ehrkit/internal/encoder"
	apperrors "ehrkit/internal/errors"
	"ehrkit/internal/featuretype"
	"ehrkit/internal/imputer"
	"ehrkit/internal/normalize"
	"ehrkit/internal/qc"
)

// Stage identifiers, in execution order.
const (
	StageIDClassify  = "classify"
	StageIDEncode    = "encode"
	StageIDImpute    = "impute"
	StageIDNormalize = "normalize"
	StageIDQuality   = "quality"
)

// Stage names.
const (
	StageNameClassify  = "Feature Classification"
	StageNameEncode    = "Categorical Encoding"
	StageNameImpute    = "Missing Value Imputation"
	StageNameNormalize = "Normalization"
	StageNameQuality   = "Quality Reporting"
)

// conditionalStage lets a stage opt out of a run based on its options.
type conditionalStage interface {
	ShouldRun(state *RunState) bool
}

// ClassifyStage infers a feature type for every record-set column.
type ClassifyStage struct {
	logger *slog.Logger
	config config.PipelineConfig
}

// NewClassifyStage creates the classification stage.
func NewClassifyStage(logger *slog.Logger, cfg config.PipelineConfig) *ClassifyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyStage{logger: logger, config: cfg}
}

func (s *ClassifyStage) ID() string   { return StageIDClassify }
func (s *ClassifyStage) Name() string { return StageNameClassify }

func (s *ClassifyStage) Validate(state *RunState) error {
	if state.RecordSet == nil {
		return fmt.Errorf("no record set loaded")
	}
	if state.RecordSet.NumRows() == 0 {
		return &apperrors.EmptyInputError{}
	}
	return state.RecordSet.Validate()
}

func (s *ClassifyStage) Execute(ctx context.Context, state *RunState) error {
	registry := featuretype.NewRegistry(s.logger, featuretype.Config{
		CardinalityThreshold: s.config.CardinalityThreshold,
		DateFormats:          s.config.DateFormats,
	})
	descriptors, err := registry.Classify(state.RecordSet, state.Options.TypeOverrides)
	if err != nil {
		return err
	}
	state.Descriptors = descriptors

	s.logger.InfoContext(ctx, "features classified",
		slog.Int("features", len(descriptors)))
	return nil
}

// EncodeStage converts the record set into a dense numeric matrix.
type EncodeStage struct {
	logger *slog.Logger
	config config.PipelineConfig
}

// NewEncodeStage creates the encoding stage.
func NewEncodeStage(logger *slog.Logger, cfg config.PipelineConfig) *EncodeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EncodeStage{logger: logger, config: cfg}
}

func (s *EncodeStage) ID() string   { return StageIDEncode }
func (s *EncodeStage) Name() string { return StageNameEncode }

func (s *EncodeStage) Validate(state *RunState) error {
	if state.Descriptors == nil {
		return fmt.Errorf("no feature descriptors: classification has not run")
	}
	return nil
}

func (s *EncodeStage) Execute(ctx context.Context, state *RunState) error {
	encodeMissing := s.config.EncodeMissing
	if state.Options.EncodeMissing != nil {
		encodeMissing = *state.Options.EncodeMissing
	}
	global := s.config.EncodingStrategyValue()
	if state.Options.EncodingStrategy != "" {
		global = state.Options.EncodingStrategy
	}
	selection, err := encoder.BuildSelection(state.Options.EncodingSelection)
	if err != nil {
		return err
	}

	enc := encoder.NewEncoder(s.logger, encoder.Config{
		EncodeMissing: encodeMissing,
		Workers:       s.config.Workers,
	})
	matrix, encodingMap, mask, err := enc.Encode(ctx, state.RecordSet, state.Descriptors, global, selection)
	if err != nil {
		return err
	}
	state.Matrix = matrix
	state.EncodingMap = encodingMap
	state.Mask = mask

	s.logger.InfoContext(ctx, "record set encoded",
		slog.Int("columns", matrix.NumCols()),
		slog.String("strategy", string(global)))
	return nil
}

// ImputeStage fills missing matrix entries.
type ImputeStage struct {
	logger *slog.Logger
	config config.PipelineConfig
}

// NewImputeStage creates the imputation stage.
func NewImputeStage(logger *slog.Logger, cfg config.PipelineConfig) *ImputeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImputeStage{logger: logger, config: cfg}
}

func (s *ImputeStage) ID() string   { return StageIDImpute }
func (s *ImputeStage) Name() string { return StageNameImpute }

func (s *ImputeStage) Validate(state *RunState) error {
	if state.Matrix == nil || state.Mask == nil {
		return fmt.Errorf("no matrix: encoding has not run")
	}
	return nil
}

func (s *ImputeStage) Execute(ctx context.Context, state *RunState) error {
	global := imputer.Strategy(s.config.ImputationStrategy)
	if state.Options.ImputationStrategy != "" {
		global = state.Options.ImputationStrategy
	}

	perColumn, err := columnSelection(state, state.Options.ImputationSelection)
	if err != nil {
		return err
	}

	im := imputer.NewImputer(s.logger, imputer.Config{
		Neighbors:          s.config.Neighbors,
		MaxIterations:      s.config.MaxIterations,
		ConvergenceEpsilon: s.config.ConvergenceEpsilon,
		Workers:            s.config.Workers,
	})
	result, err := im.Impute(ctx, state.Matrix, state.Mask, global, perColumn)
	if err != nil {
		return err
	}
	state.Matrix = result.Matrix
	state.Warnings = append(state.Warnings, result.Warnings...)

	s.logger.InfoContext(ctx, "matrix imputed",
		slog.String("strategy", string(global)),
		slog.Int("warnings", len(result.Warnings)))
	return nil
}

// columnSelection translates a per-feature strategy selection into matrix
// column indices. An encoded categorical maps to its whole column block.
func columnSelection(state *RunState, selection map[string]imputer.Strategy) (map[int]imputer.Strategy, error) {
	if len(selection) == 0 {
		return nil, nil
	}
	perColumn := make(map[int]imputer.Strategy)
	for feature, strategy := range selection {
		if enc := state.EncodingMap.Encoding(feature); enc != nil {
			for _, column := range enc.Columns {
				perColumn[state.Matrix.ColumnIndex(column)] = strategy
			}
			continue
		}
		col := state.Matrix.ColumnIndex(feature)
		if col < 0 {
			return nil, fmt.Errorf("imputation selection names unknown feature %q", feature)
		}
		perColumn[col] = strategy
	}
	return perColumn, nil
}

// NormalizeStage rescales numeric columns after imputation. It only runs
// when the run options request normalization.
type NormalizeStage struct {
	logger *slog.Logger
}

// NewNormalizeStage creates the normalization stage.
func NewNormalizeStage(logger *slog.Logger) *NormalizeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &NormalizeStage{logger: logger}
}

func (s *NormalizeStage) ID() string   { return StageIDNormalize }
func (s *NormalizeStage) Name() string { return StageNameNormalize }

func (s *NormalizeStage) ShouldRun(state *RunState) bool {
	return len(state.Options.Normalization) > 0
}

func (s *NormalizeStage) Validate(state *RunState) error {
	if state.Matrix == nil {
		return fmt.Errorf("no matrix: encoding has not run")
	}
	return nil
}

func (s *NormalizeStage) Execute(ctx context.Context, state *RunState) error {
	normalizer := normalize.NewNormalizer(s.logger)
	matrix, record, err := normalizer.Apply(state.Matrix, state.Options.Normalization)
	if err != nil {
		return err
	}
	state.Matrix = matrix
	state.Normalization = record

	s.logger.InfoContext(ctx, "matrix normalized",
		slog.Int("columns", len(record)))
	return nil
}

// QualityStage derives the quality report from the final matrix and mask.
type QualityStage struct {
	logger *slog.Logger
	config config.PipelineConfig
}

// NewQualityStage creates the quality reporting stage.
func NewQualityStage(logger *slog.Logger, cfg config.PipelineConfig) *QualityStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityStage{logger: logger, config: cfg}
}

func (s *QualityStage) ID() string   { return StageIDQuality }
func (s *QualityStage) Name() string { return StageNameQuality }

func (s *QualityStage) Validate(state *RunState) error {
	if state.Matrix == nil || state.Mask == nil {
		return fmt.Errorf("no matrix: encoding has not run")
	}
	return nil
}

func (s *QualityStage) Execute(ctx context.Context, state *RunState) error {
	reporter := qc.NewReporter(s.logger, qc.Config{OutlierSigma: s.config.OutlierSigma})
	report, err := reporter.FromMatrix(state.Matrix, state.Mask, state.Descriptors)
	if err != nil {
		return err
	}
	report.Warnings = append(report.Warnings, state.Warnings...)
	state.Report = report

	s.logger.InfoContext(ctx, "quality report generated",
		slog.Int("warnings", len(report.Warnings)))
	return nil
}

// featureOf extracts the offending feature name from a stage-local error,
// when the error kind carries one.
func featureOf(err error) string {
	var ambiguous *apperrors.AmbiguousTypeError
	if errors.As(err, &ambiguous) {
		return ambiguous.Feature
	}
	var insufficient *apperrors.InsufficientDataError
	if errors.As(err, &insufficient) {
		return insufficient.Column
	}
	var collision *apperrors.EncodingCollisionError
	if errors.As(err, &collision) {
		return collision.Feature
	}
	var duplicate *apperrors.DuplicateEncodingError
	if errors.As(err, &duplicate) {
		return duplicate.Feature
	}
	return ""
}

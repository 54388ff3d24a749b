// Package imputer fills missing entries of an encoded numeric matrix. The
// missingness mask is the audit trail: it is computed before any fill and
// returned untouched, and the input matrix is never written to, so a matrix
// can never be imputed twice by accident.
package imputer

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// Strategy selects how missing entries are filled.
type Strategy string

const (
	StrategyMean    Strategy = "mean"
	StrategyMedian  Strategy = "median"
	StrategyMode    Strategy = "mode"
	StrategyKNN     Strategy = "knn"
	StrategyChained Strategy = "chained"
)

// Valid reports whether the strategy is one of the known variants.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMean, StrategyMedian, StrategyMode, StrategyKNN, StrategyChained:
		return true
	}
	return false
}

// Config holds imputation options.
type Config struct {
	// Neighbors is k for the nearest-neighbor strategy.
	Neighbors int

	// MaxIterations bounds the chained strategy's column-cycling loop; it
	// is the sole termination guarantee when convergence stalls.
	MaxIterations int

	// ConvergenceEpsilon stops chained imputation early once the largest
	// per-column value change in a full cycle falls below it.
	ConvergenceEpsilon float64

	// Workers bounds per-column concurrency for the simple strategies and
	// the within-iteration column updates of the chained strategy.
	Workers int
}

// DefaultConfig returns the imputation defaults.
func DefaultConfig() Config {
	return Config{
		Neighbors:          5,
		MaxIterations:      10,
		ConvergenceEpsilon: 1e-3,
		Workers:            4,
	}
}

// Result carries the dense output matrix and any non-fatal warnings, such
// as the chained strategy hitting its iteration cap.
type Result struct {
	Matrix   *domain.Matrix
	Warnings []domain.QualityWarning
}

// Imputer fills missing matrix entries under a selectable strategy.
type Imputer struct {
	logger *slog.Logger
	config Config
}

// NewImputer creates an imputer with the given configuration.
func NewImputer(logger *slog.Logger, config Config) *Imputer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if config.Neighbors <= 0 {
		config.Neighbors = def.Neighbors
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}
	if config.ConvergenceEpsilon <= 0 {
		config.ConvergenceEpsilon = def.ConvergenceEpsilon
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	return &Imputer{logger: logger, config: config}
}

// Impute returns a fully dense copy of the matrix. The global strategy
// applies to every column unless perColumn overrides it for a column index.
// A column with no observed entries at all fails the run: there is no basis
// to estimate a fill value.
func (im *Imputer) Impute(
	ctx context.Context,
	matrix *domain.Matrix,
	mask *domain.MissingnessMask,
	global Strategy,
	perColumn map[int]Strategy,
) (*Result, error) {
	if matrix.NumRows() == 0 {
		return nil, &apperrors.EmptyInputError{}
	}
	if !global.Valid() {
		return nil, fmt.Errorf("unknown imputation strategy %q", global)
	}

	for col := range matrix.Columns {
		if observedCount(matrix, mask, col) == 0 {
			return nil, &apperrors.InsufficientDataError{Column: matrix.Columns[col]}
		}
	}

	// Partition columns by strategy; each group fills independently on a
	// shared clone, writing only its own masked entries.
	groups := make(map[Strategy][]int)
	for col := range matrix.Columns {
		s := global
		if override, ok := perColumn[col]; ok {
			if !override.Valid() {
				return nil, fmt.Errorf("unknown imputation strategy %q for column %s", override, matrix.Columns[col])
			}
			s = override
		}
		groups[s] = append(groups[s], col)
	}

	out := matrix.Clone()
	var warnings []domain.QualityWarning

	for _, s := range []Strategy{StrategyMean, StrategyMedian, StrategyMode} {
		cols, ok := groups[s]
		if !ok {
			continue
		}
		if err := im.imputeSimple(ctx, out, mask, cols, s); err != nil {
			return nil, err
		}
	}
	if cols, ok := groups[StrategyKNN]; ok {
		if err := im.imputeKNN(out, matrix, mask, cols); err != nil {
			return nil, err
		}
	}
	if cols, ok := groups[StrategyChained]; ok {
		ws, err := im.imputeChained(ctx, out, mask, cols)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, ws...)
	}

	im.logger.Debug("imputation complete",
		slog.Int("columns", matrix.NumCols()),
		slog.Int("warnings", len(warnings)))

	return &Result{Matrix: out, Warnings: warnings}, nil
}

// observedCount returns the number of unmasked entries in a column.
func observedCount(matrix *domain.Matrix, mask *domain.MissingnessMask, col int) int {
	count := 0
	for row := range matrix.Data {
		if !mask.At(row, col) {
			count++
		}
	}
	return count
}

// observedValues returns the unmasked entries of a column.
func observedValues(matrix *domain.Matrix, mask *domain.MissingnessMask, col int) []float64 {
	var out []float64
	for row := range matrix.Data {
		if !mask.At(row, col) {
			out = append(out, matrix.At(row, col))
		}
	}
	return out
}

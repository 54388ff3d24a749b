package imputer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// buildMatrix creates a matrix and mask from rows where NaN marks a missing
// entry.
func buildMatrix(columns []string, rows [][]float64) (*domain.Matrix, *domain.MissingnessMask) {
	matrix := domain.NewMatrix(columns, len(rows))
	mask := domain.NewMissingnessMask(len(rows), len(columns))
	for i, row := range rows {
		for j, v := range row {
			matrix.Data[i][j] = v
			mask.Mask[i][j] = math.IsNaN(v)
		}
	}
	return matrix, mask
}

func TestImputeMean(t *testing.T) {
	matrix, mask := buildMatrix([]string{"age"}, [][]float64{
		{20}, {25}, {math.NaN()}, {25},
	})

	im := NewImputer(nil, DefaultConfig())
	result, err := im.Impute(context.Background(), matrix, mask, StrategyMean, nil)
	require.NoError(t, err)

	assert.InDelta(t, 23.333333, result.Matrix.At(2, 0), 1e-5)
	assert.Empty(t, result.Warnings)

	// Observed entries are untouched.
	assert.Equal(t, 20.0, result.Matrix.At(0, 0))
	assert.Equal(t, 25.0, result.Matrix.At(1, 0))
}

func TestImputeInputNotMutated(t *testing.T) {
	matrix, mask := buildMatrix([]string{"age"}, [][]float64{
		{20}, {math.NaN()},
	})

	im := NewImputer(nil, DefaultConfig())
	_, err := im.Impute(context.Background(), matrix, mask, StrategyMean, nil)
	require.NoError(t, err)

	// The input matrix still holds the gap; only the result is dense.
	assert.True(t, math.IsNaN(matrix.At(1, 0)))
	assert.True(t, mask.At(1, 0))
}

func TestImputeMedianAndMode(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		values   []float64
		expected float64
	}{
		{name: "median", strategy: StrategyMedian, values: []float64{1, 2, 100, math.NaN()}, expected: 2},
		{name: "mode", strategy: StrategyMode, values: []float64{3, 3, 7, math.NaN()}, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([][]float64, len(tt.values))
			for i, v := range tt.values {
				rows[i] = []float64{v}
			}
			matrix, mask := buildMatrix([]string{"x"}, rows)

			im := NewImputer(nil, DefaultConfig())
			result, err := im.Impute(context.Background(), matrix, mask, tt.strategy, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, result.Matrix.At(len(tt.values)-1, 0), 1e-9)
		})
	}
}

func TestImputeAllMissingColumnFails(t *testing.T) {
	matrix, mask := buildMatrix([]string{"age", "weight"}, [][]float64{
		{60, math.NaN()},
		{70, math.NaN()},
	})

	im := NewImputer(nil, DefaultConfig())
	_, err := im.Impute(context.Background(), matrix, mask, StrategyMean, nil)
	require.Error(t, err)

	var insufficient *apperrors.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "weight", insufficient.Column)
}

func TestImputeEmptyInput(t *testing.T) {
	matrix := domain.NewMatrix([]string{"age"}, 0)
	mask := domain.NewMissingnessMask(0, 1)

	im := NewImputer(nil, DefaultConfig())
	_, err := im.Impute(context.Background(), matrix, mask, StrategyMean, nil)

	var empty *apperrors.EmptyInputError
	require.ErrorAs(t, err, &empty)
}

func TestImputeUnknownStrategy(t *testing.T) {
	matrix, mask := buildMatrix([]string{"age"}, [][]float64{{1}})
	im := NewImputer(nil, DefaultConfig())
	_, err := im.Impute(context.Background(), matrix, mask, Strategy("bogus"), nil)
	require.Error(t, err)
}

func TestImputeKNNNumeric(t *testing.T) {
	// Row 3 is missing y; its nearest rows by x are rows 0 and 1.
	matrix, mask := buildMatrix([]string{"x", "y"}, [][]float64{
		{1, 10},
		{2, 20},
		{100, 1000},
		{1.5, math.NaN()},
	})

	im := NewImputer(nil, Config{Neighbors: 2})
	result, err := im.Impute(context.Background(), matrix, mask, StrategyKNN, nil)
	require.NoError(t, err)

	filled := result.Matrix.At(3, 1)
	assert.Greater(t, filled, 10.0)
	assert.Less(t, filled, 20.0)
}

func TestImputeKNNTieBreaksLowestRow(t *testing.T) {
	// Rows 0 and 1 are equidistant from row 2; k=1 must pick row 0.
	matrix, mask := buildMatrix([]string{"x", "y"}, [][]float64{
		{1, 111},
		{3, 222},
		{2, math.NaN()},
	})

	im := NewImputer(nil, Config{Neighbors: 1})
	result, err := im.Impute(context.Background(), matrix, mask, StrategyKNN, nil)
	require.NoError(t, err)
	assert.Equal(t, 111.0, result.Matrix.At(2, 1))
}

func TestImputeKNNCategoricalUsesMode(t *testing.T) {
	// Encoded categorical column takes the weighted mode of neighbors, so
	// the fill is one of the existing category codes, never an average.
	matrix, mask := buildMatrix([]string{"x", "ehrcat_diagnosis"}, [][]float64{
		{1, 2},
		{1.1, 2},
		{1.2, 0},
		{1.05, math.NaN()},
	})

	im := NewImputer(nil, Config{Neighbors: 3})
	result, err := im.Impute(context.Background(), matrix, mask, StrategyKNN, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Matrix.At(3, 1))
}

func TestImputeChainedConverges(t *testing.T) {
	// y is an exact linear function of x; chained regression should recover
	// the missing y almost exactly.
	matrix, mask := buildMatrix([]string{"x", "y"}, [][]float64{
		{1, 3},
		{2, 5},
		{3, 7},
		{4, 9},
		{5, math.NaN()},
	})

	im := NewImputer(nil, DefaultConfig())
	result, err := im.Impute(context.Background(), matrix, mask, StrategyChained, nil)
	require.NoError(t, err)

	assert.InDelta(t, 11.0, result.Matrix.At(4, 1), 0.05)
	assert.Empty(t, result.Warnings)
}

func TestImputeChainedIterationCapWarns(t *testing.T) {
	// An impossibly tight epsilon with one iteration cannot converge; the
	// run must still finish and flag non-convergence.
	matrix, mask := buildMatrix([]string{"x", "y"}, [][]float64{
		{1, 4},
		{2, 9},
		{3, 5},
		{4, math.NaN()},
	})

	im := NewImputer(nil, Config{MaxIterations: 1, ConvergenceEpsilon: 1e-15})
	result, err := im.Impute(context.Background(), matrix, mask, StrategyChained, nil)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.WarningNonConvergence, result.Warnings[0].Code)
	assert.False(t, math.IsNaN(result.Matrix.At(3, 1)))
}

func TestImputePerColumnStrategies(t *testing.T) {
	matrix, mask := buildMatrix([]string{"a", "b"}, [][]float64{
		{1, 10},
		{2, 30},
		{math.NaN(), math.NaN()},
		{3, 30},
	})

	im := NewImputer(nil, DefaultConfig())
	result, err := im.Impute(context.Background(), matrix, mask, StrategyMean, map[int]Strategy{
		1: StrategyMode,
	})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, result.Matrix.At(2, 0), 1e-9)
	assert.Equal(t, 30.0, result.Matrix.At(2, 1))
}

func TestImputeDeterministic(t *testing.T) {
	matrix, mask := buildMatrix([]string{"a", "b", "c"}, [][]float64{
		{1, math.NaN(), 5},
		{2, 4, math.NaN()},
		{math.NaN(), 6, 7},
		{3, 8, 9},
	})

	im := NewImputer(nil, Config{Workers: 3})
	first, err := im.Impute(context.Background(), matrix, mask, StrategyChained, nil)
	require.NoError(t, err)
	second, err := im.Impute(context.Background(), matrix, mask, StrategyChained, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Matrix.Data, second.Matrix.Data)
}

package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

func TestFromRecordSetMissingness(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"age", "diagnosis"},
		[][]string{
			{"63", "flu"},
			{"NA", "cold"},
			{"48", ""},
			{"71", "flu"},
		},
	)
	descriptors := []domain.FeatureDescriptor{
		{Name: "age", Type: domain.FeatureTypeNumeric},
		{Name: "diagnosis", Type: domain.FeatureTypeCategorical},
	}

	reporter := NewReporter(nil, DefaultConfig())
	report, err := reporter.FromRecordSet(rs, descriptors)
	require.NoError(t, err)

	assert.Equal(t, 4, report.NumRecords)
	assert.Equal(t, 2, report.NumFeatures)

	age := report.Feature("age")
	require.NotNil(t, age)
	assert.Equal(t, 1, age.MissingAbs)
	assert.InDelta(t, 25.0, age.MissingPct, 1e-9)

	diagnosis := report.Feature("diagnosis")
	require.NotNil(t, diagnosis)
	assert.Equal(t, 1, diagnosis.MissingAbs)
	assert.Equal(t, 2, diagnosis.DistinctCount)

	// Per-record missingness.
	require.Len(t, report.Records, 4)
	assert.Equal(t, 1, report.Records[1].MissingAbs)
	assert.InDelta(t, 50.0, report.Records[1].MissingPct, 1e-9)
	assert.Zero(t, report.Records[0].MissingAbs)
}

func TestFromRecordSetEmptyInput(t *testing.T) {
	rs := domain.NewRecordSet([]string{"age"}, nil)
	reporter := NewReporter(nil, DefaultConfig())
	_, err := reporter.FromRecordSet(rs, nil)

	var empty *apperrors.EmptyInputError
	require.ErrorAs(t, err, &empty)
}

func TestFromMatrixNumericSummaries(t *testing.T) {
	matrix := &domain.Matrix{
		Columns: []string{"age"},
		Data:    [][]float64{{10}, {11}, {9}, {10}, {11}, {9}, {10}, {50}},
	}
	mask := domain.NewMissingnessMask(8, 1)
	descriptors := []domain.FeatureDescriptor{{Name: "age", Type: domain.FeatureTypeNumeric}}

	reporter := NewReporter(nil, Config{OutlierSigma: 2})
	report, err := reporter.FromMatrix(matrix, mask, descriptors)
	require.NoError(t, err)

	age := report.Feature("age")
	require.NotNil(t, age)
	require.NotNil(t, age.Mean)
	assert.InDelta(t, 15.0, *age.Mean, 1e-9)
	require.NotNil(t, age.Median)
	assert.InDelta(t, 10.0, *age.Median, 1e-9)
	require.NotNil(t, age.Min)
	assert.Equal(t, 9.0, *age.Min)
	require.NotNil(t, age.Max)
	assert.Equal(t, 50.0, *age.Max)
	assert.Equal(t, []int{7}, age.OutlierRows)
}

func TestFromMatrixMaskedEntriesExcluded(t *testing.T) {
	// Pre-imputation matrix: masked entries are NaN and must not poison
	// the summaries; outlier indices refer to original rows.
	matrix := &domain.Matrix{
		Columns: []string{"age"},
		Data:    [][]float64{{10}, {math.NaN()}, {11}, {9}, {10}, {11}, {9}, {10}, {50}},
	}
	mask := domain.NewMissingnessMask(9, 1)
	mask.Mask[1][0] = true
	descriptors := []domain.FeatureDescriptor{{Name: "age", Type: domain.FeatureTypeNumeric}}

	reporter := NewReporter(nil, Config{OutlierSigma: 2})
	report, err := reporter.FromMatrix(matrix, mask, descriptors)
	require.NoError(t, err)

	age := report.Feature("age")
	assert.Equal(t, 1, age.MissingAbs)
	require.NotNil(t, age.Mean)
	assert.InDelta(t, 15.0, *age.Mean, 1e-9)
	assert.Equal(t, []int{8}, age.OutlierRows)
}

func TestFromMatrixEncodedColumnsGetDistinctCounts(t *testing.T) {
	matrix := &domain.Matrix{
		Columns: []string{"ehrcat_diagnosis"},
		Data:    [][]float64{{0}, {1}, {0}, {2}},
	}
	mask := domain.NewMissingnessMask(4, 1)

	reporter := NewReporter(nil, DefaultConfig())
	report, err := reporter.FromMatrix(matrix, mask, nil)
	require.NoError(t, err)

	col := report.Feature("ehrcat_diagnosis")
	require.NotNil(t, col)
	assert.Equal(t, domain.FeatureTypeCategorical, col.Type)
	assert.Equal(t, 3, col.DistinctCount)
	assert.Nil(t, col.Mean)
}

func TestFromMatrixIdempotent(t *testing.T) {
	matrix := &domain.Matrix{
		Columns: []string{"age"},
		Data:    [][]float64{{10}, {20}, {30}},
	}
	mask := domain.NewMissingnessMask(3, 1)
	descriptors := []domain.FeatureDescriptor{{Name: "age", Type: domain.FeatureTypeNumeric}}

	reporter := NewReporter(nil, DefaultConfig())
	first, err := reporter.FromMatrix(matrix, mask, descriptors)
	require.NoError(t, err)
	second, err := reporter.FromMatrix(matrix, mask, descriptors)
	require.NoError(t, err)

	// Timestamps aside, reports over identical input are identical, and
	// generating one never mutates the matrix.
	first.GeneratedAt = second.GeneratedAt
	assert.Equal(t, first, second)
	assert.Equal(t, 10.0, matrix.At(0, 0))
}

func TestFromMatrixEmptyInput(t *testing.T) {
	matrix := domain.NewMatrix([]string{"age"}, 0)
	mask := domain.NewMissingnessMask(0, 1)

	reporter := NewReporter(nil, DefaultConfig())
	_, err := reporter.FromMatrix(matrix, mask, nil)

	var empty *apperrors.EmptyInputError
	require.ErrorAs(t, err, &empty)
}

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{name: "simple values", input: []float64{1, 2, 3}, expected: 2},
		{name: "single value", input: []float64{5}, expected: 5},
		{name: "empty slice", input: nil, expected: 0},
		{name: "negative values", input: []float64{-2, 2}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.input), 1e-9)
		})
	}
}

func TestVarianceAndStd(t *testing.T) {
	// Population variance of {2, 4, 4, 4, 5, 5, 7, 9} is 4.
	input := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 4.0, Variance(input), 1e-9)
	assert.InDelta(t, 2.0, Std(input), 1e-9)

	assert.Zero(t, Variance(nil))
	assert.Zero(t, Variance([]float64{3}))
}

func TestMinMax(t *testing.T) {
	min, max := MinMax([]float64{3, -1, 7, 0})
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 7.0, max)

	min, max = MinMax(nil)
	assert.Zero(t, min)
	assert.Zero(t, max)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{name: "odd count", input: []float64{3, 1, 2}, expected: 2},
		{name: "even count", input: []float64{4, 1, 3, 2}, expected: 2.5},
		{name: "empty", input: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Median(tt.input), 1e-9)
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	input := []float64{3, 1, 2}
	Median(input)
	assert.Equal(t, []float64{3, 1, 2}, input)
}

func TestMode(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{name: "clear winner", input: []float64{1, 2, 2, 3}, expected: 2},
		{name: "tie resolves to first seen", input: []float64{5, 7, 5, 7}, expected: 5},
		{name: "tie resolves to first seen even when the later value completes first", input: []float64{1, 2, 2, 1}, expected: 1},
		{name: "empty", input: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Mode(tt.input))
		})
	}
}

func TestZScoreOutliers(t *testing.T) {
	// One extreme value among tightly clustered ones.
	input := []float64{10, 11, 9, 10, 11, 9, 10, 50}
	outliers := ZScoreOutliers(input, 2)
	assert.Equal(t, []int{7}, outliers)

	t.Run("zero variance has no outliers", func(t *testing.T) {
		assert.Nil(t, ZScoreOutliers([]float64{4, 4, 4}, 1))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, ZScoreOutliers(nil, 3))
	})
}

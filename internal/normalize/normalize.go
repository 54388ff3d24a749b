// Package normalize rescales numeric columns of an encoded matrix. Encoded
// categorical columns are never normalized; doing so would break the
// encoding map's inverse.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"ehrkit/internal/stats"
	"ehrkit/pkg/contracts/domain"
)

// Method names a normalization applied to a numeric column.
type Method string

const (
	MethodScale       Method = "scale"
	MethodMinMax      Method = "minmax"
	MethodMaxAbs      Method = "maxabs"
	MethodRobustScale Method = "robust_scale"
	MethodLog1p       Method = "log1p"
	MethodIdentity    Method = "identity"
)

// Valid reports whether the method is one of the known variants.
func (m Method) Valid() bool {
	switch m {
	case MethodScale, MethodMinMax, MethodMaxAbs, MethodRobustScale, MethodLog1p, MethodIdentity:
		return true
	}
	return false
}

// Normalizer rescales numeric matrix columns and records what was applied.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Apply normalizes the selected columns of a dense matrix, returning a new
// matrix and a per-column record of the methods applied in order. Methods
// maps method to column names; a column may appear under several methods
// and receives them in deterministic method-name order.
func (n *Normalizer) Apply(matrix *domain.Matrix, methods map[Method][]string) (*domain.Matrix, map[string][]string, error) {
	out := matrix.Clone()
	record := make(map[string][]string)

	names := make([]Method, 0, len(methods))
	for m := range methods {
		if !m.Valid() {
			return nil, nil, fmt.Errorf("unknown normalization method %q", m)
		}
		names = append(names, m)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, method := range names {
		for _, column := range methods[method] {
			col := out.ColumnIndex(column)
			if col < 0 {
				return nil, nil, fmt.Errorf("normalization target %q is not a matrix column", column)
			}
			if strings.HasPrefix(column, domain.EncodedColumnPrefix) {
				return nil, nil, fmt.Errorf("column %q holds an encoded categorical and cannot be normalized", column)
			}
			normalizeColumn(out, col, method)
			record[column] = append(record[column], string(method))
		}
	}

	n.logger.Debug("normalized matrix columns", slog.Int("columns", len(record)))

	return out, record, nil
}

func normalizeColumn(matrix *domain.Matrix, col int, method Method) {
	values := matrix.Column(col)
	switch method {
	case MethodScale:
		mean := stats.Mean(values)
		std := stats.Std(values)
		if std == 0 {
			std = 1
		}
		for row := range matrix.Data {
			matrix.Data[row][col] = (matrix.Data[row][col] - mean) / std
		}
	case MethodMinMax:
		min, max := stats.MinMax(values)
		span := max - min
		if span == 0 {
			span = 1
		}
		for row := range matrix.Data {
			matrix.Data[row][col] = (matrix.Data[row][col] - min) / span
		}
	case MethodMaxAbs:
		maxAbs := 0.0
		for _, v := range values {
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
		if maxAbs == 0 {
			maxAbs = 1
		}
		for row := range matrix.Data {
			matrix.Data[row][col] = matrix.Data[row][col] / maxAbs
		}
	case MethodRobustScale:
		median := stats.Median(values)
		iqr := interquartileRange(values)
		if iqr == 0 {
			iqr = 1
		}
		for row := range matrix.Data {
			matrix.Data[row][col] = (matrix.Data[row][col] - median) / iqr
		}
	case MethodLog1p:
		for row := range matrix.Data {
			matrix.Data[row][col] = math.Log1p(matrix.Data[row][col])
		}
	case MethodIdentity:
		// Recorded but leaves values untouched.
	}
}

// interquartileRange computes Q3 - Q1 with linear interpolation.
func interquartileRange(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	sort.Float64s(cp)
	return percentile(cp, 75) - percentile(cp, 25)
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := pct / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

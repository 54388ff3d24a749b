package encoder

import (
	"fmt"

	"ehrkit/pkg/contracts/domain"
)

// DecodeValue maps an encoded vector for the named feature back to its
// original category value.
func DecodeValue(encodingMap *domain.EncodingMap, feature string, vec []float64) (string, error) {
	enc := encodingMap.Encoding(feature)
	if enc == nil {
		return "", &domain.UnknownCategoryError{Feature: feature, Op: "decode"}
	}
	return enc.DecodeVector(vec)
}

// DecodeRow returns the original value of one record for the named feature.
// Exact for every strategy, including non-injective ones, via the retained
// original column.
func DecodeRow(encodingMap *domain.EncodingMap, feature string, row int) (string, error) {
	enc := encodingMap.Encoding(feature)
	if enc == nil {
		return "", &domain.UnknownCategoryError{Feature: feature, Op: "decode"}
	}
	return enc.DecodeRow(row)
}

// Undo reconstructs the original categorical columns from an encoding map,
// keyed by feature name. The numeric matrix is not consulted; the map alone
// is sufficient to invert the encoding.
func Undo(encodingMap *domain.EncodingMap) map[string][]string {
	out := make(map[string][]string, len(encodingMap.Features))
	for i := range encodingMap.Features {
		enc := &encodingMap.Features[i]
		values := make([]string, len(enc.Original))
		copy(values, enc.Original)
		out[enc.Feature] = values
	}
	return out
}

// DecodeMatrix decodes every encoded feature for every row of the given
// matrix by vector lookup, verifying the matrix content actually matches
// the encoding map. Rows whose vectors match no known category fail with an
// unknown-category error.
func DecodeMatrix(encodingMap *domain.EncodingMap, matrix *domain.Matrix) (map[string][]string, error) {
	out := make(map[string][]string, len(encodingMap.Features))
	for i := range encodingMap.Features {
		enc := &encodingMap.Features[i]
		cols := make([]int, len(enc.Columns))
		for k, name := range enc.Columns {
			c := matrix.ColumnIndex(name)
			if c < 0 {
				return nil, fmt.Errorf("matrix is missing encoded column %q for feature %s", name, enc.Feature)
			}
			cols[k] = c
		}
		values := make([]string, matrix.NumRows())
		for row := 0; row < matrix.NumRows(); row++ {
			vec := make([]float64, len(cols))
			for k, c := range cols {
				vec[k] = matrix.At(row, c)
			}
			v, err := enc.DecodeVector(vec)
			if err != nil {
				return nil, err
			}
			values[row] = v
		}
		out[enc.Feature] = values
	}
	return out, nil
}

package encoder

import (
	"fmt"
	"hash/fnv"
	"math"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// encodeCategorical builds the column block and feature encoding for one
// categorical feature under the selected strategy.
func (e *Encoder) encodeCategorical(rs *domain.RecordSet, col int, desc domain.FeatureDescriptor, strategy domain.EncodingStrategy) (*encodedColumn, error) {
	order := buildCategoryOrder(rs, col, e.config.EncodeMissing)
	if len(order) == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrTypeEncoding,
			fmt.Sprintf("feature %s has no encodable values", desc.Name), nil)
	}

	var (
		names   []string
		vectors map[string][]float64
		err     error
	)
	switch strategy {
	case domain.StrategyOneHot:
		names, vectors = oneHotVectors(desc.Name, order)
	case domain.StrategyOrdinal:
		names, vectors = ordinalVectors(desc.Name, order)
	case domain.StrategyCount:
		names, vectors = countVectors(desc.Name, order, categoryCounts(rs, col, e.config.EncodeMissing))
	case domain.StrategyHash:
		names, vectors, err = hashVectors(desc.Name, order)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown encoding strategy %q for feature %s", strategy, desc.Name)
	}

	width := len(names)
	values := make([][]float64, width)
	for k := range values {
		values[k] = make([]float64, rs.NumRows())
	}
	missing := make([]bool, rs.NumRows())
	original := make([]string, rs.NumRows())

	for i := 0; i < rs.NumRows(); i++ {
		category := rs.Value(i, col)
		if rs.IsMissing(i, col) {
			if !e.config.EncodeMissing {
				// Left for the imputer; mask records the gap.
				for k := 0; k < width; k++ {
					values[k][i] = math.NaN()
				}
				missing[i] = true
				original[i] = category
				continue
			}
			category = domain.MissingCategory
		}
		vec := vectors[category]
		for k := 0; k < width; k++ {
			values[k][i] = vec[k]
		}
		original[i] = category
	}

	return &encodedColumn{
		names:   names,
		values:  values,
		missing: missing,
		encoding: &domain.FeatureEncoding{
			Feature:    desc.Name,
			Strategy:   strategy,
			Columns:    names,
			Categories: order,
			Vectors:    vectors,
			Original:   original,
		},
	}, nil
}

// buildCategoryOrder scans the column and returns its categories in
// first-seen order. When missing values are encoded, the sentinel missing
// category takes the position of the first missing cell, so column layout
// stays stable as streamed rows accumulate.
func buildCategoryOrder(rs *domain.RecordSet, col int, encodeMissing bool) []string {
	seen := make(map[string]struct{})
	var order []string
	for i := 0; i < rs.NumRows(); i++ {
		v := rs.Value(i, col)
		if rs.IsMissing(i, col) {
			if !encodeMissing {
				continue
			}
			v = domain.MissingCategory
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			order = append(order, v)
		}
	}
	return order
}

// categoryCounts tallies occurrences per category for count encoding.
func categoryCounts(rs *domain.RecordSet, col int, encodeMissing bool) map[string]int {
	counts := make(map[string]int)
	for i := 0; i < rs.NumRows(); i++ {
		v := rs.Value(i, col)
		if rs.IsMissing(i, col) {
			if !encodeMissing {
				continue
			}
			v = domain.MissingCategory
		}
		counts[v]++
	}
	return counts
}

// oneHotVectors assigns each category its own binary column in first-seen
// order.
func oneHotVectors(feature string, order []string) ([]string, map[string][]float64) {
	names := make([]string, len(order))
	vectors := make(map[string][]float64, len(order))
	for idx, cat := range order {
		names[idx] = fmt.Sprintf("%s%s_%s", domain.EncodedColumnPrefix, feature, cat)
		vec := make([]float64, len(order))
		vec[idx] = 1
		vectors[cat] = vec
	}
	return names, vectors
}

// ordinalVectors assigns each category its rank of first occurrence.
func ordinalVectors(feature string, order []string) ([]string, map[string][]float64) {
	names := []string{domain.EncodedColumnPrefix + feature}
	vectors := make(map[string][]float64, len(order))
	for idx, cat := range order {
		vectors[cat] = []float64{float64(idx)}
	}
	return names, vectors
}

// countVectors assigns each category its occurrence count.
func countVectors(feature string, order []string, counts map[string]int) ([]string, map[string][]float64) {
	names := []string{domain.EncodedColumnPrefix + feature}
	vectors := make(map[string][]float64, len(order))
	for _, cat := range order {
		vectors[cat] = []float64{float64(counts[cat])}
	}
	return names, vectors
}

// hashVectors spreads categories over a fixed-width signed bucket vector.
// Two categories landing on identical vectors would be indistinguishable at
// decode time, so collisions fail the encoding outright.
func hashVectors(feature string, order []string) ([]string, map[string][]float64, error) {
	names := make([]string, domain.HashWidth)
	for i := range names {
		names[i] = fmt.Sprintf("%shash_%s_%d", domain.EncodedColumnPrefix, feature, i)
	}

	vectors := make(map[string][]float64, len(order))
	byBucket := make(map[[2]uint64]string, len(order))
	for _, cat := range order {
		h := fnv.New64a()
		h.Write([]byte(cat))
		sum := h.Sum64()
		bucket := sum % domain.HashWidth
		sign := float64(1)
		if (sum>>32)&1 == 1 {
			sign = -1
		}
		key := [2]uint64{bucket, uint64((sum >> 32) & 1)}
		if prev, clash := byBucket[key]; clash {
			return nil, nil, &apperrors.EncodingCollisionError{
				Feature:    feature,
				Categories: [2]string{prev, cat},
			}
		}
		byBucket[key] = cat

		vec := make([]float64, domain.HashWidth)
		vec[bucket] = sign
		vectors[cat] = vec
	}
	return names, vectors, nil
}

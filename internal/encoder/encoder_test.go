package encoder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

func classify(t *testing.T, rs *domain.RecordSet, types map[string]domain.FeatureType) []domain.FeatureDescriptor {
	t.Helper()
	descriptors := make([]domain.FeatureDescriptor, len(rs.Features))
	for col, name := range rs.Features {
		desc := domain.FeatureDescriptor{Name: name, Type: types[name]}
		if desc.Type == domain.FeatureTypeCategorical {
			seen := make(map[string]struct{})
			for i := 0; i < rs.NumRows(); i++ {
				if rs.IsMissing(i, col) {
					continue
				}
				v := rs.Value(i, col)
				if _, ok := seen[v]; !ok {
					seen[v] = struct{}{}
					desc.Categories = append(desc.Categories, v)
				}
			}
		}
		descriptors[col] = desc
	}
	return descriptors
}

func TestEncodeOneHotWithMissingCategory(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"NA"}, {"flu"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, Config{EncodeMissing: true})
	matrix, encodingMap, mask, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	// Missing sentinel takes the position of the first missing cell.
	require.Equal(t, []string{"ehrcat_diagnosis_flu", "ehrcat_diagnosis_missing"}, matrix.Columns)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}, {1, 0}}, matrix.Data)

	// Encoded missing cells do not count as missing for the imputer.
	assert.Zero(t, mask.CountColumn(0))
	assert.Zero(t, mask.CountColumn(1))

	fe := encodingMap.Encoding("diagnosis")
	require.NotNil(t, fe)
	decoded, err := fe.DecodeRow(1)
	require.NoError(t, err)
	assert.Equal(t, domain.MissingCategory, decoded)
}

func TestEncodeOneHotMissingLeftForImputer(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"NA"}, {"cold"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, Config{EncodeMissing: false})
	matrix, encodingMap, mask, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"ehrcat_diagnosis_flu", "ehrcat_diagnosis_cold"}, matrix.Columns)
	assert.True(t, math.IsNaN(matrix.At(1, 0)))
	assert.True(t, math.IsNaN(matrix.At(1, 1)))

	// Missingness conservation over the feature's column block.
	assert.Equal(t, 1, mask.CountRows([]int{0, 1}))

	// Original column retains the raw marker for round-tripping.
	fe := encodingMap.Encoding("diagnosis")
	require.NotNil(t, fe)
	decoded, err := fe.DecodeRow(1)
	require.NoError(t, err)
	assert.Equal(t, "NA", decoded)
}

func TestEncodeOrdinalFirstSeenRanks(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"severity"},
		[][]string{{"mild"}, {"severe"}, {"mild"}, {"moderate"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"severity": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	matrix, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOrdinal, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"ehrcat_severity"}, matrix.Columns)
	assert.Equal(t, [][]float64{{0}, {1}, {0}, {2}}, matrix.Data)

	fe := encodingMap.Encoding("severity")
	require.NotNil(t, fe)
	assert.Equal(t, []string{"mild", "severe", "moderate"}, fe.Categories)
}

func TestEncodeCountAbsoluteCounts(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"cold"}, {"flu"}, {"flu"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	matrix, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyCount, nil)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{3}, {1}, {3}, {3}}, matrix.Data)

	// Non-injective vectors still round-trip exactly through the original
	// column.
	fe := encodingMap.Encoding("diagnosis")
	for row, expected := range []string{"flu", "cold", "flu", "flu"} {
		decoded, err := fe.DecodeRow(row)
		require.NoError(t, err)
		assert.Equal(t, expected, decoded)
	}
}

func TestEncodeCountEqualFrequencyDecodeVector(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"cold"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	_, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyCount, nil)
	require.NoError(t, err)

	// Both categories map to count 1; vector decode resolves to the
	// first-seen category while per-row decode stays exact.
	fe := encodingMap.Encoding("diagnosis")
	decoded, err := fe.DecodeVector([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, "flu", decoded)

	decoded, err = fe.DecodeRow(1)
	require.NoError(t, err)
	assert.Equal(t, "cold", decoded)
}

func TestEncodeHashRoundTrip(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"unit"},
		[][]string{{"icu"}, {"er"}, {"icu"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"unit": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	matrix, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyHash, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.HashWidth, matrix.NumCols())

	decoded, err := DecodeMatrix(encodingMap, matrix)
	require.NoError(t, err)
	assert.Equal(t, []string{"icu", "er", "icu"}, decoded["unit"])
}

func TestEncodePassThroughNumericAndDate(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"age", "admitted"},
		[][]string{
			{"63", "2021-01-05"},
			{"NA", "2021-02-11"},
		},
	)
	descriptors := []domain.FeatureDescriptor{
		{Name: "age", Type: domain.FeatureTypeNumeric},
		{Name: "admitted", Type: domain.FeatureTypeDate, DateFormat: "2006-01-02"},
	}

	enc := NewEncoder(nil, DefaultConfig())
	matrix, _, mask, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"age", "admitted"}, matrix.Columns)
	assert.Equal(t, 63.0, matrix.At(0, 0))
	assert.True(t, math.IsNaN(matrix.At(1, 0)))
	assert.True(t, mask.At(1, 0))

	// Dates become Unix seconds.
	assert.Equal(t, 1609804800.0, matrix.At(0, 1))
}

func TestEncodeRejectsNonNumericValue(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"age"},
		[][]string{{"63"}, {"sixty"}},
	)
	descriptors := []domain.FeatureDescriptor{{Name: "age", Type: domain.FeatureTypeNumeric}}

	enc := NewEncoder(nil, DefaultConfig())
	_, _, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeEncoding, appErr.Type)
}

func TestEncodeTextExcludedFromMatrix(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"age", "notes"},
		[][]string{{"63", "free text"}, {"48", "more text"}},
	)
	descriptors := []domain.FeatureDescriptor{
		{Name: "age", Type: domain.FeatureTypeNumeric},
		{Name: "notes", Type: domain.FeatureTypeText},
	}

	enc := NewEncoder(nil, DefaultConfig())
	matrix, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"age"}, matrix.Columns)
	assert.Empty(t, encodingMap.Features)
}

func TestEncodePerFeatureSelection(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis", "severity"},
		[][]string{{"flu", "mild"}, {"cold", "severe"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{
		"diagnosis": domain.FeatureTypeCategorical,
		"severity":  domain.FeatureTypeCategorical,
	})

	selection, err := BuildSelection(map[domain.EncodingStrategy][]string{
		domain.StrategyOrdinal: {"severity"},
	})
	require.NoError(t, err)

	enc := NewEncoder(nil, DefaultConfig())
	_, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, selection)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyOneHot, encodingMap.Encoding("diagnosis").Strategy)
	assert.Equal(t, domain.StrategyOrdinal, encodingMap.Encoding("severity").Strategy)
}

func TestBuildSelectionRejectsDuplicate(t *testing.T) {
	_, err := BuildSelection(map[domain.EncodingStrategy][]string{
		domain.StrategyOneHot:  {"diagnosis"},
		domain.StrategyOrdinal: {"diagnosis"},
	})
	require.Error(t, err)

	var dup *apperrors.DuplicateEncodingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "diagnosis", dup.Feature)
}

func TestEncodeEmptyInput(t *testing.T) {
	rs := domain.NewRecordSet([]string{"age"}, nil)
	enc := NewEncoder(nil, DefaultConfig())
	_, _, _, err := enc.Encode(context.Background(), rs, nil, domain.StrategyOneHot, nil)

	var empty *apperrors.EmptyInputError
	require.ErrorAs(t, err, &empty)
}

func TestEncodeDeterministic(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis", "age"},
		[][]string{
			{"flu", "63"},
			{"cold", "48"},
			{"covid", "NA"},
			{"flu", "71"},
		},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{
		"diagnosis": domain.FeatureTypeCategorical,
		"age":       domain.FeatureTypeNumeric,
	})

	enc := NewEncoder(nil, Config{Workers: 3})
	m1, e1, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)
	m2, e2, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	assert.Equal(t, m1.Columns, m2.Columns)
	assert.Equal(t, e1, e2)
}

func TestUndoReconstructsColumns(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"cold"}, {"flu"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	_, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	original := Undo(encodingMap)
	assert.Equal(t, []string{"flu", "cold", "flu"}, original["diagnosis"])
}

func TestDecodeUnknownVector(t *testing.T) {
	rs := domain.NewRecordSet(
		[]string{"diagnosis"},
		[][]string{{"flu"}, {"cold"}},
	)
	descriptors := classify(t, rs, map[string]domain.FeatureType{"diagnosis": domain.FeatureTypeCategorical})

	enc := NewEncoder(nil, DefaultConfig())
	_, encodingMap, _, err := enc.Encode(context.Background(), rs, descriptors, domain.StrategyOneHot, nil)
	require.NoError(t, err)

	_, err = DecodeValue(encodingMap, "diagnosis", []float64{0.5, 0.5})
	var unknown *domain.UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "decode", unknown.Op)
}

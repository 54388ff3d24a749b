package domain

import (
	"fmt"
	"math"
)

// EncodingStrategy selects how a categorical feature is turned into
// numeric columns.
type EncodingStrategy string

const (
	StrategyOneHot  EncodingStrategy = "one_hot"
	StrategyOrdinal EncodingStrategy = "ordinal"
	StrategyCount   EncodingStrategy = "count"
	StrategyHash    EncodingStrategy = "hash"
)

// MissingCategory is the sentinel category a missing cell is mapped to when
// missing values are encoded rather than imputed.
const MissingCategory = "missing"

// EncodedColumnPrefix marks matrix columns that hold encoded categorical
// values. Pass-through numeric and date columns keep their original names.
const EncodedColumnPrefix = "ehrcat_"

// HashWidth is the number of output columns produced by hash encoding.
const HashWidth = 8

// Valid reports whether the strategy is one of the known variants.
func (s EncodingStrategy) Valid() bool {
	switch s {
	case StrategyOneHot, StrategyOrdinal, StrategyCount, StrategyHash:
		return true
	}
	return false
}

// FeatureEncoding is the bidirectional mapping for one categorical feature:
// category value to output vector, and output column block back to the
// original values. It also retains the original raw column so inversion is
// exact for every strategy, including non-injective ones.
type FeatureEncoding struct {
	Feature    string           `json:"feature"`
	Strategy   EncodingStrategy `json:"strategy"`
	Columns    []string         `json:"columns"`
	Categories []string         `json:"categories"`

	// Vectors maps each category (plus MissingCategory when missing values
	// are encoded) to its output vector, in Columns order.
	Vectors map[string][]float64 `json:"vectors"`

	// Original is the raw column as observed at encode time, with missing
	// markers replaced by MissingCategory when those were encoded.
	Original []string `json:"original"`
}

// EncodeValue returns the output vector for a category value.
// Values absent from the map fail with an unknown-category error carrying
// op "encode", so callers can tell encode-time misses from decode-time ones.
func (e *FeatureEncoding) EncodeValue(value string) ([]float64, error) {
	vec, ok := e.Vectors[value]
	if !ok {
		return nil, &UnknownCategoryError{Feature: e.Feature, Value: value, Op: "encode"}
	}
	out := make([]float64, len(vec))
	copy(out, vec)
	return out, nil
}

// DecodeVector maps an output vector back to its category value. Categories
// are matched in first-seen order, so a non-injective strategy (count
// encoding of equally frequent categories) resolves to the earliest match.
func (e *FeatureEncoding) DecodeVector(vec []float64) (string, error) {
	for _, cat := range e.Categories {
		if vectorsEqual(e.Vectors[cat], vec) {
			return cat, nil
		}
	}
	if mv, ok := e.Vectors[MissingCategory]; ok && vectorsEqual(mv, vec) {
		return MissingCategory, nil
	}
	return "", &UnknownCategoryError{Feature: e.Feature, Value: fmt.Sprintf("%v", vec), Op: "decode"}
}

// DecodeRow returns the original value of the given record, exact for every
// strategy via the retained original column.
func (e *FeatureEncoding) DecodeRow(row int) (string, error) {
	if row < 0 || row >= len(e.Original) {
		return "", fmt.Errorf("row %d out of range for feature %s", row, e.Feature)
	}
	return e.Original[row], nil
}

// Width returns the number of output columns for this feature.
func (e *FeatureEncoding) Width() int {
	return len(e.Columns)
}

func vectorsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// EncodingMap collects the per-feature encodings of one pipeline run.
// Deterministic for a fixed record set and strategy selection.
type EncodingMap struct {
	// Features holds encodings in record-set feature order.
	Features []FeatureEncoding `json:"features"`
}

// Encoding returns the encoding for the named feature, or nil.
func (m *EncodingMap) Encoding(feature string) *FeatureEncoding {
	for i := range m.Features {
		if m.Features[i].Feature == feature {
			return &m.Features[i]
		}
	}
	return nil
}

// UnknownCategoryError reports a category value absent from the encoding
// map. Op is "encode" or "decode".
type UnknownCategoryError struct {
	Feature string
	Value   string
	Op      string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for feature %s during %s", e.Value, e.Feature, e.Op)
}

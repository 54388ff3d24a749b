// Package encoder converts classified record-set columns into a dense
// numeric matrix with a reversible per-feature encoding map. Stage
// functions are pure: the input record set is never mutated and every call
// produces fresh outputs.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// Config holds encoding options.
type Config struct {
	// EncodeMissing maps missing categorical cells to a sentinel missing
	// category instead of leaving them for the imputer.
	EncodeMissing bool

	// Workers bounds the per-feature encoding concurrency.
	Workers int
}

// DefaultConfig returns the encoding defaults.
func DefaultConfig() Config {
	return Config{EncodeMissing: false, Workers: 4}
}

// Selection maps feature name to its encoding strategy. Features absent
// from the selection use the global strategy.
type Selection map[string]domain.EncodingStrategy

// BuildSelection flattens a strategy-to-features assignment into a
// per-feature selection, rejecting features assigned twice.
func BuildSelection(assignments map[domain.EncodingStrategy][]string) (Selection, error) {
	sel := make(Selection)
	for strategy, features := range assignments {
		if !strategy.Valid() {
			return nil, fmt.Errorf("unknown encoding strategy %q", strategy)
		}
		for _, f := range features {
			if _, dup := sel[f]; dup {
				return nil, &apperrors.DuplicateEncodingError{Feature: f}
			}
			sel[f] = strategy
		}
	}
	return sel, nil
}

// Encoder turns categorical columns into numeric ones and passes numeric
// and date columns through with a cast and range check.
type Encoder struct {
	logger *slog.Logger
	config Config
}

// NewEncoder creates an encoder with the given configuration.
func NewEncoder(logger *slog.Logger, config Config) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	return &Encoder{logger: logger, config: config}
}

// encodedColumn is the output of encoding one input feature: a block of
// matrix columns plus, for categoricals, the feature encoding.
type encodedColumn struct {
	names    []string
	values   [][]float64 // values[k] is output column k, len == NumRows
	missing  []bool      // true where the source cell was a missing marker left for imputation
	encoding *domain.FeatureEncoding
}

// Encode produces the numeric matrix, the encoding map and the missingness
// mask for the record set. Text features carry no reversible encoding and
// are excluded from the matrix. Column blocks appear in record-set feature
// order regardless of worker scheduling.
func (e *Encoder) Encode(
	ctx context.Context,
	rs *domain.RecordSet,
	descriptors []domain.FeatureDescriptor,
	global domain.EncodingStrategy,
	perFeature Selection,
) (*domain.Matrix, *domain.EncodingMap, *domain.MissingnessMask, error) {
	if rs.NumRows() == 0 {
		return nil, nil, nil, &apperrors.EmptyInputError{}
	}
	if !global.Valid() {
		return nil, nil, nil, fmt.Errorf("unknown encoding strategy %q", global)
	}

	results := make([]*encodedColumn, len(descriptors))

	// Per-feature encoding has no cross-feature dependency; columns are
	// merged back by feature index afterwards.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for col := range descriptors {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			enc, err := e.encodeFeature(rs, col, descriptors[col], strategyFor(descriptors[col].Name, global, perFeature))
			if err != nil {
				return err
			}
			results[col] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	var columns []string
	encodingMap := &domain.EncodingMap{}
	for _, enc := range results {
		if enc == nil {
			continue
		}
		columns = append(columns, enc.names...)
		if enc.encoding != nil {
			encodingMap.Features = append(encodingMap.Features, *enc.encoding)
		}
	}

	matrix := domain.NewMatrix(columns, rs.NumRows())
	mask := domain.NewMissingnessMask(rs.NumRows(), len(columns))
	out := 0
	for _, enc := range results {
		if enc == nil {
			continue
		}
		for k, colValues := range enc.values {
			for i, v := range colValues {
				matrix.Data[i][out+k] = v
				mask.Mask[i][out+k] = enc.missing[i]
			}
		}
		out += len(enc.names)
	}

	e.logger.Debug("encoded record set",
		slog.Int("input_features", len(descriptors)),
		slog.Int("output_columns", len(columns)),
		slog.Int("encoded_features", len(encodingMap.Features)))

	return matrix, encodingMap, mask, nil
}

func strategyFor(feature string, global domain.EncodingStrategy, perFeature Selection) domain.EncodingStrategy {
	if s, ok := perFeature[feature]; ok {
		return s
	}
	return global
}

// encodeFeature dispatches on the descriptor type. Text features return nil:
// free text has no reversible numeric form and is left to upstream
// annotation collaborators.
func (e *Encoder) encodeFeature(rs *domain.RecordSet, col int, desc domain.FeatureDescriptor, strategy domain.EncodingStrategy) (*encodedColumn, error) {
	switch desc.Type {
	case domain.FeatureTypeNumeric:
		return passThroughNumeric(rs, col, desc)
	case domain.FeatureTypeDate:
		return passThroughDate(rs, col, desc)
	case domain.FeatureTypeCategorical:
		return e.encodeCategorical(rs, col, desc, strategy)
	case domain.FeatureTypeText:
		e.logger.Warn("excluding free-text feature from matrix",
			slog.String("feature", desc.Name))
		return nil, nil
	default:
		return nil, fmt.Errorf("feature %s has unknown type %q", desc.Name, desc.Type)
	}
}

// passThroughNumeric casts a numeric column, rejecting non-finite values.
func passThroughNumeric(rs *domain.RecordSet, col int, desc domain.FeatureDescriptor) (*encodedColumn, error) {
	values := make([]float64, rs.NumRows())
	missing := make([]bool, rs.NumRows())
	for i := 0; i < rs.NumRows(); i++ {
		if rs.IsMissing(i, col) {
			values[i] = math.NaN()
			missing[i] = true
			continue
		}
		v, err := strconv.ParseFloat(rs.Value(i, col), 64)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrTypeEncoding,
				fmt.Sprintf("feature %s row %d: value %q is not numeric", desc.Name, i, rs.Value(i, col)), err)
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, apperrors.NewAppError(apperrors.ErrTypeEncoding,
				fmt.Sprintf("feature %s row %d: value out of range", desc.Name, i), nil)
		}
		values[i] = v
	}
	return &encodedColumn{
		names:   []string{desc.Name},
		values:  [][]float64{values},
		missing: missing,
	}, nil
}

// passThroughDate casts a date column to Unix seconds.
func passThroughDate(rs *domain.RecordSet, col int, desc domain.FeatureDescriptor) (*encodedColumn, error) {
	layout := desc.DateFormat
	if layout == "" {
		layout = time.DateOnly
	}
	values := make([]float64, rs.NumRows())
	missing := make([]bool, rs.NumRows())
	for i := 0; i < rs.NumRows(); i++ {
		if rs.IsMissing(i, col) {
			values[i] = math.NaN()
			missing[i] = true
			continue
		}
		t, err := time.Parse(layout, rs.Value(i, col))
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrTypeEncoding,
				fmt.Sprintf("feature %s row %d: value %q does not match date format %s", desc.Name, i, rs.Value(i, col), layout), err)
		}
		values[i] = float64(t.Unix())
	}
	return &encodedColumn{
		names:   []string{desc.Name},
		values:  [][]float64{values},
		missing: missing,
	}, nil
}

// Package featuretype classifies record-set columns into numeric, date,
// categorical or free-text features. Classification happens once per
// pipeline run; the resulting descriptors are passed immutably through all
// later stages and are never re-inferred mid-pipeline.
package featuretype

import (
	"log/slog"
	"strconv"
	"time"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// Config holds classification options.
type Config struct {
	// CardinalityThreshold is the largest distinct-value count a
	// non-numeric feature may have and still count as categorical rather
	// than free text.
	CardinalityThreshold int

	// DateFormats are tried in order against every non-missing value.
	DateFormats []string
}

// DefaultConfig returns the classification defaults.
func DefaultConfig() Config {
	return Config{
		CardinalityThreshold: 10,
		DateFormats:          []string{"2006-01-02", "2006-01-02 15:04:05", "02/01/2006"},
	}
}

// Registry infers feature descriptors from a record set and applies user
// overrides.
type Registry struct {
	logger *slog.Logger
	config Config
}

// NewRegistry creates a feature type registry with the given configuration.
func NewRegistry(logger *slog.Logger, config Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CardinalityThreshold <= 0 {
		config.CardinalityThreshold = DefaultConfig().CardinalityThreshold
	}
	if len(config.DateFormats) == 0 {
		config.DateFormats = DefaultConfig().DateFormats
	}
	return &Registry{logger: logger, config: config}
}

// Classify produces one descriptor per feature of the record set.
// Overrides map feature name to declared type and take precedence
// unconditionally. A feature with zero non-missing values and no override
// fails classification.
func (r *Registry) Classify(rs *domain.RecordSet, overrides map[string]domain.FeatureType) ([]domain.FeatureDescriptor, error) {
	descriptors := make([]domain.FeatureDescriptor, len(rs.Features))

	for col, name := range rs.Features {
		if override, ok := overrides[name]; ok {
			desc := domain.FeatureDescriptor{Name: name, Type: override, Overridden: true}
			if override == domain.FeatureTypeCategorical {
				desc.Categories = distinctFirstSeen(rs, col)
			}
			descriptors[col] = desc
			continue
		}

		desc, err := r.classifyColumn(rs, col, name)
		if err != nil {
			return nil, err
		}
		descriptors[col] = desc
	}

	r.logger.Debug("classified record set features",
		slog.Int("feature_count", len(descriptors)))

	return descriptors, nil
}

// classifyColumn applies the inference rules: numeric if every non-missing
// value parses as a number, date if every value parses under a configured
// layout, categorical below the cardinality threshold, text otherwise.
// Ties between categorical and text favor categorical, keeping the feature
// reversibly encodable.
func (r *Registry) classifyColumn(rs *domain.RecordSet, col int, name string) (domain.FeatureDescriptor, error) {
	allNumeric := true
	dateFormat := ""
	observed := 0

	for i := 0; i < rs.NumRows(); i++ {
		if rs.IsMissing(i, col) {
			continue
		}
		observed++
		v := rs.Value(i, col)
		if allNumeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allNumeric = false
			}
		}
	}

	if observed == 0 {
		return domain.FeatureDescriptor{}, &apperrors.AmbiguousTypeError{Feature: name}
	}

	if allNumeric {
		return domain.FeatureDescriptor{Name: name, Type: domain.FeatureTypeNumeric}, nil
	}

	dateFormat = r.matchDateFormat(rs, col)
	if dateFormat != "" {
		return domain.FeatureDescriptor{Name: name, Type: domain.FeatureTypeDate, DateFormat: dateFormat}, nil
	}

	categories := distinctFirstSeen(rs, col)
	if len(categories) <= r.config.CardinalityThreshold {
		return domain.FeatureDescriptor{
			Name:       name,
			Type:       domain.FeatureTypeCategorical,
			Categories: categories,
		}, nil
	}

	return domain.FeatureDescriptor{Name: name, Type: domain.FeatureTypeText}, nil
}

// matchDateFormat returns the first configured layout that parses every
// non-missing value of the column, or "".
func (r *Registry) matchDateFormat(rs *domain.RecordSet, col int) string {
	for _, layout := range r.config.DateFormats {
		matched := true
		for i := 0; i < rs.NumRows(); i++ {
			if rs.IsMissing(i, col) {
				continue
			}
			if _, err := time.Parse(layout, rs.Value(i, col)); err != nil {
				matched = false
				break
			}
		}
		if matched {
			return layout
		}
	}
	return ""
}

// distinctFirstSeen returns the distinct non-missing values of a column in
// first-seen order. Encoding depends on this order being stable under
// accumulation of streaming input.
func distinctFirstSeen(rs *domain.RecordSet, col int) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < rs.NumRows(); i++ {
		if rs.IsMissing(i, col) {
			continue
		}
		v := rs.Value(i, col)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

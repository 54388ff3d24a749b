// Package qc computes quality reports: per-feature missingness, cardinality
// and outlier summaries, and per-record missingness. Report generation is a
// pure function of its input; it is safe to call before and after any
// pipeline stage and yields identical reports for identical inputs.
package qc

import (
	"log/slog"
	"math"
	"time"

	apperrors "ehrkit/internal/errors"
	"ehrkit/internal/stats"
	"ehrkit/pkg/contracts/domain"
)

// Config holds reporting options.
type Config struct {
	// OutlierSigma flags numeric values beyond this many standard
	// deviations from the column mean.
	OutlierSigma float64
}

// DefaultConfig returns the reporting defaults.
func DefaultConfig() Config {
	return Config{OutlierSigma: 3}
}

// Reporter derives quality reports from record sets and matrices.
type Reporter struct {
	logger *slog.Logger
	config Config
}

// NewReporter creates a reporter with the given configuration.
func NewReporter(logger *slog.Logger, config Config) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.OutlierSigma <= 0 {
		config.OutlierSigma = DefaultConfig().OutlierSigma
	}
	return &Reporter{logger: logger, config: config}
}

// FromRecordSet reports on a raw record set before any transformation:
// missingness per feature and record, and distinct-value counts.
func (r *Reporter) FromRecordSet(rs *domain.RecordSet, descriptors []domain.FeatureDescriptor) (*domain.QualityReport, error) {
	if rs.NumRows() == 0 {
		return nil, &apperrors.EmptyInputError{}
	}

	report := &domain.QualityReport{
		GeneratedAt: time.Now().UTC(),
		NumRecords:  rs.NumRows(),
		NumFeatures: rs.NumFeatures(),
	}

	for col, name := range rs.Features {
		missing := rs.MissingCount(col)
		fq := domain.FeatureQuality{
			Feature:    name,
			MissingAbs: missing,
			MissingPct: float64(missing) / float64(rs.NumRows()) * 100,
		}
		if desc := domain.DescriptorByName(descriptors, name); desc != nil {
			fq.Type = desc.Type
		}
		fq.DistinctCount = distinctCount(rs, col)
		report.Features = append(report.Features, fq)
	}

	for row := 0; row < rs.NumRows(); row++ {
		missing := 0
		for col := range rs.Features {
			if rs.IsMissing(row, col) {
				missing++
			}
		}
		report.Records = append(report.Records, domain.RecordQuality{
			Row:        row,
			MissingAbs: missing,
			MissingPct: float64(missing) / float64(rs.NumFeatures()) * 100,
		})
	}

	return report, nil
}

// FromMatrix reports on an encoded (and possibly imputed) matrix. The mask
// supplies missingness; numeric summaries and outlier flags come from the
// matrix values. Columns carrying encoded categoricals get distinct counts
// instead of means and deviations.
func (r *Reporter) FromMatrix(matrix *domain.Matrix, mask *domain.MissingnessMask, descriptors []domain.FeatureDescriptor) (*domain.QualityReport, error) {
	if matrix.NumRows() == 0 {
		return nil, &apperrors.EmptyInputError{}
	}

	report := &domain.QualityReport{
		GeneratedAt: time.Now().UTC(),
		NumRecords:  matrix.NumRows(),
		NumFeatures: matrix.NumCols(),
	}

	for col, name := range matrix.Columns {
		missing := mask.CountColumn(col)
		fq := domain.FeatureQuality{
			Feature:    name,
			Type:       columnType(name, descriptors),
			MissingAbs: missing,
			MissingPct: float64(missing) / float64(matrix.NumRows()) * 100,
		}

		// Summaries use observed entries only, so the report is meaningful
		// both before imputation (masked entries still NaN) and after.
		values, rows := observedColumn(matrix, mask, col)
		if fq.Type == domain.FeatureTypeCategorical {
			fq.DistinctCount = distinctFloats(values)
		} else if len(values) > 0 {
			mean := stats.Mean(values)
			median := stats.Median(values)
			std := stats.Std(values)
			variance := stats.Variance(values)
			min, max := stats.MinMax(values)
			fq.Mean = &mean
			fq.Median = &median
			fq.Std = &std
			fq.Variance = &variance
			fq.Min = &min
			fq.Max = &max
			for _, idx := range stats.ZScoreOutliers(values, r.config.OutlierSigma) {
				fq.OutlierRows = append(fq.OutlierRows, rows[idx])
			}
		}
		report.Features = append(report.Features, fq)
	}

	for row := 0; row < matrix.NumRows(); row++ {
		missing := 0
		for col := range matrix.Columns {
			if mask.At(row, col) {
				missing++
			}
		}
		report.Records = append(report.Records, domain.RecordQuality{
			Row:        row,
			MissingAbs: missing,
			MissingPct: float64(missing) / float64(matrix.NumCols()) * 100,
		})
	}

	r.logger.Debug("quality report generated",
		slog.Int("records", report.NumRecords),
		slog.Int("features", report.NumFeatures))

	return report, nil
}

// columnType resolves a matrix column back to its source feature type.
// Encoded columns carry the encoding prefix; everything else is a
// pass-through feature looked up by name.
func columnType(column string, descriptors []domain.FeatureDescriptor) domain.FeatureType {
	if desc := domain.DescriptorByName(descriptors, column); desc != nil {
		return desc.Type
	}
	if len(column) > len(domain.EncodedColumnPrefix) && column[:len(domain.EncodedColumnPrefix)] == domain.EncodedColumnPrefix {
		return domain.FeatureTypeCategorical
	}
	return domain.FeatureTypeNumeric
}

func distinctCount(rs *domain.RecordSet, col int) int {
	seen := make(map[string]struct{})
	for i := 0; i < rs.NumRows(); i++ {
		if rs.IsMissing(i, col) {
			continue
		}
		seen[rs.Value(i, col)] = struct{}{}
	}
	return len(seen)
}

// observedColumn returns the unmasked values of a column along with their
// row indices. An already-imputed matrix reports filled values as observed
// data; the mask still marks where the fills happened.
func observedColumn(matrix *domain.Matrix, mask *domain.MissingnessMask, col int) ([]float64, []int) {
	var values []float64
	var rows []int
	for row := range matrix.Data {
		v := matrix.At(row, col)
		if mask.At(row, col) && math.IsNaN(v) {
			// Not yet imputed.
			continue
		}
		values = append(values, v)
		rows = append(rows, row)
	}
	return values, rows
}

func distinctFloats(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

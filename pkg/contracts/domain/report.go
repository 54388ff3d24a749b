package domain

import "time"

// FeatureQuality holds per-feature quality metrics.
type FeatureQuality struct {
	Feature       string      `json:"feature"`
	Type          FeatureType `json:"type"`
	MissingAbs    int         `json:"missing_values_abs"`
	MissingPct    float64     `json:"missing_values_pct"`
	DistinctCount int         `json:"distinct_count,omitempty"`

	// Numeric summaries; nil for non-numeric features.
	Mean     *float64 `json:"mean,omitempty"`
	Median   *float64 `json:"median,omitempty"`
	Std      *float64 `json:"standard_deviation,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Variance *float64 `json:"variance,omitempty"`

	// OutlierRows lists row indices whose value lies beyond the configured
	// number of standard deviations from the column mean.
	OutlierRows []int `json:"outlier_rows,omitempty"`
}

// RecordQuality holds per-record quality metrics.
type RecordQuality struct {
	Row        int     `json:"row"`
	MissingAbs int     `json:"missing_values_abs"`
	MissingPct float64 `json:"missing_values_pct"`
}

// QualityWarning is a non-fatal condition attached to a report, such as
// chained imputation stopping at the iteration cap.
type QualityWarning struct {
	Code    string `json:"code"`
	Feature string `json:"feature,omitempty"`
	Message string `json:"message"`
}

// WarningNonConvergence flags a chained imputation run that hit its
// iteration cap before the per-column delta dropped below epsilon.
const WarningNonConvergence = "NON_CONVERGENCE"

// QualityReport is a derived, read-only summary of missingness, cardinality
// and outliers. It is recomputed on demand and never fed back into the data.
type QualityReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	NumRecords  int              `json:"num_records"`
	NumFeatures int              `json:"num_features"`
	Features    []FeatureQuality `json:"features"`
	Records     []RecordQuality  `json:"records"`
	Warnings    []QualityWarning `json:"warnings,omitempty"`
}

// Feature returns the quality entry of the named feature, or nil.
func (r *QualityReport) Feature(name string) *FeatureQuality {
	for i := range r.Features {
		if r.Features[i].Feature == name {
			return &r.Features[i]
		}
	}
	return nil
}

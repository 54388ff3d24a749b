package domain

import "time"

// RunResult is the complete output of one pipeline run: the dense numeric
// matrix plus the metadata downstream analysis needs to recover original
// categorical labels and quality flags without recomputation.
type RunResult struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Descriptors []FeatureDescriptor `json:"descriptors"`
	Matrix      *Matrix             `json:"matrix"`
	EncodingMap *EncodingMap        `json:"encoding_map"`
	Mask        *MissingnessMask    `json:"missingness_mask"`
	Report      *QualityReport      `json:"quality_report"`
	Warnings    []QualityWarning    `json:"warnings,omitempty"`

	// Normalization records the normalization methods applied per numeric
	// column, in application order.
	Normalization map[string][]string `json:"normalization,omitempty"`
}

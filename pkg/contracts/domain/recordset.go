package domain

import "fmt"

// DefaultMissingMarkers are the cell values treated as missing when a
// RecordSet does not declare its own sentinel set.
var DefaultMissingMarkers = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL"}

// RecordSet is an ordered collection of clinical observations, one row per
// subject or encounter. Every row carries a cell for every feature; absent
// values are explicit missing markers, never omitted keys.
type RecordSet struct {
	Features       []string   `json:"features"`
	Rows           [][]string `json:"rows"`
	MissingMarkers []string   `json:"missing_markers,omitempty"`
}

// NewRecordSet creates a record set with the default missing-value sentinels.
func NewRecordSet(features []string, rows [][]string) *RecordSet {
	return &RecordSet{
		Features:       features,
		Rows:           rows,
		MissingMarkers: DefaultMissingMarkers,
	}
}

// NumRows returns the number of records.
func (rs *RecordSet) NumRows() int {
	return len(rs.Rows)
}

// NumFeatures returns the number of features.
func (rs *RecordSet) NumFeatures() int {
	return len(rs.Features)
}

// FeatureIndex returns the column index of the named feature, or -1.
func (rs *RecordSet) FeatureIndex(name string) int {
	for i, f := range rs.Features {
		if f == name {
			return i
		}
	}
	return -1
}

// Value returns the raw cell at (row, col).
func (rs *RecordSet) Value(row, col int) string {
	return rs.Rows[row][col]
}

// IsMissing reports whether the cell at (row, col) holds a missing marker.
func (rs *RecordSet) IsMissing(row, col int) bool {
	return rs.IsMissingValue(rs.Rows[row][col])
}

// IsMissingValue reports whether the raw value is a missing marker.
func (rs *RecordSet) IsMissingValue(v string) bool {
	markers := rs.MissingMarkers
	if len(markers) == 0 {
		markers = DefaultMissingMarkers
	}
	for _, m := range markers {
		if v == m {
			return true
		}
	}
	return false
}

// Column returns the raw values of the given feature column.
func (rs *RecordSet) Column(col int) []string {
	out := make([]string, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = row[col]
	}
	return out
}

// Validate checks the fixed-shape invariant: every row must carry exactly
// one cell per feature.
func (rs *RecordSet) Validate() error {
	if len(rs.Features) == 0 {
		return fmt.Errorf("record set has no features")
	}
	seen := make(map[string]struct{}, len(rs.Features))
	for _, f := range rs.Features {
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate feature name %q", f)
		}
		seen[f] = struct{}{}
	}
	for i, row := range rs.Rows {
		if len(row) != len(rs.Features) {
			return fmt.Errorf("row %d has %d cells, expected %d", i, len(row), len(rs.Features))
		}
	}
	return nil
}

// MissingCount returns the number of missing markers in the given feature column.
func (rs *RecordSet) MissingCount(col int) int {
	count := 0
	for i := range rs.Rows {
		if rs.IsMissing(i, col) {
			count++
		}
	}
	return count
}

package domain

// FeatureType classifies a feature column of a record set.
type FeatureType string

const (
	FeatureTypeNumeric     FeatureType = "numeric"
	FeatureTypeCategorical FeatureType = "categorical"
	FeatureTypeDate        FeatureType = "date"
	FeatureTypeText        FeatureType = "text"
)

// Valid reports whether the feature type is one of the known variants.
func (t FeatureType) Valid() bool {
	switch t {
	case FeatureTypeNumeric, FeatureTypeCategorical, FeatureTypeDate, FeatureTypeText:
		return true
	}
	return false
}

// FeatureDescriptor describes one feature column. It is computed once per
// pipeline run and passed immutably through all stages; only an explicit
// user override before encoding may change the type.
type FeatureDescriptor struct {
	Name string      `json:"name"`
	Type FeatureType `json:"type"`

	// Categories holds the discovered domain of a categorical feature in
	// first-seen order. Empty for non-categorical features.
	Categories []string `json:"categories,omitempty"`

	// Overridden marks descriptors whose type came from a user override
	// rather than inference.
	Overridden bool `json:"overridden,omitempty"`

	// DateFormat is the layout that matched a date feature.
	DateFormat string `json:"date_format,omitempty"`
}

// DescriptorByName returns the descriptor with the given feature name, or nil.
func DescriptorByName(descriptors []FeatureDescriptor, name string) *FeatureDescriptor {
	for i := range descriptors {
		if descriptors[i].Name == name {
			return &descriptors[i]
		}
	}
	return nil
}

package errors

import "fmt"

// The pipeline's stage-local error kinds. Each one identifies the feature
// it originated from so the orchestrator can surface stage and feature
// together instead of a bare internal error.

// AmbiguousTypeError reports a feature whose type cannot be inferred:
// it has zero non-missing values and no user override.
type AmbiguousTypeError struct {
	Feature string
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("cannot infer type of feature %s: no non-missing values and no override", e.Feature)
}

// InsufficientDataError reports a column that is entirely missing, leaving
// no basis to estimate a fill value. Fatal for the run, not retried.
type InsufficientDataError struct {
	Column string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("column %s is entirely missing: no basis for imputation", e.Column)
}

// EmptyInputError reports a zero-record record set handed to quality
// control or the pipeline.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "record set contains no records"
}

// EncodingCollisionError reports two categories of one feature hashing to
// the same output vector, which would make the encoding irreversible.
type EncodingCollisionError struct {
	Feature    string
	Categories [2]string
}

func (e *EncodingCollisionError) Error() string {
	return fmt.Sprintf("hash collision between categories %q and %q of feature %s",
		e.Categories[0], e.Categories[1], e.Feature)
}

// DuplicateEncodingError reports a feature assigned more than one encoding
// strategy in a single run.
type DuplicateEncodingError struct {
	Feature string
}

func (e *DuplicateEncodingError) Error() string {
	return fmt.Sprintf("feature %s is assigned more than one encoding strategy", e.Feature)
}

// StageError wraps a stage-local failure with the stage and offending
// feature name. Partial results are discarded by the orchestrator; the
// caller only ever sees the whole run fail.
type StageError struct {
	Stage   string
	Feature string
	Err     error
}

func (e *StageError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("stage %s failed on feature %s: %v", e.Stage, e.Feature, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

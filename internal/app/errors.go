package app

import (
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe lookup and data-consistency failures.
var (
	ErrNotFound            = errors.New("not found")
	ErrLookupNotFound      = errors.New("referenced entity not found")
	ErrInconsistentHistory = errors.New("inconsistent change history")
	ErrInvalidSnapshot     = errors.New("invalid snapshot")
)

// FeatureFailure isolates one feature's aggregation error from the rest of the run.
type FeatureFailure struct {
	FeatureID string
	Title     string
	Err       error
}

// Error implements error.
func (f FeatureFailure) Error() string {
	return fmt.Sprintf("feature %s (%s): %v", f.FeatureID, f.Title, f.Err)
}

// Unwrap returns the underlying error.
func (f FeatureFailure) Unwrap() error {
	return f.Err
}

// Warning is a data-consistency problem that was degraded around rather than failed on.
type Warning struct {
	FeatureID string
	TaskID    string
	Message   string
}

// Package verification compares a claimed emission figure against a
// freight benchmark and flags deviations for human review.
package verification

import "errors"

var (
	ErrMissingFields   = errors.New("missing required fields for verification")
	ErrBenchmarkFailed = errors.New("benchmark lookup failed")
	ErrNoExtraction    = errors.New("cannot verify: extraction failed")
	ErrInvalidFactors  = errors.New("invalid emission factors")
)

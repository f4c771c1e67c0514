// Package compliance scores an audit against BRSR disclosure expectations
// and escalates low-trust results to human review.
package compliance

import "errors"

var (
	ErrMissingInputs = errors.New("cannot evaluate compliance: extraction or verification failed")
	ErrModelFailed   = errors.New("compliance model evaluation failed")
	ErrMissingScore  = errors.New("model response missing trust_score or brsr_aligned")
)

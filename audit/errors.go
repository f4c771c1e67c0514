// Package audit defines the record that flows through the carbon-disclosure
// audit pipeline (extraction → verification → compliance → human_review?),
// its reasoning trail, and the exported report format.
package audit

import "errors"

var (
	ErrInvalidDecision = errors.New("invalid review decision")
	ErrInvalidMode     = errors.New("invalid execution mode")
)

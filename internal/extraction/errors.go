// Package extraction recovers structured shipment fields from invoice text.
// Text passes a PII gate before any model call; a deterministic pattern
// extractor stands behind the model path.
package extraction

import "errors"

var (
	ErrNoText            = errors.New("no text extracted from document")
	ErrNoFields          = errors.New("no shipment fields recognized")
	ErrModelUnavailable  = errors.New("model extraction unavailable")
	ErrInvalidMode       = errors.New("invalid transport mode in model response")
	ErrMissingConfidence = errors.New("model response missing extraction_confidence")
	ErrExtractionFailed  = errors.New("extraction failed")
)

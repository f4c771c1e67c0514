package reports

import "errors"

var (
	ErrWrite       = errors.New("report write failed")
	ErrNotFound    = errors.New("report not found")
	ErrNoDocument  = errors.New("report has no document id")
	ErrInvalidPath = errors.New("report document id contains a path separator")
)

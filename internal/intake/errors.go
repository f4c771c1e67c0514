// Package intake turns uploaded or on-disk documents into the plain text the
// audit pipeline consumes.
package intake

import "errors"

var (
	ErrUnsupported = errors.New("unsupported document type")
	ErrUnreadable  = errors.New("document could not be read")
)

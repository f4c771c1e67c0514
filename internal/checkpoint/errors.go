package checkpoint

import "errors"

var (
	ErrNotFound        = errors.New("checkpoint not found")
	ErrInvalidThreadID = errors.New("invalid thread id")
	ErrUnknownBackend  = errors.New("unknown checkpoint backend")
)

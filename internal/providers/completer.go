package providers

import (
	"context"
	"fmt"

	"github.com/JaimeStill/emissary/pkg/formatting"
)

// Request is a single structured-completion call. Schema names the expected
// response shape for logs and interaction records.
type Request struct {
	System string
	Prompt string
	Schema string
}

// Completer is the structured-completion collaborator.
type Completer interface {
	// Name identifies the backend that served the call.
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Source hands out a Completer for one call site.
type Source interface {
	Resolve(ctx context.Context, preferred string) (Completer, error)
}

// CompleteJSON runs req and decodes the response into T. Transport errors and
// undecodable output both surface as errors so call sites apply one fallback.
func CompleteJSON[T any](ctx context.Context, c Completer, req Request) (T, error) {
	var zero T

	content, err := c.Complete(ctx, req)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", c.Name(), err)
	}

	parsed, err := formatting.Parse[T](content)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, req.Schema, err)
	}

	return parsed, nil
}

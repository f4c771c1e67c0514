package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Factory initializes a Completer for a named backend.
type Factory func(name string, b BackendConfig) (Completer, error)

// Resolver selects a backend by walking a fixed preference order.
type Resolver struct {
	backends map[string]BackendConfig
	order    []string
	def      string
	fallback bool
	factory  Factory
	logger   *slog.Logger
}

// NewResolver creates a Resolver over the configured backends.
func NewResolver(cfg *Config, factory Factory, logger *slog.Logger) *Resolver {
	return &Resolver{
		backends: cfg.Backends,
		order:    slices.Clone(cfg.Order),
		def:      cfg.Preferred,
		fallback: cfg.FallbackEnabled(),
		factory:  factory,
		logger:   logger.With("system", "providers"),
	}
}

// Candidates returns the backends Resolve would try, in order.
func (r *Resolver) Candidates(preferred string) []string {
	first := preferred
	if first == "" {
		first = r.def
	}

	if !r.fallback {
		return []string{first}
	}

	out := []string{first}
	for _, name := range r.order {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Resolve returns the first candidate that is credentialed and initializes.
// ErrProvidersExhausted wraps every per-backend failure when none succeeds.
func (r *Resolver) Resolve(ctx context.Context, preferred string) (Completer, error) {
	var errs []error

	for _, name := range r.Candidates(preferred) {
		b, ok := r.backends[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownBackend, name))
			continue
		}

		if !b.Credentialed() {
			r.logger.DebugContext(ctx, "skipping backend", "backend", name, "reason", "no credentials")
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingCredentials, name))
			continue
		}

		c, err := r.factory(name, b)
		if err != nil {
			r.logger.WarnContext(ctx, "backend init failed", "backend", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		r.logger.InfoContext(ctx, "backend resolved", "backend", name, "model", b.Model)
		return c, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrProvidersExhausted, errors.Join(errs...))
}

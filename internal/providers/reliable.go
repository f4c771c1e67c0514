package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/emissary/internal/metrics"
)

// Reliable guards a Completer with a rate limiter, a circuit breaker, and a
// bounded retry with a per-attempt timeout. The whole sequence counts as one
// attempt from the caller's point of view.
type Reliable struct {
	next     Completer
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewReliable wraps next using the resilience settings in cfg.
func NewReliable(next Completer, cfg *Config, m *metrics.Metrics) *Reliable {
	failures := uint32(cfg.BreakerFailures)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeoutDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			m.BreakerState.WithLabelValues(name).Set(open)
		},
	})

	return &Reliable{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		attempts: uint(cfg.Attempts),
		timeout:  cfg.TimeoutDuration(),
		metrics:  m,
	}
}

func (r *Reliable) Name() string {
	return r.next.Name()
}

func (r *Reliable) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	out, err := r.cb.Execute(func() (interface{}, error) {
		var content string

		rt := retry.New(
			retry.Context(ctx),
			retry.Attempts(r.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				return retry.BackOffDelay(n, err, config)
			}),
		)

		err := rt.Do(func() error {
			tctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			var callErr error
			content, callErr = r.next.Complete(tctx, req)
			if callErr != nil && permanent(callErr) {
				return retry.Unrecoverable(callErr)
			}
			return callErr
		})

		return content, err
	})

	if err != nil {
		r.metrics.BackendCalls.WithLabelValues(r.Name(), "error").Inc()
		return "", err
	}

	r.metrics.BackendCalls.WithLabelValues(r.Name(), "ok").Inc()
	return out.(string), nil
}

// permanent reports whether retrying err cannot succeed.
func permanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return errors.Is(err, ErrEmptyResponse)
}

// Package metrics declares the Prometheus instruments for audit runs and
// language model backends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every instrument the service records.
type Metrics struct {
	// StageDuration observes stage latency by node and resulting status.
	StageDuration *prometheus.HistogramVec

	// RunsTotal counts runs by outcome: complete, suspended, resumed, failed.
	RunsTotal *prometheus.CounterVec

	// TrustScore observes final compliance scores.
	TrustScore prometheus.Histogram

	// Fallbacks counts model-to-deterministic fallbacks by stage.
	Fallbacks *prometheus.CounterVec

	// BackendCalls counts completion calls by backend and result.
	BackendCalls *prometheus.CounterVec

	// BreakerState is 1 while a backend circuit is open.
	BreakerState *prometheus.GaugeVec
}

// New registers the instruments with reg. A nil reg gets a private registry
// so callers that do not export metrics still receive working instruments.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	f := promauto.With(reg)

	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emissary_stage_duration_seconds",
			Help:    "Latency of audit pipeline stages.",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"node", "status"}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emissary_runs_total",
			Help: "Audit runs by outcome.",
		}, []string{"outcome"}),

		TrustScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emissary_trust_score",
			Help:    "Distribution of final trust scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emissary_fallbacks_total",
			Help: "Model path failures absorbed by a deterministic fallback.",
		}, []string{"stage"}),

		BackendCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emissary_backend_calls_total",
			Help: "Structured completion calls by backend and result.",
		}, []string{"backend", "result"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emissary_backend_circuit_open",
			Help: "Circuit breaker state per backend (0=closed, 1=open).",
		}, []string{"backend"}),
	}
}

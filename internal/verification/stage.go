package verification

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/JaimeStill/emissary/audit"
)

const (
	agent = "verification"

	// DefaultMaxDeviation is the default acceptable deviation in percent.
	DefaultMaxDeviation = 15.0

	suspiciousReason = "Claimed emissions >200% of benchmark - suspicious"
	noClaim          = "No CO2e claim found in document"
)

// Stage compares the extracted claim with a Benchmark estimate.
type Stage struct {
	benchmark    Benchmark
	maxDeviation float64
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Stage.
type Option func(*Stage)

// WithClock overrides the trail timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

// New creates a verification Stage. A non-positive maxDeviation falls back
// to DefaultMaxDeviation.
func New(benchmark Benchmark, maxDeviation float64, logger *slog.Logger, opts ...Option) *Stage {
	if maxDeviation <= 0 {
		maxDeviation = DefaultMaxDeviation
	}
	s := &Stage{
		benchmark:    benchmark,
		maxDeviation: maxDeviation,
		logger:       logger.With("system", "verification"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deviation returns |claimed-benchmark|/benchmark as a percentage, or 100
// when the benchmark is zero.
func Deviation(claimed, benchmark float64) float64 {
	if benchmark == 0 {
		return 100
	}
	return math.Abs(claimed-benchmark) / benchmark * 100
}

// Run populates rec.Verification and sets the workflow status. Failures
// degrade the record; they never halt the pipeline.
func (s *Stage) Run(ctx context.Context, rec *audit.Record) {
	ext := rec.Extraction
	if ext == nil || rec.WorkflowStatus == audit.StatusExtractionFailed {
		s.fail(ctx, rec, "verification_skipped", ErrNoExtraction.Error(), ErrNoExtraction)
		return
	}

	if ext.TransportMode == nil || ext.WeightKG == nil || ext.DistanceKM == nil {
		s.fail(ctx, rec, "missing_fields",
			"Missing required fields (transport_mode, weight, or distance) for verification",
			ErrMissingFields)
		return
	}

	route := RouteDomestic
	if ext.Route != nil {
		route = ClassifyRoute(*ext.Route)
	}
	shipment := Shipment{
		Mode:       *ext.TransportMode,
		WeightKG:   *ext.WeightKG,
		DistanceKM: *ext.DistanceKM,
		Route:      route,
	}

	rec.Reason(agent, s.now(), "call_benchmark", fmt.Sprintf(
		"Requesting benchmark with mode=%s, weight=%.1fkg, distance=%.1fkm, route_type=%s",
		shipment.Mode, shipment.WeightKG, shipment.DistanceKM, shipment.Route,
	), "")

	est, err := s.benchmark.Estimate(ctx, shipment)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrBenchmarkFailed, err)
		rec.Fail(err.Error())
		s.fail(ctx, rec, "verification_error", "Benchmark lookup raised an error", err)
		return
	}

	rec.Reason(agent, s.now(), "benchmark_received",
		fmt.Sprintf("Received benchmark: %.2f kg CO2e (confidence: %.2f)", est.CO2e, est.Confidence),
		fmt.Sprintf("Benchmark: %.2f kg", est.CO2e))

	res := &audit.VerificationResult{
		BenchmarkCO2e:          audit.Ptr(est.CO2e),
		Status:                 audit.VerificationPending,
		Discrepancies:          []string{},
		VerificationConfidence: audit.Clamp01(est.Confidence * ext.ExtractionConfidence),
	}

	if ext.CO2eClaimed == nil {
		res.Discrepancies = append(res.Discrepancies, noClaim)
		rec.Reason(agent, s.now(), "no_claim", "Document carries no emission claim to compare", "")
	} else {
		s.compare(rec, res, *ext.CO2eClaimed, est.CO2e)
	}

	rec.Verification = res
	rec.WorkflowStatus = audit.StatusVerificationComplete

	attrs := []any{
		"document_id", rec.DocumentID,
		"status", res.Status,
		"benchmark", est.CO2e,
	}
	if res.DeviationPercent != nil {
		attrs = append(attrs, "deviation", *res.DeviationPercent)
	}
	s.logger.InfoContext(ctx, "verification complete", attrs...)
}

func (s *Stage) compare(rec *audit.Record, res *audit.VerificationResult, claimed, benchmark float64) {
	dev := Deviation(claimed, benchmark)
	res.DeviationPercent = audit.Ptr(dev)

	rec.Reason(agent, s.now(), "calculate_deviation",
		fmt.Sprintf("Claimed: %.2f kg vs Benchmark: %.2f kg", claimed, benchmark),
		fmt.Sprintf("Deviation: %.1f%%", dev))

	if dev <= s.maxDeviation {
		res.Status = audit.VerificationAcceptable
		rec.Reason(agent, s.now(), "status_acceptable",
			fmt.Sprintf("Deviation %.1f%% is within acceptable threshold of %.1f%%", dev, s.maxDeviation),
			"ACCEPTABLE")
	} else {
		res.Status = audit.VerificationFlagged
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("Deviation of %.1f%% exceeds threshold of %.1f%%", dev, s.maxDeviation))
		rec.FlagReview(fmt.Sprintf("High emission deviation: %.1f%% (threshold: %.1f%%)", dev, s.maxDeviation))
		rec.Reason(agent, s.now(), "status_flagged",
			fmt.Sprintf("Deviation %.1f%% exceeds threshold - flagging for human review", dev),
			"FLAGGED")
	}

	if claimed > 2*benchmark {
		res.Discrepancies = append(res.Discrepancies, "Claimed emissions are more than double the benchmark")
		rec.FlagReview(suspiciousReason)
	}
	if claimed < 0.5*benchmark {
		res.Discrepancies = append(res.Discrepancies, "Claimed emissions are less than half the benchmark")
	}
}

func (s *Stage) fail(ctx context.Context, rec *audit.Record, action, reasoning string, err error) {
	rec.Verification = &audit.VerificationResult{
		Status:                 audit.VerificationFailed,
		Discrepancies:          []string{err.Error()},
		VerificationConfidence: 0,
	}
	rec.WorkflowStatus = audit.StatusVerificationFailed
	rec.Reason(agent, s.now(), action, reasoning, "FAILED")
	s.logger.WarnContext(ctx, "verification failed", "document_id", rec.DocumentID, "error", err)
}

package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/providers"
	"github.com/JaimeStill/emissary/internal/risk"
)

const agent = "compliance"

// Config carries the compliance thresholds.
type Config struct {
	MinTrustScore       float64
	MaxDeviationPercent float64
	// RiskEscalation lets a high supplier-risk assessment force review.
	RiskEscalation bool
}

type modelResponse struct {
	TrustScore        *float64       `json:"trust_score"`
	BRSRAligned       *bool          `json:"brsr_aligned"`
	Recommendations   []string       `json:"recommendations"`
	ComplianceDetails map[string]any `json:"compliance_details"`
}

// Stage computes the trust score and BRSR verdict.
type Stage struct {
	source     providers.Source
	preferred  string
	mode       audit.ExecutionMode
	cfg        Config
	assessor   *risk.Assessor
	logger     *slog.Logger
	now        func() time.Time
	onFallback func()
}

// Option configures a Stage.
type Option func(*Stage)

// WithClock overrides the trail timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

// WithPreferred sets the backend tried first for this stage.
func WithPreferred(name string) Option {
	return func(s *Stage) { s.preferred = name }
}

// WithRisk attaches a supplier risk assessor.
func WithRisk(a *risk.Assessor) Option {
	return func(s *Stage) { s.assessor = a }
}

// OnFallback registers a hook invoked when the base score absorbs a model
// failure.
func OnFallback(fn func()) Option {
	return func(s *Stage) { s.onFallback = fn }
}

// New creates a compliance Stage.
func New(source providers.Source, mode audit.ExecutionMode, cfg Config, logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		source:     source,
		mode:       mode,
		cfg:        cfg,
		logger:     logger.With("system", "compliance"),
		now:        time.Now,
		onFallback: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run populates rec.Compliance, escalating low scores to review.
func (s *Stage) Run(ctx context.Context, rec *audit.Record) {
	ext, ver := rec.Extraction, rec.Verification
	if ext == nil || ver == nil {
		rec.Compliance = &audit.ComplianceResult{
			TrustScore:        0,
			BRSRAligned:       false,
			Category:          audit.DefaultCategory,
			Recommendations:   []string{ErrMissingInputs.Error()},
			ComplianceDetails: map[string]any{},
		}
		rec.WorkflowStatus = audit.StatusComplianceFailed
		rec.Reason(agent, s.now(), "compliance_failed",
			"Cannot evaluate compliance because extraction or verification failed", "FAILED")
		s.logger.WarnContext(ctx, "compliance skipped", "document_id", rec.DocumentID, "error", ErrMissingInputs)
		return
	}

	base := BaseScore(ext, ver, s.cfg.MaxDeviationPercent)
	rec.Reason(agent, s.now(), "calculate_base_score",
		"Calculated quantitative trust score from data completeness, verification quality, and disclosure standards",
		fmt.Sprintf("Base score: %.1f/100", base.Total))

	if s.mode == audit.ModeQuantitative {
		s.quantitative(rec, base)
	} else if err := s.assisted(ctx, rec, base); err != nil {
		s.degraded(ctx, rec, base, err)
	}

	s.escalate(rec)
	s.assessRisk(rec)

	s.logger.InfoContext(
		ctx, "compliance complete",
		"document_id", rec.DocumentID,
		"status", rec.WorkflowStatus,
		"trust_score", rec.Compliance.TrustScore,
		"brsr_aligned", rec.Compliance.BRSRAligned,
		"requires_review", rec.RequiresHumanReview,
	)
}

func (s *Stage) quantitative(rec *audit.Record, base Breakdown) {
	recs := []string{"Require third-party verification", "Implement continuous monitoring", "Enhance data completeness"}
	if base.Total >= s.cfg.MinTrustScore {
		recs[0] = "Request supplier-specific emission factors"
	}
	if base.Total >= 80 {
		recs[2] = "Maintain current disclosure standards"
	}

	rec.Compliance = &audit.ComplianceResult{
		TrustScore:      base.Total,
		BRSRAligned:     base.Total >= s.cfg.MinTrustScore,
		Category:        audit.DefaultCategory,
		Recommendations: recs,
		ComplianceDetails: map[string]any{
			"data_completeness_score":    base.Completeness,
			"verification_quality_score": base.Verification,
			"disclosure_standards_score": base.Disclosure,
			"mode":                       string(audit.ModeQuantitative),
		},
	}
	rec.WorkflowStatus = audit.StatusComplianceComplete
	rec.Reason(agent, s.now(), "quantitative_compliance",
		"Quantitative mode: trust score from base metrics only",
		fmt.Sprintf("Trust Score: %.1f/100", base.Total))
}

func (s *Stage) assisted(ctx context.Context, rec *audit.Record, base Breakdown) error {
	if s.source == nil {
		return fmt.Errorf("%w: no model source configured", ErrModelFailed)
	}

	c, err := s.source.Resolve(ctx, s.preferred)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelFailed, err)
	}

	resp, err := providers.CompleteJSON[modelResponse](ctx, c, providers.Request{
		System: system(),
		Prompt: composePrompt(rec.Extraction, rec.Verification),
		Schema: "compliance",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelFailed, err)
	}
	if resp.TrustScore == nil || resp.BRSRAligned == nil {
		return fmt.Errorf("%w: %w: %w", ErrModelFailed, providers.ErrSchemaMismatch, ErrMissingScore)
	}

	final := Blend(*resp.TrustScore, base.Total)
	details := resp.ComplianceDetails
	if details == nil {
		details = map[string]any{}
	}
	recs := resp.Recommendations
	if recs == nil {
		recs = []string{}
	}

	rec.Compliance = &audit.ComplianceResult{
		TrustScore:        final,
		BRSRAligned:       *resp.BRSRAligned,
		Category:          audit.DefaultCategory,
		Recommendations:   recs,
		ComplianceDetails: details,
	}
	rec.WorkflowStatus = audit.StatusComplianceComplete
	rec.Reason(agent, s.now(), "final_trust_score",
		fmt.Sprintf("Blended model evaluation (%.1f) with quantitative score (%.1f) via %s", *resp.TrustScore, base.Total, c.Name()),
		fmt.Sprintf("Final Trust Score: %.1f/100", final))
	return nil
}

func (s *Stage) degraded(ctx context.Context, rec *audit.Record, base Breakdown, err error) {
	s.onFallback()

	rec.Compliance = &audit.ComplianceResult{
		TrustScore:  base.Total,
		BRSRAligned: base.Total >= s.cfg.MinTrustScore,
		Category:    audit.DefaultCategory,
		Recommendations: []string{
			"Model evaluation failed, using quantitative metrics only",
			"Manual review recommended",
		},
		ComplianceDetails: map[string]any{"error": err.Error()},
	}
	rec.WorkflowStatus = audit.StatusComplianceCompleteWithErrors
	rec.Fail(err.Error())
	rec.Reason(agent, s.now(), "compliance_model_failed",
		"Model evaluation failed; falling back to the base score",
		fmt.Sprintf("Trust Score: %.1f/100", base.Total))
	s.logger.WarnContext(ctx, "compliance degraded", "document_id", rec.DocumentID, "error", err)
}

func (s *Stage) assessRisk(rec *audit.Record) {
	if s.assessor == nil {
		return
	}

	in := risk.Input{
		SupplierID: rec.Extraction.SupplierID,
		Route:      rec.Extraction.Route,
		Claimed:    rec.Extraction.CO2eClaimed,
		Benchmark:  rec.Verification.BenchmarkCO2e,
	}
	a := s.assessor.Assess(in)
	rec.Compliance.ComplianceDetails["supplier_risk"] = a
	rec.Reason(agent, s.now(), "supplier_risk",
		fmt.Sprintf("Supplier risk score %d from %d factors", a.Score, len(a.Factors)),
		string(a.Level))

	if s.cfg.RiskEscalation && a.RequiresReview {
		rec.FlagReviewIfUnset(a.Reason())
	}
}

func (s *Stage) escalate(rec *audit.Record) {
	score := rec.Compliance.TrustScore
	if score >= s.cfg.MinTrustScore {
		return
	}

	rec.FlagReviewIfUnset(fmt.Sprintf("Low Trust Score: %.1f (threshold: %.1f)", score, s.cfg.MinTrustScore))
	rec.Reason(agent, s.now(), "escalate_low_trust",
		fmt.Sprintf("Trust score %.1f is below the minimum of %.1f", score, s.cfg.MinTrustScore),
		"REVIEW_REQUIRED")
}

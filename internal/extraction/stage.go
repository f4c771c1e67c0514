package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/providers"
)

const (
	agent = "extraction"

	// modelTextLimit bounds the redacted text sent to a backend.
	modelTextLimit = 5000
	// excerptLimit bounds the raw text retained on the record.
	excerptLimit = 1000
)

type modelResponse struct {
	CO2eClaimed          *float64 `json:"co2e_claimed"`
	SupplierID           *string  `json:"supplier_id"`
	Route                *string  `json:"route"`
	TransportMode        *string  `json:"transport_mode"`
	WeightKG             *float64 `json:"weight_kg"`
	DistanceKM           *float64 `json:"distance_km"`
	ExtractionConfidence *float64 `json:"extraction_confidence"`
	Errors               []string `json:"errors"`
}

// input carries both views of the document. Raw never leaves the process.
type input struct {
	raw      string
	redacted string
}

// strategy is one extraction path. secondary is true when an earlier
// strategy already failed.
type strategy struct {
	name string
	run  func(ctx context.Context, in input, secondary bool) (*audit.ExtractionResult, error)
}

// Stage runs PII redaction followed by the ordered extraction strategies.
type Stage struct {
	guard      *Guard
	heuristic  *Heuristic
	source     providers.Source
	preferred  string
	mode       audit.ExecutionMode
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

// OnFallback registers a hook invoked when the pattern extractor absorbs a
// model failure.
func OnFallback(fn func()) Option {
	return func(s *Stage) { s.onFallback = fn }
}

// New creates an extraction Stage. source may be nil in quantitative mode.
func New(
	guard *Guard,
	heuristic *Heuristic,
	source providers.Source,
	mode audit.ExecutionMode,
	logger *slog.Logger,
	opts ...Option,
) *Stage {
	s := &Stage{
		guard:      guard,
		heuristic:  heuristic,
		source:     source,
		mode:       mode,
		logger:     logger.With("system", "extraction"),
		now:        time.Now,
		onFallback: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run populates rec.Extraction from text and sets the workflow status.
func (s *Stage) Run(ctx context.Context, rec *audit.Record, text string) {
	if strings.TrimSpace(text) == "" {
		rec.Extraction = &audit.ExtractionResult{
			ExtractionConfidence: 0,
			Errors:               []string{ErrNoText.Error()},
		}
		rec.WorkflowStatus = audit.StatusExtractionFailed
		rec.Reason(agent, s.now(), "extraction_failed", "Document produced no text; nothing to extract", ErrNoText.Error())
		s.logger.WarnContext(ctx, "extraction skipped", "document_id", rec.DocumentID, "error", ErrNoText)
		return
	}

	in := input{raw: text, redacted: s.redact(ctx, rec, text)}

	var errs []string
	for i, st := range s.strategies() {
		res, err := st.run(ctx, in, i > 0)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", st.name, err))
			rec.Reason(agent, s.now(), st.name+"_failed", "Extraction path failed", err.Error())
			s.logger.WarnContext(ctx, "extraction path failed", "document_id", rec.DocumentID, "path", st.name, "error", err)
			continue
		}

		if i > 0 {
			s.onFallback()
		}

		res.ExtractedText = truncate(text, excerptLimit)
		res.Errors = append(errs, res.Errors...)
		rec.Extraction = res
		rec.WorkflowStatus = audit.StatusExtractionComplete
		rec.Reason(
			agent, s.now(), "extraction_complete",
			fmt.Sprintf("Extracted %d of 6 fields via %s", res.FieldsPresent(), st.name),
			fmt.Sprintf("confidence=%.2f", res.ExtractionConfidence),
		)
		s.logger.InfoContext(
			ctx, "extraction complete",
			"document_id", rec.DocumentID,
			"path", st.name,
			"fields", res.FieldsPresent(),
			"confidence", res.ExtractionConfidence,
		)
		return
	}

	rec.Extraction = &audit.ExtractionResult{
		ExtractionConfidence: 0,
		ExtractedText:        truncate(text, excerptLimit),
		Errors:               errs,
	}
	rec.WorkflowStatus = audit.StatusExtractionFailed
	rec.Reason(agent, s.now(), "extraction_failed", "All extraction paths failed", strings.Join(errs, "; "))
	s.logger.ErrorContext(ctx, "extraction failed", "document_id", rec.DocumentID, "error", ErrExtractionFailed)
}

func (s *Stage) strategies() []strategy {
	heuristic := strategy{name: "regex_extraction", run: s.runHeuristic}
	if s.mode == audit.ModeQuantitative {
		return []strategy{heuristic}
	}
	return []strategy{{name: "llm_extraction", run: s.runModel}, heuristic}
}

func (s *Stage) redact(ctx context.Context, rec *audit.Record, text string) string {
	r := s.guard.Redact(text)
	if !r.Found() {
		return text
	}

	kinds := make([]string, 0, len(r.Counts))
	for kind, n := range r.Counts {
		kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
	}
	slices.Sort(kinds)
	summary := strings.Join(kinds, ", ")

	rec.Reason(agent, s.now(), "pii_redaction", "Personal data redacted before model processing", summary)
	s.logger.InfoContext(ctx, "pii redacted", "document_id", rec.DocumentID, "kinds", summary)
	return r.Text
}

func (s *Stage) runModel(ctx context.Context, in input, _ bool) (*audit.ExtractionResult, error) {
	if s.source == nil {
		return nil, ErrModelUnavailable
	}

	c, err := s.source.Resolve(ctx, s.preferred)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	resp, err := providers.CompleteJSON[modelResponse](ctx, c, providers.Request{
		System: systemPrompt,
		Prompt: composePrompt(truncate(in.redacted, modelTextLimit)),
		Schema: "extraction",
	})
	if err != nil {
		return nil, err
	}

	return fromModel(resp)
}

func (s *Stage) runHeuristic(_ context.Context, in input, secondary bool) (*audit.ExtractionResult, error) {
	res, err := s.heuristic.Extract(in.raw)
	if err != nil {
		return nil, err
	}

	res.ExtractionConfidence = HeuristicConfidence
	if secondary {
		res.ExtractionConfidence = FallbackConfidence
	}
	return res, nil
}

func fromModel(resp modelResponse) (*audit.ExtractionResult, error) {
	if resp.ExtractionConfidence == nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrSchemaMismatch, ErrMissingConfidence)
	}

	res := &audit.ExtractionResult{
		CO2eClaimed:          resp.CO2eClaimed,
		SupplierID:           nonEmpty(resp.SupplierID),
		Route:                nonEmpty(resp.Route),
		WeightKG:             resp.WeightKG,
		DistanceKM:           resp.DistanceKM,
		ExtractionConfidence: audit.Clamp01(*resp.ExtractionConfidence),
		Errors:               resp.Errors,
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}

	if m := nonEmpty(resp.TransportMode); m != nil {
		mode := audit.TransportMode(strings.ToLower(*m))
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", providers.ErrSchemaMismatch, ErrInvalidMode, *m)
		}
		res.TransportMode = &mode
	}

	return res, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

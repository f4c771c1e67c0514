package audit

import (
	"maps"
	"slices"
	"time"
)

// Status tags the workflow position of a Record. Each stage sets it once.
type Status string

const (
	StatusInitialized                  Status = "initialized"
	StatusExtractionComplete           Status = "extraction_complete"
	StatusExtractionFailed             Status = "extraction_failed"
	StatusVerificationComplete         Status = "verification_complete"
	StatusVerificationFailed           Status = "verification_failed"
	StatusComplianceComplete           Status = "compliance_complete"
	StatusComplianceCompleteWithErrors Status = "compliance_complete_with_errors"
	StatusComplianceFailed             Status = "compliance_failed"
)

// ReviewStatus returns the terminal status for an applied review decision.
func ReviewStatus(d Decision) Status {
	return Status("human_review_" + string(d))
}

// TransportMode is the freight mode of a shipment.
type TransportMode string

const (
	ModeAir  TransportMode = "air"
	ModeSea  TransportMode = "sea"
	ModeRoad TransportMode = "road"
	ModeRail TransportMode = "rail"
)

// Valid reports whether m is one of the four known modes.
func (m TransportMode) Valid() bool {
	switch m {
	case ModeAir, ModeSea, ModeRoad, ModeRail:
		return true
	}
	return false
}

// VerificationStatus is the outcome of benchmark comparison.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationAcceptable VerificationStatus = "acceptable"
	VerificationFlagged    VerificationStatus = "flagged"
	VerificationFailed     VerificationStatus = "failed"
)

// DefaultCategory is the ESG classification applied to freight disclosures.
const DefaultCategory = "Scope 3 - Category 4"

// ReasoningStep is a single entry in the reasoning trail.
type ReasoningStep struct {
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Reasoning string    `json:"reasoning"`
	Result    string    `json:"result,omitempty"`
}

// ExtractionResult holds the structured fields recovered from a document.
// Every scalar is independently optional.
type ExtractionResult struct {
	CO2eClaimed          *float64       `json:"co2e_claimed"`
	SupplierID           *string        `json:"supplier_id"`
	Route                *string        `json:"route"`
	TransportMode        *TransportMode `json:"transport_mode"`
	WeightKG             *float64       `json:"weight_kg"`
	DistanceKM           *float64       `json:"distance_km"`
	ExtractedText        string         `json:"extracted_text,omitempty"`
	ExtractionConfidence float64        `json:"extraction_confidence"`
	Errors               []string       `json:"errors"`
}

// FieldsPresent counts the populated scalar fields.
func (e *ExtractionResult) FieldsPresent() int {
	n := 0
	for _, ok := range []bool{
		e.CO2eClaimed != nil,
		e.SupplierID != nil,
		e.Route != nil,
		e.TransportMode != nil,
		e.WeightKG != nil,
		e.DistanceKM != nil,
	} {
		if ok {
			n++
		}
	}
	return n
}

// Empty reports whether no scalar field was recovered.
func (e *ExtractionResult) Empty() bool {
	return e.FieldsPresent() == 0
}

// VerificationResult holds the benchmark comparison for a claim.
type VerificationResult struct {
	BenchmarkCO2e          *float64           `json:"benchmark_co2e"`
	DeviationPercent       *float64           `json:"deviation_percent"`
	Status                 VerificationStatus `json:"status"`
	Discrepancies          []string           `json:"discrepancies"`
	VerificationConfidence float64            `json:"verification_confidence"`
}

// ComplianceResult holds the trust score and BRSR verdict.
type ComplianceResult struct {
	TrustScore        float64        `json:"trust_score"`
	BRSRAligned       bool           `json:"brsr_aligned"`
	Category          string         `json:"category"`
	Recommendations   []string       `json:"recommendations"`
	ComplianceDetails map[string]any `json:"compliance_details"`
}

// Record is the unit of work threaded through every stage of one audit run.
type Record struct {
	DocumentID           string              `json:"document_id"`
	AuditTimestamp       time.Time           `json:"audit_timestamp"`
	Extraction           *ExtractionResult   `json:"extraction,omitempty"`
	Verification         *VerificationResult `json:"verification,omitempty"`
	Compliance           *ComplianceResult   `json:"compliance,omitempty"`
	WorkflowStatus       Status              `json:"workflow_status"`
	RequiresHumanReview  bool                `json:"requires_human_review"`
	HumanReviewReason    *string             `json:"human_review_reason,omitempty"`
	HumanReviewCompleted bool                `json:"human_review_completed"`
	HumanReviewDecision  *Decision           `json:"human_review_decision,omitempty"`
	Errors               []string            `json:"errors"`
	ReasoningTrail       []ReasoningStep     `json:"reasoning_trail"`
}

// NewRecord creates a record carrying only identity fields.
func NewRecord(documentID string, at time.Time) *Record {
	return &Record{
		DocumentID:     documentID,
		AuditTimestamp: at,
		WorkflowStatus: StatusInitialized,
		Errors:         []string{},
		ReasoningTrail: []ReasoningStep{},
	}
}

// Reason appends a trail entry.
func (r *Record) Reason(agent string, at time.Time, action, reasoning, result string) {
	r.ReasoningTrail = append(r.ReasoningTrail, ReasoningStep{
		Agent:     agent,
		Timestamp: at,
		Action:    action,
		Reasoning: reasoning,
		Result:    result,
	})
}

// Fail appends a record-level error.
func (r *Record) Fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

// FlagReview forces human review and replaces any existing reason.
func (r *Record) FlagReview(reason string) {
	r.RequiresHumanReview = true
	r.HumanReviewReason = &reason
}

// FlagReviewIfUnset forces human review, keeping an existing reason.
func (r *Record) FlagReviewIfUnset(reason string) {
	r.RequiresHumanReview = true
	if r.HumanReviewReason == nil {
		r.HumanReviewReason = &reason
	}
}

// AwaitingReview reports whether the record must pause for a reviewer.
func (r *Record) AwaitingReview() bool {
	return r.RequiresHumanReview && !r.HumanReviewCompleted
}

// Clone returns a deep copy so checkpoints never alias a live record.
func (r *Record) Clone() *Record {
	c := *r
	c.Errors = slices.Clone(r.Errors)
	c.ReasoningTrail = slices.Clone(r.ReasoningTrail)
	if r.HumanReviewReason != nil {
		v := *r.HumanReviewReason
		c.HumanReviewReason = &v
	}
	if r.HumanReviewDecision != nil {
		v := *r.HumanReviewDecision
		c.HumanReviewDecision = &v
	}
	if r.Extraction != nil {
		e := *r.Extraction
		e.Errors = slices.Clone(r.Extraction.Errors)
		c.Extraction = &e
	}
	if r.Verification != nil {
		v := *r.Verification
		v.Discrepancies = slices.Clone(r.Verification.Discrepancies)
		c.Verification = &v
	}
	if r.Compliance != nil {
		cr := *r.Compliance
		cr.Recommendations = slices.Clone(r.Compliance.Recommendations)
		cr.ComplianceDetails = maps.Clone(r.Compliance.ComplianceDetails)
		c.Compliance = &cr
	}
	return &c
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// ClampScore bounds v to [0,100].
func ClampScore(v float64) float64 {
	return min(max(v, 0), 100)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

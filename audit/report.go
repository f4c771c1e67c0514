package audit

import (
	"encoding/json"
	"time"
)

// HumanReview summarizes the review gate in an exported report.
type HumanReview struct {
	Required  bool      `json:"required"`
	Reason    *string   `json:"reason"`
	Completed bool      `json:"completed"`
	Decision  *Decision `json:"decision"`
}

// Report is the durable JSON export of a finished or suspended audit.
// The raw extracted text never leaves the process through a report.
type Report struct {
	DocumentID       string              `json:"document_id"`
	AuditDate        time.Time           `json:"audit_date"`
	WorkflowStatus   Status              `json:"workflow_status"`
	Extraction       *ExtractionResult   `json:"extraction"`
	Verification     *VerificationResult `json:"verification"`
	Compliance       *ComplianceResult   `json:"compliance"`
	ReasoningHistory []ReasoningStep     `json:"reasoning_history"`
	HumanReview      HumanReview         `json:"human_review"`
	Errors           []string            `json:"errors"`
}

// NewReport builds the export view of r.
func NewReport(r *Record) Report {
	c := r.Clone()
	if c.Extraction != nil {
		c.Extraction.ExtractedText = ""
	}
	return Report{
		DocumentID:       c.DocumentID,
		AuditDate:        c.AuditTimestamp,
		WorkflowStatus:   c.WorkflowStatus,
		Extraction:       c.Extraction,
		Verification:     c.Verification,
		Compliance:       c.Compliance,
		ReasoningHistory: c.ReasoningTrail,
		HumanReview: HumanReview{
			Required:  c.RequiresHumanReview,
			Reason:    c.HumanReviewReason,
			Completed: c.HumanReviewCompleted,
			Decision:  c.HumanReviewDecision,
		},
		Errors: c.Errors,
	}
}

// Marshal renders the report as indented JSON.
func (r Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Filename is the conventional export name for a report.
func (r Report) Filename() string {
	return r.DocumentID + "_audit.json"
}

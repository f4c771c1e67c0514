package workflow

import "github.com/JaimeStill/emissary/audit"

const (
	NodeExtraction   = "extraction"
	NodeVerification = "verification"
	NodeCompliance   = "compliance"
	NodeHumanReview  = "human_review"

	// End is the implicit terminal node.
	End = ""
)

type predicate func(*audit.Record) bool

type edge struct {
	to   string
	when predicate
}

// edges lists outgoing transitions per node; the first matching edge wins.
var edges = map[string][]edge{
	NodeExtraction: {
		{to: End, when: extractionFailed},
		{to: NodeVerification, when: always},
	},
	NodeVerification: {
		{to: NodeCompliance, when: always},
	},
	NodeCompliance: {
		{to: NodeHumanReview, when: awaitingReview},
		{to: End, when: always},
	},
	NodeHumanReview: {
		{to: End, when: always},
	},
}

// Next returns the node that follows from given rec.
func Next(from string, rec *audit.Record) string {
	for _, e := range edges[from] {
		if e.when(rec) {
			return e.to
		}
	}
	return End
}

func always(*audit.Record) bool { return true }

func extractionFailed(rec *audit.Record) bool {
	return rec.WorkflowStatus == audit.StatusExtractionFailed
}

func awaitingReview(rec *audit.Record) bool {
	return rec.AwaitingReview()
}

package audit

import (
	"fmt"
	"strings"
)

// Decision is a reviewer's verdict on a flagged audit.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision normalizes a reviewer input. An empty value yields
// DecisionReject so an unattended resume never approves.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DecisionReject, nil
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
}

// ExecutionMode selects whether model-assisted paths run.
type ExecutionMode string

const (
	// ModeAssisted calls the structured-completion backends for extraction and
	// compliance, falling back to deterministic paths on failure.
	ModeAssisted ExecutionMode = "assisted"
	// ModeQuantitative skips every model call: the heuristic extractor is
	// primary and compliance reports the base score.
	ModeQuantitative ExecutionMode = "quantitative"
)

// ParseExecutionMode validates a configured mode, defaulting to ModeAssisted.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAssisted:
		return ModeAssisted, nil
	case ModeQuantitative:
		return ModeQuantitative, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

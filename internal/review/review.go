// Package review is the human-in-the-loop gate between compliance and the
// terminal state.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JaimeStill/emissary/audit"
)

const agent = "human_review"

var ErrAlreadyReviewed = errors.New("human review already completed")

// Pending describes a record suspended for review.
type Pending struct {
	ThreadID   string    `json:"thread_id"`
	DocumentID string    `json:"document_id"`
	Reason     string    `json:"reason"`
	FlaggedAt  time.Time `json:"flagged_at"`
}

// Notifier announces suspended records to reviewers.
type Notifier interface {
	NotifyPending(ctx context.Context, p Pending) error
}

// Gate flags and resolves human review.
type Gate struct {
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the trail timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithNotifier publishes a Pending notice each time a record is flagged.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// New creates a Gate.
func New(logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		logger: logger.With("system", "review"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Flag records that rec is waiting for a reviewer. Notification failures are
// logged and never block suspension.
func (g *Gate) Flag(ctx context.Context, threadID string, rec *audit.Record) {
	reason := ""
	if rec.HumanReviewReason != nil {
		reason = *rec.HumanReviewReason
	}

	at := g.now()
	rec.Reason(agent, at, "review_flagged",
		fmt.Sprintf("Invoice flagged for human review: %s", reason),
		"PENDING_REVIEW")
	g.logger.InfoContext(ctx, "review pending", "thread_id", threadID, "document_id", rec.DocumentID, "reason", reason)

	if g.notifier == nil {
		return
	}
	p := Pending{ThreadID: threadID, DocumentID: rec.DocumentID, Reason: reason, FlaggedAt: at}
	if err := g.notifier.NotifyPending(ctx, p); err != nil {
		g.logger.WarnContext(ctx, "review notification failed", "thread_id", threadID, "error", err)
	}
}

// Apply records the reviewer's decision. A nil decision rejects. Applying to
// an already reviewed record changes nothing and returns ErrAlreadyReviewed.
func (g *Gate) Apply(ctx context.Context, rec *audit.Record, decision *audit.Decision) error {
	if rec.HumanReviewCompleted {
		return ErrAlreadyReviewed
	}

	d := audit.DecisionReject
	if decision != nil {
		d = *decision
	} else {
		g.logger.WarnContext(ctx, "no review decision supplied, rejecting", "document_id", rec.DocumentID)
	}

	rec.HumanReviewCompleted = true
	rec.HumanReviewDecision = &d
	rec.WorkflowStatus = audit.ReviewStatus(d)
	rec.Reason(agent, g.now(), "review_decision",
		fmt.Sprintf("Human reviewer decision: %s", strings.ToUpper(string(d))),
		strings.ToUpper(string(d)))

	g.logger.InfoContext(ctx, "review applied", "document_id", rec.DocumentID, "decision", d)
	return nil
}

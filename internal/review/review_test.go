package review_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/review"
)

type fakeNotifier struct {
	pending []review.Pending
	err     error
}

func (f *fakeNotifier) NotifyPending(_ context.Context, p review.Pending) error {
	f.pending = append(f.pending, p)
	return f.err
}

func flagged() *audit.Record {
	rec := audit.NewRecord("doc", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rec.WorkflowStatus = audit.StatusComplianceComplete
	rec.FlagReview("Low Trust Score: 55.0 (threshold: 60.0)")
	return rec
}

func newGate(opts ...review.Option) *review.Gate {
	return review.New(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestApply(t *testing.T) {
	approve := audit.DecisionApprove
	reject := audit.DecisionReject

	tests := []struct {
		name     string
		decision *audit.Decision
		want     audit.Decision
		status   audit.Status
	}{
		{"approve", &approve, audit.DecisionApprove, "human_review_approve"},
		{"reject", &reject, audit.DecisionReject, "human_review_reject"},
		{"missing defaults to reject", nil, audit.DecisionReject, "human_review_reject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := flagged()
			if err := newGate().Apply(context.Background(), rec, tt.decision); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rec.HumanReviewCompleted || *rec.HumanReviewDecision != tt.want {
				t.Errorf("decision: got %v", rec.HumanReviewDecision)
			}
			if rec.WorkflowStatus != tt.status {
				t.Errorf("status: got %s, want %s", rec.WorkflowStatus, tt.status)
			}
			last := rec.ReasoningTrail[len(rec.ReasoningTrail)-1]
			if last.Action != "review_decision" {
				t.Errorf("trail: got %s", last.Action)
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	rec := flagged()
	g := newGate()
	approve := audit.DecisionApprove

	if err := g.Apply(context.Background(), rec, &approve); err != nil {
		t.Fatal(err)
	}
	n := len(rec.ReasoningTrail)

	reject := audit.DecisionReject
	if err := g.Apply(context.Background(), rec, &reject); !errors.Is(err, review.ErrAlreadyReviewed) {
		t.Fatalf("got %v, want ErrAlreadyReviewed", err)
	}
	if len(rec.ReasoningTrail) != n {
		t.Error("second apply must not append to the trail")
	}
	if *rec.HumanReviewDecision != audit.DecisionApprove {
		t.Error("second apply must not change the decision")
	}
}

func TestFlagNotifies(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"delivered", nil},
		{"notifier down", errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{err: tt.err}
			rec := flagged()

			newGate(review.WithNotifier(n)).Flag(context.Background(), "thread-1", rec)

			if len(n.pending) != 1 || n.pending[0].ThreadID != "thread-1" {
				t.Errorf("pending: got %+v", n.pending)
			}
			last := rec.ReasoningTrail[len(rec.ReasoningTrail)-1]
			if last.Action != "review_flagged" || last.Result != "PENDING_REVIEW" {
				t.Errorf("trail: got %+v", last)
			}
			if rec.HumanReviewCompleted {
				t.Error("flag must not complete review")
			}
		})
	}
}

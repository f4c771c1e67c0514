package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/metrics"
	"github.com/JaimeStill/emissary/internal/review"
)

// Extractor populates the extraction slot from document text.
type Extractor interface {
	Run(ctx context.Context, rec *audit.Record, text string)
}

// Stage populates a record slot from earlier results.
type Stage interface {
	Run(ctx context.Context, rec *audit.Record)
}

// Reviewer flags suspended records and applies decisions.
type Reviewer interface {
	Flag(ctx context.Context, threadID string, rec *audit.Record)
	Apply(ctx context.Context, rec *audit.Record, decision *audit.Decision) error
}

// Runtime bundles the collaborators an Engine drives.
type Runtime struct {
	Extraction   Extractor
	Verification Stage
	Compliance   Stage
	Review       Reviewer
	Store        checkpoint.Store
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Clock        func() time.Time
}

// RunRequest starts or continues a thread. An empty ThreadID starts a new
// thread under a generated id; an empty DocumentID defaults to the thread id.
type RunRequest struct {
	ThreadID   string
	DocumentID string
	Text       string
	Decision   *audit.Decision
}

// Result is the state of a thread when Run or Resume returns.
type Result struct {
	ThreadID  string
	Record    *audit.Record
	NextNode  string
	Suspended bool
	// Replayed is true when the thread was already terminal and nothing ran.
	Replayed bool
}

// Engine executes the audit state machine.
type Engine struct {
	rt      Runtime
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an Engine.
func New(rt Runtime) *Engine {
	e := &Engine{
		rt:      rt,
		logger:  rt.Logger.With("system", "workflow"),
		metrics: rt.Metrics,
		now:     rt.Clock,
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Run starts a fresh thread, resumes one suspended at human review, or
// returns a terminal thread unchanged. Calls for the same thread are
// serialized through the store lock.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*Result, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	release, err := e.rt.Store.Lock(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("lock thread %s: %w", threadID, err)
	}
	defer release()

	cp, err := e.rt.Store.Load(ctx, threadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		docID := req.DocumentID
		if docID == "" {
			docID = threadID
		}
		rec := audit.NewRecord(docID, e.now().UTC())
		e.logger.InfoContext(ctx, "starting audit", "thread_id", threadID, "document_id", docID)
		return e.execute(ctx, threadID, rec, NodeExtraction, req.Text, req.Decision, false)
	case err != nil:
		return nil, fmt.Errorf("%w: load %s: %w", ErrCheckpoint, threadID, err)
	}

	if cp.Terminal() {
		return e.replay(ctx, cp), nil
	}

	e.logger.InfoContext(ctx, "resuming audit", "thread_id", threadID, "node", cp.NextNode)
	return e.execute(ctx, threadID, cp.Record, cp.NextNode, req.Text, req.Decision, true)
}

// Resume applies decision to a thread suspended at human review. A nil
// decision rejects. Resuming a reviewed thread returns it unchanged.
func (e *Engine) Resume(ctx context.Context, threadID string, decision *audit.Decision) (*Result, error) {
	release, err := e.rt.Store.Lock(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("lock thread %s: %w", threadID, err)
	}
	defer release()

	cp, err := e.rt.Store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if cp.Terminal() {
		res := e.replay(ctx, cp)
		if !cp.Record.HumanReviewCompleted {
			return res, ErrThreadTerminal
		}
		return res, nil
	}
	if cp.NextNode != NodeHumanReview {
		return nil, fmt.Errorf("%w: %s is at %s", ErrNotSuspended, threadID, cp.NextNode)
	}

	return e.execute(ctx, threadID, cp.Record, NodeHumanReview, "", decision, true)
}

// Status loads the latest checkpoint for a thread.
func (e *Engine) Status(ctx context.Context, threadID string) (*Result, error) {
	cp, err := e.rt.Store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &Result{
		ThreadID:  threadID,
		Record:    cp.Record,
		NextNode:  cp.NextNode,
		Suspended: cp.NextNode == NodeHumanReview,
	}, nil
}

// Pending lists threads suspended at human review.
func (e *Engine) Pending(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	return e.rt.Store.Waiting(ctx, NodeHumanReview)
}

// execute walks the graph from node. resumed marks a thread loaded from a
// checkpoint: entering human review from a checkpoint always applies a
// decision, defaulting to reject.
func (e *Engine) execute(
	ctx context.Context,
	threadID string,
	rec *audit.Record,
	node string,
	text string,
	decision *audit.Decision,
	resumed bool,
) (*Result, error) {
	for node != End {
		if node == NodeHumanReview && decision == nil && !resumed {
			e.metrics.RunsTotal.WithLabelValues("suspended").Inc()
			e.logger.InfoContext(ctx, "audit suspended for review", "thread_id", threadID, "document_id", rec.DocumentID)
			return &Result{ThreadID: threadID, Record: rec, NextNode: node, Suspended: true}, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.save(ctx, threadID, rec, node); err != nil {
			return nil, err
		}

		start := time.Now()
		e.step(ctx, threadID, rec, node, text, decision)
		e.metrics.StageDuration.
			WithLabelValues(node, string(rec.WorkflowStatus)).
			Observe(time.Since(start).Seconds())

		next := Next(node, rec)
		if next == NodeHumanReview {
			e.rt.Review.Flag(ctx, threadID, rec)
		}

		if err := e.save(ctx, threadID, rec, next); err != nil {
			return nil, err
		}
		node = next
		resumed = false
	}

	e.finish(ctx, threadID, rec)
	return &Result{ThreadID: threadID, Record: rec, NextNode: End}, nil
}

func (e *Engine) step(ctx context.Context, threadID string, rec *audit.Record, node, text string, decision *audit.Decision) {
	switch node {
	case NodeExtraction:
		e.rt.Extraction.Run(ctx, rec, text)
	case NodeVerification:
		e.rt.Verification.Run(ctx, rec)
	case NodeCompliance:
		e.rt.Compliance.Run(ctx, rec)
		if rec.Compliance != nil {
			e.metrics.TrustScore.Observe(rec.Compliance.TrustScore)
		}
	case NodeHumanReview:
		if err := e.rt.Review.Apply(ctx, rec, decision); err != nil && !errors.Is(err, review.ErrAlreadyReviewed) {
			e.logger.ErrorContext(ctx, "review apply failed", "thread_id", threadID, "error", err)
		}
	}
}

func (e *Engine) save(ctx context.Context, threadID string, rec *audit.Record, next string) error {
	cp := checkpoint.Checkpoint{
		ThreadID:  threadID,
		Record:    rec,
		NextNode:  next,
		UpdatedAt: e.now().UTC(),
	}
	if err := e.rt.Store.Save(ctx, cp); err != nil {
		return fmt.Errorf("%w: save %s at %q: %w", ErrCheckpoint, threadID, next, err)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, threadID string, rec *audit.Record) {
	outcome := "complete"
	if rec.WorkflowStatus == audit.StatusExtractionFailed {
		outcome = "failed"
	}
	e.metrics.RunsTotal.WithLabelValues(outcome).Inc()

	attrs := []any{
		"thread_id", threadID,
		"document_id", rec.DocumentID,
		"status", rec.WorkflowStatus,
	}
	if rec.Compliance != nil {
		attrs = append(attrs, "trust_score", rec.Compliance.TrustScore)
	}
	e.logger.InfoContext(ctx, "audit complete", attrs...)
}

func (e *Engine) replay(ctx context.Context, cp checkpoint.Checkpoint) *Result {
	e.metrics.RunsTotal.WithLabelValues("replayed").Inc()
	e.logger.InfoContext(ctx, "thread already terminal", "thread_id", cp.ThreadID, "status", cp.Record.WorkflowStatus)
	return &Result{ThreadID: cp.ThreadID, Record: cp.Record, NextNode: End, Replayed: true}
}

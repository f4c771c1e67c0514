// Package workflow drives an audit record through extraction, verification,
// compliance, and the human review gate, checkpointing around every stage.
package workflow

import "errors"

var (
	ErrThreadTerminal = errors.New("thread already completed without review")
	ErrNotSuspended   = errors.New("thread is not awaiting review")
	ErrCheckpoint     = errors.New("checkpoint failed")
)

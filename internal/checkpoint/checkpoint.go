// Package checkpoint persists (record, next node) snapshots keyed by thread
// id so an audit can suspend in one process and resume in another.
package checkpoint

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/JaimeStill/emissary/audit"
)

// Checkpoint is one persisted snapshot. An empty NextNode marks a terminal
// run.
type Checkpoint struct {
	ThreadID  string        `json:"thread_id"`
	Record    *audit.Record `json:"record"`
	NextNode  string        `json:"next_node"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Terminal reports whether the run has no further node to execute.
func (c Checkpoint) Terminal() bool {
	return c.NextNode == ""
}

// Store is the checkpoint persistence contract. Save fully overwrites the
// snapshot for a thread. Lock serializes callers per thread; the returned
// release func is safe to call more than once.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, threadID string) (Checkpoint, error)
	Waiting(ctx context.Context, node string) ([]Checkpoint, error)
	Lock(ctx context.Context, threadID string) (release func(), err error)
}

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidateThreadID rejects ids that are empty, too long, or unsafe as a key
// or file name.
func ValidateThreadID(id string) error {
	if !threadIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidThreadID, id)
	}
	return nil
}

// Locks is an in-process keyed mutex that honors context cancellation.
type Locks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// Lock blocks until id is free or ctx is done.
func (l *Locks) Lock(ctx context.Context, id string) (func(), error) {
	for {
		l.mu.Lock()
		if l.held == nil {
			l.held = make(map[string]chan struct{})
		}
		wait, busy := l.held[id]
		if !busy {
			done := make(chan struct{})
			l.held[id] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, id)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func stamp(cp Checkpoint) Checkpoint {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	return cp
}

package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a process-local Store. Snapshots are deep copies so callers
// never alias stored state.
type Memory struct {
	Locks

	mu    sync.RWMutex
	items map[string]Checkpoint
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Checkpoint)}
}

func (m *Memory) Save(_ context.Context, cp Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	if cp.Record == nil {
		return fmt.Errorf("save %s: nil record", cp.ThreadID)
	}

	cp = stamp(cp)
	cp.Record = cp.Record.Clone()

	m.mu.Lock()
	m.items[cp.ThreadID] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, threadID string) (Checkpoint, error) {
	m.mu.RLock()
	cp, ok := m.items[threadID]
	m.mu.RUnlock()

	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	cp.Record = cp.Record.Clone()
	return cp, nil
}

func (m *Memory) Waiting(_ context.Context, node string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Checkpoint, 0)
	for _, cp := range m.items {
		if cp.NextNode == node {
			cp.Record = cp.Record.Clone()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Interaction is one forensic log line for a completion call. Only sizes are
// recorded; prompts and responses stay out of the log.
type Interaction struct {
	Timestamp     time.Time `json:"timestamp"`
	Backend       string    `json:"backend"`
	Schema        string    `json:"schema"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

// InteractionLog appends Interaction entries as JSON lines.
type InteractionLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewInteractionLog writes entries to w.
func NewInteractionLog(w io.Writer) *InteractionLog {
	return &InteractionLog{w: w}
}

// OpenInteractionLog appends to the file at path, creating parent directories.
func OpenInteractionLog(path string) (*InteractionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create interaction log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open interaction log: %w", err)
	}

	return &InteractionLog{w: f, c: f}, nil
}

// Record writes one entry.
func (l *InteractionLog) Record(i Interaction) error {
	data, err := json.Marshal(i)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.w.Write(append(data, '\n'))
	return err
}

// Close releases the underlying file, if any.
func (l *InteractionLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

type logged struct {
	next Completer
	log  *InteractionLog
	now  func() time.Time
}

// WithInteractionLog records every call made through next.
func WithInteractionLog(next Completer, log *InteractionLog) Completer {
	return &logged{next: next, log: log, now: time.Now}
}

func (l *logged) Name() string {
	return l.next.Name()
}

func (l *logged) Complete(ctx context.Context, req Request) (string, error) {
	start := l.now()
	content, err := l.next.Complete(ctx, req)

	entry := Interaction{
		Timestamp:     start,
		Backend:       l.next.Name(),
		Schema:        req.Schema,
		PromptChars:   len(req.System) + len(req.Prompt),
		ResponseChars: len(content),
		DurationMS:    l.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	// A failed log write never fails the call.
	_ = l.log.Record(entry)

	return content, err
}

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultFileLockTTL = 5 * time.Minute

// File stores one JSON document per thread: <dir>/<thread_id>.json. Writes
// go through a temp file and rename so a crash never leaves a torn snapshot.
// Thread locks hold <dir>/<thread_id>.lock, so stores in separate processes
// sharing dir exclude each other.
type File struct {
	local   Locks
	dir     string
	lockTTL time.Duration
	mu      sync.Mutex
}

// FileOption configures a File store.
type FileOption func(*File)

// WithLockTTL sets the age after which a lock file left by a crashed holder
// is taken over.
func WithLockTTL(ttl time.Duration) FileOption {
	return func(f *File) {
		if ttl > 0 {
			f.lockTTL = ttl
		}
	}
}

// NewFile creates a File store rooted at dir, creating it if needed.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	f := &File{dir: dir, lockTTL: defaultFileLockTTL}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *File) path(threadID string) string {
	return filepath.Join(f.dir, threadID+".json")
}

func (f *File) lockPath(threadID string) string {
	return filepath.Join(f.dir, threadID+".lock")
}

// Lock takes the in-process lock for threadID, then polls an exclusive
// create of the thread's lock file until it wins or ctx is done.
func (f *File) Lock(ctx context.Context, threadID string) (func(), error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	releaseLocal, err := f.local.Lock(ctx, threadID)
	if err != nil {
		return nil, err
	}

	path := f.lockPath(threadID)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()

	for {
		won, err := f.acquire(path, token)
		if err != nil {
			releaseLocal()
			return nil, fmt.Errorf("lock %s: %w", threadID, err)
		}
		if won {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if data, err := os.ReadFile(path); err == nil && string(data) == token {
				os.Remove(path)
			}
			releaseLocal()
		})
	}, nil
}

func (f *File) acquire(path, token string) (bool, error) {
	lock, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, werr := lock.WriteString(token)
		cerr := lock.Close()
		if werr != nil || cerr != nil {
			os.Remove(path)
			return false, errors.Join(werr, cerr)
		}
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if time.Since(info.ModTime()) > f.lockTTL {
		os.Remove(path)
	}
	return false, nil
}

func (f *File) Save(_ context.Context, cp Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	if cp.Record == nil {
		return fmt.Errorf("save %s: nil record", cp.ThreadID)
	}

	data, err := json.MarshalIndent(stamp(cp), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, cp.ThreadID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	return os.Rename(tmp.Name(), f.path(cp.ThreadID))
}

func (f *File) Load(_ context.Context, threadID string) (Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return Checkpoint{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read(f.path(threadID))
}

func (f *File) Waiting(_ context.Context, node string) ([]Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	out := make([]Checkpoint, 0)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := f.read(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if cp.NextNode == node {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (f *File) read(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return cp, nil
}

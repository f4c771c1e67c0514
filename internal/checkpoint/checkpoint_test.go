package checkpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
)

func stores(t *testing.T) map[string]checkpoint.Store {
	t.Helper()
	file, err := checkpoint.NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]checkpoint.Store{
		"memory": checkpoint.NewMemory(),
		"file":   file,
	}
}

func snapshot(threadID, next string) checkpoint.Checkpoint {
	rec := audit.NewRecord("INV-2024-00145", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rec.Reason("extraction", rec.AuditTimestamp, "extraction_complete", "done", "")
	return checkpoint.Checkpoint{ThreadID: threadID, Record: rec, NextNode: next}
}

func TestSaveLoad(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Load(ctx, "missing"); !errors.Is(err, checkpoint.ErrNotFound) {
				t.Fatalf("missing: got %v, want ErrNotFound", err)
			}

			if err := s.Save(ctx, snapshot("t-1", "verification")); err != nil {
				t.Fatal(err)
			}
			if err := s.Save(ctx, snapshot("t-1", "human_review")); err != nil {
				t.Fatal(err)
			}

			cp, err := s.Load(ctx, "t-1")
			if err != nil {
				t.Fatal(err)
			}
			if cp.NextNode != "human_review" || cp.Record.DocumentID != "INV-2024-00145" {
				t.Errorf("got %+v", cp)
			}
			if len(cp.Record.ReasoningTrail) != 1 {
				t.Errorf("trail: got %d entries", len(cp.Record.ReasoningTrail))
			}
			if cp.UpdatedAt.IsZero() {
				t.Error("updated_at must be stamped")
			}
		})
	}
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cp := snapshot("t-2", "compliance")
			if err := s.Save(ctx, cp); err != nil {
				t.Fatal(err)
			}

			cp.Record.Reason("compliance", time.Now(), "mutated", "after save", "")

			loaded, _ := s.Load(ctx, "t-2")
			if len(loaded.Record.ReasoningTrail) != 1 {
				t.Error("mutating the caller's record changed the stored snapshot")
			}
		})
	}
}

func TestWaiting(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for id, next := range map[string]string{"a": "human_review", "b": "", "c": "human_review"} {
				if err := s.Save(ctx, snapshot(id, next)); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.Waiting(ctx, "human_review")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Errorf("got %d waiting, want 2", len(got))
			}
		})
	}
}

func TestInvalidThreadID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
				err := s.Save(context.Background(), snapshot(id, ""))
				if !errors.Is(err, checkpoint.ErrInvalidThreadID) {
					t.Errorf("%q: got %v, want ErrInvalidThreadID", id, err)
				}
			}
		})
	}
}

func TestLockSerializesThread(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var (
				active  atomic.Int32
				overlap atomic.Bool
				wg      sync.WaitGroup
			)

			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := s.Lock(context.Background(), "shared")
					if err != nil {
						t.Error(err)
						return
					}
					defer release()

					if active.Add(1) > 1 {
						overlap.Store(true)
					}
					time.Sleep(time.Millisecond)
					active.Add(-1)
				}()
			}
			wg.Wait()

			if overlap.Load() {
				t.Error("two holders held the same thread lock")
			}
		})
	}
}

func TestFileLockAcrossStores(t *testing.T) {
	dir := t.TempDir()
	a, err := checkpoint.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, err := checkpoint.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}

	release, err := a.Lock(context.Background(), "t-shared")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "t-shared.lock")); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(ctx, "t-shared"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second store got %v, want deadline exceeded", err)
	}

	release()
	release()
	if _, err := os.Stat(filepath.Join(dir, "t-shared.lock")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file left after release: %v", err)
	}

	other, err := b.Lock(context.Background(), "t-shared")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	other()

	again, err := a.Lock(context.Background(), "t-shared")
	if err != nil {
		t.Fatalf("timed-out waiter must not hold the in-process lock: %v", err)
	}
	again()
}

func TestFileLockTakesOverStaleLease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t-stale.lock")
	if err := os.WriteFile(path, []byte("crashed-holder"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	store, err := checkpoint.NewFile(dir, checkpoint.WithLockTTL(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := store.Lock(ctx, "t-stale")
	if err != nil {
		t.Fatalf("stale lease was not taken over: %v", err)
	}
	release()
}

func TestFileWaitingIgnoresLocks(t *testing.T) {
	store, err := checkpoint.NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, snapshot("t-held", "human_review")); err != nil {
		t.Fatal(err)
	}

	release, err := store.Lock(ctx, "t-held")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	waiting, err := store.Waiting(ctx, "human_review")
	if err != nil || len(waiting) != 1 {
		t.Errorf("got %d, %v; want one waiting thread", len(waiting), err)
	}
}

func TestLockHonorsContext(t *testing.T) {
	s := checkpoint.NewMemory()
	release, err := s.Lock(context.Background(), "busy")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	other, err := s.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("distinct threads must not block: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, "busy"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_CP_BACKEND", "redis")
	t.Setenv("TEST_CP_REDIS_DB", "3")

	var c checkpoint.Config
	err := c.Finalize(&checkpoint.Env{Backend: "TEST_CP_BACKEND", RedisDB: "TEST_CP_REDIS_DB"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != checkpoint.BackendRedis || c.Redis.DB != 3 || c.LockTTLDuration() != 5*time.Minute {
		t.Errorf("got %+v", c)
	}

	bad := checkpoint.Config{Backend: "sqlite"}
	if err := bad.Finalize(nil); !errors.Is(err, checkpoint.ErrUnknownBackend) {
		t.Errorf("got %v, want ErrUnknownBackend", err)
	}
}

// Package lifecycle coordinates startup, readiness, and shutdown of the
// long-lived systems behind the server and CLI.
package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Probe checks one dependency. A nil return means healthy.
type Probe func(ctx context.Context) error

// Coordinator manages startup and shutdown hooks for the application lifecycle.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	shutdownWg sync.WaitGroup
	ready      bool
	readyMu    sync.RWMutex
	probes     map[string]Probe
	probesMu   sync.RWMutex
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
		probes: make(map[string]Probe),
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a function to run concurrently during startup.
func (c *Coordinator) OnStartup(fn func()) {
	c.startupWg.Go(fn)
}

// OnShutdown registers a function to run concurrently during shutdown.
// Shutdown hooks should block on <-c.Context().Done() before executing cleanup.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(fn)
}

// AddProbe registers a named readiness probe, replacing any earlier probe
// with the same name.
func (c *Coordinator) AddProbe(name string, p Probe) {
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	c.probes[name] = p
}

// Probe runs every registered probe and returns the failures by name.
// An empty map means every dependency answered.
func (c *Coordinator) Probe(ctx context.Context) map[string]error {
	c.probesMu.RLock()
	names := slices.Sorted(maps.Keys(c.probes))
	probes := maps.Clone(c.probes)
	c.probesMu.RUnlock()

	failed := make(map[string]error)
	for _, name := range names {
		if err := probes[name](ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Ready returns true after all startup hooks have completed.
func (c *Coordinator) Ready() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	return c.ready
}

// WaitForStartup blocks until all startup hooks have completed and sets the ready flag.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.readyMu.Lock()
	c.ready = true
	c.readyMu.Unlock()
}

// Shutdown cancels the context and waits for shutdown hooks to complete
// within the given timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

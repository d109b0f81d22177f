package cache

import (
	"context"
	"sync"
	"time"
)

// Gate signals that a stream has delivered its first payload. Accessors
// wait on it instead of polling; reconnects reset it until the stream is
// warm again.
type Gate struct {
	mu    sync.Mutex
	ch    chan struct{}
	ready bool
}

// NewGate returns a gate in the not-ready state.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Set marks the gate ready and releases all waiters. Setting an already
// ready gate is a no-op.
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		g.ready = true
		close(g.ch)
	}
}

// Reset returns the gate to not-ready so waiters block again.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		g.ready = false
		g.ch = make(chan struct{})
	}
}

// Ready reports the gate state without blocking.
func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Wait blocks until the gate is set, the timeout elapses, or ctx is done.
// It returns true only when the gate was set. timeout <= 0 waits on ctx
// alone.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) bool {
	g.mu.Lock()
	ch := g.ch
	ready := g.ready
	g.mu.Unlock()
	if ready {
		return true
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ch:
		return true
	case <-timer:
		return false
	case <-ctx.Done():
		return false
	}
}

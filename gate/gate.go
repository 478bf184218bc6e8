// Package gate provides the single-flight mutual-exclusion primitive that
// serializes execution-engine runs. The gate is either open or closed and
// keeps a FIFO queue of continuations; continuations scheduled while the gate
// is closed run only after it reopens, in arrival order, and at most one
// continuation is past the gate at any time.
package gate

import "sync"

type (
	// Gate guards a shared resource. The zero value is not usable; call New.
	Gate struct {
		mu       sync.Mutex
		closed   bool
		draining bool
		waiting  []func()
	}
)

// New returns an open gate.
func New() *Gate {
	return &Gate{}
}

// Close shuts the gate. Closing an already closed gate is a no-op. Between a
// Close and the matching Open, no queued continuation runs.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Open reopens the gate and releases queued continuations in FIFO order.
// Opening an already open gate is a no-op. If a released continuation closes
// the gate again, the remaining continuations stay queued until the next
// Open.
func (g *Gate) Open() {
	g.mu.Lock()
	g.closed = false
	g.drain()
	g.mu.Unlock()
}

// Await schedules fn behind the gate: it runs immediately if the gate is open
// and nothing is ahead of it, and is enqueued otherwise. The continuation may
// run on the goroutine of whichever caller reopens the gate. fn must not call
// Await on the same gate.
func (g *Gate) Await(fn func()) {
	g.mu.Lock()
	g.waiting = append(g.waiting, fn)
	g.drain()
	g.mu.Unlock()
}

// drain runs queued continuations, oldest first, while the gate stays open.
// Exactly one goroutine drains at a time, which keeps continuations from
// overlapping. Callers must hold g.mu.
func (g *Gate) drain() {
	if g.draining {
		return
	}
	g.draining = true
	for !g.closed && len(g.waiting) > 0 {
		fn := g.waiting[0]
		g.waiting = g.waiting[1:]
		g.mu.Unlock()
		fn()
		g.mu.Lock()
	}
	g.draining = false
}

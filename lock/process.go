// Package lock implements gasdb's two-tier locking: an in-process
// exclusive lock serializing every operation within one gasdb instance,
// and a cooperative per-collection lock shared across instances through
// the master index.
package lock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gasdb/core"
)

// MinTimeout is the smallest timeout callers may request; anything lower
// is clamped up to this value with a warning logged.
const MinTimeout = time.Second

// DefaultTimeout is used when a caller requests a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// ClampTimeout enforces the minimum/default timeout rules shared by both
// the process lock and the collection application lock.
func ClampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return DefaultTimeout
	}
	if requested < MinTimeout {
		core.Warn("lock timeout below minimum, clamping",
			zap.Duration("requested", requested),
			zap.Duration("clamped", MinTimeout))
		return MinTimeout
	}
	return requested
}

// ProcessLock is a single-holder exclusive lock, implemented as a
// buffered channel semaphore so acquisition can honor a context deadline —
// a plain sync.Mutex offers no way to time out a blocked Lock call.
type ProcessLock struct {
	sem     chan struct{}
	timeout time.Duration

	mu        sync.Mutex
	held      bool
	heldSince time.Time
	waiters   int
}

// NewProcessLock builds a ProcessLock whose Acquire calls time out after
// timeout (clamped via ClampTimeout).
func NewProcessLock(timeout time.Duration) *ProcessLock {
	return &ProcessLock{
		sem:     make(chan struct{}, 1),
		timeout: ClampTimeout(timeout),
	}
}

// Acquire blocks until the lock is free or ctx/the configured timeout
// elapses, whichever comes first. On success it returns a release func
// that must be called exactly once to hand the lock back.
func (p *ProcessLock) Acquire(ctx context.Context) (release func(), err error) {
	deadline, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	p.waiters++
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
		p.mu.Lock()
		p.waiters--
		p.held = true
		p.heldSince = time.Now()
		p.mu.Unlock()
		return p.release, nil
	case <-deadline.Done():
		p.mu.Lock()
		p.waiters--
		p.mu.Unlock()
		return nil, ErrTimeout
	}
}

func (p *ProcessLock) release() {
	p.mu.Lock()
	p.held = false
	p.mu.Unlock()
	<-p.sem
}

// Stats describes the current state of a ProcessLock, for diagnostics.
type Stats struct {
	Held        bool
	HeldFor     time.Duration
	WaiterCount int
}

// Stats returns a snapshot of the lock's current state.
func (p *ProcessLock) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Held: p.held, WaiterCount: p.waiters}
	if p.held {
		s.HeldFor = time.Since(p.heldSince)
	}
	return s
}

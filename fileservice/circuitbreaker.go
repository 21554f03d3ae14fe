package fileservice

import (
	"sync"
	"time"
)

type breakerState int

const (
	closedState breakerState = iota
	openState
	halfOpenState
)

// CircuitBreaker fails fast once a blob store backend has shown it is
// unhealthy, instead of letting every caller pile into retrying a backend
// that is already down. It generalizes the exponential-backoff retry loop
// gasdb's write path uses for version conflicts into a small state machine
// with the same idea: stop hammering a failing dependency, and probe it
// back open once a cool-off elapses.
type CircuitBreaker struct {
	mu sync.Mutex

	state               breakerState
	failureThreshold    int
	consecutiveFailures int
	cooldown            time.Duration
	openedAt            time.Time
}

// NewCircuitBreaker builds a breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before allowing a
// half-open trial call.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// Allow reports whether a call should be attempted right now.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case closedState:
		return true
	case openState:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = halfOpenState
			return true
		}
		return false
	default: // halfOpenState
		return true
	}
}

// RecordSuccess resets the breaker to fully closed.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = closedState
}

// RecordFailure counts a failed call, opening the breaker if the
// threshold is reached or if the failing call was the half-open trial.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.state == halfOpenState || b.consecutiveFailures >= b.failureThreshold {
		b.state = openState
		b.openedAt = time.Now()
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == openState && time.Since(b.openedAt) < b.cooldown
}

package llm

import (
	"sync"
	"time"
)

// Breaker states.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker protects a provider from repeated calls while it is failing.
// Closed passes calls through; open fails fast; half-open admits probes after
// the reset timeout and closes again after enough successes.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold  int
	resetTimeout      time.Duration
	halfOpenSuccesses int

	state     breakerState
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time // overridable in tests
}

// NewCircuitBreaker creates a breaker with the given thresholds. Zero values
// select the defaults: 5 consecutive failures to open, 60s reset, 3 probe
// successes to close.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenSuccesses int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	if halfOpenSuccesses <= 0 {
		halfOpenSuccesses = 3
	}
	return &CircuitBreaker{
		failureThreshold:  failureThreshold,
		resetTimeout:      resetTimeout,
		halfOpenSuccesses: halfOpenSuccesses,
		now:               time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the reset timeout elapses, at which point the breaker moves to
// half-open and admits probes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = stateHalfOpen
		cb.successes = 0
	}
	return true
}

// RecordSuccess feeds a successful call back into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		cb.failures = 0
	case stateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenSuccesses {
			cb.state = stateClosed
			cb.failures = 0
		}
	}
}

// RecordFailure feeds a failed call back into the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = stateOpen
			cb.openedAt = cb.now()
		}
	case stateHalfOpen:
		// Any probe failure reopens
		cb.state = stateOpen
		cb.openedAt = cb.now()
	}
}

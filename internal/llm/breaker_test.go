package llm

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		if !cb.Allow() {
			t.Fatalf("breaker opened after %d failures, threshold is 5", i+1)
		}
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Error("breaker should be open after 5 consecutive failures")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if !cb.Allow() {
		t.Error("non-consecutive failures should not open the breaker")
	}
}

func TestBreakerHalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)
	current := time.Now()
	cb.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if cb.Allow() {
		t.Fatal("breaker should be open")
	}

	// After the reset timeout the breaker admits probes
	current = current.Add(61 * time.Second)
	if !cb.Allow() {
		t.Fatal("breaker should admit probes after the reset timeout")
	}

	// Two successes are not enough to close
	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.state != stateHalfOpen {
		t.Errorf("state = %v, want half-open", cb.state)
	}

	cb.RecordSuccess()
	if cb.state != stateClosed {
		t.Errorf("state = %v, want closed after 3 probe successes", cb.state)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute, 3)
	current := time.Now()
	cb.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	current = current.Add(61 * time.Second)
	if !cb.Allow() {
		t.Fatal("breaker should admit probes")
	}

	cb.RecordFailure()
	if cb.Allow() {
		t.Error("probe failure should reopen the breaker immediately")
	}
}

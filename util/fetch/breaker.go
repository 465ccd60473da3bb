package fetch

import (
	"sync"
	"time"
)

// Breaker is a two-state circuit breaker: Closed until failureThreshold
// consecutive failures, then Open until recoveryTimeout elapses after the
// last failure, at which point it resets to Closed. There is no half-open
// probe state, and a successful fetch does not reset the failure counter;
// only time-based recovery closes the breaker.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration

	failureCount  int
	open          bool
	lastFailureAt time.Time

	// now is stubbed in tests
	now func() time.Time
}

func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// IsOpen reports whether calls should be short-circuited. When the recovery
// timeout has elapsed since the last failure, the breaker resets and reports
// closed.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if b.now().Sub(b.lastFailureAt) > b.recoveryTimeout {
		b.failureCount = 0
		b.open = false
		return false
	}
	return true
}

// RecordFailure accounts one failed fetch, opening the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureAt = b.now()
	if b.failureCount >= b.failureThreshold {
		b.open = true
	}
}

// State returns the current failure count and open flag for observability.
func (b *Breaker) State() (failures int, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.open
}

// Package fetch wraps cache-miss upstream calls with retry, exponential
// backoff and a per-operation circuit breaker (cache-aside orchestration).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"

	"github.com/meshboard/meshboard/util/cache"
)

// ErrCircuitOpen is returned without attempting the upstream call while an
// operation's circuit breaker is open. Distinguishable from a genuine fetch
// failure so callers can e.g. serve stale data.
var ErrCircuitOpen = errors.New("fetch: circuit breaker is open")

const (
	// DefaultMaxRetries is the retry budget after the initial attempt.
	DefaultMaxRetries = 3
	// backoffCap bounds the exponential retry delay.
	backoffCap = 30 * time.Second
)

// Options tune a single GetOrFetch call.
type Options struct {
	// EnableFallback returns a zero result instead of an error when all
	// retries are exhausted. Circuit-open failures still propagate.
	EnableFallback bool
	// MaxRetries overrides DefaultMaxRetries when non-negative.
	MaxRetries int
}

// DefaultOptions fall back to a zero result when the upstream stays down.
func DefaultOptions() Options {
	return Options{EnableFallback: true, MaxRetries: -1}
}

// Wrapper orchestrates cache-aside reads: cache hit fast path, otherwise an
// upstream fetch guarded by retry and a per-operation circuit breaker, with
// the result written back to the store. The store lock is never held across
// a fetch, so concurrent misses on the same key may fetch independently;
// callers needing single-flight semantics must coalesce themselves.
type Wrapper struct {
	store   *cache.Store
	monitor *cache.Monitor

	mu       sync.Mutex
	breakers map[string]*Breaker

	failureThreshold int
	recoveryTimeout  time.Duration

	// initialBackoff and maxBackoff bound the retry delays; shortened in tests
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// ttlFor, when set, overrides the store's TTL table for write-backs
	// (used to wire in adaptive TTL proposals).
	ttlFor func(resourceType, operation string) (time.Duration, bool)
}

// NewWrapper creates a wrapper over the store. The monitor is optional; when
// present, every upstream fetch is accounted in its operation statistics.
func NewWrapper(store *cache.Store, monitor *cache.Monitor, failureThreshold int, recoveryTimeout time.Duration) *Wrapper {
	return &Wrapper{
		store:            store,
		monitor:          monitor,
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		initialBackoff:   time.Second,
		maxBackoff:       backoffCap,
	}
}

// SetTTLFunc installs a TTL override consulted before each write-back. Must
// be called before the wrapper is shared across goroutines.
func (w *Wrapper) SetTTLFunc(fn func(resourceType, operation string) (time.Duration, bool)) {
	w.ttlFor = fn
}

// Breaker returns the circuit breaker for a resource/operation pair,
// creating it on first use.
func (w *Wrapper) Breaker(resourceType, operation string) *Breaker {
	key := resourceType + "|" + operation
	w.mu.Lock()
	defer w.mu.Unlock()
	br, ok := w.breakers[key]
	if !ok {
		br = NewBreaker(w.failureThreshold, w.recoveryTimeout)
		w.breakers[key] = br
	}
	return br
}

// GetOrFetch returns the cached result for the query, or fetches it upstream
// on a miss and stores it. fn must be side-effect free with respect to the
// cache and should honor ctx's deadline; a timed-out fetch counts as a
// breaker failure.
func GetOrFetch[T any](ctx context.Context, w *Wrapper, cluster, resourceType, operation string, params cache.Params, fn func(ctx context.Context) (T, error), opts Options) (T, error) {
	var cached T
	if err := w.store.Get(cluster, resourceType, operation, params, &cached); err == nil {
		return cached, nil
	}

	var zero T
	br := w.Breaker(resourceType, operation)
	if br.IsOpen() {
		return zero, fmt.Errorf("%s/%s short-circuited: %w", resourceType, operation, ErrCircuitOpen)
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	start := time.Now()
	result, err := retryFetch(ctx, w, br, fn, maxRetries)
	if w.monitor != nil {
		w.monitor.RecordOperation(resourceType+"|"+operation, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return zero, fmt.Errorf("%s/%s short-circuited: %w", resourceType, operation, ErrCircuitOpen)
		}
		if opts.EnableFallback {
			log.WithFields(log.Fields{
				"cluster":   cluster,
				"resource":  resourceType,
				"operation": operation,
			}).Warnf("Upstream fetch failed after %d retries, falling back to empty result: %v", maxRetries, err)
			return zero, nil
		}
		return zero, err
	}

	// cache bookkeeping failures never block the read path
	if err := w.set(cluster, resourceType, operation, params, result); err != nil {
		log.Warnf("Failed to cache %s/%s result: %v", resourceType, operation, err)
	}
	return result, nil
}

func (w *Wrapper) set(cluster, resourceType, operation string, params cache.Params, result any) error {
	if w.ttlFor != nil {
		if ttl, ok := w.ttlFor(resourceType, operation); ok {
			return w.store.SetWithTTL(cluster, resourceType, operation, params, result, ttl)
		}
	}
	return w.store.Set(cluster, resourceType, operation, params, result)
}

// retryFetch runs fn with exponential backoff (1s, 2s, 4s, ... capped),
// recording every failure on the breaker. Once the breaker opens, remaining
// retries are abandoned.
func retryFetch[T any](ctx context.Context, w *Wrapper, br *Breaker, fn func(ctx context.Context) (T, error), maxRetries int) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = w.maxBackoff

	operation := func() (T, error) {
		if br.IsOpen() {
			var zero T
			return zero, backoff.Permanent(ErrCircuitOpen)
		}
		result, err := fn(ctx)
		if err != nil {
			br.RecordFailure()
			return result, err
		}
		return result, nil
	}
	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxRetries)+1))
}

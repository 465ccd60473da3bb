package cache

import "time"

const (
	// TTL proposals are clamped to this range regardless of inputs.
	minAdaptiveTTL = 10 * time.Second
	maxAdaptiveTTL = 600 * time.Second

	highHitRate = 80.0
	lowHitRate  = 30.0

	slowUpstreamLatency = 5 * time.Second
	fastUpstreamLatency = 1 * time.Second
)

// TTLController proposes TTLs for future cache writes based on observed hit
// rates and upstream latency. Proposals apply only to subsequent Set calls;
// the expiry of already-stored entries is never changed retroactively.
type TTLController struct{}

func NewTTLController() *TTLController {
	return &TTLController{}
}

// Propose adjusts a base TTL. High hit rates lengthen it (the data is
// evidently stable), low hit rates shorten it. A slow upstream favors caching
// longer, a cheap one favors freshness. hitRate is a percentage in [0, 100].
func (c *TTLController) Propose(base time.Duration, hitRate float64, avgLatency time.Duration) time.Duration {
	ttl := float64(base)
	switch {
	case hitRate > highHitRate:
		ttl *= 1.2
	case hitRate < lowHitRate:
		ttl *= 0.8
	}
	switch {
	case avgLatency > slowUpstreamLatency:
		ttl *= 1.5
	case avgLatency < fastUpstreamLatency:
		ttl *= 0.9
	}
	proposed := time.Duration(ttl)
	if proposed < minAdaptiveTTL {
		return minAdaptiveTTL
	}
	if proposed > maxAdaptiveTTL {
		return maxAdaptiveTTL
	}
	return proposed
}

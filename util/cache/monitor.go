package cache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// operation statistics older than this are pruned by the cleanup loop
const staleOperationStatsAge = 24 * time.Hour

type operationStats struct {
	count        int64
	failures     int64
	totalLatency time.Duration
	updatedAt    time.Time
}

// HealthSnapshot is the periodic observability report published by the monitor.
type HealthSnapshot struct {
	HitRate              float64 `json:"hitRate"`
	MissRate             float64 `json:"missRate"`
	TotalEntries         int     `json:"totalEntries"`
	ClustersCached       int     `json:"clustersCached"`
	EstimatedMemoryBytes int64   `json:"estimatedMemoryBytes"`
	ErrorRate            float64 `json:"errorRate"`
}

// Monitor runs the cache's background hygiene: a periodic expired-entry sweep
// and a periodic health snapshot. It also keeps per-operation fetch
// statistics (latency, failures) recorded by the fetch wrapper and consumed
// by the adaptive TTL controller.
type Monitor struct {
	store               *Store
	cleanupInterval     time.Duration
	healthCheckInterval time.Duration

	mu  sync.Mutex
	ops map[string]*operationStats

	now func() time.Time
}

func NewMonitor(store *Store, cleanupInterval, healthCheckInterval time.Duration) *Monitor {
	return &Monitor{
		store:               store,
		cleanupInterval:     cleanupInterval,
		healthCheckInterval: healthCheckInterval,
		ops:                 make(map[string]*operationStats),
		now:                 time.Now,
	}
}

// RecordOperation accounts one upstream fetch for the given operation key.
func (m *Monitor) RecordOperation(operation string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.ops[operation]
	if !ok {
		stats = &operationStats{}
		m.ops[operation] = stats
	}
	stats.count++
	stats.totalLatency += latency
	if err != nil {
		stats.failures++
	}
	stats.updatedAt = m.now()
}

// AvgLatency returns the mean upstream latency observed for the operation,
// or zero if nothing has been recorded.
func (m *Monitor) AvgLatency(operation string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.ops[operation]
	if !ok || stats.count == 0 {
		return 0
	}
	return stats.totalLatency / time.Duration(stats.count)
}

// ErrorRate returns the percentage of recorded fetches that failed, across
// all operations still within the stats retention window.
func (m *Monitor) ErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count, failures int64
	for _, stats := range m.ops {
		count += stats.count
		failures += stats.failures
	}
	if count == 0 {
		return 0
	}
	return float64(failures) / float64(count) * 100
}

// Start launches the cleanup and health-check loops. Both stop when ctx is
// cancelled; a failed iteration is logged and retried on the next tick.
func (m *Monitor) Start(ctx context.Context) {
	go m.runCleanupLoop(ctx)
	go m.runHealthCheckLoop(ctx)
}

func (m *Monitor) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runIteration("cleanup", m.cleanup)
		}
	}
}

func (m *Monitor) runHealthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runIteration("health-check", m.publishHealth)
		}
	}
}

// runIteration guards a single loop iteration so one failure never takes the
// process down.
func (m *Monitor) runIteration(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Cache %s iteration failed: %v", name, r)
		}
	}()
	fn()
}

func (m *Monitor) cleanup() {
	removed := m.store.CleanupExpired()
	pruned := m.pruneStaleOperationStats()
	if removed > 0 || pruned > 0 {
		log.Infof("Cache cleanup removed %d expired entries and %d stale operation stats", removed, pruned)
	}
}

func (m *Monitor) pruneStaleOperationStats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-staleOperationStatsAge)
	pruned := 0
	for operation, stats := range m.ops {
		if stats.updatedAt.Before(cutoff) {
			delete(m.ops, operation)
			pruned++
		}
	}
	return pruned
}

func (m *Monitor) publishHealth() {
	snapshot := m.Health()
	log.WithFields(log.Fields{
		"hitRate":        snapshot.HitRate,
		"missRate":       snapshot.MissRate,
		"totalEntries":   snapshot.TotalEntries,
		"clustersCached": snapshot.ClustersCached,
		"memoryBytes":    snapshot.EstimatedMemoryBytes,
		"errorRate":      snapshot.ErrorRate,
	}).Info("Cache health snapshot")
}

// Health computes the current snapshot without mutating the cache.
func (m *Monitor) Health() HealthSnapshot {
	stats := m.store.Stats()
	snapshot := HealthSnapshot{
		HitRate:              stats.HitRate,
		TotalEntries:         stats.TotalEntries,
		ClustersCached:       stats.ClustersCached,
		EstimatedMemoryBytes: m.store.EstimatedSize(),
		ErrorRate:            m.ErrorRate(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		snapshot.MissRate = 100 - snapshot.HitRate
	}
	return snapshot
}

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var ErrCacheMiss = errors.New("cache: key is missing")

// Config is the process-wide cache configuration. It is read-only after
// construction; to change settings at runtime, replace it wholesale via
// Store.SetConfig rather than mutating fields.
type Config struct {
	// Enabled toggles the cache. When false every Get reports a miss and no
	// bookkeeping is performed.
	Enabled bool
	// MaxEntries caps the total entry count across all cluster partitions.
	MaxEntries int
	// DefaultExpiration applies to resource/operation pairs without an entry
	// in Expirations.
	DefaultExpiration time.Duration
	// Expirations maps "resourceType/operation" to a TTL.
	Expirations map[string]time.Duration
}

func (c *Config) Validate() error {
	if c.MaxEntries < 1 {
		return fmt.Errorf("cache: max entries must be at least 1, got %d", c.MaxEntries)
	}
	if c.DefaultExpiration <= 0 {
		return fmt.Errorf("cache: default expiration must be positive, got %s", c.DefaultExpiration)
	}
	for k, ttl := range c.Expirations {
		if ttl <= 0 {
			return fmt.Errorf("cache: expiration for %q must be positive, got %s", k, ttl)
		}
	}
	return nil
}

// ExpirationFor returns the configured TTL for a resource/operation pair,
// falling back to the default.
func (c *Config) ExpirationFor(resourceType, operation string) time.Duration {
	if ttl, ok := c.Expirations[resourceType+"/"+operation]; ok {
		return ttl
	}
	return c.DefaultExpiration
}

type entry struct {
	data           json.RawMessage
	storedAt       time.Time
	ttl            time.Duration
	accessCount    int64
	lastAccessedAt time.Time
}

// expired reports whether the entry's TTL has elapsed. A zero or negative TTL
// reads as already expired.
func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// lastUsed is the eviction ordering timestamp: last access, or creation time
// for entries never read.
func (e *entry) lastUsed() time.Time {
	if e.lastAccessedAt.IsZero() {
		return e.storedAt
	}
	return e.lastAccessedAt
}

// ConfigSummary is the slice of the active configuration reported alongside
// statistics, so stats consumers can interpret the numbers without a separate
// config lookup.
type ConfigSummary struct {
	Enabled           bool          `json:"enabled"`
	MaxEntries        int           `json:"maxEntries"`
	DefaultExpiration time.Duration `json:"defaultExpiration"`
}

// Statistics is a point-in-time summary of cache effectiveness, exposed for
// the metrics endpoint and the health monitor.
type Statistics struct {
	Hits           int64         `json:"hits"`
	Misses         int64         `json:"misses"`
	HitRate        float64       `json:"hitRate"`
	Evictions      int64         `json:"evictions"`
	TotalEntries   int           `json:"totalEntries"`
	ClustersCached int           `json:"clustersCached"`
	Config         ConfigSummary `json:"config"`
}

// MetricsRegistry receives cache request outcomes for export. Implemented by
// the prometheus metrics server.
type MetricsRegistry interface {
	IncCacheRequest(hit bool)
	AddCacheEvictions(count int)
}

// Store is a per-cluster, per-resource-type TTL cache with approximate global
// LRU eviction under capacity pressure. Payloads are stored as encoded JSON
// and decoded on read, keeping the store indifferent to their shape.
//
// All map state is guarded by a single mutex. The lock is never held across
// an upstream fetch; see the fetch package.
type Store struct {
	mu       sync.Mutex
	clusters map[string]map[string]*entry

	hits      int64
	misses    int64
	evictions int64

	config   atomic.Pointer[Config]
	registry MetricsRegistry

	// now is stubbed in tests
	now func() time.Time
}

func NewStore(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		clusters: make(map[string]map[string]*entry),
		now:      time.Now,
	}
	s.config.Store(config)
	return s, nil
}

// SetConfig replaces the configuration wholesale.
func (s *Store) SetConfig(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.config.Store(config)
	return nil
}

func (s *Store) Config() *Config {
	return s.config.Load()
}

// SetMetricsRegistry wires a metrics sink. Must be called before the store is
// shared across goroutines.
func (s *Store) SetMetricsRegistry(registry MetricsRegistry) {
	s.registry = registry
}

// Get looks up a cached query result and decodes it into obj. Returns
// ErrCacheMiss when the cache is disabled, the key is absent, or the entry
// has expired (expired entries are removed and counted as evictions).
func (s *Store) Get(cluster, resourceType, operation string, params Params, obj any) error {
	config := s.config.Load()
	if !config.Enabled {
		return ErrCacheMiss
	}
	key := QueryKey(resourceType, operation, params)

	s.mu.Lock()
	partition, ok := s.clusters[cluster]
	if !ok {
		s.misses++
		s.mu.Unlock()
		s.incRequest(false)
		return ErrCacheMiss
	}
	e, ok := partition[key]
	if !ok {
		s.misses++
		s.mu.Unlock()
		s.incRequest(false)
		return ErrCacheMiss
	}
	now := s.now()
	if e.expired(now) {
		delete(partition, key)
		if len(partition) == 0 {
			delete(s.clusters, cluster)
		}
		s.misses++
		s.evictions++
		s.mu.Unlock()
		s.incRequest(false)
		s.addEvictions(1)
		return ErrCacheMiss
	}
	e.accessCount++
	e.lastAccessedAt = now
	s.hits++
	data := e.data
	s.mu.Unlock()

	s.incRequest(true)
	return json.Unmarshal(data, obj)
}

// Set stores a query result using the TTL table for the resource/operation pair.
func (s *Store) Set(cluster, resourceType, operation string, params Params, obj any) error {
	ttl := s.config.Load().ExpirationFor(resourceType, operation)
	return s.SetWithTTL(cluster, resourceType, operation, params, obj, ttl)
}

// SetWithTTL stores a query result with an explicit TTL, evicting the
// least-recently-used entries first if the store is at capacity.
func (s *Store) SetWithTTL(cluster, resourceType, operation string, params Params, obj any, ttl time.Duration) error {
	config := s.config.Load()
	if !config.Enabled {
		return nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %s/%s payload: %w", resourceType, operation, err)
	}
	key := QueryKey(resourceType, operation, params)

	evicted := 0
	s.mu.Lock()
	partition, ok := s.clusters[cluster]
	if !ok {
		partition = make(map[string]*entry)
		s.clusters[cluster] = partition
	}
	if _, exists := partition[key]; !exists && s.totalEntriesLocked() >= config.MaxEntries {
		evicted = s.evictLocked()
		// the insert partition may have been pruned by eviction
		partition, ok = s.clusters[cluster]
		if !ok {
			partition = make(map[string]*entry)
			s.clusters[cluster] = partition
		}
	}
	partition[key] = &entry{
		data:     data,
		storedAt: s.now(),
		ttl:      ttl,
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.addEvictions(evicted)
	}
	return nil
}

// Invalidate removes entries for the cluster. An empty resourceType clears
// the whole cluster partition; an empty operation matches every operation for
// the resource type. Returns the number of entries removed.
func (s *Store) Invalidate(cluster, resourceType, operation string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition, ok := s.clusters[cluster]
	if !ok {
		return 0, nil
	}
	if resourceType == "" {
		removed := len(partition)
		delete(s.clusters, cluster)
		return removed, nil
	}
	prefix := keyPrefix(resourceType, operation)
	removed := 0
	for key := range partition {
		if strings.HasPrefix(key, prefix) {
			delete(partition, key)
			removed++
		}
	}
	if len(partition) == 0 {
		delete(s.clusters, cluster)
	}
	return removed, nil
}

// CleanupExpired sweeps every partition, removing entries whose TTL has
// elapsed, and prunes empty partitions. Returns the number of entries removed.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for cluster, partition := range s.clusters {
		for key, e := range partition {
			if e.expired(now) {
				delete(partition, key)
				removed++
			}
		}
		if len(partition) == 0 {
			delete(s.clusters, cluster)
		}
	}
	s.evictions += int64(removed)
	s.mu.Unlock()

	if removed > 0 {
		s.addEvictions(removed)
	}
	return removed
}

// ClearAll empties the store and resets statistics.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = make(map[string]map[string]*entry)
	s.hits = 0
	s.misses = 0
	s.evictions = 0
}

func (s *Store) Stats() Statistics {
	config := s.config.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Statistics{
		Hits:           s.hits,
		Misses:         s.misses,
		Evictions:      s.evictions,
		TotalEntries:   s.totalEntriesLocked(),
		ClustersCached: len(s.clusters),
		Config: ConfigSummary{
			Enabled:           config.Enabled,
			MaxEntries:        config.MaxEntries,
			DefaultExpiration: config.DefaultExpiration,
		},
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// EstimatedSize returns the approximate payload bytes held by the store.
func (s *Store) EstimatedSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var size int64
	for _, partition := range s.clusters {
		for _, e := range partition {
			size += int64(len(e.data))
		}
	}
	return size
}

func (s *Store) totalEntriesLocked() int {
	total := 0
	for _, partition := range s.clusters {
		total += len(partition)
	}
	return total
}

// evictLocked removes the least-recently-used ~10% of entries (at least one)
// across all partitions. Approximate global LRU: ordering is by last access
// time, not a strict access-order list.
func (s *Store) evictLocked() int {
	type victim struct {
		cluster string
		key     string
		at      time.Time
	}
	victims := make([]victim, 0, s.totalEntriesLocked())
	for cluster, partition := range s.clusters {
		for key, e := range partition {
			victims = append(victims, victim{cluster: cluster, key: key, at: e.lastUsed()})
		}
	}
	if len(victims) == 0 {
		return 0
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].at.Before(victims[j].at)
	})
	count := len(victims) / 10
	if count < 1 {
		count = 1
	}
	for _, v := range victims[:count] {
		delete(s.clusters[v.cluster], v.key)
		if len(s.clusters[v.cluster]) == 0 {
			delete(s.clusters, v.cluster)
		}
	}
	s.evictions += int64(count)
	return count
}

func (s *Store) incRequest(hit bool) {
	if s.registry != nil {
		s.registry.IncCacheRequest(hit)
	}
}

func (s *Store) addEvictions(count int) {
	if s.registry != nil {
		s.registry.AddCacheEvictions(count)
	}
}

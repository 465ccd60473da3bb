// Package cache is the server-side facade over the query cache: it owns the
// store, the resilient fetch wrapper, the cascade invalidation engine and the
// health monitor, and wires flag/env configuration into all of them.
package cache

import (
	"context"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshboard/meshboard/common"
	cacheutil "github.com/meshboard/meshboard/util/cache"
	"github.com/meshboard/meshboard/util/env"
	"github.com/meshboard/meshboard/util/fetch"
)

var (
	workloadTypes = []string{"deployment", "replicaset", "pod", "node", "namespace"}
	routingTypes  = []string{"service", "endpoints", "gateway", "virtualservice", "destinationrule"}
	eventTypes    = []string{"event"}

	operations = []string{"list", "get"}
)

// Cache composes the query cache components behind strongly scoped methods.
type Cache struct {
	store      *cacheutil.Store
	monitor    *cacheutil.Monitor
	wrapper    *fetch.Wrapper
	engine     *cacheutil.CascadeEngine
	controller *cacheutil.TTLController

	// ttlScale multiplies every proposed TTL (--cache-ttl-multiplier)
	ttlScale float64
}

func NewCache(
	store *cacheutil.Store,
	monitor *cacheutil.Monitor,
	wrapper *fetch.Wrapper,
	engine *cacheutil.CascadeEngine,
	controller *cacheutil.TTLController,
) *Cache {
	c := &Cache{
		store:      store,
		monitor:    monitor,
		wrapper:    wrapper,
		engine:     engine,
		controller: controller,
		ttlScale:   1.0,
	}
	wrapper.SetTTLFunc(c.proposeTTL)
	return c
}

// AddCacheFlagsToCmd adds flags which control caching to the specified
// command and returns a constructor to be invoked once flags are parsed.
func AddCacheFlagsToCmd(cmd *cobra.Command) func() (*Cache, error) {
	var (
		cacheEnabled            bool
		maxEntries              int
		defaultExpiration       time.Duration
		workloadCacheExpiration time.Duration
		routingCacheExpiration  time.Duration
		eventCacheExpiration    time.Duration
		cleanupInterval         time.Duration
		healthCheckInterval     time.Duration
		ttlMultiplier           float64
		fetchFailureThreshold   int
		fetchRecoveryTimeout    time.Duration
	)

	cmd.Flags().BoolVar(&cacheEnabled, "cache-enabled", env.ParseBoolFromEnv(common.EnvCacheEnabled, true), "Enable the upstream query cache")
	cmd.Flags().IntVar(&maxEntries, "cache-max-entries", env.ParseNumFromEnv(common.EnvCacheMaxEntries, common.DefaultCacheMaxEntries, 1, math.MaxInt32), "Maximum number of cached entries across all clusters")
	cmd.Flags().DurationVar(&defaultExpiration, "cache-default-expiration", env.ParseDurationFromEnv(common.EnvCacheDefaultExpiration, common.DefaultCacheExpiration, time.Second, math.MaxInt64), "Cache expiration default")
	cmd.Flags().DurationVar(&workloadCacheExpiration, "workload-cache-expiration", 90*time.Second, "Cache expiration for workload queries (deployments, pods, nodes)")
	cmd.Flags().DurationVar(&routingCacheExpiration, "routing-cache-expiration", 3*time.Minute, "Cache expiration for routing object queries (services, gateways, virtual services)")
	cmd.Flags().DurationVar(&eventCacheExpiration, "event-cache-expiration", 30*time.Second, "Cache expiration for event queries")
	cmd.Flags().DurationVar(&cleanupInterval, "cache-cleanup-interval", common.DefaultCleanupInterval, "How often expired cache entries are swept")
	cmd.Flags().DurationVar(&healthCheckInterval, "cache-health-check-interval", common.DefaultHealthCheckInterval, "How often a cache health snapshot is published")
	cmd.Flags().Float64Var(&ttlMultiplier, "cache-ttl-multiplier", env.ParseFloatFromEnv(common.EnvCacheTTLMultiplier, 1.0, 0.1, 10), "Scale factor applied to every computed cache TTL")
	cmd.Flags().IntVar(&fetchFailureThreshold, "fetch-failure-threshold", env.ParseNumFromEnv(common.EnvFetchFailureThreshold, 5, 1, 1000), "Consecutive upstream failures before an operation's circuit breaker opens")
	cmd.Flags().DurationVar(&fetchRecoveryTimeout, "fetch-recovery-timeout", env.ParseDurationFromEnv(common.EnvFetchRecoveryTimeout, time.Minute, time.Second, math.MaxInt64), "How long an open circuit breaker stays open")

	return func() (*Cache, error) {
		expirations := make(map[string]time.Duration)
		addExpirations(expirations, workloadTypes, workloadCacheExpiration)
		addExpirations(expirations, routingTypes, routingCacheExpiration)
		addExpirations(expirations, eventTypes, eventCacheExpiration)

		store, err := cacheutil.NewStore(&cacheutil.Config{
			Enabled:           cacheEnabled,
			MaxEntries:        maxEntries,
			DefaultExpiration: defaultExpiration,
			Expirations:       expirations,
		})
		if err != nil {
			return nil, err
		}
		monitor := cacheutil.NewMonitor(store, cleanupInterval, healthCheckInterval)
		wrapper := fetch.NewWrapper(store, monitor, fetchFailureThreshold, fetchRecoveryTimeout)
		engine := cacheutil.NewCascadeEngine(store, nil)
		cache := NewCache(store, monitor, wrapper, engine, cacheutil.NewTTLController())
		if ttlMultiplier > 0 {
			cache.ttlScale = ttlMultiplier
		}
		return cache, nil
	}
}

func addExpirations(expirations map[string]time.Duration, resourceTypes []string, ttl time.Duration) {
	for _, resourceType := range resourceTypes {
		for _, operation := range operations {
			expirations[resourceType+"/"+operation] = ttl
		}
	}
}

// Query serves a dashboard read through the cache-aside wrapper.
func Query[T any](ctx context.Context, c *Cache, cluster, resourceType, operation string, params cacheutil.Params, fn func(ctx context.Context) (T, error), opts fetch.Options) (T, error) {
	return fetch.GetOrFetch(ctx, c.wrapper, cluster, resourceType, operation, params, fn, opts)
}

// InvalidateResource is the external mutation trigger: it removes the changed
// resource type's cached queries and cascades through dependent types.
func (c *Cache) InvalidateResource(cluster, resourceType, operation string) cacheutil.CascadeResult {
	return c.engine.CascadeInvalidate(cluster, resourceType, operation, common.DefaultCascadeMaxDepth)
}

// InvalidateCluster drops every cached query for a cluster.
func (c *Cache) InvalidateCluster(cluster string) (int, error) {
	return c.store.Invalidate(cluster, "", "")
}

// StartMonitor launches the background cleanup and health-check loops.
func (c *Cache) StartMonitor(ctx context.Context) {
	c.monitor.Start(ctx)
}

func (c *Cache) Stats() cacheutil.Statistics {
	return c.store.Stats()
}

func (c *Cache) Health() cacheutil.HealthSnapshot {
	return c.monitor.Health()
}

func (c *Cache) Store() *cacheutil.Store {
	return c.store
}

// proposeTTL computes the TTL for the next write-back of a resource/operation
// pair: the configured base, scaled by the global multiplier and the
// resource's strategy multiplier, then adjusted by the adaptive controller's
// hit-rate/latency heuristics.
func (c *Cache) proposeTTL(resourceType, operation string) (time.Duration, bool) {
	base := time.Duration(float64(c.store.Config().ExpirationFor(resourceType, operation)) * c.ttlScale)
	if strategy, ok := c.engine.Strategy(resourceType); ok && strategy.TTLMultiplier > 0 {
		base = time.Duration(float64(base) * strategy.TTLMultiplier)
	}
	avgLatency := c.monitor.AvgLatency(resourceType + "|" + operation)
	return c.controller.Propose(base, c.store.Stats().HitRate, avgLatency), true
}

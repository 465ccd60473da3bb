package common

import "time"

const (
	// DefaultListenPort is the default port for the meshboard API server
	DefaultListenPort = 8090
	// DefaultMetricsPort is the default port for the prometheus metrics endpoint
	DefaultMetricsPort = 8091
)

// Environment variables understood by meshboard commands. Flags take
// precedence; env vars provide the defaults.
const (
	// EnvLogFormat is the env variable to set a default log format ("text" or "json")
	EnvLogFormat = "MESHBOARD_LOG_FORMAT"
	// EnvLogLevel is the env variable to set a default log level
	EnvLogLevel = "MESHBOARD_LOG_LEVEL"
	// EnvCacheMaxEntries caps the total number of cached entries across all clusters
	EnvCacheMaxEntries = "MESHBOARD_CACHE_MAX_ENTRIES"
	// EnvCacheDefaultExpiration is the fallback TTL for resource/operation pairs
	// without an explicit entry in the TTL table
	EnvCacheDefaultExpiration = "MESHBOARD_CACHE_DEFAULT_EXPIRATION"
	// EnvCacheEnabled toggles the query cache entirely
	EnvCacheEnabled = "MESHBOARD_CACHE_ENABLED"
	// EnvCacheTTLMultiplier scales every computed TTL, e.g. to lengthen
	// retention fleet-wide during an upstream brownout
	EnvCacheTTLMultiplier = "MESHBOARD_CACHE_TTL_MULTIPLIER"
	// EnvFetchFailureThreshold is the consecutive failure count that opens an
	// upstream circuit breaker
	EnvFetchFailureThreshold = "MESHBOARD_FETCH_FAILURE_THRESHOLD"
	// EnvFetchRecoveryTimeout is how long an open circuit breaker stays open
	EnvFetchRecoveryTimeout = "MESHBOARD_FETCH_RECOVERY_TIMEOUT"
)

const (
	// CacheVersion is appended to every cache key so that incompatible payload
	// shapes from older builds read as misses instead of decode errors.
	CacheVersion = "1.3.0"

	// DefaultCacheMaxEntries is the default global entry cap
	DefaultCacheMaxEntries = 5000
	// DefaultCacheExpiration is the default TTL applied when the TTL table has
	// no entry for a resource/operation pair
	DefaultCacheExpiration = 2 * time.Minute

	// DefaultCleanupInterval is how often the health monitor sweeps expired entries
	DefaultCleanupInterval = 10 * time.Minute
	// DefaultHealthCheckInterval is how often the health monitor publishes a snapshot
	DefaultHealthCheckInterval = 5 * time.Minute

	// DefaultCascadeMaxDepth bounds cascade invalidation traversals
	DefaultCascadeMaxDepth = 3
)

package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshboard/meshboard/util/cache"
)

// MetricsServer exposes cache effectiveness counters on /metrics and
// implements cache.MetricsRegistry so the store can push request outcomes.
type MetricsServer struct {
	*http.Server
	cacheRequestCounter  *prometheus.CounterVec
	cacheEvictionCounter prometheus.Counter
}

// NewMetricsServer returns a new prometheus server which collects query cache metrics
func NewMetricsServer(host string, port int, store *cache.Store) *MetricsServer {
	registry := prometheus.NewRegistry()

	cacheRequestCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshboard_cache_request_total",
			Help: "Number of query cache requests, partitioned by hit/miss.",
		},
		[]string{"hit"},
	)
	cacheEvictionCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshboard_cache_eviction_total",
			Help: "Number of cache entries removed by expiry or capacity pressure.",
		},
	)
	registry.MustRegister(cacheRequestCounter)
	registry.MustRegister(cacheEvictionCounter)
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "meshboard_cache_entries",
			Help: "Current number of cached entries across all clusters.",
		},
		func() float64 { return float64(store.Stats().TotalEntries) },
	))
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "meshboard_cache_clusters",
			Help: "Number of cluster partitions currently cached.",
		},
		func() float64 { return float64(store.Stats().ClustersCached) },
	))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.Gatherers{
		registry,
		prometheus.DefaultGatherer,
	}, promhttp.HandlerOpts{}))

	return &MetricsServer{
		Server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", host, port),
			Handler: mux,
		},
		cacheRequestCounter:  cacheRequestCounter,
		cacheEvictionCounter: cacheEvictionCounter,
	}
}

func (m *MetricsServer) IncCacheRequest(hit bool) {
	m.cacheRequestCounter.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (m *MetricsServer) AddCacheEvictions(count int) {
	m.cacheEvictionCounter.Add(float64(count))
}

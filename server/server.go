// Package server exposes the meshboard read API: cached dashboard queries,
// cache statistics and the external invalidation trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"

	servercache "github.com/meshboard/meshboard/server/cache"
	"github.com/meshboard/meshboard/server/resource"
	cacheutil "github.com/meshboard/meshboard/util/cache"
	"github.com/meshboard/meshboard/util/fetch"
	logutil "github.com/meshboard/meshboard/util/log"
)

const shutdownGracePeriod = 10 * time.Second

// MeshboardServer serves the dashboard read API over the query cache.
type MeshboardServer struct {
	port     int
	cache    *servercache.Cache
	registry *resource.Registry
}

func NewServer(port int, cache *servercache.Cache, registry *resource.Registry) *MeshboardServer {
	return &MeshboardServer{port: port, cache: cache, registry: registry}
}

// routes builds the API handler without logging/compression middleware.
func (s *MeshboardServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/clusters/{cluster}/workloads", s.listWorkloads)
	mux.HandleFunc("GET /api/v1/clusters/{cluster}/pods", s.listPods)
	mux.HandleFunc("GET /api/v1/clusters/{cluster}/events", s.listEvents)
	mux.HandleFunc("GET /api/v1/clusters/{cluster}/gateways", s.listGateways)
	mux.HandleFunc("GET /api/v1/clusters/{cluster}/virtualservices", s.listVirtualServices)
	mux.HandleFunc("POST /api/v1/clusters/{cluster}/invalidate", s.invalidate)
	mux.HandleFunc("GET /api/v1/cache/stats", s.cacheStats)
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// Access logs go to a dedicated env-configured logger at debug level so they
// can be silenced without muting the application log.
func (s *MeshboardServer) Run(ctx context.Context) error {
	handler := s.routes()
	handler = handlers.CompressHandler(handler)
	handler = handlers.CombinedLoggingHandler(logutil.NewWithCurrentConfig().WriterLevel(log.DebugLevel), handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: handler,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Failed to shut down API server cleanly: %v", err)
		}
	}()

	log.Infof("meshboard API server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *MeshboardServer) listWorkloads(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, "deployment", func(f *resource.Fetcher, namespace string) func(ctx context.Context) ([]resource.WorkloadSummary, error) {
		return f.Workloads(namespace)
	})
}

func (s *MeshboardServer) listPods(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, "pod", func(f *resource.Fetcher, namespace string) func(ctx context.Context) ([]resource.PodSummary, error) {
		return f.Pods(namespace)
	})
}

func (s *MeshboardServer) listEvents(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, "event", func(f *resource.Fetcher, namespace string) func(ctx context.Context) ([]resource.EventSummary, error) {
		return f.Events(namespace)
	})
}

func (s *MeshboardServer) listGateways(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, "gateway", func(f *resource.Fetcher, namespace string) func(ctx context.Context) ([]resource.RoutingObject, error) {
		return f.Gateways(namespace)
	})
}

func (s *MeshboardServer) listVirtualServices(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, "virtualservice", func(f *resource.Fetcher, namespace string) func(ctx context.Context) ([]resource.RoutingObject, error) {
		return f.VirtualServices(namespace)
	})
}

// serveQuery answers one cached list query: resolve the cluster's clients,
// run the fetch closure through the cache wrapper, serialize the result.
func serveQuery[T any](s *MeshboardServer, w http.ResponseWriter, r *http.Request, resourceType string, build func(f *resource.Fetcher, namespace string) func(ctx context.Context) (T, error)) {
	cluster := r.PathValue("cluster")
	namespace := r.URL.Query().Get("namespace")

	clients, err := s.registry.Get(cluster)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	params := cacheutil.Params{"namespace": namespace}
	fn := build(resource.NewFetcher(clients), namespace)
	result, err := servercache.Query(r.Context(), s.cache, cluster, resourceType, "list", params, fn, fetch.DefaultOptions())
	if err != nil {
		if errors.Is(err, fetch.ErrCircuitOpen) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type invalidateRequest struct {
	ResourceType string `json:"resourceType"`
	Operation    string `json:"operation,omitempty"`
}

type invalidateResponse struct {
	Invalidated     int      `json:"invalidated"`
	MaxDepthReached int      `json:"maxDepthReached"`
	Failed          []string `json:"failed,omitempty"`
}

// invalidate is called by mutation paths after an upstream write. An empty
// resource type clears the whole cluster partition.
func (s *MeshboardServer) invalidate(w http.ResponseWriter, r *http.Request) {
	cluster := r.PathValue("cluster")
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid invalidation request: %w", err))
		return
	}
	if req.ResourceType == "" {
		removed, err := s.cache.InvalidateCluster(cluster)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: removed})
		return
	}
	result := s.cache.InvalidateResource(cluster, req.ResourceType, req.Operation)
	writeJSON(w, http.StatusOK, invalidateResponse{
		Invalidated:     result.Invalidated,
		MaxDepthReached: result.MaxDepthReached,
		Failed:          result.Failed(),
	})
}

func (s *MeshboardServer) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *MeshboardServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Health())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

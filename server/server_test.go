package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/meshboard/meshboard/common"
	servercache "github.com/meshboard/meshboard/server/cache"
	"github.com/meshboard/meshboard/server/resource"
)

func newTestServer(t *testing.T, objects ...runtime.Object) (*httptest.Server, *servercache.Cache) {
	t.Helper()
	cacheSrc := servercache.AddCacheFlagsToCmd(&cobra.Command{})
	cache, err := cacheSrc()
	require.NoError(t, err)

	listKinds := map[schema.GroupVersionResource]string{
		{Group: "networking.istio.io", Version: "v1beta1", Resource: "gateways"}:        "GatewayList",
		{Group: "networking.istio.io", Version: "v1beta1", Resource: "virtualservices"}: "VirtualServiceList",
	}
	registry := resource.NewRegistry()
	registry.Add("prod", &resource.ClusterClients{
		Kube:    fake.NewClientset(objects...),
		Dynamic: dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds),
	})

	s := NewServer(0, cache, registry)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts, cache
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), "body: %s", body)
	}
	return resp.StatusCode
}

func TestListWorkloads(t *testing.T) {
	replicas := int32(2)
	ts, _ := newTestServer(t, &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	})

	var workloads []resource.WorkloadSummary
	status := getJSON(t, ts, "/api/v1/clusters/prod/workloads?namespace=default", &workloads)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, workloads, 1)
	assert.Equal(t, "web", workloads[0].Name)
	assert.Equal(t, int32(2), workloads[0].Replicas)
}

func TestListWorkloads_SecondRequestServedFromCache(t *testing.T) {
	ts, cache := newTestServer(t, &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
	})

	status := getJSON(t, ts, "/api/v1/clusters/prod/workloads?namespace=default", nil)
	assert.Equal(t, http.StatusOK, status)
	status = getJSON(t, ts, "/api/v1/clusters/prod/workloads?namespace=default", nil)
	assert.Equal(t, http.StatusOK, status)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestListPods_UnknownCluster(t *testing.T) {
	ts, _ := newTestServer(t)
	status := getJSON(t, ts, "/api/v1/clusters/nowhere/pods", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListGateways_EmptyMesh(t *testing.T) {
	ts, _ := newTestServer(t)
	var objects []resource.RoutingObject
	status := getJSON(t, ts, "/api/v1/clusters/prod/gateways?namespace=mesh", &objects)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, objects)
}

func TestInvalidate_CascadesFromResourceType(t *testing.T) {
	ts, cache := newTestServer(t, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default"},
	})

	// prime the pod query, then invalidate via the deployment trigger:
	// deployments cascade to pods
	status := getJSON(t, ts, "/api/v1/clusters/prod/pods?namespace=default", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, cache.Stats().TotalEntries)

	body := bytes.NewBufferString(`{"resourceType": "deployment"}`)
	resp, err := http.Post(ts.URL+"/api/v1/clusters/prod/invalidate", "application/json", body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result invalidateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Invalidated)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}

func TestInvalidate_EmptyResourceTypeClearsCluster(t *testing.T) {
	ts, cache := newTestServer(t, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default"},
	})
	status := getJSON(t, ts, "/api/v1/clusters/prod/pods?namespace=default", nil)
	require.Equal(t, http.StatusOK, status)

	body := bytes.NewBufferString(`{}`)
	resp, err := http.Post(ts.URL+"/api/v1/clusters/prod/invalidate", "application/json", body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result invalidateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Invalidated)
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}

func TestInvalidate_RejectsMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/v1/clusters/prod/invalidate", "application/json", bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCacheStats(t *testing.T) {
	ts, _ := newTestServer(t, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default"},
	})
	status := getJSON(t, ts, "/api/v1/clusters/prod/pods?namespace=default", nil)
	require.Equal(t, http.StatusOK, status)

	var stats struct {
		Misses         int64 `json:"misses"`
		TotalEntries   int   `json:"totalEntries"`
		ClustersCached int   `json:"clustersCached"`
		Config         struct {
			Enabled    bool `json:"enabled"`
			MaxEntries int  `json:"maxEntries"`
		} `json:"config"`
	}
	status = getJSON(t, ts, "/api/v1/cache/stats", &stats)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.ClustersCached)
	assert.True(t, stats.Config.Enabled)
	assert.Equal(t, common.DefaultCacheMaxEntries, stats.Config.MaxEntries)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	var snapshot map[string]any
	status := getJSON(t, ts, "/healthz", &snapshot)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, snapshot, "hitRate")
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/v1/cache/stats", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

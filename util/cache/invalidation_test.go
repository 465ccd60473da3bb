package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInvalidator struct {
	calls []string
	fail  map[string]error
}

func (s *stubInvalidator) Invalidate(_, resourceType, _ string) (int, error) {
	s.calls = append(s.calls, resourceType)
	if err := s.fail[resourceType]; err != nil {
		return 0, err
	}
	return 1, nil
}

func TestCascadeInvalidate_WalksRelatedResources(t *testing.T) {
	store, _ := newTestStore(t, testConfig())
	require.NoError(t, store.Set("c1", "gateway", "list", nil, "gateways"))
	require.NoError(t, store.Set("c1", "virtualservice", "list", nil, "virtualservices"))
	require.NoError(t, store.Set("c1", "destinationrule", "list", nil, "destinationrules"))
	require.NoError(t, store.Set("c2", "gateway", "list", nil, "gateways"))

	engine := NewCascadeEngine(store, nil)
	result := engine.CascadeInvalidate("c1", "gateway", "", 3)

	// gateway -> virtualservice -> destinationrule
	assert.Equal(t, 3, result.Invalidated)
	assert.Equal(t, 2, result.MaxDepthReached)
	assert.Empty(t, result.Failed())

	var out string
	assert.Equal(t, ErrCacheMiss, store.Get("c1", "gateway", "list", nil, &out))
	assert.Equal(t, ErrCacheMiss, store.Get("c1", "virtualservice", "list", nil, &out))
	assert.Equal(t, ErrCacheMiss, store.Get("c1", "destinationrule", "list", nil, &out))
	// other clusters are untouched
	assert.NoError(t, store.Get("c2", "gateway", "list", nil, &out))
}

func TestCascadeInvalidate_RespectsMaxDepth(t *testing.T) {
	store, _ := newTestStore(t, testConfig())
	require.NoError(t, store.Set("c1", "gateway", "list", nil, "gateways"))
	require.NoError(t, store.Set("c1", "virtualservice", "list", nil, "virtualservices"))

	engine := NewCascadeEngine(store, nil)
	result := engine.CascadeInvalidate("c1", "gateway", "", 1)

	assert.Equal(t, 1, result.Invalidated)
	assert.Equal(t, 0, result.MaxDepthReached)
	assert.NotContains(t, result.Resources, "virtualservice")

	var out string
	assert.NoError(t, store.Get("c1", "virtualservice", "list", nil, &out))
}

func TestCascadeInvalidate_TerminatesOnCycles(t *testing.T) {
	strategies := map[string]InvalidationStrategy{
		"a": {Related: []string{"b"}, Cascade: true},
		"b": {Related: []string{"a"}, Cascade: true},
	}
	stub := &stubInvalidator{}
	engine := NewCascadeEngine(stub, strategies)

	result := engine.CascadeInvalidate("c1", "a", "", 10)

	// each resource type is visited at most once despite the a->b->a cycle
	assert.Equal(t, []string{"a", "b"}, stub.calls)
	assert.Equal(t, 2, result.Invalidated)
}

func TestCascadeInvalidate_CollectsFailuresWithoutAbortingSiblings(t *testing.T) {
	strategies := map[string]InvalidationStrategy{
		"deployment": {Related: []string{"pod", "replicaset"}, Cascade: true},
	}
	stub := &stubInvalidator{fail: map[string]error{"pod": errors.New("boom")}}
	engine := NewCascadeEngine(stub, strategies)

	result := engine.CascadeInvalidate("c1", "deployment", "", 3)

	// the failing pod invalidation does not stop replicaset from being processed
	assert.ElementsMatch(t, []string{"deployment", "pod", "replicaset"}, stub.calls)
	assert.Equal(t, []string{"pod"}, result.Failed())
	assert.NoError(t, result.Resources["deployment"])
	assert.Error(t, result.Resources["pod"])
	assert.Equal(t, 2, result.Invalidated)
}

func TestCascadeInvalidate_OperationScopesTriggerOnly(t *testing.T) {
	store, _ := newTestStore(t, testConfig())
	require.NoError(t, store.Set("c1", "gateway", "list", nil, "gateways"))
	require.NoError(t, store.Set("c1", "gateway", "get", Params{"name": "gw"}, "gateway"))
	require.NoError(t, store.Set("c1", "virtualservice", "get", Params{"name": "vs"}, "virtualservice"))

	engine := NewCascadeEngine(store, nil)
	result := engine.CascadeInvalidate("c1", "gateway", "list", 3)

	var out string
	// only the trigger's list operation is scoped; related types lose all operations
	assert.NoError(t, store.Get("c1", "gateway", "get", Params{"name": "gw"}, &out))
	assert.Equal(t, ErrCacheMiss, store.Get("c1", "gateway", "list", nil, &out))
	assert.Equal(t, ErrCacheMiss, store.Get("c1", "virtualservice", "get", Params{"name": "vs"}, &out))
	assert.Equal(t, 2, result.Invalidated)
}

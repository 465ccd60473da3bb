package cache

// InvalidationStrategy describes how a change to one resource type affects
// cached queries for others. The strategy table is static configuration,
// consulted by the cascade engine and by the TTL computation of the server
// cache facade.
type InvalidationStrategy struct {
	// Related lists resource types whose cached queries become stale when
	// this type changes.
	Related []string
	// Cascade enables traversal into Related types on invalidation.
	Cascade bool
	// TTLMultiplier scales the configured TTL for this resource type.
	// Below 1 for fast-churning types, above 1 for near-static ones.
	TTLMultiplier float64
}

// DefaultInvalidationStrategies is the dependency graph between the resource
// types meshboard serves. A change to the key type invalidates the related
// types' cached queries.
var DefaultInvalidationStrategies = map[string]InvalidationStrategy{
	"deployment":      {Related: []string{"pod", "replicaset"}, Cascade: true, TTLMultiplier: 1.0},
	"replicaset":      {Related: []string{"pod"}, Cascade: true, TTLMultiplier: 1.0},
	"pod":             {Cascade: false, TTLMultiplier: 0.5},
	"service":         {Related: []string{"endpoints", "virtualservice"}, Cascade: true, TTLMultiplier: 1.0},
	"endpoints":       {Cascade: false, TTLMultiplier: 0.5},
	"gateway":         {Related: []string{"virtualservice"}, Cascade: true, TTLMultiplier: 1.5},
	"virtualservice":  {Related: []string{"destinationrule"}, Cascade: true, TTLMultiplier: 1.0},
	"destinationrule": {Cascade: false, TTLMultiplier: 1.5},
	"namespace":       {Related: []string{"deployment", "service"}, Cascade: true, TTLMultiplier: 2.0},
	"node":            {Cascade: false, TTLMultiplier: 2.0},
	"event":           {Cascade: false, TTLMultiplier: 0.5},
}

// Invalidator is the slice of the store the cascade engine needs.
type Invalidator interface {
	Invalidate(cluster, resourceType, operation string) (int, error)
}

// CascadeResult summarizes one cascade traversal.
type CascadeResult struct {
	// Invalidated is the total number of cache entries removed.
	Invalidated int
	// MaxDepthReached is the deepest level actually processed (trigger = 0).
	MaxDepthReached int
	// Resources maps each processed resource type to its outcome; a nil
	// error means the invalidation succeeded.
	Resources map[string]error
}

// Failed returns the resource types whose invalidation errored.
func (r CascadeResult) Failed() []string {
	var failed []string
	for resourceType, err := range r.Resources {
		if err != nil {
			failed = append(failed, resourceType)
		}
	}
	return failed
}

// CascadeEngine walks the strategy graph breadth-first, invalidating cached
// queries for a changed resource type and everything known to depend on it.
type CascadeEngine struct {
	store      Invalidator
	strategies map[string]InvalidationStrategy
}

// NewCascadeEngine creates an engine over the given store. A nil strategies
// map selects DefaultInvalidationStrategies.
func NewCascadeEngine(store Invalidator, strategies map[string]InvalidationStrategy) *CascadeEngine {
	if strategies == nil {
		strategies = DefaultInvalidationStrategies
	}
	return &CascadeEngine{store: store, strategies: strategies}
}

// Strategy returns the strategy for a resource type, if configured.
func (e *CascadeEngine) Strategy(resourceType string) (InvalidationStrategy, bool) {
	s, ok := e.strategies[resourceType]
	return s, ok
}

// CascadeInvalidate invalidates the trigger resource type and BFS-walks its
// related types up to maxDepth levels. The operation narrows invalidation of
// the trigger type only; related types are invalidated across all operations.
// A visited set keeps traversal terminating on cyclic strategy graphs, and a
// failure on one resource type never aborts its siblings.
func (e *CascadeEngine) CascadeInvalidate(cluster, resourceType, operation string, maxDepth int) CascadeResult {
	type frontier struct {
		resourceType string
		depth        int
	}
	result := CascadeResult{Resources: make(map[string]error)}
	visited := map[string]bool{resourceType: true}
	queue := []frontier{{resourceType: resourceType, depth: 0}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.depth >= maxDepth {
			continue
		}
		op := ""
		if node.resourceType == resourceType {
			op = operation
		}
		removed, err := e.store.Invalidate(cluster, node.resourceType, op)
		result.Resources[node.resourceType] = err
		result.Invalidated += removed
		if node.depth > result.MaxDepthReached {
			result.MaxDepthReached = node.depth
		}

		strategy, ok := e.strategies[node.resourceType]
		if !ok || !strategy.Cascade {
			continue
		}
		for _, related := range strategy.Related {
			if visited[related] {
				continue
			}
			visited[related] = true
			queue = append(queue, frontier{resourceType: related, depth: node.depth + 1})
		}
	}
	return result
}

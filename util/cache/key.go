package cache

import (
	"encoding/json"
	"fmt"

	"github.com/meshboard/meshboard/common"
	"github.com/meshboard/meshboard/util/hash"
)

// Params identifies a query variant (e.g. namespace, label selector). Values
// must be flat scalars; non-deterministic values (timestamps, random ids)
// break key stability.
type Params map[string]any

// QueryKey derives the cache key for a query. encoding/json sorts map keys,
// so any ordering of the same params produces the same canonical form and
// therefore the same key.
func QueryKey(resourceType, operation string, params Params) string {
	paramStr, _ := json.Marshal(params)
	return fmt.Sprintf("%s|%s|%d|%s", resourceType, operation, hash.FNVa(string(paramStr)), common.CacheVersion)
}

// keyPrefix returns the prefix matching every key for the given resource
// type, optionally narrowed to a single operation. An empty operation matches
// all operations for the type.
func keyPrefix(resourceType, operation string) string {
	if operation == "" {
		return resourceType + "|"
	}
	return resourceType + "|" + operation + "|"
}

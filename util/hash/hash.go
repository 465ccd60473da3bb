// Package hash provides the non-cryptographic string hash used to compact
// serialized query params into cache keys.
package hash

import (
	"hash/fnv"
)

// FNVa returns the 32-bit FNV-1a hash of s.
func FNVa(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

package util

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides per-key locking over a fixed arena of striped
// mutexes. Callers lock a (user, symbol) or user key around
// read-modify-write sequences so concurrent trackers never lose updates.
// Striping bounds memory regardless of key cardinality; two keys hashing
// to the same stripe serialize needlessly, which is acceptable.
type KeyedMutex struct {
	stripes []sync.Mutex
}

const defaultStripes = 512

// NewKeyedMutex creates an arena with the given number of stripes
// (rounded up to at least one; zero means the default).
func NewKeyedMutex(stripes int) *KeyedMutex {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe owning key and returns its unlock func.
func (m *KeyedMutex) Lock(key string) func() {
	stripe := &m.stripes[m.index(key)]
	stripe.Lock()
	return stripe.Unlock
}

func (m *KeyedMutex) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.stripes)))
}

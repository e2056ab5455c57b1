// Package resolver implements the Reference Resolver (C1): mapping
// symbolic/unresolved relationship endpoints to concrete graph entity ids,
// per spec §4.2.
package resolver

import (
	"sync"

	"github.com/syncgraph/synccore/syncmodel"
)

// Index is the process-lifetime LocalSymbolIndex (spec §3): a mapping of
// (filePath, symbolName) to entityId, populated during batch parse.
//
// Per spec §5 ("implementations may choose either [a concurrent map or a
// driver-serialized map] as long as the happens-before relation to
// subsequent reads is preserved"), this uses a plain mutex: the worker pool
// writes during parsing, and the single-threaded queue processor reads
// during resolution, which is already serialized after the pool's
// sync.WaitGroup join, so a simple mutex is sufficient and simpler than a
// lock-free map.
type Index struct {
	mu sync.RWMutex
	m  map[syncmodel.LocalSymbolKey]string
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{m: make(map[syncmodel.LocalSymbolKey]string)}
}

// Put records that name within filePath resolves to entityID.
func (idx *Index) Put(filePath, name, entityID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.m[syncmodel.LocalSymbolKey{FilePath: filePath, Name: name}] = entityID
}

// Get returns the entity id registered for (filePath, name), if any.
func (idx *Index) Get(filePath, name string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.m[syncmodel.LocalSymbolKey{FilePath: filePath, Name: name}]
	return id, ok
}

// Len reports the number of indexed symbols, for tests/metrics.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.m)
}

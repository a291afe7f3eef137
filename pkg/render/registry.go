package render

import (
	"fmt"
	"slices"
	"sync"
)

// runtimeRegistry maps runtime ids to their providers so that transports can
// route frames by id.
type runtimeRegistry struct {
	providers map[int64]*Provider
	mu        sync.RWMutex
}

var registry = &runtimeRegistry{
	providers: make(map[int64]*Provider),
}

// Register makes p reachable through Find.
func Register(p *Provider) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.providers[p.runtimeID]; ok {
		return fmt.Errorf("%w: %d", ErrRuntimeExists, p.runtimeID)
	}
	registry.providers[p.runtimeID] = p
	return nil
}

// Find returns the provider registered for runtimeID, or nil.
func Find(runtimeID int64) *Provider {
	registry.mu.RLock()
	p := registry.providers[runtimeID]
	registry.mu.RUnlock()
	return p
}

// Unregister removes p. A different provider registered under the same id
// is left alone.
func Unregister(p *Provider) {
	registry.mu.Lock()
	if registry.providers[p.runtimeID] == p {
		delete(registry.providers, p.runtimeID)
	}
	registry.mu.Unlock()
}

// Runtimes returns the registered runtime ids in ascending order.
func Runtimes() []int64 {
	registry.mu.RLock()
	ids := make([]int64, 0, len(registry.providers))
	for id := range registry.providers {
		ids = append(ids, id)
	}
	registry.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Package registry is the function id → metadata map shared by the
// reconciler (sole writer) and the ingress path (many concurrent
// readers). Grounded on the teacher's concurrent-map shape
// (internal/cache sized_cache.go's sync.RWMutex over a plain map);
// register/get/remove stay O(1) as required.
package registry

import (
	"sync"

	"github.com/FairForge/edgerunner/internal/model"
)

// Registry holds the currently known metadata for every function id
// this node has heard about from the control plane.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]model.FunctionMetadata
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]model.FunctionMetadata)}
}

// Register stores (or replaces) the metadata for a function id. A
// newer version replaces the old entry wholesale; it is never mutated
// in place.
func (r *Registry) Register(md model.FunctionMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[md.FunctionID] = md
}

// Get returns the metadata for functionID, if known.
func (r *Registry) Get(functionID string) (model.FunctionMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.byID[functionID]
	return md, ok
}

// Remove drops functionID from the registry.
func (r *Registry) Remove(functionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, functionID)
}

// List returns every known function id's metadata.
func (r *Registry) List() []model.FunctionMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FunctionMetadata, 0, len(r.byID))
	for _, md := range r.byID {
		out = append(out, md)
	}
	return out
}

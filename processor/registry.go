package processor

import (
	"fmt"
	"sync"
)

// Registry maintains the processors available to the engine.
//
// Register replaces an existing entry with the same name so processors can be
// hot-reloaded; the replaced entry keeps its enumeration position.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	order      []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register inserts or replaces p under p.Metadata().Name.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return fmt.Errorf("processor: nil processor")
	}
	name := p.Metadata().Name
	if name == "" {
		return fmt.Errorf("processor: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.processors[name] = p
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(processors ...Processor) {
	for _, p := range processors {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Get looks up a processor by name.
func (r *Registry) Get(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	return p, ok
}

// Metadata returns a copy of the named processor's metadata.
func (r *Registry) Metadata(name string) (Metadata, bool) {
	p, ok := r.Get(name)
	if !ok {
		return Metadata{}, false
	}
	return p.Metadata().Clone(), true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns registered names in first-registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered processors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

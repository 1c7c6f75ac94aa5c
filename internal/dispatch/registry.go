package dispatch

import (
	"sort"
	"sync"

	"github.com/funvibe/dispatch/internal/typesystem"
)

// Registry maps names to generic functions. A function is created on the
// first definition of its name.
type Registry[B any] struct {
	types *typesystem.Hierarchy
	opts  Options

	mu        sync.RWMutex
	functions map[string]*GenericFunction[B]
}

func NewRegistry[B any](types *typesystem.Hierarchy, opts Options) *Registry[B] {
	return &Registry[B]{
		types:     types,
		opts:      opts,
		functions: make(map[string]*GenericFunction[B]),
	}
}

func (r *Registry[B]) Get(name string) (*GenericFunction[B], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.functions[name]
	return g, ok
}

// GetOrCreate returns the function for name, creating it if needed.
// created is true only for the call that created it.
func (r *Registry[B]) GetOrCreate(name string) (g *GenericFunction[B], created bool) {
	if g, ok := r.Get(name); ok {
		return g, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.functions[name]; ok {
		return g, false
	}
	g = NewGenericFunction[B](name, r.types, r.opts)
	r.functions[name] = g
	return g, true
}

// Names lists the registered function names in sorted order.
func (r *Registry[B]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

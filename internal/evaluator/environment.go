package evaluator

import (
	"sort"
	"sync"

	"github.com/funvibe/dispatch/internal/diagnostics"
)

// NewEnvironment creates a root environment with no parent. The runtime's
// global environment is the only one created this way.
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]Object)}
}

// NewEnclosedEnvironment creates a child scope of outer.
func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// Environment is one lexical scope. Closures keep a reference to the
// environment they were created in, so a scope lives as long as any
// closure retains it.
type Environment struct {
	mu    sync.RWMutex
	store map[string]Object
	outer *Environment
}

func (e *Environment) Outer() *Environment { return e.outer }

func (e *Environment) Get(name string) (Object, bool) {
	e.mu.RLock()
	obj, ok := e.store[name]
	e.mu.RUnlock()
	if !ok && e.outer != nil {
		obj, ok = e.outer.Get(name)
	}
	return obj, ok
}

// Lookup is Get reporting a NameError for an unbound name.
func (e *Environment) Lookup(name string) (Object, error) {
	if obj, ok := e.Get(name); ok {
		return obj, nil
	}
	return nil, diagnostics.Name(name)
}

// Set binds name in this scope, shadowing any outer binding.
func (e *Environment) Set(name string, val Object) Object {
	e.mu.Lock()
	e.store[name] = val
	e.mu.Unlock()
	return val
}

// Update rebinds name in the nearest scope that already binds it.
func (e *Environment) Update(name string, val Object) bool {
	e.mu.Lock()
	_, ok := e.store[name]
	if ok {
		e.store[name] = val
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()
	if e.outer != nil {
		return e.outer.Update(name, val)
	}
	return false
}

// Assign mutates an existing binding anywhere in the chain, or binds a new
// name in this scope.
func (e *Environment) Assign(name string, val Object) Object {
	if !e.Update(name, val) {
		e.Set(name, val)
	}
	return val
}

// Names lists the names bound directly in this scope.
func (e *Environment) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.store))
	for k := range e.store {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// clear drops every binding; used when the global environment is torn down.
func (e *Environment) clear() {
	e.mu.Lock()
	e.store = make(map[string]Object)
	e.mu.Unlock()
}

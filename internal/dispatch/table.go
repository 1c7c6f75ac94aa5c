package dispatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/funvibe/dispatch/internal/typesystem"
)

// Method is one registered implementation of a generic function.
// B is the body representation chosen by the evaluator.
type Method[B any] struct {
	Handle    uuid.UUID
	Signature *Signature
	Body      B
	seq       int
	key       string
}

// Seq is the insertion position of the method in its table.
func (m *Method[B]) Seq() int { return m.seq }

type Options struct {
	// Cache enables the per-function resolution cache.
	Cache bool
	// MaxCandidates caps the near misses reported by NoMethodError;
	// zero means no cap.
	MaxCandidates int
	Logger        *slog.Logger
}

func DefaultOptions() Options {
	return Options{Cache: true, MaxCandidates: 3}
}

// GenericFunction is a named set of methods plus a resolution cache keyed
// by the exact argument-type tuple and keyword-name set of a call.
//
// AddMethod is exclusive over the table and cache. Resolve runs under a
// shared lock; cache population is an idempotent write guarded by cacheMu.
type GenericFunction[B any] struct {
	Name  string
	types *typesystem.Hierarchy
	opts  Options
	log   *slog.Logger

	mu      sync.RWMutex
	methods []*Method[B]
	byKey   map[string]int

	cacheMu sync.Mutex
	cache   map[string]*Method[B]
}

func NewGenericFunction[B any](name string, types *typesystem.Hierarchy, opts Options) *GenericFunction[B] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GenericFunction[B]{
		Name:  name,
		types: types,
		opts:  opts,
		log:   logger.With("function", name),
		byKey: make(map[string]int),
		cache: make(map[string]*Method[B]),
	}
}

// AddMethod registers body under sig. An identical signature is replaced in
// place and keeps its handle; replaced reports whether that happened.
// The resolution cache is always invalidated.
func (g *GenericFunction[B]) AddMethod(sig *Signature, body B) (m *Method[B], replaced bool, err error) {
	if err := sig.Validate(); err != nil {
		return nil, false, err
	}
	key := sig.key()

	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.byKey[key]; ok {
		old := g.methods[idx]
		m = &Method[B]{Handle: old.Handle, Signature: sig, Body: body, seq: old.seq, key: key}
		g.methods[idx] = m
		replaced = true
	} else {
		m = &Method[B]{Handle: uuid.New(), Signature: sig, Body: body, seq: len(g.methods), key: key}
		g.byKey[key] = len(g.methods)
		g.methods = append(g.methods, m)
	}

	g.cacheMu.Lock()
	dropped := len(g.cache)
	g.cache = make(map[string]*Method[B])
	g.cacheMu.Unlock()

	g.log.Debug("method added",
		"signature", sig.Render(g.Name, g.types),
		"replaced", replaced,
		"cache_dropped", dropped)
	return m, replaced, nil
}

// Methods returns the registered methods in insertion order.
func (g *GenericFunction[B]) Methods() []*Method[B] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Method[B], len(g.methods))
	copy(out, g.methods)
	return out
}

func (g *GenericFunction[B]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.methods)
}

func (g *GenericFunction[B]) CacheSize() int {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	return len(g.cache)
}

// Render formats m's signature with this function's name.
func (g *GenericFunction[B]) Render(m *Method[B]) string {
	return m.Signature.Render(g.Name, g.types)
}

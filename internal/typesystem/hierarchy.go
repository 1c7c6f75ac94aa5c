package typesystem

import (
	"sync"
	"sync/atomic"
)

type snapshot struct {
	types  []*Type
	byName map[string]TypeID
}

func (s *snapshot) get(id TypeID) *Type {
	if id < 0 || int(id) >= len(s.types) {
		return nil
	}
	return s.types[id]
}

// Hierarchy is the registry of named types and their single-parent
// ancestry. The parent relation forms a forest.
//
// Registration is serialized and publishes a fresh copy-on-write snapshot;
// queries read the current snapshot without locking.
type Hierarchy struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func NewHierarchy() *Hierarchy {
	h := &Hierarchy{}
	h.snap.Store(&snapshot{byName: make(map[string]TypeID)})
	return h
}

// Register declares a new type. parent may be NoType to start a new root.
func (h *Hierarchy) Register(name string, parent TypeID, abstract bool) (TypeID, error) {
	if name == "" {
		return NoType, NewUnknownTypeError(`""`)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.snap.Load()
	if _, exists := cur.byName[name]; exists {
		return NoType, newDuplicateTypeError(name)
	}

	depth := 0
	if parent != NoType {
		p := cur.get(parent)
		if p == nil {
			return NoType, newUnknownParentError(parent)
		}
		depth = p.depth + 1
	}

	id := TypeID(len(cur.types))
	t := &Type{ID: id, Name: name, Parent: parent, Abstract: abstract, depth: depth}

	byName := make(map[string]TypeID, len(cur.byName)+1)
	for k, v := range cur.byName {
		byName[k] = v
	}
	byName[name] = id

	n := len(cur.types)
	h.snap.Store(&snapshot{
		types:  append(cur.types[:n:n], t),
		byName: byName,
	})
	return id, nil
}

// RegisterNamed is Register with the parent given by name ("" for a root).
func (h *Hierarchy) RegisterNamed(name, parent string, abstract bool) (TypeID, error) {
	pid := NoType
	if parent != "" {
		var ok bool
		if pid, ok = h.Lookup(parent); !ok {
			return NoType, NewUnknownTypeError(parent)
		}
	}
	return h.Register(name, pid, abstract)
}

func (h *Hierarchy) Lookup(name string) (TypeID, bool) {
	id, ok := h.snap.Load().byName[name]
	return id, ok
}

func (h *Hierarchy) Type(id TypeID) (Type, bool) {
	t := h.snap.Load().get(id)
	if t == nil {
		return Type{}, false
	}
	return *t, true
}

// Name returns the name of id, or "?" if id is unknown.
func (h *Hierarchy) Name(id TypeID) string {
	if t := h.snap.Load().get(id); t != nil {
		return t.Name
	}
	return "?"
}

func (h *Hierarchy) Len() int {
	return len(h.snap.Load().types)
}

// Types returns every registered type in registration order.
func (h *Hierarchy) Types() []Type {
	s := h.snap.Load()
	out := make([]Type, len(s.types))
	for i, t := range s.types {
		out[i] = *t
	}
	return out
}

// IsSubtype reports whether b is reachable from a through parent links
// (reflexive). Walks are O(depth).
func (h *Hierarchy) IsSubtype(a, b TypeID) bool {
	s := h.snap.Load()
	ta, tb := s.get(a), s.get(b)
	if ta == nil || tb == nil {
		return false
	}
	if ta.depth < tb.depth {
		return false
	}
	for ta.depth > tb.depth {
		ta = s.types[ta.Parent]
	}
	return ta.ID == tb.ID
}

// MostSpecific compares two types under the subtype order.
func (h *Hierarchy) MostSpecific(a, b TypeID) Order {
	switch {
	case a == b:
		return Equal
	case h.IsSubtype(a, b):
		return AWins
	case h.IsSubtype(b, a):
		return BWins
	}
	return Incomparable
}

// Ancestors lists id followed by each parent up to its root.
func (h *Hierarchy) Ancestors(id TypeID) []TypeID {
	s := h.snap.Load()
	t := s.get(id)
	if t == nil {
		return nil
	}
	out := make([]TypeID, 0, t.depth+1)
	for {
		out = append(out, t.ID)
		if t.Parent == NoType {
			return out
		}
		t = s.types[t.Parent]
	}
}

package typesystem

import (
	"errors"
	"sync"
	"testing"

	"github.com/funvibe/dispatch/internal/diagnostics"
)

func numericTower(t *testing.T) (*Hierarchy, map[string]TypeID) {
	t.Helper()
	h := NewHierarchy()
	ids := make(map[string]TypeID)
	decls := []struct {
		name, parent string
		abstract     bool
	}{
		{"Any", "", true},
		{"Number", "Any", true},
		{"Real", "Number", true},
		{"Integer", "Real", true},
		{"Int", "Integer", false},
		{"AbstractFloat", "Real", true},
		{"Float", "AbstractFloat", false},
		{"AbstractString", "Any", true},
		{"String", "AbstractString", false},
		{"Widget", "", false}, // second root
	}
	for _, d := range decls {
		id, err := h.RegisterNamed(d.name, d.parent, d.abstract)
		if err != nil {
			t.Fatalf("register %s: %v", d.name, err)
		}
		ids[d.name] = id
	}
	return h, ids
}

func TestIsSubtype(t *testing.T) {
	h, ids := numericTower(t)

	tests := []struct {
		a, b string
		want bool
	}{
		{"Int", "Int", true},
		{"Int", "Integer", true},
		{"Int", "Number", true},
		{"Int", "Any", true},
		{"Float", "Real", true},
		{"Number", "Int", false},
		{"Int", "Float", false},
		{"String", "Number", false},
		{"Widget", "Any", false},
		{"Any", "Widget", false},
	}
	for _, tt := range tests {
		if got := h.IsSubtype(ids[tt.a], ids[tt.b]); got != tt.want {
			t.Errorf("IsSubtype(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSubtypeIsPartialOrder(t *testing.T) {
	h, _ := numericTower(t)
	types := h.Types()

	for _, a := range types {
		if !h.IsSubtype(a.ID, a.ID) {
			t.Errorf("%s is not a subtype of itself", a.Name)
		}
		for _, b := range types {
			if a.ID != b.ID && h.IsSubtype(a.ID, b.ID) && h.IsSubtype(b.ID, a.ID) {
				t.Errorf("antisymmetry violated for %s and %s", a.Name, b.Name)
			}
			for _, c := range types {
				if h.IsSubtype(a.ID, b.ID) && h.IsSubtype(b.ID, c.ID) && !h.IsSubtype(a.ID, c.ID) {
					t.Errorf("transitivity violated: %s <: %s <: %s", a.Name, b.Name, c.Name)
				}
			}
		}
	}
}

func TestMostSpecific(t *testing.T) {
	h, ids := numericTower(t)

	tests := []struct {
		a, b string
		want Order
	}{
		{"Int", "Number", AWins},
		{"Number", "Int", BWins},
		{"Int", "Float", Incomparable},
		{"Real", "Real", Equal},
		{"String", "Widget", Incomparable},
	}
	for _, tt := range tests {
		if got := h.MostSpecific(ids[tt.a], ids[tt.b]); got != tt.want {
			t.Errorf("MostSpecific(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRegisterErrors(t *testing.T) {
	h, ids := numericTower(t)

	if _, err := h.Register("Int", ids["Any"], false); !errors.Is(err, diagnostics.ErrDefinition) {
		t.Errorf("duplicate registration: got %v, want DefinitionError", err)
	}
	if _, err := h.Register("Ghost", TypeID(999), false); !errors.Is(err, diagnostics.ErrDefinition) {
		t.Errorf("unknown parent: got %v, want DefinitionError", err)
	}
	if _, err := h.RegisterNamed("Ghost", "Missing", false); !errors.Is(err, diagnostics.ErrDefinition) {
		t.Errorf("unknown parent name: got %v, want DefinitionError", err)
	}
	if _, ok := h.Lookup("Ghost"); ok {
		t.Errorf("failed registration must not leave a type behind")
	}
}

func TestAncestors(t *testing.T) {
	h, ids := numericTower(t)

	got := h.Ancestors(ids["Int"])
	want := []string{"Int", "Integer", "Real", "Number", "Any"}
	if len(got) != len(want) {
		t.Fatalf("Ancestors(Int) has %d entries, want %d", len(got), len(want))
	}
	for i, id := range got {
		if h.Name(id) != want[i] {
			t.Errorf("ancestor %d = %s, want %s", i, h.Name(id), want[i])
		}
	}
	if ty, _ := h.Type(ids["Int"]); ty.Depth() != 4 {
		t.Errorf("Depth(Int) = %d, want 4", ty.Depth())
	}
}

func TestConcurrentQueriesDuringRegistration(t *testing.T) {
	h, ids := numericTower(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if !h.IsSubtype(ids["Int"], ids["Number"]) {
				t.Errorf("Int must stay a subtype of Number")
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		parent := ids["Any"]
		for i := 0; i < 50; i++ {
			id, err := h.Register("T"+string(rune('a'+i%26))+string(rune('a'+i/26)), parent, true)
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			parent = id
		}
	}()
	wg.Wait()

	if h.Len() != len(ids)+50 {
		t.Errorf("Len = %d, want %d", h.Len(), len(ids)+50)
	}
}

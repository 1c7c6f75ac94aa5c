package typesystem

import "fmt"

// TypeID is a stable index into a Hierarchy's type arena.
type TypeID int32

// NoType marks the absence of a type (a root has no parent).
const NoType TypeID = -1

// Type is a node of the hierarchy. Nodes are immutable once registered:
// a type is never reparented.
type Type struct {
	ID       TypeID
	Name     string
	Parent   TypeID
	Abstract bool
	depth    int
}

// Depth is the number of parent links between t and its root.
func (t Type) Depth() int { return t.depth }

func (t Type) String() string {
	if t.Abstract {
		return fmt.Sprintf("abstract %s", t.Name)
	}
	return t.Name
}

// Order is the outcome of comparing two types for specificity.
type Order int

const (
	Incomparable Order = iota
	Equal
	AWins
	BWins
)

func (o Order) String() string {
	switch o {
	case Equal:
		return "equal"
	case AWins:
		return "a-wins"
	case BWins:
		return "b-wins"
	}
	return "incomparable"
}

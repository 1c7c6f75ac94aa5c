// Package dispatch holds method tables for generic functions and resolves a
// call to a single method from the runtime types of all its arguments.
package dispatch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/typesystem"
)

type ConstraintKind int

const (
	Unconstrained ConstraintKind = iota
	Bounded
	TypeParam
)

// Constraint restricts the runtime type of one argument position.
type Constraint struct {
	Kind ConstraintKind
	// Type is the bound for Bounded, and the optional bound (or NoType) for
	// TypeParam.
	Type typesystem.TypeID
	// Var names the type parameter; arguments in positions sharing a Var
	// must have identical runtime types.
	Var string
}

func AnyConstraint() Constraint {
	return Constraint{Kind: Unconstrained, Type: typesystem.NoType}
}

func Of(t typesystem.TypeID) Constraint {
	return Constraint{Kind: Bounded, Type: t}
}

func Var(name string, bound typesystem.TypeID) Constraint {
	return Constraint{Kind: TypeParam, Type: bound, Var: name}
}

// bound is the upper bound used for specificity; NoType stands for any.
func (c Constraint) bound() typesystem.TypeID {
	if c.Kind == Unconstrained {
		return typesystem.NoType
	}
	return c.Type
}

func (c Constraint) render(h *typesystem.Hierarchy) string {
	switch c.Kind {
	case Bounded:
		return h.Name(c.Type)
	case TypeParam:
		if c.Type != typesystem.NoType {
			return c.Var + "<:" + h.Name(c.Type)
		}
		return c.Var
	}
	return ""
}

func (c Constraint) key() string {
	switch c.Kind {
	case Bounded:
		return "b" + strconv.Itoa(int(c.Type))
	case TypeParam:
		return "v" + c.Var + ":" + strconv.Itoa(int(c.Type))
	}
	return "_"
}

// Param is a positional (or variadic) formal.
type Param struct {
	Name       string
	Constraint Constraint
	// Default makes the parameter optional. It is evaluated at call time in
	// the method's defining environment extended with the parameters bound
	// before it.
	Default ast.Expression
}

// Keyword is a name-addressed formal. Default is mandatory.
type Keyword struct {
	Name    string
	Default ast.Expression
}

type Signature struct {
	Params   []Param
	Variadic *Param
	Keywords []Keyword
}

// Required is the number of leading positionals without a default.
func (s *Signature) Required() int {
	n := 0
	for _, p := range s.Params {
		if p.Default != nil {
			break
		}
		n++
	}
	return n
}

func (s *Signature) HasKeyword(name string) bool {
	for _, k := range s.Keywords {
		if k.Name == name {
			return true
		}
	}
	return false
}

// Validate checks the definition-time invariants of a signature.
func (s *Signature) Validate() error {
	seen := make(map[string]bool)
	checkName := func(name string) error {
		if name == "" {
			return nil
		}
		if seen[name] {
			return diagnostics.Definition("parameter %s declared more than once", name)
		}
		seen[name] = true
		return nil
	}

	bounds := make(map[string]typesystem.TypeID)
	checkVar := func(p Param) error {
		c := p.Constraint
		if c.Kind != TypeParam {
			return nil
		}
		if c.Var == "" {
			return diagnostics.Definition("parameter %s has a type parameter without a name", p.Name)
		}
		if prev, ok := bounds[c.Var]; ok && prev != c.Type {
			return diagnostics.Definition("type parameter %s is used with conflicting bounds", c.Var)
		}
		bounds[c.Var] = c.Type
		return nil
	}

	optional := false
	for _, p := range s.Params {
		if err := checkName(p.Name); err != nil {
			return err
		}
		if err := checkVar(p); err != nil {
			return err
		}
		if p.Default != nil {
			optional = true
		} else if optional {
			return diagnostics.Definition("required parameter %s follows an optional one", p.Name)
		}
	}
	if s.Variadic != nil {
		if err := checkName(s.Variadic.Name); err != nil {
			return err
		}
		if err := checkVar(*s.Variadic); err != nil {
			return err
		}
	}
	for _, k := range s.Keywords {
		if k.Name == "" {
			return diagnostics.Definition("keyword parameter without a name")
		}
		if err := checkName(k.Name); err != nil {
			return err
		}
		if k.Default == nil {
			return diagnostics.Definition("keyword argument %s has no default value", k.Name)
		}
	}
	return nil
}

// key identifies a signature for redefinition: two signatures with the same
// key replace each other.
func (s *Signature) key() string {
	var sb strings.Builder
	for _, p := range s.Params {
		sb.WriteString(p.Constraint.key())
		if p.Default != nil {
			sb.WriteByte('?')
		}
		sb.WriteByte(',')
	}
	if s.Variadic != nil {
		sb.WriteString("..." + s.Variadic.Constraint.key())
	}
	sb.WriteByte(';')
	sb.WriteString(strings.Join(s.keywordNames(), ","))
	return sb.String()
}

func (s *Signature) keywordNames() []string {
	names := make([]string, len(s.Keywords))
	for i, k := range s.Keywords {
		names[i] = k.Name
	}
	sort.Strings(names)
	return names
}

// Render formats the signature as name(x::Int, ys::Real...; scale=1).
func (s *Signature) Render(name string, h *typesystem.Hierarchy) string {
	renderParam := func(p Param) string {
		out := p.Name
		if c := p.Constraint.render(h); c != "" {
			out += "::" + c
		}
		return out
	}

	parts := make([]string, 0, len(s.Params)+1)
	for _, p := range s.Params {
		part := renderParam(p)
		if p.Default != nil {
			part += "=" + p.Default.String()
		}
		parts = append(parts, part)
	}
	if s.Variadic != nil {
		parts = append(parts, renderParam(*s.Variadic)+"...")
	}
	out := name + "(" + strings.Join(parts, ", ")
	if len(s.Keywords) > 0 {
		kws := make([]string, len(s.Keywords))
		for i, k := range s.Keywords {
			kws[i] = k.Name
			if k.Default != nil {
				kws[i] += "=" + k.Default.String()
			}
		}
		out += "; " + strings.Join(kws, ", ")
	}
	return out + ")"
}

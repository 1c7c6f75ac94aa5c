// Package ast holds the expression trees used as method bodies and default
// values. Trees are built directly by an embedding evaluator or by the world
// loader; nothing here parses text.
package ast

import (
	"strings"
)

// Node is the base interface for all AST nodes.
type Node interface {
	String() string
}

// Expression is a Node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// TypeAnnotation constrains a parameter.
//
//	x           -> {}
//	x::Int      -> {Name: "Int"}
//	x::T        -> {Var: "T"}
//	x::T<:Real  -> {Var: "T", Name: "Real"}
type TypeAnnotation struct {
	Name string // bound type name, empty for none
	Var  string // type-parameter symbol, empty for none
}

func (ta TypeAnnotation) IsEmpty() bool { return ta.Name == "" && ta.Var == "" }

func (ta TypeAnnotation) String() string {
	switch {
	case ta.Var != "" && ta.Name != "":
		return ta.Var + "<:" + ta.Name
	case ta.Var != "":
		return ta.Var
	}
	return ta.Name
}

// Parameter is one formal of a method or function literal.
// A non-nil Default makes a positional parameter optional; keyword
// parameters must always carry one.
type Parameter struct {
	Name    string
	Type    TypeAnnotation
	Default Expression
}

func (p *Parameter) String() string {
	var sb strings.Builder
	sb.WriteString(p.Name)
	if !p.Type.IsEmpty() {
		sb.WriteString("::")
		sb.WriteString(p.Type.String())
	}
	if p.Default != nil {
		sb.WriteString("=")
		sb.WriteString(p.Default.String())
	}
	return sb.String()
}

// ParameterList is the formal parameter list shared by method definitions
// and function literals.
type ParameterList struct {
	Positional []*Parameter
	Variadic   *Parameter // collects excess positionals; Default is ignored
	Keywords   []*Parameter
}

func (pl *ParameterList) String() string {
	if pl == nil {
		return "()"
	}
	parts := make([]string, 0, len(pl.Positional)+1)
	for _, p := range pl.Positional {
		parts = append(parts, p.String())
	}
	if pl.Variadic != nil {
		v := *pl.Variadic
		v.Default = nil
		parts = append(parts, v.String()+"...")
	}
	out := "(" + strings.Join(parts, ", ")
	if len(pl.Keywords) > 0 {
		kws := make([]string, len(pl.Keywords))
		for i, k := range pl.Keywords {
			kws[i] = k.String()
		}
		out += "; " + strings.Join(kws, ", ")
	}
	return out + ")"
}

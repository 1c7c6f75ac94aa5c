package evaluator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/dispatch"
	"github.com/funvibe/dispatch/internal/typesystem"
)

type ObjectType string

const (
	INTEGER_OBJ  = "INTEGER"
	FLOAT_OBJ    = "FLOAT"
	STRING_OBJ   = "STRING"
	CHAR_OBJ     = "CHAR"
	BOOLEAN_OBJ  = "BOOLEAN"
	NOTHING_OBJ  = "NOTHING"
	TUPLE_OBJ    = "TUPLE"
	INSTANCE_OBJ = "INSTANCE"
	CLOSURE_OBJ  = "CLOSURE"
	GENERIC_OBJ  = "GENERIC"
)

// Object is a runtime value.
type Object interface {
	Type() ObjectType
	Inspect() string
}

type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }

type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string {
	return (&ast.FloatLiteral{Value: f.Value}).String()
}

type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return strconv.Quote(s.Value) }

type Char struct {
	Value rune
}

func (c *Char) Type() ObjectType { return CHAR_OBJ }
func (c *Char) Inspect() string  { return strconv.QuoteRune(c.Value) }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }

var (
	TRUE    = &Boolean{Value: true}
	FALSE   = &Boolean{Value: false}
	NOTHING = &Nothing{}
)

func nativeBool(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}

type Nothing struct{}

func (n *Nothing) Type() ObjectType { return NOTHING_OBJ }
func (n *Nothing) Inspect() string  { return "nothing" }

// Tuple is an immutable ordered sequence. Variadic parameters always
// receive a Tuple, including when it is empty.
type Tuple struct {
	elements []Object
}

func NewTuple(elements []Object) *Tuple {
	cp := make([]Object, len(elements))
	copy(cp, elements)
	return &Tuple{elements: cp}
}

func (t *Tuple) Type() ObjectType { return TUPLE_OBJ }
func (t *Tuple) Inspect() string {
	parts := make([]string, len(t.elements))
	for i, e := range t.elements {
		parts[i] = e.Inspect()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (t *Tuple) Len() int { return len(t.elements) }

func (t *Tuple) At(i int) Object { return t.elements[i] }

// Elements returns a copy of the tuple's elements.
func (t *Tuple) Elements() []Object {
	cp := make([]Object, len(t.elements))
	copy(cp, t.elements)
	return cp
}

// Instance is a value of a user-declared concrete type.
type Instance struct {
	TypeID   typesystem.TypeID
	TypeName string
	Fields   map[string]Object
}

func (in *Instance) Type() ObjectType { return INSTANCE_OBJ }
func (in *Instance) Inspect() string {
	names := make([]string, 0, len(in.Fields))
	for k := range in.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%s", k, in.Fields[k].Inspect())
	}
	return in.TypeName + "(" + strings.Join(parts, ", ") + ")"
}

// Closure is a function value capturing its defining environment.
// It is invoked directly, without dispatch.
type Closure struct {
	Name      string
	Signature *dispatch.Signature
	Params    *ast.ParameterList
	Body      ast.Expression
	Env       *Environment
}

func (c *Closure) Type() ObjectType { return CLOSURE_OBJ }
func (c *Closure) Inspect() string {
	name := c.Name
	if name == "" {
		name = "#anonymous"
	}
	return "function " + name + c.Params.String()
}

// GenericFunction is the value bound to a generic function's name in the
// global environment.
type GenericFunction struct {
	Fn *dispatch.GenericFunction[*MethodBody]
}

func (g *GenericFunction) Type() ObjectType { return GENERIC_OBJ }
func (g *GenericFunction) Inspect() string {
	n := g.Fn.Len()
	suffix := "s"
	if n == 1 {
		suffix = ""
	}
	return fmt.Sprintf("%s (generic function with %d method%s)", g.Fn.Name, n, suffix)
}

// NativeFunc implements a method body in Go. Arguments arrive already
// bound against the method's signature.
type NativeFunc func(e *Evaluator, args *Bound) (Object, error)

// MethodBody is what the method table stores for each signature: either an
// expression evaluated in a child of Env, or a native function.
type MethodBody struct {
	Expr   ast.Expression
	Native NativeFunc
	Env    *Environment
}

package prelude

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/dispatch/internal/ast"
)

// Expr is the YAML form of an expression. Exactly one form must be set.
//
// Scalars are shorthand: a plain scalar is an identifier, a quoted one a
// string literal, and integers, floats and booleans are literals. YAML null
// never reaches the decoder, so nothing is spelled {nothing: true}.
//
//	x                                  identifier
//	"hello"                            string literal
//	{call: f, args: [x, 1], kwargs: [{name: k, value: 2}]}
//	{splat: xs}                        only inside args
//	{if: c, then: a, else: b}
//	{while: c, do: body}
//	{and: [a, b]}  {or: [a, b]}
//	{assign: x, value: e}  {local: x, value: e}
//	{block: [e1, e2]}  {tuple: [a, b]}
//	{function: {name: sq, params: [x], body: ...}}
//	{new: Dog, fields: [{name: n, value: e}]}
//	{field: n, of: e}
type Expr struct {
	Int     *int64   `yaml:"int,omitempty"`
	Float   *float64 `yaml:"float,omitempty"`
	Str     *string  `yaml:"str,omitempty"`
	Char    *string  `yaml:"char,omitempty"`
	Bool    *bool    `yaml:"bool,omitempty"`
	Nothing bool     `yaml:"nothing,omitempty"`
	Ident   string   `yaml:"ident,omitempty"`

	// Call names the callee; Fn gives it as an expression instead.
	Call   string      `yaml:"call,omitempty"`
	Fn     *Expr       `yaml:"fn,omitempty"`
	Args   []Expr      `yaml:"args,omitempty"`
	Kwargs []NamedExpr `yaml:"kwargs,omitempty"`
	Splat  *Expr       `yaml:"splat,omitempty"`

	If   *Expr `yaml:"if,omitempty"`
	Then *Expr `yaml:"then,omitempty"`
	Else *Expr `yaml:"else,omitempty"`

	While *Expr `yaml:"while,omitempty"`
	Do    *Expr `yaml:"do,omitempty"`

	And []Expr `yaml:"and,omitempty"`
	Or  []Expr `yaml:"or,omitempty"`

	Assign string `yaml:"assign,omitempty"`
	Local  string `yaml:"local,omitempty"`
	Value  *Expr  `yaml:"value,omitempty"`

	Block []Expr `yaml:"block,omitempty"`
	Tuple []Expr `yaml:"tuple,omitempty"`

	Function *FunctionExpr `yaml:"function,omitempty"`

	New    string      `yaml:"new,omitempty"`
	Fields []NamedExpr `yaml:"fields,omitempty"`

	Field string `yaml:"field,omitempty"`
	Of    *Expr  `yaml:"of,omitempty"`

	line int
}

// NamedExpr is a name=value pair, used for keyword arguments and fields.
type NamedExpr struct {
	Name  string `yaml:"name"`
	Value Expr   `yaml:"value"`
}

// FunctionExpr is an anonymous or named function literal.
type FunctionExpr struct {
	Name   string `yaml:"name,omitempty"`
	Method `yaml:",inline"`
}

func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	e.line = node.Line
	if node.Kind != yaml.ScalarNode {
		type plain Expr
		if err := node.Decode((*plain)(e)); err != nil {
			return err
		}
		e.line = node.Line
		return nil
	}
	switch node.ShortTag() {
	case "!!int":
		var v int64
		if err := node.Decode(&v); err != nil {
			return err
		}
		e.Int = &v
	case "!!float":
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		e.Float = &v
	case "!!bool":
		var v bool
		if err := node.Decode(&v); err != nil {
			return err
		}
		e.Bool = &v
	default:
		if node.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
			v := node.Value
			e.Str = &v
		} else {
			e.Ident = node.Value
		}
	}
	return nil
}

// forms lists the keys that select an expression form.
func (e *Expr) forms() []string {
	var set []string
	mark := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	mark(e.Int != nil, "int")
	mark(e.Float != nil, "float")
	mark(e.Str != nil, "str")
	mark(e.Char != nil, "char")
	mark(e.Bool != nil, "bool")
	mark(e.Nothing, "nothing")
	mark(e.Ident != "", "ident")
	mark(e.Call != "" || e.Fn != nil, "call")
	mark(e.Splat != nil, "splat")
	mark(e.If != nil, "if")
	mark(e.While != nil, "while")
	mark(e.And != nil, "and")
	mark(e.Or != nil, "or")
	mark(e.Assign != "", "assign")
	mark(e.Local != "", "local")
	mark(e.Block != nil, "block")
	mark(e.Tuple != nil, "tuple")
	mark(e.Function != nil, "function")
	mark(e.New != "", "new")
	mark(e.Field != "", "field")
	return set
}

// IsZero reports whether no form is set.
func (e *Expr) IsZero() bool { return len(e.forms()) == 0 }

func (e *Expr) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if e.line > 0 {
		return fmt.Errorf("line %d: %s", e.line, msg)
	}
	return fmt.Errorf("%s", msg)
}

// AST converts e to an expression tree.
func (e *Expr) AST() (ast.Expression, error) {
	forms := e.forms()
	switch len(forms) {
	case 0:
		return nil, e.errorf("empty expression")
	case 1:
	default:
		return nil, e.errorf("expression mixes %s", strings.Join(forms, ", "))
	}

	switch forms[0] {
	case "int":
		return ast.Int(*e.Int), nil
	case "float":
		return ast.Float(*e.Float), nil
	case "str":
		return ast.Str(*e.Str), nil
	case "char":
		r, size := utf8.DecodeRuneInString(*e.Char)
		if r == utf8.RuneError || size != len(*e.Char) {
			return nil, e.errorf("char must be exactly one character, got %q", *e.Char)
		}
		return &ast.CharLiteral{Value: r}, nil
	case "bool":
		return ast.Bool(*e.Bool), nil
	case "nothing":
		return &ast.NothingLiteral{}, nil
	case "ident":
		return ast.Ident(e.Ident), nil
	case "call":
		return e.callAST()
	case "splat":
		return nil, e.errorf("splat is only allowed in call arguments")
	case "if":
		return e.ifAST()
	case "while":
		if e.Do == nil {
			return nil, e.errorf("while needs do")
		}
		cond, err := e.While.AST()
		if err != nil {
			return nil, err
		}
		body, err := e.Do.AST()
		if err != nil {
			return nil, err
		}
		return &ast.WhileExpression{Condition: cond, Body: body}, nil
	case "and", "or":
		return e.logicalAST(forms[0])
	case "assign", "local":
		return e.bindingAST(forms[0])
	case "block":
		exprs, err := list(e.Block)
		if err != nil {
			return nil, err
		}
		return ast.Block(exprs...), nil
	case "tuple":
		exprs, err := list(e.Tuple)
		if err != nil {
			return nil, err
		}
		return &ast.TupleLiteral{Elements: exprs}, nil
	case "function":
		params, body, err := e.Function.compile()
		if err != nil {
			return nil, err
		}
		return &ast.FunctionLiteral{Name: e.Function.Name, Parameters: params, Body: body}, nil
	case "new":
		ne := &ast.NewExpression{TypeName: e.New}
		for _, f := range e.Fields {
			v, err := f.Value.AST()
			if err != nil {
				return nil, err
			}
			ne.Fields = append(ne.Fields, &ast.FieldInit{Name: f.Name, Value: v})
		}
		return ne, nil
	case "field":
		if e.Of == nil {
			return nil, e.errorf("field %s needs of", e.Field)
		}
		obj, err := e.Of.AST()
		if err != nil {
			return nil, err
		}
		return &ast.FieldAccess{Object: obj, Field: e.Field}, nil
	}
	return nil, e.errorf("unknown expression form %s", forms[0])
}

func (e *Expr) callAST() (ast.Expression, error) {
	ce := &ast.CallExpression{}
	switch {
	case e.Call != "" && e.Fn != nil:
		return nil, e.errorf("call and fn are mutually exclusive")
	case e.Fn != nil:
		fn, err := e.Fn.AST()
		if err != nil {
			return nil, err
		}
		ce.Function = fn
	default:
		ce.Function = ast.Ident(e.Call)
	}
	for i := range e.Args {
		arg := &e.Args[i]
		if arg.Splat != nil && len(arg.forms()) == 1 {
			inner, err := arg.Splat.AST()
			if err != nil {
				return nil, err
			}
			ce.Arguments = append(ce.Arguments, ast.Splat(inner))
			continue
		}
		v, err := arg.AST()
		if err != nil {
			return nil, err
		}
		ce.Arguments = append(ce.Arguments, v)
	}
	for _, kw := range e.Kwargs {
		if kw.Name == "" {
			return nil, e.errorf("keyword argument without a name")
		}
		v, err := kw.Value.AST()
		if err != nil {
			return nil, err
		}
		ce.Kw(kw.Name, v)
	}
	return ce, nil
}

func (e *Expr) ifAST() (ast.Expression, error) {
	if e.Then == nil {
		return nil, e.errorf("if needs then")
	}
	cond, err := e.If.AST()
	if err != nil {
		return nil, err
	}
	then, err := e.Then.AST()
	if err != nil {
		return nil, err
	}
	var otherwise ast.Expression
	if e.Else != nil {
		if otherwise, err = e.Else.AST(); err != nil {
			return nil, err
		}
	}
	return ast.If(cond, then, otherwise), nil
}

func (e *Expr) logicalAST(op string) (ast.Expression, error) {
	operands := e.And
	if op == "or" {
		operands = e.Or
	}
	if len(operands) != 2 {
		return nil, e.errorf("%s needs exactly two operands, got %d", op, len(operands))
	}
	l, err := operands[0].AST()
	if err != nil {
		return nil, err
	}
	r, err := operands[1].AST()
	if err != nil {
		return nil, err
	}
	if op == "or" {
		return &ast.OrExpression{Left: l, Right: r}, nil
	}
	return &ast.AndExpression{Left: l, Right: r}, nil
}

func (e *Expr) bindingAST(op string) (ast.Expression, error) {
	if e.Value == nil {
		return nil, e.errorf("%s needs value", op)
	}
	v, err := e.Value.AST()
	if err != nil {
		return nil, err
	}
	if op == "local" {
		return ast.Local(e.Local, v), nil
	}
	return ast.Assign(e.Assign, v), nil
}

func list(exprs []Expr) ([]ast.Expression, error) {
	out := make([]ast.Expression, len(exprs))
	for i := range exprs {
		v, err := exprs[i].AST()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

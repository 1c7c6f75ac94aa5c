package ast

import (
	"fmt"
	"strconv"
	"strings"
)

type IntegerLiteral struct {
	Value int64
}

func (il *IntegerLiteral) expressionNode() {}
func (il *IntegerLiteral) String() string  { return strconv.FormatInt(il.Value, 10) }

type FloatLiteral struct {
	Value float64
}

func (fl *FloatLiteral) expressionNode() {}
func (fl *FloatLiteral) String() string {
	s := strconv.FormatFloat(fl.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

type StringLiteral struct {
	Value string
}

func (sl *StringLiteral) expressionNode() {}
func (sl *StringLiteral) String() string  { return strconv.Quote(sl.Value) }

type CharLiteral struct {
	Value rune
}

func (cl *CharLiteral) expressionNode() {}
func (cl *CharLiteral) String() string  { return strconv.QuoteRune(cl.Value) }

type BooleanLiteral struct {
	Value bool
}

func (bl *BooleanLiteral) expressionNode() {}
func (bl *BooleanLiteral) String() string  { return strconv.FormatBool(bl.Value) }

type NothingLiteral struct{}

func (nl *NothingLiteral) expressionNode() {}
func (nl *NothingLiteral) String() string  { return "nothing" }

type Identifier struct {
	Value string
}

func (i *Identifier) expressionNode() {}
func (i *Identifier) String() string  { return i.Value }

// KeywordArgument is a name=value pair at a call site.
type KeywordArgument struct {
	Name  string
	Value Expression
}

func (ka *KeywordArgument) String() string { return ka.Name + "=" + ka.Value.String() }

// SplatExpression spreads a tuple into positional arguments: f(xs...).
// It is only meaningful directly inside CallExpression.Arguments.
type SplatExpression struct {
	Value Expression
}

func (se *SplatExpression) expressionNode() {}
func (se *SplatExpression) String() string  { return se.Value.String() + "..." }

// CallExpression calls a generic function or a function value.
type CallExpression struct {
	Function  Expression
	Arguments []Expression
	Keywords  []*KeywordArgument
}

func (ce *CallExpression) expressionNode() {}
func (ce *CallExpression) String() string {
	args := make([]string, len(ce.Arguments))
	for i, a := range ce.Arguments {
		args[i] = a.String()
	}
	out := ce.Function.String() + "(" + strings.Join(args, ", ")
	if len(ce.Keywords) > 0 {
		kws := make([]string, len(ce.Keywords))
		for i, k := range ce.Keywords {
			kws[i] = k.String()
		}
		out += "; " + strings.Join(kws, ", ")
	}
	return out + ")"
}

// IfExpression evaluates Consequence or Alternative; the condition must be
// a Bool. A missing Alternative yields nothing.
type IfExpression struct {
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (ie *IfExpression) expressionNode() {}
func (ie *IfExpression) String() string {
	out := "if " + ie.Condition.String() + " " + ie.Consequence.String()
	if ie.Alternative != nil {
		out += " else " + ie.Alternative.String()
	}
	return out + " end"
}

type WhileExpression struct {
	Condition Expression
	Body      Expression
}

func (we *WhileExpression) expressionNode() {}
func (we *WhileExpression) String() string {
	return "while " + we.Condition.String() + " " + we.Body.String() + " end"
}

// AndExpression is short-circuit &&.
type AndExpression struct {
	Left, Right Expression
}

func (ae *AndExpression) expressionNode() {}
func (ae *AndExpression) String() string  { return "(" + ae.Left.String() + " && " + ae.Right.String() + ")" }

// OrExpression is short-circuit ||.
type OrExpression struct {
	Left, Right Expression
}

func (oe *OrExpression) expressionNode() {}
func (oe *OrExpression) String() string  { return "(" + oe.Left.String() + " || " + oe.Right.String() + ")" }

// AssignExpression rebinds Name where it is already bound in the chain,
// or binds it in the innermost scope otherwise.
type AssignExpression struct {
	Name  string
	Value Expression
}

func (ae *AssignExpression) expressionNode() {}
func (ae *AssignExpression) String() string  { return ae.Name + " = " + ae.Value.String() }

// LocalExpression always binds Name in the innermost scope.
type LocalExpression struct {
	Name  string
	Value Expression
}

func (le *LocalExpression) expressionNode() {}
func (le *LocalExpression) String() string  { return "local " + le.Name + " = " + le.Value.String() }

// BlockExpression evaluates its expressions in a fresh child scope and
// yields the last value.
type BlockExpression struct {
	Expressions []Expression
}

func (be *BlockExpression) expressionNode() {}
func (be *BlockExpression) String() string {
	parts := make([]string, len(be.Expressions))
	for i, e := range be.Expressions {
		parts[i] = e.String()
	}
	return "begin " + strings.Join(parts, "; ") + " end"
}

// FunctionLiteral creates a closure over the environment it is evaluated in.
type FunctionLiteral struct {
	Name       string // empty for anonymous functions
	Parameters *ParameterList
	Body       Expression
}

func (fl *FunctionLiteral) expressionNode() {}
func (fl *FunctionLiteral) String() string {
	name := fl.Name
	if name == "" {
		name = "function "
	} else {
		name = "function " + name
	}
	return name + fl.Parameters.String() + " " + fl.Body.String() + " end"
}

type TupleLiteral struct {
	Elements []Expression
}

func (tl *TupleLiteral) expressionNode() {}
func (tl *TupleLiteral) String() string {
	parts := make([]string, len(tl.Elements))
	for i, e := range tl.Elements {
		parts[i] = e.String()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

type FieldInit struct {
	Name  string
	Value Expression
}

// NewExpression constructs an instance of a concrete declared type.
type NewExpression struct {
	TypeName string
	Fields   []*FieldInit
}

func (ne *NewExpression) expressionNode() {}
func (ne *NewExpression) String() string {
	parts := make([]string, len(ne.Fields))
	for i, f := range ne.Fields {
		parts[i] = fmt.Sprintf("%s=%s", f.Name, f.Value.String())
	}
	return ne.TypeName + "(" + strings.Join(parts, ", ") + ")"
}

type FieldAccess struct {
	Object Expression
	Field  string
}

func (fa *FieldAccess) expressionNode() {}
func (fa *FieldAccess) String() string  { return fa.Object.String() + "." + fa.Field }

package ast

// Shorthand constructors for hand-built trees.

func Int(v int64) *IntegerLiteral { return &IntegerLiteral{Value: v} }

func Float(v float64) *FloatLiteral { return &FloatLiteral{Value: v} }

func Str(v string) *StringLiteral { return &StringLiteral{Value: v} }

func Bool(v bool) *BooleanLiteral { return &BooleanLiteral{Value: v} }

func Ident(name string) *Identifier { return &Identifier{Value: name} }

func Splat(e Expression) *SplatExpression { return &SplatExpression{Value: e} }

// Call builds a positional call of a named function.
func Call(name string, args ...Expression) *CallExpression {
	return &CallExpression{Function: Ident(name), Arguments: args}
}

// Kw attaches keyword arguments to a call.
func (ce *CallExpression) Kw(name string, value Expression) *CallExpression {
	ce.Keywords = append(ce.Keywords, &KeywordArgument{Name: name, Value: value})
	return ce
}

func Block(exprs ...Expression) *BlockExpression { return &BlockExpression{Expressions: exprs} }

func If(cond, then, otherwise Expression) *IfExpression {
	return &IfExpression{Condition: cond, Consequence: then, Alternative: otherwise}
}

func Assign(name string, value Expression) *AssignExpression {
	return &AssignExpression{Name: name, Value: value}
}

func Local(name string, value Expression) *LocalExpression {
	return &LocalExpression{Name: name, Value: value}
}

// Param builds a positional parameter; typ may be "" for an untyped one.
func Param(name, typ string) *Parameter {
	return &Parameter{Name: name, Type: TypeAnnotation{Name: typ}}
}

// TypeVar builds a parameter constrained by a type-parameter symbol.
func TypeVar(name, symbol, bound string) *Parameter {
	return &Parameter{Name: name, Type: TypeAnnotation{Var: symbol, Name: bound}}
}

// Opt builds a parameter with a default expression.
func Opt(name, typ string, def Expression) *Parameter {
	return &Parameter{Name: name, Type: TypeAnnotation{Name: typ}, Default: def}
}

// Params builds a positional-only parameter list.
func Params(ps ...*Parameter) *ParameterList {
	return &ParameterList{Positional: ps}
}

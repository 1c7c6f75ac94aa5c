package evaluator

import (
	"context"
	"strings"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/diagnostics"
)

// CallFrame represents a single frame in the call stack
type CallFrame struct {
	Name string // Function name
	Call string // Rendered argument types, e.g. "(::Int, ::String)"
}

// Evaluator walks expressions against a Runtime. It is not safe for
// concurrent use; create one per goroutine with Runtime.NewEvaluator.
type Evaluator struct {
	// Context for cancellation, checked at every call boundary.
	Context context.Context

	// CallStack for stack traces on errors
	CallStack []CallFrame

	rt       *Runtime
	maxDepth int
}

// Eval evaluates node in env.
func (e *Evaluator) Eval(node ast.Expression, env *Environment) (Object, error) {
	switch node := node.(type) {
	case *ast.IntegerLiteral:
		return &Integer{Value: node.Value}, nil
	case *ast.FloatLiteral:
		return &Float{Value: node.Value}, nil
	case *ast.StringLiteral:
		return &String{Value: node.Value}, nil
	case *ast.CharLiteral:
		return &Char{Value: node.Value}, nil
	case *ast.BooleanLiteral:
		return nativeBool(node.Value), nil
	case *ast.NothingLiteral:
		return NOTHING, nil
	case *ast.Identifier:
		return env.Lookup(node.Value)
	case *ast.CallExpression:
		return e.evalCallExpression(node, env)
	case *ast.IfExpression:
		return e.evalIfExpression(node, env)
	case *ast.WhileExpression:
		return e.evalWhileExpression(node, env)
	case *ast.AndExpression:
		ok, err := e.condition(node.Left, env)
		if err != nil || !ok {
			return FALSE, err
		}
		return e.Eval(node.Right, env)
	case *ast.OrExpression:
		ok, err := e.condition(node.Left, env)
		if err != nil {
			return nil, err
		}
		if ok {
			return TRUE, nil
		}
		return e.Eval(node.Right, env)
	case *ast.AssignExpression:
		val, err := e.Eval(node.Value, env)
		if err != nil {
			return nil, err
		}
		return env.Assign(node.Name, val), nil
	case *ast.LocalExpression:
		val, err := e.Eval(node.Value, env)
		if err != nil {
			return nil, err
		}
		return env.Set(node.Name, val), nil
	case *ast.BlockExpression:
		return e.evalBlock(node, NewEnclosedEnvironment(env))
	case *ast.FunctionLiteral:
		return e.evalFunctionLiteral(node, env)
	case *ast.TupleLiteral:
		elems, err := e.evalArguments(node.Elements, env)
		if err != nil {
			return nil, err
		}
		return &Tuple{elements: elems}, nil
	case *ast.NewExpression:
		return e.evalNewExpression(node, env)
	case *ast.FieldAccess:
		return e.evalFieldAccess(node, env)
	case *ast.SplatExpression:
		return nil, diagnostics.Runtime("splat %s used outside of a call", node.String())
	case nil:
		return NOTHING, nil
	}
	return nil, diagnostics.Runtime("cannot evaluate %T", node)
}

// condition evaluates a branch condition. Only Bool values are accepted;
// nothing and every other value raise a TypeError.
func (e *Evaluator) condition(node ast.Expression, env *Environment) (bool, error) {
	val, err := e.Eval(node, env)
	if err != nil {
		return false, err
	}
	return e.Truth(val)
}

// Truth converts a condition value to a Go bool.
func (e *Evaluator) Truth(val Object) (bool, error) {
	b, ok := val.(*Boolean)
	if !ok {
		return false, diagnostics.Type("non-boolean (%s) used in boolean context", e.rt.TypeName(val))
	}
	return b.Value, nil
}

func (e *Evaluator) evalIfExpression(ie *ast.IfExpression, env *Environment) (Object, error) {
	ok, err := e.condition(ie.Condition, env)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.Eval(ie.Consequence, env)
	}
	if ie.Alternative != nil {
		return e.Eval(ie.Alternative, env)
	}
	return NOTHING, nil
}

func (e *Evaluator) evalWhileExpression(we *ast.WhileExpression, env *Environment) (Object, error) {
	for {
		if err := e.cancelled(); err != nil {
			return nil, err
		}
		ok, err := e.condition(we.Condition, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			return NOTHING, nil
		}
		if _, err := e.Eval(we.Body, env); err != nil {
			return nil, err
		}
	}
}

func (e *Evaluator) evalBlock(block *ast.BlockExpression, env *Environment) (Object, error) {
	var result Object = NOTHING
	for _, expr := range block.Expressions {
		val, err := e.Eval(expr, env)
		if err != nil {
			return nil, err
		}
		result = val
	}
	return result, nil
}

func (e *Evaluator) evalFunctionLiteral(fl *ast.FunctionLiteral, env *Environment) (Object, error) {
	sig, err := e.rt.compileSignature(fl.Parameters)
	if err != nil {
		return nil, err
	}
	fn := &Closure{
		Name:      fl.Name,
		Signature: sig,
		Params:    fl.Parameters,
		Body:      fl.Body,
		Env:       env,
	}
	if fl.Name != "" {
		env.Set(fl.Name, fn)
	}
	return fn, nil
}

func (e *Evaluator) evalNewExpression(ne *ast.NewExpression, env *Environment) (Object, error) {
	fields := make(map[string]Object, len(ne.Fields))
	for _, f := range ne.Fields {
		val, err := e.Eval(f.Value, env)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = val
	}
	return e.rt.NewInstance(ne.TypeName, fields)
}

func (e *Evaluator) evalFieldAccess(fa *ast.FieldAccess, env *Environment) (Object, error) {
	obj, err := e.Eval(fa.Object, env)
	if err != nil {
		return nil, err
	}
	in, ok := obj.(*Instance)
	if !ok {
		return nil, diagnostics.Type("type %s has no field %s", e.rt.TypeName(obj), fa.Field)
	}
	val, ok := in.Fields[fa.Field]
	if !ok {
		return nil, diagnostics.Runtime("type %s has no field %s", in.TypeName, fa.Field)
	}
	return val, nil
}

// evalArguments evaluates positional argument expressions, expanding
// splats in place. A splatted value must be a tuple.
func (e *Evaluator) evalArguments(exprs []ast.Expression, env *Environment) ([]Object, error) {
	out := make([]Object, 0, len(exprs))
	for _, expr := range exprs {
		if splat, ok := expr.(*ast.SplatExpression); ok {
			val, err := e.Eval(splat.Value, env)
			if err != nil {
				return nil, err
			}
			t, ok := val.(*Tuple)
			if !ok {
				return nil, diagnostics.Type("cannot splat a value of type %s", e.rt.TypeName(val))
			}
			out = append(out, t.elements...)
			continue
		}
		val, err := e.Eval(expr, env)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (e *Evaluator) evalCallExpression(node *ast.CallExpression, env *Environment) (Object, error) {
	fn, err := e.Eval(node.Function, env)
	if err != nil {
		return nil, err
	}
	args, err := e.evalArguments(node.Arguments, env)
	if err != nil {
		return nil, err
	}
	var kwargs []KeywordValue
	if len(node.Keywords) > 0 {
		kwargs = make([]KeywordValue, len(node.Keywords))
		for i, kw := range node.Keywords {
			val, err := e.Eval(kw.Value, env)
			if err != nil {
				return nil, err
			}
			kwargs[i] = KeywordValue{Name: kw.Name, Value: val}
		}
	}
	return e.Apply(fn, args, kwargs)
}

// Apply invokes a callable value. Generic functions dispatch on the
// runtime types of args; closures are bound directly.
func (e *Evaluator) Apply(fn Object, args []Object, kwargs []KeywordValue) (Object, error) {
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	if len(e.CallStack) >= e.maxDepth {
		return nil, diagnostics.Runtime("maximum call depth %d exceeded", e.maxDepth)
	}

	switch fn := fn.(type) {
	case *GenericFunction:
		return e.applyGeneric(fn, args, kwargs)
	case *Closure:
		name := fn.Name
		if name == "" {
			name = "#anonymous"
		}
		e.push(name, args)
		defer e.pop()
		bound, err := e.bind(name, fn.Signature, fn.Env, args, kwargs, true)
		if err != nil {
			return nil, err
		}
		return e.Eval(fn.Body, bound.Env)
	}
	return nil, diagnostics.Type("objects of type %s are not callable", e.rt.TypeName(fn))
}

func (e *Evaluator) applyGeneric(fn *GenericFunction, args []Object, kwargs []KeywordValue) (Object, error) {
	g := fn.Fn
	m, err := g.Resolve(e.rt.typesOf(args), keywordNames(kwargs))
	if err != nil {
		return nil, err
	}

	e.push(g.Name, args)
	defer e.pop()

	bound, err := e.bind(g.Name, m.Signature, m.Body.Env, args, kwargs, false)
	if err != nil {
		return nil, err
	}
	if m.Body.Native != nil {
		return m.Body.Native(e, bound)
	}
	return e.Eval(m.Body.Expr, bound.Env)
}

func (e *Evaluator) push(name string, args []Object) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = "::" + e.rt.TypeName(a)
	}
	e.CallStack = append(e.CallStack, CallFrame{Name: name, Call: "(" + strings.Join(parts, ", ") + ")"})
}

func (e *Evaluator) pop() {
	e.CallStack = e.CallStack[:len(e.CallStack)-1]
}

// StackTrace renders the current call stack innermost first.
func (e *Evaluator) StackTrace() string {
	var sb strings.Builder
	for i := len(e.CallStack) - 1; i >= 0; i-- {
		f := e.CallStack[i]
		sb.WriteString("  at ")
		sb.WriteString(f.Name)
		sb.WriteString(f.Call)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *Evaluator) cancelled() error {
	if e.Context == nil {
		return nil
	}
	select {
	case <-e.Context.Done():
		return diagnostics.Runtime("execution cancelled: %v", e.Context.Err())
	default:
		return nil
	}
}

func keywordNames(kwargs []KeywordValue) []string {
	if len(kwargs) == 0 {
		return nil
	}
	names := make([]string, len(kwargs))
	for i, kw := range kwargs {
		names[i] = kw.Name
	}
	return names
}

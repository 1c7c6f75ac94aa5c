package evaluator

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/dispatch"
	"github.com/funvibe/dispatch/internal/typesystem"
)

// MethodHandle identifies a registered method. ID survives redefinition of
// the same exact signature.
type MethodHandle struct {
	ID        uuid.UUID
	Function  string
	Signature string
	Replaced  bool
}

// MethodInfo describes one method of a generic function for display.
type MethodInfo struct {
	ID        uuid.UUID
	Signature *dispatch.Signature
	Text      string
	Native    bool
}

// builtinTypes caches the ids of the seeded types.
type builtinTypes struct {
	Any, Number, Real, Integer, AbstractFloat, Int, Float typesystem.TypeID
	AbstractString, String, Char, Bool, Nothing, Tuple    typesystem.TypeID
	Function                                              typesystem.TypeID
}

// Runtime owns the type hierarchy, the generic function registry and the
// global environment. It is safe for concurrent use; evaluation state lives
// in per-call Evaluators.
type Runtime struct {
	cfg       *config.Config
	log       *slog.Logger
	types     *typesystem.Hierarchy
	functions *dispatch.Registry[*MethodBody]
	global    *Environment
	builtin   builtinTypes
	closed    atomic.Bool
}

// NewRuntime builds a runtime with the builtin types and methods installed.
// A nil cfg means config.Default(); a nil logger discards.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	types := typesystem.NewHierarchy()
	rt := &Runtime{
		cfg:   cfg,
		log:   logger,
		types: types,
		functions: dispatch.NewRegistry[*MethodBody](types, dispatch.Options{
			Cache:         cfg.Dispatch.CacheEnabled(),
			MaxCandidates: cfg.Dispatch.MaxCandidates,
			Logger:        logger,
		}),
		global: NewEnvironment(),
	}
	if err := rt.seedTypes(); err != nil {
		return nil, err
	}
	if err := rt.registerBuiltins(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) seedTypes() error {
	b := &rt.builtin
	seed := []struct {
		id       *typesystem.TypeID
		name     string
		parent   *typesystem.TypeID
		abstract bool
	}{
		{&b.Any, config.AnyTypeName, nil, true},
		{&b.Number, config.NumberTypeName, &b.Any, true},
		{&b.Real, config.RealTypeName, &b.Number, true},
		{&b.Integer, config.IntegerTypeName, &b.Real, true},
		{&b.AbstractFloat, config.AbstractFloatTypeName, &b.Real, true},
		{&b.Int, config.IntTypeName, &b.Integer, false},
		{&b.Float, config.FloatTypeName, &b.AbstractFloat, false},
		{&b.AbstractString, config.AbstractStringTypeName, &b.Any, true},
		{&b.String, config.StringTypeName, &b.AbstractString, false},
		{&b.Char, config.CharTypeName, &b.Any, false},
		{&b.Bool, config.BoolTypeName, &b.Any, false},
		{&b.Nothing, config.NothingTypeName, &b.Any, false},
		{&b.Tuple, config.TupleTypeName, &b.Any, false},
		{&b.Function, config.FunctionTypeName, &b.Any, true},
	}
	for _, s := range seed {
		parent := typesystem.NoType
		if s.parent != nil {
			parent = *s.parent
		}
		id, err := rt.types.Register(s.name, parent, s.abstract)
		if err != nil {
			return err
		}
		*s.id = id
	}
	return nil
}

func (rt *Runtime) Types() *typesystem.Hierarchy { return rt.types }

func (rt *Runtime) Global() *Environment { return rt.global }

func (rt *Runtime) Config() *config.Config { return rt.cfg }

func (rt *Runtime) Logger() *slog.Logger { return rt.log }

// NewEvaluator returns a fresh evaluator bound to ctx.
func (rt *Runtime) NewEvaluator(ctx context.Context) *Evaluator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Evaluator{Context: ctx, rt: rt, maxDepth: rt.cfg.Dispatch.MaxDepth}
}

// DeclareType registers a user type. An empty parent means Any.
func (rt *Runtime) DeclareType(name, parent string, abstract bool) (typesystem.TypeID, error) {
	pid := rt.builtin.Any
	if parent != "" {
		var ok bool
		if pid, ok = rt.types.Lookup(parent); !ok {
			return typesystem.NoType, typesystem.NewUnknownTypeError(parent)
		}
		if pt, _ := rt.types.Type(pid); !pt.Abstract {
			return typesystem.NoType, diagnostics.Definition("cannot subtype concrete type %s", parent)
		}
	}
	id, err := rt.types.Register(name, pid, abstract)
	if err != nil {
		return typesystem.NoType, err
	}
	rt.log.Debug("type declared", "type", name, "parent", rt.types.Name(pid), "abstract", abstract)
	return id, nil
}

// DefineMethod adds a method with an expression body to the named generic
// function, creating the function on first definition. The body and its
// defaults close over the global environment.
func (rt *Runtime) DefineMethod(name string, params *ast.ParameterList, body ast.Expression) (MethodHandle, error) {
	return rt.DefineMethodIn(rt.global, name, params, body)
}

// DefineMethodIn is DefineMethod with an explicit defining environment.
func (rt *Runtime) DefineMethodIn(env *Environment, name string, params *ast.ParameterList, body ast.Expression) (MethodHandle, error) {
	if body == nil {
		return MethodHandle{}, diagnostics.Definition("method %s has no body", name)
	}
	return rt.define(name, params, &MethodBody{Expr: body, Env: env})
}

// DefineNative adds a method implemented in Go.
func (rt *Runtime) DefineNative(name string, params *ast.ParameterList, fn NativeFunc) (MethodHandle, error) {
	if fn == nil {
		return MethodHandle{}, diagnostics.Definition("method %s has no body", name)
	}
	return rt.define(name, params, &MethodBody{Native: fn, Env: rt.global})
}

func (rt *Runtime) define(name string, params *ast.ParameterList, body *MethodBody) (MethodHandle, error) {
	if name == "" {
		return MethodHandle{}, diagnostics.Definition("generic function name must not be empty")
	}
	if rt.closed.Load() {
		return MethodHandle{}, errClosed()
	}
	sig, err := rt.compileSignature(params)
	if err != nil {
		return MethodHandle{}, err
	}
	g, created := rt.functions.GetOrCreate(name)
	m, replaced, err := g.AddMethod(sig, body)
	if err != nil {
		return MethodHandle{}, err
	}
	if created {
		rt.global.Set(name, &GenericFunction{Fn: g})
	}
	return MethodHandle{ID: m.Handle, Function: name, Signature: g.Render(m), Replaced: replaced}, nil
}

// compileSignature resolves type names in params against the hierarchy.
// An annotation naming the root Any is the same as no annotation.
func (rt *Runtime) compileSignature(params *ast.ParameterList) (*dispatch.Signature, error) {
	sig := &dispatch.Signature{}
	if params == nil {
		return sig, nil
	}
	for _, p := range params.Positional {
		dp, err := rt.compileParam(p)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, dp)
	}
	if params.Variadic != nil {
		dp, err := rt.compileParam(params.Variadic)
		if err != nil {
			return nil, err
		}
		dp.Default = nil
		sig.Variadic = &dp
	}
	for _, k := range params.Keywords {
		if !k.Type.IsEmpty() {
			return nil, diagnostics.Definition("keyword argument %s cannot be typed", k.Name)
		}
		sig.Keywords = append(sig.Keywords, dispatch.Keyword{Name: k.Name, Default: k.Default})
	}
	return sig, sig.Validate()
}

func (rt *Runtime) compileParam(p *ast.Parameter) (dispatch.Param, error) {
	dp := dispatch.Param{Name: p.Name, Default: p.Default, Constraint: dispatch.AnyConstraint()}
	bound := typesystem.NoType
	if p.Type.Name != "" {
		id, ok := rt.types.Lookup(p.Type.Name)
		if !ok {
			return dp, typesystem.NewUnknownTypeError(p.Type.Name)
		}
		if id != rt.builtin.Any {
			bound = id
		}
	}
	switch {
	case p.Type.Var != "":
		dp.Constraint = dispatch.Var(p.Type.Var, bound)
	case bound != typesystem.NoType:
		dp.Constraint = dispatch.Of(bound)
	}
	return dp, nil
}

// Call invokes a generic function by name.
func (rt *Runtime) Call(ctx context.Context, name string, args []Object, kwargs []KeywordValue) (Object, error) {
	if rt.closed.Load() {
		return nil, errClosed()
	}
	fn, err := rt.global.Lookup(name)
	if err != nil {
		return nil, err
	}
	e := rt.NewEvaluator(ctx)
	return e.Apply(fn, args, kwargs)
}

// Eval evaluates expr in the global environment.
func (rt *Runtime) Eval(ctx context.Context, expr ast.Expression) (Object, error) {
	if rt.closed.Load() {
		return nil, errClosed()
	}
	return rt.NewEvaluator(ctx).Eval(expr, rt.global)
}

func (rt *Runtime) function(name string) (*dispatch.GenericFunction[*MethodBody], error) {
	g, ok := rt.functions.Get(name)
	if !ok {
		return nil, diagnostics.Name(name)
	}
	return g, nil
}

// ListMethods returns the methods of name in insertion order.
func (rt *Runtime) ListMethods(name string) ([]MethodInfo, error) {
	g, err := rt.function(name)
	if err != nil {
		return nil, err
	}
	methods := g.Methods()
	out := make([]MethodInfo, len(methods))
	for i, m := range methods {
		out[i] = MethodInfo{
			ID:        m.Handle,
			Signature: m.Signature,
			Text:      g.Render(m),
			Native:    m.Body.Native != nil,
		}
	}
	return out, nil
}

// Ambiguities reports method pairs of name that can be ambiguous for
// some call.
func (rt *Runtime) Ambiguities(name string) ([]dispatch.Ambiguity, error) {
	g, err := rt.function(name)
	if err != nil {
		return nil, err
	}
	return g.Ambiguities(), nil
}

// Functions lists generic function names, sorted.
func (rt *Runtime) Functions() []string { return rt.functions.Names() }

// NewInstance builds a value of a concrete declared type.
func (rt *Runtime) NewInstance(typeName string, fields map[string]Object) (*Instance, error) {
	id, ok := rt.types.Lookup(typeName)
	if !ok {
		return nil, diagnostics.Runtime("type %s not defined", typeName)
	}
	t, _ := rt.types.Type(id)
	if t.Abstract {
		return nil, diagnostics.Runtime("cannot instantiate abstract type %s", typeName)
	}
	if rt.isBuiltin(id) {
		return nil, diagnostics.Runtime("cannot instantiate builtin type %s", typeName)
	}
	cp := make(map[string]Object, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Instance{TypeID: id, TypeName: typeName, Fields: cp}, nil
}

func (rt *Runtime) isBuiltin(id typesystem.TypeID) bool {
	return id <= rt.builtin.Function
}

// TypeOf is the dispatch type of a value.
func (rt *Runtime) TypeOf(obj Object) typesystem.TypeID {
	b := &rt.builtin
	switch o := obj.(type) {
	case *Integer:
		return b.Int
	case *Float:
		return b.Float
	case *String:
		return b.String
	case *Char:
		return b.Char
	case *Boolean:
		return b.Bool
	case *Nothing:
		return b.Nothing
	case *Tuple:
		return b.Tuple
	case *Instance:
		return o.TypeID
	case *Closure, *GenericFunction:
		return b.Function
	}
	return b.Any
}

func (rt *Runtime) TypeName(obj Object) string {
	if obj == nil {
		return config.NothingTypeName
	}
	return rt.types.Name(rt.TypeOf(obj))
}

func (rt *Runtime) typesOf(args []Object) []typesystem.TypeID {
	ids := make([]typesystem.TypeID, len(args))
	for i, a := range args {
		ids[i] = rt.TypeOf(a)
	}
	return ids
}

// Close tears down the global environment. Later definitions and calls
// fail with a RuntimeError.
func (rt *Runtime) Close() error {
	if rt.closed.Swap(true) {
		return nil
	}
	rt.global.clear()
	rt.log.Debug("runtime closed")
	return nil
}

func errClosed() error {
	return diagnostics.Runtime("runtime is closed")
}

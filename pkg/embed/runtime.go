// Package dispatch embeds a multiple-dispatch runtime in Go programs.
//
// Go functions are bound as methods of generic functions; their parameter
// types become the method signature:
//
//	rt, _ := dispatch.New()
//	rt.Bind("describe", func(n int) string { return "an int" })
//	rt.Bind("describe", func(s string) string { return "a string" })
//	out, _ := rt.Call("describe", "x") // "a string"
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/catalog"
	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/evaluator"
	"github.com/funvibe/dispatch/internal/prelude"
)

// Runtime wraps an evaluator runtime with Go value conversion.
type Runtime struct {
	rt         *evaluator.Runtime
	marshaller *Marshaller
}

type options struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog string
	err     error
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMaxDepth bounds nested calls. n must be at least 1.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n < 1 {
			o.err = fmt.Errorf("max depth must be at least 1, got %d", n)
			return
		}
		o.cfg.Dispatch.MaxDepth = n
	}
}

// WithoutCache disables resolution caching.
func WithoutCache() Option {
	return func(o *options) {
		off := false
		o.cfg.Dispatch.Cache = &off
	}
}

// WithConfigFile reads settings from a dispatch.yaml file. Options after
// it override the file.
func WithConfigFile(path string) Option {
	return func(o *options) {
		cfg, err := config.Load(path)
		if err != nil {
			o.err = err
			return
		}
		o.cfg = cfg
	}
}

// WithCatalog restores the types stored in a catalog written by
// `dispatch snapshot`. Stored types are declared like DeclareType would,
// so a catalog that subtypes a concrete type is rejected.
func WithCatalog(path string) Option {
	return func(o *options) { o.catalog = path }
}

// New creates a runtime with the builtin types and functions installed.
func New(opts ...Option) (*Runtime, error) {
	o := &options{cfg: config.Default()}
	for _, opt := range opts {
		opt(o)
		if o.err != nil {
			return nil, o.err
		}
	}
	rt, err := evaluator.NewRuntime(o.cfg, o.logger)
	if err != nil {
		return nil, err
	}
	if o.catalog != "" {
		if err := restore(rt, o.catalog); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return &Runtime{rt: rt, marshaller: NewMarshaller(rt)}, nil
}

func restore(rt *evaluator.Runtime, path string) error {
	ctx := context.Background()
	c, err := catalog.Open(ctx, path)
	if err != nil {
		return err
	}
	defer c.Close()
	n, err := c.Restore(ctx, rt)
	if err != nil {
		return err
	}
	rt.Logger().Debug("catalog restored", "catalog", path, "types", n)
	return nil
}

// DeclareType adds a user type. An empty parent means Any. Go structs
// whose type name matches a declared concrete type convert to instances
// of it.
func (r *Runtime) DeclareType(name, parent string, abstract bool) error {
	_, err := r.rt.DeclareType(name, parent, abstract)
	return err
}

// Bind adds a Go function as a method of the generic function name. The
// method signature is inferred from the function's parameter types; types,
// when given, override the inferred type of the parameter at the same
// index, with "" keeping the inferred one. A variadic Go function becomes
// a variadic method. A leading context.Context parameter receives the
// caller's context and is not part of the signature.
//
// A final error result is reported as a RuntimeError; multiple other
// results are returned as a tuple.
func (r *Runtime) Bind(name string, fn interface{}, types ...string) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return fmt.Errorf("bind %s: expected a function, got %T", name, fn)
	}
	params, err := r.signatureOf(fv.Type(), types)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	_, err = r.rt.DefineNative(name, params, func(e *evaluator.Evaluator, b *evaluator.Bound) (evaluator.Object, error) {
		return r.callHost(e.Context, name, fv, b)
	})
	return err
}

// Define adds a method written as a YAML method entry, for example
//
//	params: [{name: s, type: Square}]
//	body: {call: "*", args: [{field: side, of: s}, {field: side, of: s}]}
func (r *Runtime) Define(name, method string) error {
	params, body, err := prelude.ParseMethod(method)
	if err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	_, err = r.rt.DefineMethod(name, params, body)
	return err
}

// LoadWorld applies a world file to the runtime.
func (r *Runtime) LoadWorld(ctx context.Context, path string) error {
	w, err := prelude.LoadWorld(path)
	if err != nil {
		return err
	}
	_, err = w.Apply(ctx, r.rt)
	return err
}

// Eval evaluates a YAML expression in the global environment.
func (r *Runtime) Eval(ctx context.Context, src string) (interface{}, error) {
	expr, err := prelude.ParseExpr(src)
	if err != nil {
		return nil, err
	}
	result, err := r.rt.Eval(ctx, expr)
	if err != nil {
		return nil, err
	}
	return r.marshaller.FromValue(result, nil)
}

// Set binds a global variable.
func (r *Runtime) Set(name string, val interface{}) error {
	obj, err := r.marshaller.ToValue(val)
	if err != nil {
		return err
	}
	r.rt.Global().Set(name, obj)
	return nil
}

// Get reads a global variable.
func (r *Runtime) Get(name string) (interface{}, error) {
	obj, err := r.rt.Global().Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.marshaller.FromValue(obj, nil)
}

// Call invokes the generic function name with positional arguments.
func (r *Runtime) Call(name string, args ...interface{}) (interface{}, error) {
	return r.CallKw(context.Background(), name, args, nil)
}

// CallKw invokes name with positional and keyword arguments. Keywords are
// passed in name order.
func (r *Runtime) CallKw(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	objs := make([]evaluator.Object, len(args))
	for i, arg := range args {
		obj, err := r.marshaller.ToValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		objs[i] = obj
	}
	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	sort.Strings(names)
	kws := make([]evaluator.KeywordValue, len(names))
	for i, k := range names {
		obj, err := r.marshaller.ToValue(kwargs[k])
		if err != nil {
			return nil, fmt.Errorf("keyword %s: %w", k, err)
		}
		kws[i] = evaluator.KeywordValue{Name: k, Value: obj}
	}

	result, err := r.rt.Call(ctx, name, objs, kws)
	if err != nil {
		return nil, err
	}
	return r.marshaller.FromValue(result, nil)
}

// Methods lists the signatures of name in definition order.
func (r *Runtime) Methods(name string) ([]string, error) {
	infos, err := r.rt.ListMethods(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(infos))
	for i, m := range infos {
		out[i] = m.Text
	}
	return out, nil
}

// Ambiguities lists method pairs of name that some call cannot order.
func (r *Runtime) Ambiguities(name string) ([][2]string, error) {
	as, err := r.rt.Ambiguities(name)
	if err != nil {
		return nil, err
	}
	out := make([][2]string, len(as))
	for i, a := range as {
		out[i] = [2]string{a.A, a.B}
	}
	return out, nil
}

// Functions lists the generic function names.
func (r *Runtime) Functions() []string { return r.rt.Functions() }

func (r *Runtime) Close() error { return r.rt.Close() }

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func (r *Runtime) signatureOf(ft reflect.Type, override []string) (*ast.ParameterList, error) {
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		first = 1
	}
	n := ft.NumIn() - first
	if len(override) > n {
		return nil, fmt.Errorf("%d parameter types given for %d parameters", len(override), n)
	}
	pl := &ast.ParameterList{}
	for i := 0; i < n; i++ {
		in := ft.In(first + i)
		variadic := ft.IsVariadic() && i == n-1
		if variadic {
			in = in.Elem()
		}
		typ := r.typeNameOf(in)
		if i < len(override) && override[i] != "" {
			typ = override[i]
		}
		p := ast.Param(fmt.Sprintf("arg%d", i+1), typ)
		if variadic {
			p.Name = "rest"
			pl.Variadic = p
		} else {
			pl.Positional = append(pl.Positional, p)
		}
	}
	return pl, nil
}

// typeNameOf maps a Go parameter type to a dispatch type name. An empty
// result leaves the parameter unconstrained.
func (r *Runtime) typeNameOf(t reflect.Type) string {
	if t == charType {
		return config.CharTypeName
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return config.IntTypeName
	case reflect.Float32, reflect.Float64:
		return config.FloatTypeName
	case reflect.String:
		return config.StringTypeName
	case reflect.Bool:
		return config.BoolTypeName
	case reflect.Slice, reflect.Array:
		return config.TupleTypeName
	case reflect.Struct:
		if t == instanceType {
			return ""
		}
		return t.Name()
	case reflect.Ptr:
		if t.Elem().Kind() == reflect.Struct && t.Elem() != instanceType {
			return t.Elem().Name()
		}
	}
	return ""
}

func (r *Runtime) callHost(ctx context.Context, name string, fn reflect.Value, b *evaluator.Bound) (evaluator.Object, error) {
	ft := fn.Type()
	args := make([]evaluator.Object, 0, len(b.Positional))
	args = append(args, b.Positional...)
	if b.Rest != nil {
		args = append(args, b.Rest.Elements()...)
	}

	var in []reflect.Value
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		first = 1
	}
	for i, arg := range args {
		idx := first + i
		var target reflect.Type
		if ft.IsVariadic() && idx >= ft.NumIn()-1 {
			target = ft.In(ft.NumIn() - 1).Elem()
		} else {
			target = ft.In(idx)
		}
		v, err := r.marshaller.fromValue(arg, target)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		in = append(in, v)
	}

	results := fn.Call(in)
	if n := len(results); n > 0 && ft.Out(n-1) == errorType {
		if err, _ := results[n-1].Interface().(error); err != nil {
			return nil, hostError(name, err)
		}
		results = results[:n-1]
	}

	switch len(results) {
	case 0:
		return evaluator.NOTHING, nil
	case 1:
		return r.marshaller.ToValue(results[0].Interface())
	}
	elements := make([]evaluator.Object, len(results))
	for i, res := range results {
		val, err := r.marshaller.ToValue(res.Interface())
		if err != nil {
			return nil, err
		}
		elements[i] = val
	}
	return evaluator.NewTuple(elements), nil
}

package evaluator

import (
	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/dispatch"
	"github.com/funvibe/dispatch/internal/typesystem"
)

// KeywordValue is one keyword argument at a call site, in call order.
type KeywordValue struct {
	Name  string
	Value Object
}

// Bound holds the parameter bindings of one invocation.
type Bound struct {
	// Env is a fresh child of the method's defining environment with every
	// parameter bound by name.
	Env *Environment
	// Positional holds the fixed and optional parameters in order, with
	// defaults filled in.
	Positional []Object
	// Rest is the variadic tuple, nil when the signature has no tail.
	Rest     *Tuple
	Keywords map[string]Object
}

// Arg returns the i-th positional parameter value.
func (b *Bound) Arg(i int) Object { return b.Positional[i] }

func (b *Bound) Keyword(name string) Object { return b.Keywords[name] }

// bind maps actual arguments onto sig. Defaults are evaluated now, in the
// new scope as it stands: a default sees the parameters bound before it and
// otherwise resolves through defEnv, never the caller. When recheck is set
// each positional is tested against its constraint; dispatch already
// guarantees this for generic calls.
func (e *Evaluator) bind(function string, sig *dispatch.Signature, defEnv *Environment, args []Object, kwargs []KeywordValue, recheck bool) (*Bound, error) {
	n := len(args)
	fixed := len(sig.Params)

	if req := sig.Required(); n < req {
		if req == fixed {
			return nil, diagnostics.Arity(function, "%s expects %d positional arguments, got %d", function, fixed, n)
		}
		return nil, diagnostics.Arity(function, "%s expects at least %d positional arguments, got %d", function, req, n)
	}
	if n > fixed && sig.Variadic == nil {
		return nil, diagnostics.Arity(function, "%s accepts at most %d positional arguments, got %d", function, fixed, n)
	}

	supplied := make(map[string]Object, len(kwargs))
	for _, kw := range kwargs {
		if _, dup := supplied[kw.Name]; dup {
			return nil, diagnostics.Argument(function, "keyword argument %s repeated in call to %s", kw.Name, function)
		}
		if !sig.HasKeyword(kw.Name) {
			return nil, diagnostics.Argument(function, "%s has no keyword argument %s", function, kw.Name)
		}
		supplied[kw.Name] = kw.Value
	}

	b := &Bound{
		Env:        NewEnclosedEnvironment(defEnv),
		Positional: make([]Object, fixed),
		Keywords:   make(map[string]Object, len(sig.Keywords)),
	}
	vars := make(map[string]typesystem.TypeID)

	for i, p := range sig.Params {
		var v Object
		if i < n {
			v = args[i]
			if recheck {
				if err := e.check(function, p, v, vars); err != nil {
					return nil, err
				}
			}
		} else {
			var err error
			if v, err = e.Eval(p.Default, b.Env); err != nil {
				return nil, err
			}
		}
		b.Positional[i] = v
		if p.Name != "" {
			b.Env.Set(p.Name, v)
		}
	}

	if sig.Variadic != nil {
		var extra []Object
		if n > fixed {
			extra = args[fixed:]
		}
		if recheck {
			for _, v := range extra {
				if err := e.check(function, *sig.Variadic, v, vars); err != nil {
					return nil, err
				}
			}
		}
		b.Rest = NewTuple(extra)
		if sig.Variadic.Name != "" {
			b.Env.Set(sig.Variadic.Name, b.Rest)
		}
	}

	for _, k := range sig.Keywords {
		v, ok := supplied[k.Name]
		if !ok {
			var err error
			if v, err = e.Eval(k.Default, b.Env); err != nil {
				return nil, err
			}
		}
		b.Keywords[k.Name] = v
		b.Env.Set(k.Name, v)
	}
	return b, nil
}

func (e *Evaluator) check(function string, p dispatch.Param, v Object, vars map[string]typesystem.TypeID) error {
	c := p.Constraint
	t := e.rt.TypeOf(v)
	types := e.rt.types
	switch c.Kind {
	case dispatch.Bounded:
		if !types.IsSubtype(t, c.Type) {
			return diagnostics.Type("in %s, argument %s must be a %s, got %s", function, p.Name, types.Name(c.Type), types.Name(t))
		}
	case dispatch.TypeParam:
		if c.Type != typesystem.NoType && !types.IsSubtype(t, c.Type) {
			return diagnostics.Type("in %s, argument %s must be a %s, got %s", function, p.Name, types.Name(c.Type), types.Name(t))
		}
		if prev, ok := vars[c.Var]; ok && prev != t {
			return diagnostics.Type("in %s, argument %s must have type %s bound by %s, got %s", function, p.Name, types.Name(prev), c.Var, types.Name(t))
		}
		vars[c.Var] = t
	}
	return nil
}

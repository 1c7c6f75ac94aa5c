package evaluator

import (
	"math"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/diagnostics"
)

type builtinMethod struct {
	name   string
	params *ast.ParameterList
	fn     NativeFunc
}

func binary(a, b string) *ast.ParameterList {
	return ast.Params(ast.Param("a", a), ast.Param("b", b))
}

func unary(typ string) *ast.ParameterList {
	return ast.Params(ast.Param("x", typ))
}

func (rt *Runtime) builtinMethods() []builtinMethod {
	const (
		anyT  = ""
		intT  = config.IntTypeName
		fltT  = config.FloatTypeName
		realT = config.RealTypeName
		strT  = config.StringTypeName
	)
	var ms []builtinMethod
	add := func(name string, params *ast.ParameterList, fn NativeFunc) {
		ms = append(ms, builtinMethod{name, params, fn})
	}

	for _, op := range []string{config.AddFuncName, config.SubFuncName, config.MulFuncName} {
		add(op, binary(intT, intT), func(e *Evaluator, b *Bound) (Object, error) {
			x, y := b.Arg(0).(*Integer).Value, b.Arg(1).(*Integer).Value
			return &Integer{Value: intArith(op, x, y)}, nil
		})
		add(op, binary(fltT, fltT), func(e *Evaluator, b *Bound) (Object, error) {
			return &Float{Value: floatArith(op, toFloat(b.Arg(0)), toFloat(b.Arg(1)))}, nil
		})
		add(op, binary(realT, realT), func(e *Evaluator, b *Bound) (Object, error) {
			return &Float{Value: floatArith(op, toFloat(b.Arg(0)), toFloat(b.Arg(1)))}, nil
		})
	}
	add(config.SubFuncName, unary(intT), func(e *Evaluator, b *Bound) (Object, error) {
		return &Integer{Value: -b.Arg(0).(*Integer).Value}, nil
	})
	add(config.SubFuncName, unary(fltT), func(e *Evaluator, b *Bound) (Object, error) {
		return &Float{Value: -b.Arg(0).(*Float).Value}, nil
	})
	add(config.DivFuncName, binary(realT, realT), func(e *Evaluator, b *Bound) (Object, error) {
		return &Float{Value: toFloat(b.Arg(0)) / toFloat(b.Arg(1))}, nil
	})
	add(config.PowFuncName, binary(intT, intT), func(e *Evaluator, b *Bound) (Object, error) {
		x, n := b.Arg(0).(*Integer).Value, b.Arg(1).(*Integer).Value
		if n < 0 {
			return nil, diagnostics.Runtime("cannot raise integer %d to negative power %d", x, n)
		}
		return &Integer{Value: ipow(x, n)}, nil
	})
	add(config.PowFuncName, binary(realT, realT), func(e *Evaluator, b *Bound) (Object, error) {
		return &Float{Value: math.Pow(toFloat(b.Arg(0)), toFloat(b.Arg(1)))}, nil
	})

	add(config.EqFuncName, binary(anyT, anyT), func(e *Evaluator, b *Bound) (Object, error) {
		return nativeBool(ObjectsEqual(b.Arg(0), b.Arg(1))), nil
	})
	add(config.EqFuncName, binary(realT, realT), func(e *Evaluator, b *Bound) (Object, error) {
		x, y := b.Arg(0), b.Arg(1)
		if xi, ok := x.(*Integer); ok {
			if yi, ok := y.(*Integer); ok {
				return nativeBool(xi.Value == yi.Value), nil
			}
		}
		return nativeBool(toFloat(x) == toFloat(y)), nil
	})
	for _, op := range []string{config.LessFuncName, config.LessEqFuncName} {
		add(op, binary(realT, realT), func(e *Evaluator, b *Bound) (Object, error) {
			x, y := b.Arg(0), b.Arg(1)
			if xi, ok := x.(*Integer); ok {
				if yi, ok := y.(*Integer); ok {
					return nativeBool(compare(op, cmpInt(xi.Value, yi.Value))), nil
				}
			}
			fx, fy := toFloat(x), toFloat(y)
			if math.IsNaN(fx) || math.IsNaN(fy) {
				return FALSE, nil
			}
			return nativeBool(compare(op, cmpFloat(fx, fy))), nil
		})
		add(op, binary(strT, strT), func(e *Evaluator, b *Bound) (Object, error) {
			x, y := b.Arg(0).(*String).Value, b.Arg(1).(*String).Value
			c := 0
			switch {
			case x < y:
				c = -1
			case x > y:
				c = 1
			}
			return nativeBool(compare(op, c)), nil
		})
	}
	add(config.NotFuncName, unary(config.BoolTypeName), func(e *Evaluator, b *Bound) (Object, error) {
		return nativeBool(!b.Arg(0).(*Boolean).Value), nil
	})

	add(config.TypeOfFuncName, unary(anyT), func(e *Evaluator, b *Bound) (Object, error) {
		return &String{Value: e.rt.TypeName(b.Arg(0))}, nil
	})
	add(config.IsaFuncName, binary(anyT, config.StringTypeName), func(e *Evaluator, b *Bound) (Object, error) {
		name := b.Arg(1).(*String).Value
		id, ok := e.rt.types.Lookup(name)
		if !ok {
			return nil, diagnostics.Runtime("type %s not defined", name)
		}
		return nativeBool(e.rt.types.IsSubtype(e.rt.TypeOf(b.Arg(0)), id)), nil
	})
	add(config.TupleFuncName, &ast.ParameterList{Variadic: ast.Param("xs", anyT)}, func(e *Evaluator, b *Bound) (Object, error) {
		return b.Rest, nil
	})
	return ms
}

func (rt *Runtime) registerBuiltins() error {
	for _, m := range rt.builtinMethods() {
		if _, err := rt.DefineNative(m.name, m.params, m.fn); err != nil {
			return err
		}
	}
	return nil
}

// toFloat widens any Real value. Callers guarantee the argument is numeric.
func toFloat(obj Object) float64 {
	switch n := obj.(type) {
	case *Integer:
		return float64(n.Value)
	case *Float:
		return n.Value
	}
	return math.NaN()
}

func intArith(op string, x, y int64) int64 {
	switch op {
	case config.AddFuncName:
		return x + y
	case config.SubFuncName:
		return x - y
	}
	return x * y
}

func floatArith(op string, x, y float64) float64 {
	switch op {
	case config.AddFuncName:
		return x + y
	case config.SubFuncName:
		return x - y
	}
	return x * y
}

// ipow is exponentiation by squaring with wrapping overflow.
func ipow(x, n int64) int64 {
	result := int64(1)
	for n > 0 {
		if n&1 == 1 {
			result *= x
		}
		x *= x
		n >>= 1
	}
	return result
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compare(op string, c int) bool {
	if op == config.LessFuncName {
		return c < 0
	}
	return c <= 0
}

// ObjectsEqual is structural equality for value types and tuples, and
// identity for everything else.
func ObjectsEqual(a, b Object) bool {
	switch x := a.(type) {
	case *Integer:
		y, ok := b.(*Integer)
		return ok && x.Value == y.Value
	case *Float:
		y, ok := b.(*Float)
		return ok && x.Value == y.Value
	case *String:
		y, ok := b.(*String)
		return ok && x.Value == y.Value
	case *Char:
		y, ok := b.(*Char)
		return ok && x.Value == y.Value
	case *Boolean:
		y, ok := b.(*Boolean)
		return ok && x.Value == y.Value
	case *Nothing:
		_, ok := b.(*Nothing)
		return ok
	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok || len(x.elements) != len(y.elements) {
			return false
		}
		for i := range x.elements {
			if !ObjectsEqual(x.elements[i], y.elements[i]) {
				return false
			}
		}
		return true
	case *Instance:
		y, ok := b.(*Instance)
		if !ok || x.TypeID != y.TypeID || len(x.Fields) != len(y.Fields) {
			return false
		}
		for k, v := range x.Fields {
			w, ok := y.Fields[k]
			if !ok || !ObjectsEqual(v, w) {
				return false
			}
		}
		return true
	}
	return a == b
}

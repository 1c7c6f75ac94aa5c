package ast

import "testing"

func TestStringRendering(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"float keeps decimal point", Float(2), "2.0"},
		{"call with keywords", Call("plot", Ident("x")).Kw("color", Str("red")), `plot(x; color="red")`},
		{"splat", Call("f", Splat(Ident("xs"))), "f(xs...)"},
		{"one-tuple", &TupleLiteral{Elements: []Expression{Int(1)}}, "(1,)"},
		{"if", If(Bool(true), Int(1), Int(2)), "if true 1 else 2 end"},
		{
			"parameter list",
			&ParameterList{
				Positional: []*Parameter{Param("x", "Int"), TypeVar("y", "T", "Real"), Opt("z", "", Int(3))},
				Variadic:   Param("rest", "Any"),
				Keywords:   []*Parameter{{Name: "scale", Default: Float(1.5)}},
			},
			"(x::Int, y::T<:Real, z=3, rest::Any...; scale=1.5)",
		},
	}
	for _, tt := range tests {
		if got := tt.node.String(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

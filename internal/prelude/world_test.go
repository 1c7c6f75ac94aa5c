package prelude

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/evaluator"
)

const shapes = `
types:
  - name: Shape
    abstract: true
  - name: Square
    parent: Shape
  - name: Circle
    parent: Shape

globals:
  - name: unit
    value: 1
  - name: greeting
    value: {call: describe, args: [{new: Square, fields: [{name: side, value: 2}]}]}

functions:
  - name: describe
    methods:
      - params: [{name: s, type: Shape}]
        body: "some shape"
      - params: [{name: s, type: Square}]
        body: "a square"

  - name: area
    methods:
      - params: [{name: s, type: Square}]
        keywords: [{name: scale, default: unit}]
        body:
          call: "*"
          args:
            - {call: "*", args: [{field: side, of: s}, {field: side, of: s}]}
            - scale

  - name: count
    methods:
      - variadic: {name: xs}
        body: xs

  - name: same
    methods:
      - params: [{name: a, var: T}, {name: b, var: T}]
        body: true
      - params: [a, b]
        body: false

  - name: counter
    methods:
      - body:
          block:
            - {local: n, value: 0}
            - function:
                body: {assign: n, value: {call: "+", args: [n, 1]}}

  - name: sum
    methods:
      - params: [a, b, c]
        body: {call: "+", args: [a, {call: "+", args: [b, c]}]}

  - name: spread
    methods:
      - params: [t]
        body: {call: sum, args: [1, {splat: t}]}

  - name: sign
    methods:
      - params: [{name: x, type: Real}]
        body:
          if: {call: "<", args: [x, 0]}
          then: -1
          else: {if: {call: "==", args: [x, 0]}, then: 0, else: 1}
`

func loadShapes(t *testing.T) *evaluator.Runtime {
	t.Helper()
	w, err := ParseWorld([]byte(shapes), "shapes.yaml")
	if err != nil {
		t.Fatalf("ParseWorld: %v", err)
	}
	rt, err := evaluator.NewRuntime(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Close() })
	sum, err := w.Apply(context.Background(), rt)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sum.Types != 3 || sum.Globals != 2 || len(sum.Methods) != 10 {
		t.Errorf("summary = %+v", sum)
	}
	return rt
}

func run(t *testing.T, rt *evaluator.Runtime, src string) string {
	t.Helper()
	expr, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	got, err := rt.Eval(context.Background(), expr)
	if err != nil {
		t.Fatalf("eval %s: %v", src, err)
	}
	return got.Inspect()
}

func TestApplyWorld(t *testing.T) {
	rt := loadShapes(t)

	tests := []struct {
		src  string
		want string
	}{
		{`greeting`, `"a square"`},
		{`{call: describe, args: [{new: Circle}]}`, `"some shape"`},
		{`{call: area, args: [{new: Square, fields: [{name: side, value: 3}]}]}`, `9`},
		{`{call: area, args: [{new: Square, fields: [{name: side, value: 3}]}], kwargs: [{name: scale, value: 2}]}`, `18`},
		{`{call: count}`, `()`},
		{`{call: count, args: [1, "a"]}`, `(1, "a")`},
		{`{call: same, args: [1, 2]}`, `true`},
		{`{call: same, args: [1, 2.0]}`, `false`},
		{`{call: spread, args: [{tuple: [2, 3]}]}`, `6`},
		{`{call: sign, args: [-4]}`, `-1`},
		{`{call: sign, args: [0.0]}`, `0`},
		{`{call: sign, args: [7]}`, `1`},
		{`{and: [true, {char: "x"}]}`, `'x'`},
		{`{block: []}`, `nothing`},
		{`{nothing: true}`, `nothing`},
	}
	for _, tt := range tests {
		if got := run(t, rt, tt.src); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestWorldClosures(t *testing.T) {
	rt := loadShapes(t)
	ctx := context.Background()
	c, err := rt.Call(ctx, "counter", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := rt.NewEvaluator(ctx)
	var last evaluator.Object
	for i := 0; i < 3; i++ {
		if last, err = e.Apply(c, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if last.Inspect() != "3" {
		t.Errorf("third counter call = %s, want 3", last.Inspect())
	}
}

func TestParseWorldErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"type without name", `types: [{parent: Any}]`, "types[0]: name is required"},
		{"duplicate type", `types: [{name: A}, {name: A}]`, "A declared twice"},
		{"function without methods", `functions: [{name: f}]`, "at least one method"},
		{"method without body", `functions: [{name: f, methods: [{params: [x]}]}]`, "body is required"},
		{"global without value", `globals: [{name: g}]`, "value is required"},
		{"bad yaml", `functions: [`, "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorld([]byte(tt.src), "bad.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestExprErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`{int: 1, str: "a"}`, "mixes"},
		{`{splat: xs}`, "only allowed in call arguments"},
		{`{if: true}`, "needs then"},
		{`{and: [true]}`, "exactly two operands"},
		{`{char: "ab"}`, "exactly one character"},
		{`{field: x}`, "needs of"},
		{`{call: f, fn: g}`, "mutually exclusive"},
	}
	for _, tt := range tests {
		w, err := ParseWorld([]byte("globals: [{name: g, value: "+tt.src+"}]"), "e.yaml")
		if err != nil {
			t.Fatalf("parse %s: %v", tt.src, err)
		}
		_, err = w.Globals[0].Value.AST()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want mention of %q", tt.src, err, tt.want)
		}
	}
}

func TestApplyReportsRuntimeErrors(t *testing.T) {
	w, err := ParseWorld([]byte(`
functions:
  - name: f
    methods:
      - params: [x]
        keywords: [{name: k}]
        body: x
`), "kw.yaml")
	if err != nil {
		t.Fatal(err)
	}
	rt, err := evaluator.NewRuntime(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	_, err = w.Apply(context.Background(), rt)
	if !errors.Is(err, diagnostics.ErrDefinition) {
		t.Fatalf("Apply error = %v, want DefinitionError", err)
	}
	if !strings.Contains(err.Error(), "kw.yaml: functions[0].methods[0] (f)") {
		t.Errorf("error lacks location: %v", err)
	}
}

func TestLoadWorld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	if err := os.WriteFile(path, []byte(shapes), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := LoadWorld(path)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if w.Path() != path || len(w.Functions) != 8 {
		t.Errorf("loaded %s with %d functions", w.Path(), len(w.Functions))
	}

	if _, err := LoadWorld(filepath.Join(dir, "world.txt")); err == nil {
		t.Error("expected extension error")
	}
	if _, err := LoadWorld(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestParseMethod(t *testing.T) {
	params, body, err := ParseMethod(`
params: [{name: x, type: Int}]
variadic: {name: rest}
keywords: [{name: k, default: 0}]
body: {call: "+", args: [x, k]}
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(params.Positional) != 1 || params.Variadic == nil || len(params.Keywords) != 1 {
		t.Errorf("params = %s", params)
	}
	if body == nil {
		t.Error("nil body")
	}

	if _, _, err := ParseMethod(`params: [x]`); err == nil {
		t.Error("expected error for missing body")
	}
	if _, err := ParseExpr(`~`); err == nil {
		t.Error("expected error for null expression")
	}
}

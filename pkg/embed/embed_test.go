package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/funvibe/dispatch/internal/catalog"
	"github.com/funvibe/dispatch/internal/evaluator"
	dispatch "github.com/funvibe/dispatch/pkg/embed"
)

// Dog is converted to an instance of the declared type Dog.
type Dog struct {
	Name string
	Age  int `dispatch:"age"`
	note string
}

type Cat struct {
	Name string
}

func newRuntime(t *testing.T, opts ...dispatch.Option) *dispatch.Runtime {
	t.Helper()
	rt, err := dispatch.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestEmbedAPI(t *testing.T) {
	rt := newRuntime(t)

	// 1. Bind Go functions as methods of one generic function
	if err := rt.Bind("double", func(x int) int { return x * 2 }); err != nil {
		t.Fatal(err)
	}
	if err := rt.Bind("double", func(s string) string { return s + s }); err != nil {
		t.Fatal(err)
	}

	// 2. Dispatch picks the method by argument type
	res, err := rt.Call("double", 21)
	if err != nil {
		t.Fatalf("double(21): %v", err)
	}
	if res != 42 {
		t.Errorf("double(21) = %v, want 42", res)
	}
	res, err = rt.Call("double", "ab")
	if err != nil || res != "abab" {
		t.Errorf("double(ab) = %v, %v", res, err)
	}

	// 3. No method for Float
	_, err = rt.Call("double", 1.5)
	if !errors.Is(err, dispatch.ErrNoMethod) {
		t.Errorf("double(1.5) error = %v, want NoMethodError", err)
	}

	methods, err := rt.Methods("double")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"double(arg1::Int)", "double(arg1::String)"}
	if !reflect.DeepEqual(methods, want) {
		t.Errorf("Methods = %v, want %v", methods, want)
	}
}

func TestBindStructs(t *testing.T) {
	rt := newRuntime(t)
	for _, d := range []struct {
		name, parent string
		abstract     bool
	}{
		{"Animal", "", true},
		{"Dog", "Animal", false},
		{"Cat", "Animal", false},
	} {
		if err := rt.DeclareType(d.name, d.parent, d.abstract); err != nil {
			t.Fatal(err)
		}
	}

	if err := rt.Bind("speak", func(d Dog) string {
		return fmt.Sprintf("%s (%d) barks", d.Name, d.Age)
	}); err != nil {
		t.Fatal(err)
	}
	if err := rt.Define("speak", `
params: [{name: a, type: Animal}]
body: "..."
`); err != nil {
		t.Fatal(err)
	}
	if err := rt.Bind("rename", func(d *Dog, name string) Dog {
		d.Name = name
		return *d
	}); err != nil {
		t.Fatal(err)
	}

	res, err := rt.Call("speak", Dog{Name: "Rex", Age: 3, note: "ignored"})
	if err != nil || res != "Rex (3) barks" {
		t.Errorf("speak(Dog) = %v, %v", res, err)
	}
	res, err = rt.Call("speak", Cat{Name: "Tom"})
	if err != nil || res != "..." {
		t.Errorf("speak(Cat) = %v, %v", res, err)
	}

	res, err = rt.Call("rename", &Dog{Name: "Rex"}, "Max")
	if err != nil {
		t.Fatal(err)
	}
	in, ok := res.(dispatch.Instance)
	if !ok || in.Type != "Dog" || in.Fields["Name"] != "Max" || in.Fields["age"] != 0 {
		t.Errorf("rename = %#v", res)
	}

	// undeclared struct types cannot be passed
	type Fish struct{}
	if _, err := rt.Call("speak", Fish{}); !errors.Is(err, dispatch.ErrRuntime) {
		t.Errorf("speak(Fish) error = %v, want RuntimeError", err)
	}
}

func TestBindSignatures(t *testing.T) {
	rt := newRuntime(t)

	if err := rt.Bind("sum", func(xs ...int) int {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total
	}); err != nil {
		t.Fatal(err)
	}
	if err := rt.Bind("first", func(ctx context.Context, x interface{}, rest ...interface{}) interface{} {
		if ctx == nil {
			return "no context"
		}
		return x
	}); err != nil {
		t.Fatal(err)
	}
	if err := rt.Bind("divmod", func(a, b int) (int, int, error) {
		if b == 0 {
			return 0, 0, errors.New("division by zero")
		}
		return a / b, a % b, nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := rt.Bind("real", func(x float64) string { return "real" }, "Real"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		fn   string
		args []interface{}
		want interface{}
	}{
		{"sum", nil, 0},
		{"sum", []interface{}{1, 2, 3}, 6},
		{"first", []interface{}{"a", 1, 2}, "a"},
		{"divmod", []interface{}{7, 2}, []interface{}{3, 1}},
		{"real", []interface{}{3}, "real"},
		{"real", []interface{}{2.5}, "real"},
	}
	for _, tt := range tests {
		got, err := rt.Call(tt.fn, tt.args...)
		if err != nil {
			t.Errorf("%s%v: %v", tt.fn, tt.args, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s%v = %#v, want %#v", tt.fn, tt.args, got, tt.want)
		}
	}

	_, err := rt.Call("divmod", 1, 0)
	var he *dispatch.HostError
	if !errors.Is(err, dispatch.ErrRuntime) || !errors.As(err, &he) || he.Err.Error() != "division by zero" {
		t.Errorf("divmod(1, 0) error = %v", err)
	}

	if err := rt.Bind("bad", 42); err == nil {
		t.Error("expected error binding a non-function")
	}
	if err := rt.Bind("bad", func(x int) {}, "Int", "Int"); err == nil {
		t.Error("expected error for too many parameter types")
	}
	if err := rt.Bind("bad", func(x int) {}, "Nope"); !errors.Is(err, dispatch.ErrDefinition) {
		t.Errorf("unknown type error = %v, want DefinitionError", err)
	}
}

func TestAmbiguousBindings(t *testing.T) {
	rt := newRuntime(t)
	rt.Bind("f", func(a int, b interface{}) string { return "left" })
	rt.Bind("f", func(a interface{}, b int) string { return "right" })

	_, err := rt.Call("f", 1, 2)
	if !errors.Is(err, dispatch.ErrAmbiguous) {
		t.Errorf("f(1, 2) error = %v, want AmbiguousMethodError", err)
	}
	if got, err := rt.Call("f", 1, "x"); err != nil || got != "left" {
		t.Errorf("f(1, x) = %v, %v", got, err)
	}

	amb, err := rt.Ambiguities("f")
	if err != nil || len(amb) != 1 {
		t.Errorf("Ambiguities(f) = %v, %v", amb, err)
	}
	if _, err := rt.Ambiguities("nope"); !errors.Is(err, dispatch.ErrName) {
		t.Errorf("Ambiguities(nope) error = %v", err)
	}
}

func TestEvalAndGlobals(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	if err := rt.Set("base", 10); err != nil {
		t.Fatal(err)
	}
	if err := rt.Define("area", `
params: [{name: w, type: Real}]
keywords: [{name: h, default: base}]
body: {call: "*", args: [w, h]}
`); err != nil {
		t.Fatal(err)
	}

	got, err := rt.Eval(ctx, `{call: area, args: [3]}`)
	if err != nil || got != 30 {
		t.Errorf("area(3) = %v, %v", got, err)
	}
	got, err = rt.CallKw(ctx, "area", []interface{}{2}, map[string]interface{}{"h": 0.5})
	if err != nil || got != 1.0 {
		t.Errorf("area(2; h=0.5) = %v, %v", got, err)
	}
	_, err = rt.CallKw(ctx, "area", []interface{}{2}, map[string]interface{}{"depth": 1})
	if !errors.Is(err, dispatch.ErrArgument) {
		t.Errorf("unknown keyword error = %v, want ArgumentError", err)
	}

	got, err = rt.Eval(ctx, `{tuple: [1, "a", {char: "z"}, true, {nothing: true}]}`)
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{1, "a", dispatch.Char('z'), true, nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tuple = %#v, want %#v", got, want)
	}

	if v, err := rt.Get("base"); err != nil || v != 10 {
		t.Errorf("Get(base) = %v, %v", v, err)
	}
	if _, err := rt.Get("missing"); !errors.Is(err, dispatch.ErrName) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if _, err := rt.Eval(ctx, `{call: area, args: [`); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadWorld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	world := `
types:
  - {name: Shape, abstract: true}
  - {name: Square, parent: Shape}
functions:
  - name: side
    methods:
      - params: [{name: s, type: Square}]
        body: {field: side, of: s}
`
	if err := os.WriteFile(path, []byte(world), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := newRuntime(t)
	if err := rt.LoadWorld(context.Background(), path); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	got, err := rt.Call("side", dispatch.Instance{Type: "Square", Fields: map[string]interface{}{"side": 4}})
	if err != nil || got != 4 {
		t.Errorf("side(Square) = %v, %v", got, err)
	}

	found := false
	for _, fn := range rt.Functions() {
		if fn == "side" {
			found = true
		}
	}
	if !found {
		t.Errorf("Functions() = %v, missing side", rt.Functions())
	}
}

func TestOptions(t *testing.T) {
	rt := newRuntime(t, dispatch.WithMaxDepth(20), dispatch.WithoutCache())
	if err := rt.Define("loop", `
params: [n]
body: {call: loop, args: [n]}
`); err != nil {
		t.Fatal(err)
	}
	_, err := rt.Call("loop", 1)
	if !errors.Is(err, dispatch.ErrRuntime) || !strings.Contains(err.Error(), "20") {
		t.Errorf("loop error = %v, want depth RuntimeError", err)
	}

	dir := t.TempDir()
	cfg := filepath.Join(dir, "dispatch.yaml")
	if err := os.WriteFile(cfg, []byte("dispatch:\n  max_depth: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt2 := newRuntime(t, dispatch.WithConfigFile(cfg))
	rt2.Define("loop", "params: [n]\nbody: {call: loop, args: [n]}\n")
	if _, err := rt2.Call("loop", 1); err == nil || !strings.Contains(err.Error(), "7") {
		t.Errorf("config depth error = %v", err)
	}

	if _, err := dispatch.New(dispatch.WithConfigFile(filepath.Join(dir, "missing.yaml"))); err == nil {
		t.Error("expected error for missing config file")
	}
	for _, n := range []int{0, -1} {
		if _, err := dispatch.New(dispatch.WithMaxDepth(n)); err == nil {
			t.Errorf("WithMaxDepth(%d): expected error", n)
		}
	}

	rt.Close()
	if _, err := rt.Call("loop", 1); !errors.Is(err, dispatch.ErrRuntime) {
		t.Errorf("call after Close = %v", err)
	}
}

func snapshot(t *testing.T, path string, declare func(rt *evaluator.Runtime) error) {
	t.Helper()
	ctx := context.Background()
	src, err := evaluator.NewRuntime(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if err := declare(src); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Snapshot(ctx, src); err != nil {
		t.Fatal(err)
	}
}

func TestWithCatalog(t *testing.T) {
	dir := t.TempDir()
	shapes := filepath.Join(dir, "shapes.db")
	snapshot(t, shapes, func(rt *evaluator.Runtime) error {
		if _, err := rt.DeclareType("Shape", "", true); err != nil {
			return err
		}
		_, err := rt.DeclareType("Square", "Shape", false)
		return err
	})

	rt := newRuntime(t, dispatch.WithCatalog(shapes))
	if err := rt.Define("side", "params: [{name: s, type: Shape}]\nbody: {field: side, of: s}\n"); err != nil {
		t.Fatal(err)
	}
	got, err := rt.Call("side", dispatch.Instance{Type: "Square", Fields: map[string]interface{}{"side": 2}})
	if err != nil || got != 2 {
		t.Errorf("side(Square) = %v, %v", got, err)
	}

	// MyInt under the concrete Int can only come from an edited catalog
	bad := filepath.Join(dir, "bad.db")
	snapshot(t, bad, func(rt *evaluator.Runtime) error {
		_, err := rt.Types().RegisterNamed("MyInt", "Int", false)
		return err
	})
	if _, err := dispatch.New(dispatch.WithCatalog(bad)); !errors.Is(err, dispatch.ErrDefinition) {
		t.Errorf("New(WithCatalog(bad)) error = %v, want DefinitionError", err)
	}
}

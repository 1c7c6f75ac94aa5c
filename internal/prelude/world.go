// Package prelude loads world files: YAML documents declaring types,
// global bindings and generic function methods for a runtime.
//
// A world file looks like:
//
//	types:
//	  - name: Shape
//	    abstract: true
//	  - name: Square
//	    parent: Shape
//
//	globals:
//	  - name: unit
//	    value: {int: 1}
//
//	functions:
//	  - name: area
//	    methods:
//	      - params: [{name: s, type: Square}]
//	        keywords: [{name: scale, default: unit}]
//	        body: {call: "*", args: [{field: side, of: s}, scale]}
//
// Method bodies are expression trees, not source text; see Expr.
package prelude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/evaluator"
)

// World is a decoded world file.
type World struct {
	// Types are declared in order, so parents must come first.
	Types []TypeDecl `yaml:"types"`

	// Globals are evaluated after every method is defined.
	Globals []Global `yaml:"globals"`

	Functions []Function `yaml:"functions"`

	path string
}

type TypeDecl struct {
	Name string `yaml:"name"`

	// Parent defaults to Any.
	Parent string `yaml:"parent,omitempty"`

	Abstract bool `yaml:"abstract,omitempty"`
}

type Global struct {
	Name  string `yaml:"name"`
	Value Expr   `yaml:"value"`
}

type Function struct {
	Name    string   `yaml:"name"`
	Methods []Method `yaml:"methods"`
}

// Method is one method definition. Keywords must all carry a default.
type Method struct {
	Params   []Param `yaml:"params,omitempty"`
	Variadic *Param  `yaml:"variadic,omitempty"`
	Keywords []Param `yaml:"keywords,omitempty"`
	Body     Expr    `yaml:"body"`
}

// Param is a formal parameter. A bare scalar is shorthand for an untyped
// parameter of that name.
type Param struct {
	Name string `yaml:"name"`

	// Type is the bound type name, empty for unconstrained.
	Type string `yaml:"type,omitempty"`

	// Var names a type parameter; parameters sharing it must receive
	// arguments of identical type. Type, when set, bounds it.
	Var string `yaml:"var,omitempty"`

	Default *Expr `yaml:"default,omitempty"`
}

func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Name = node.Value
		return nil
	}
	type plain Param
	return node.Decode((*plain)(p))
}

// Path is the file the world was loaded from, if any.
func (w *World) Path() string { return w.path }

// LoadWorld reads and validates a world file.
func LoadWorld(path string) (*World, error) {
	if !slices.Contains(config.WorldFileExtensions, filepath.Ext(path)) {
		return nil, fmt.Errorf("%s: world files must end in %v", path, config.WorldFileExtensions)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading world %s: %w", path, err)
	}
	return ParseWorld(data, path)
}

// ParseWorld decodes a world from YAML. path is used in error messages.
func ParseWorld(data []byte, path string) (*World, error) {
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	w.path = path
	if err := w.validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// validate checks structure only. Type names and signature rules are
// enforced by the runtime when the world is applied.
func (w *World) validate() error {
	path := w.path
	seen := make(map[string]bool)
	for i, t := range w.Types {
		if t.Name == "" {
			return fmt.Errorf("%s: types[%d]: name is required", path, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("%s: types[%d]: %s declared twice", path, i, t.Name)
		}
		seen[t.Name] = true
	}
	for i, g := range w.Globals {
		if g.Name == "" {
			return fmt.Errorf("%s: globals[%d]: name is required", path, i)
		}
		if g.Value.IsZero() {
			return fmt.Errorf("%s: globals[%d] (%s): value is required", path, i, g.Name)
		}
	}
	for i, fn := range w.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%s: functions[%d]: name is required", path, i)
		}
		if len(fn.Methods) == 0 {
			return fmt.Errorf("%s: functions[%d] (%s): at least one method is required", path, i, fn.Name)
		}
		for j, m := range fn.Methods {
			if m.Body.IsZero() {
				return fmt.Errorf("%s: functions[%d].methods[%d] (%s): body is required", path, i, j, fn.Name)
			}
			for _, p := range m.Params {
				if p.Name == "" {
					return fmt.Errorf("%s: functions[%d].methods[%d] (%s): parameter name is required", path, i, j, fn.Name)
				}
			}
		}
	}
	return nil
}

// Summary reports what Apply installed.
type Summary struct {
	Types   int
	Globals int
	Methods []evaluator.MethodHandle
}

// Apply installs the world into rt: types first, then methods, then
// globals. It stops at the first error.
func (w *World) Apply(ctx context.Context, rt *evaluator.Runtime) (*Summary, error) {
	sum := &Summary{}
	for i, t := range w.Types {
		if _, err := rt.DeclareType(t.Name, t.Parent, t.Abstract); err != nil {
			return sum, fmt.Errorf("%s: types[%d]: %w", w.path, i, err)
		}
		sum.Types++
	}
	for i, fn := range w.Functions {
		for j, m := range fn.Methods {
			params, body, err := m.compile()
			if err != nil {
				return sum, fmt.Errorf("%s: functions[%d].methods[%d] (%s): %w", w.path, i, j, fn.Name, err)
			}
			h, err := rt.DefineMethod(fn.Name, params, body)
			if err != nil {
				return sum, fmt.Errorf("%s: functions[%d].methods[%d] (%s): %w", w.path, i, j, fn.Name, err)
			}
			sum.Methods = append(sum.Methods, h)
		}
	}
	for i, g := range w.Globals {
		expr, err := g.Value.AST()
		if err != nil {
			return sum, fmt.Errorf("%s: globals[%d] (%s): %w", w.path, i, g.Name, err)
		}
		val, err := rt.Eval(ctx, expr)
		if err != nil {
			return sum, fmt.Errorf("%s: globals[%d] (%s): %w", w.path, i, g.Name, err)
		}
		rt.Global().Set(g.Name, val)
		sum.Globals++
	}
	return sum, nil
}

func (m *Method) compile() (*ast.ParameterList, ast.Expression, error) {
	pl := &ast.ParameterList{}
	for _, p := range m.Params {
		ap, err := p.compile()
		if err != nil {
			return nil, nil, err
		}
		pl.Positional = append(pl.Positional, ap)
	}
	if m.Variadic != nil {
		ap, err := m.Variadic.compile()
		if err != nil {
			return nil, nil, err
		}
		pl.Variadic = ap
	}
	for _, k := range m.Keywords {
		ap, err := k.compile()
		if err != nil {
			return nil, nil, err
		}
		pl.Keywords = append(pl.Keywords, ap)
	}
	body, err := m.Body.AST()
	if err != nil {
		return nil, nil, err
	}
	return pl, body, nil
}

func (p *Param) compile() (*ast.Parameter, error) {
	ap := &ast.Parameter{Name: p.Name, Type: ast.TypeAnnotation{Name: p.Type, Var: p.Var}}
	if p.Default != nil {
		def, err := p.Default.AST()
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", p.Name, err)
		}
		ap.Default = def
	}
	return ap, nil
}

// ParseExpr decodes a single YAML expression, e.g. `{call: f, args: [1]}`.
func ParseExpr(src string) (ast.Expression, error) {
	var e Expr
	if err := yaml.Unmarshal([]byte(src), &e); err != nil {
		return nil, fmt.Errorf("parsing expression: %w", err)
	}
	if e.IsZero() {
		return nil, fmt.Errorf("empty expression")
	}
	return e.AST()
}

// ParseMethod decodes one YAML method entry, the same shape as an item of
// a function's methods list.
func ParseMethod(src string) (*ast.ParameterList, ast.Expression, error) {
	var m Method
	if err := yaml.Unmarshal([]byte(src), &m); err != nil {
		return nil, nil, fmt.Errorf("parsing method: %w", err)
	}
	if m.Body.IsZero() {
		return nil, nil, fmt.Errorf("method body is required")
	}
	return m.compile()
}

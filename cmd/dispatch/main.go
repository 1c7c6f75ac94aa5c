package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/catalog"
	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/evaluator"
	"github.com/funvibe/dispatch/internal/prelude"
	"github.com/funvibe/dispatch/internal/rpc"
)

const usage = `Usage: dispatch <command> [arguments]

Commands:
  run <world> [fn [args...] [name=value...]]
                                 load a world and call fn (default: main)
  methods <world> [function]     list the methods of one or all generic functions
  types <world>                  print the type hierarchy
  ambiguities <world>            report method pairs that can be ambiguous
  snapshot <world> [catalog]     save types and methods to a SQLite catalog
  catalog <catalog> [function...]
                                 print the types and methods stored in a catalog
  serve <world> [addr]           serve the runtime over gRPC
  schema [out.protoset]          print the gRPC schema or write it as a descriptor set
  help                           show this message

A world of "-" is read from stdin. Settings come from the nearest
dispatch.yaml; DISPATCH_LOG_LEVEL overrides log.level.
`

var colorErrors = os.Getenv("NO_COLOR") == "" &&
	(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))

func fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if colorErrors {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	log.Print(msg)
	os.Exit(1)
}

// session is a runtime with a world applied.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	rt     *evaluator.Runtime
	world  *prelude.World
}

func loadConfig() *config.Config {
	wd, err := os.Getwd()
	if err != nil {
		fatalf("Error: %s", err)
	}
	cfg, _, err := config.FindAndLoad(wd)
	if err != nil {
		fatalf("Error loading config: %s", err)
	}
	if lvl := os.Getenv("DISPATCH_LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
		if err := cfg.Validate(); err != nil {
			fatalf("Error: DISPATCH_LOG_LEVEL: %s", err)
		}
	}
	return cfg
}

func readWorld(path string) (*prelude.World, error) {
	if path != "-" {
		return prelude.LoadWorld(path)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return prelude.ParseWorld(data, "<stdin>")
}

func openSession(ctx context.Context, path string) *session {
	cfg := loadConfig()
	logger := cfg.Logger(os.Stderr)
	w, err := readWorld(path)
	if err != nil {
		fatalf("Error: %s", err)
	}
	rt, err := evaluator.NewRuntime(cfg, logger)
	if err != nil {
		fatalf("Error: %s", err)
	}
	sum, err := w.Apply(ctx, rt)
	if err != nil {
		fatalf("%s", err)
	}
	logger.Info("world loaded", "path", path, "types", sum.Types, "globals", sum.Globals, "methods", len(sum.Methods))
	return &session{cfg: cfg, logger: logger, rt: rt, world: w}
}

func worldArg(cmd string) string {
	if len(os.Args) < 3 {
		fatalf("Usage: %s %s <world> ...", os.Args[0], cmd)
	}
	return os.Args[2]
}

func handleHelp() bool {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "help", "-help", "--help", "-h":
		fmt.Print(usage)
		return true
	}
	return false
}

var keywordArg = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// callExpr builds fn(args...; kwargs...) from command-line words. Each
// argument is a YAML expression; name=value words are keywords.
func callExpr(fn string, words []string) (ast.Expression, error) {
	call := ast.Call(fn)
	for _, w := range words {
		if m := keywordArg.FindStringSubmatch(w); m != nil {
			val, err := prelude.ParseExpr(m[2])
			if err != nil {
				return nil, fmt.Errorf("keyword %s: %w", m[1], err)
			}
			call.Kw(m[1], val)
			continue
		}
		arg, err := prelude.ParseExpr(w)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", w, err)
		}
		call.Arguments = append(call.Arguments, arg)
	}
	return call, nil
}

func handleRun(ctx context.Context) bool {
	if os.Args[1] != "run" {
		return false
	}
	s := openSession(ctx, worldArg("run"))
	defer s.rt.Close()

	fn, words := "main", []string(nil)
	if len(os.Args) > 3 {
		fn, words = os.Args[3], os.Args[4:]
	}
	expr, err := callExpr(fn, words)
	if err != nil {
		fatalf("Error: %s", err)
	}
	result, err := s.rt.Eval(ctx, expr)
	if err != nil {
		fatalf("%s", err)
	}
	fmt.Println(result.Inspect())
	return true
}

func handleMethods(ctx context.Context) bool {
	if os.Args[1] != "methods" {
		return false
	}
	s := openSession(ctx, worldArg("methods"))
	defer s.rt.Close()

	names := s.rt.Functions()
	if len(os.Args) > 3 {
		names = os.Args[3:]
	}
	for _, name := range names {
		methods, err := s.rt.ListMethods(name)
		if err != nil {
			fatalf("%s", err)
		}
		fmt.Printf("%s: %d method(s)\n", name, len(methods))
		for _, m := range methods {
			kind := ""
			if m.Native {
				kind = " [builtin]"
			}
			fmt.Printf("  %s%s\n", m.Text, kind)
		}
	}
	return true
}

func handleTypes(ctx context.Context) bool {
	if os.Args[1] != "types" {
		return false
	}
	s := openSession(ctx, worldArg("types"))
	defer s.rt.Close()

	h := s.rt.Types()
	for _, t := range h.Types() {
		indent := strings.Repeat("  ", t.Depth())
		suffix := ""
		if t.Abstract {
			suffix = " (abstract)"
		}
		fmt.Printf("%s%s%s\n", indent, t.Name, suffix)
	}
	return true
}

func handleAmbiguities(ctx context.Context) bool {
	if os.Args[1] != "ambiguities" {
		return false
	}
	s := openSession(ctx, worldArg("ambiguities"))
	defer s.rt.Close()

	found := 0
	for _, name := range s.rt.Functions() {
		pairs, err := s.rt.Ambiguities(name)
		if err != nil {
			fatalf("%s", err)
		}
		for _, p := range pairs {
			fmt.Printf("%s\n  %s\n  %s\n", name, p.A, p.B)
			found++
		}
	}
	if found > 0 {
		os.Exit(1)
	}
	return true
}

func handleSnapshot(ctx context.Context) bool {
	if os.Args[1] != "snapshot" {
		return false
	}
	s := openSession(ctx, worldArg("snapshot"))
	defer s.rt.Close()

	path := s.cfg.Catalog.Path
	if len(os.Args) > 3 {
		path = os.Args[3]
	}
	if path == "" {
		fatalf("Error: no catalog path; pass one or set catalog.path in %s", config.ConfigFileName)
	}
	c, err := catalog.Open(ctx, path)
	if err != nil {
		fatalf("Error: %s", err)
	}
	defer c.Close()
	if err := c.Snapshot(ctx, s.rt); err != nil {
		fatalf("Error: %s", err)
	}
	s.logger.Info("snapshot written", "catalog", path, "types", s.rt.Types().Len(), "functions", len(s.rt.Functions()))
	return true
}

// printCatalog writes the stored types, then the methods of names or of
// every stored function when names is empty.
func printCatalog(ctx context.Context, w io.Writer, c *catalog.Catalog, names []string) error {
	types, err := c.Types(ctx)
	if err != nil {
		return err
	}
	for _, t := range types {
		line := t.Name
		if t.Parent != "" {
			line += " <: " + t.Parent
		}
		if t.Abstract {
			line += " (abstract)"
		}
		fmt.Fprintln(w, line)
	}

	if len(names) == 0 {
		if names, err = c.Functions(ctx); err != nil {
			return err
		}
	}
	for _, name := range names {
		methods, err := c.Methods(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d method(s)\n", name, len(methods))
		for _, m := range methods {
			kind := ""
			if m.Native {
				kind = " [builtin]"
			}
			fmt.Fprintf(w, "  %s%s\n", m.Signature, kind)
		}
	}
	return nil
}

func handleCatalog(ctx context.Context) bool {
	if os.Args[1] != "catalog" {
		return false
	}
	if len(os.Args) < 3 {
		fatalf("Usage: %s catalog <catalog> [function...]", os.Args[0])
	}
	path := os.Args[2]
	// Open would create an empty catalog
	if _, err := os.Stat(path); err != nil {
		fatalf("Error: %s", err)
	}
	c, err := catalog.Open(ctx, path)
	if err != nil {
		fatalf("Error: %s", err)
	}
	defer c.Close()
	if err := printCatalog(ctx, os.Stdout, c, os.Args[3:]); err != nil {
		fatalf("Error: %s", err)
	}
	return true
}

func handleServe(ctx context.Context) bool {
	if os.Args[1] != "serve" {
		return false
	}
	s := openSession(ctx, worldArg("serve"))
	defer s.rt.Close()

	addr := s.cfg.Server.Addr
	if len(os.Args) > 3 {
		addr = os.Args[3]
	}
	srv, err := rpc.NewServer(s.rt, s.logger)
	if err != nil {
		fatalf("Error: %s", err)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		fatalf("Error: %s", err)
	}
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	if err := srv.Serve(lis); err != nil {
		fatalf("Error: %s", err)
	}
	return true
}

func handleSchema() bool {
	if os.Args[1] != "schema" {
		return false
	}
	if len(os.Args) < 3 {
		fmt.Print(rpc.Source())
		return true
	}
	data, err := rpc.DescriptorSet()
	if err != nil {
		fatalf("Error: %s", err)
	}
	if err := os.WriteFile(os.Args[2], data, 0o644); err != nil {
		fatalf("Error: %s", err)
	}
	return true
}

func main() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)

	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fatalf("Internal error: %v\nThis is a bug. Please report it.", r)
		}
	}()

	if handleHelp() || handleSchema() {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, handle := range []func(context.Context) bool{
		handleRun,
		handleMethods,
		handleTypes,
		handleAmbiguities,
		handleSnapshot,
		handleCatalog,
		handleServe,
	} {
		if handle(ctx) {
			return
		}
	}
	fatalf("Unknown command: %s\n%s", os.Args[1], usage)
}

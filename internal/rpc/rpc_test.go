package rpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/dispatch/internal/ast"
	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/evaluator"
)

func startServer(t *testing.T) (*evaluator.Runtime, *Client) {
	t.Helper()
	rt, err := evaluator.NewRuntime(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Close() })

	srv, err := NewServer(rt, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return rt, NewClient(conn)
}

func TestSchema(t *testing.T) {
	fd, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	sd := fd.FindService(ServiceName)
	if sd == nil || len(sd.GetMethods()) != 4 {
		t.Fatalf("service %s = %v", ServiceName, sd)
	}
	for _, name := range []string{"DeclareType", "ListTypes", "ListMethods", "Call"} {
		if _, err := method(name); err != nil {
			t.Errorf("method(%s): %v", name, err)
		}
	}
	if _, err := method("Nope"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestDescriptorSet(t *testing.T) {
	data, err := DescriptorSet()
	if err != nil {
		t.Fatal(err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(set.File) != 1 {
		t.Fatalf("files = %d, want 1", len(set.File))
	}
	f := set.File[0]
	if f.GetPackage() != "dispatch.v1" || len(f.GetService()) != 1 || f.GetService()[0].GetName() != "Dispatch" {
		t.Errorf("descriptor = %s %v", f.GetPackage(), f.GetService())
	}
	for _, m := range f.GetMessageType() {
		if m.GetName() != "Value" {
			continue
		}
		for _, fld := range m.GetField() {
			if fld.GetName() == "int_value" && fld.GetType() != descriptorpb.FieldDescriptorProto_TYPE_INT64 {
				t.Errorf("int_value type = %v", fld.GetType())
			}
		}
	}
}

func TestRemoteCall(t *testing.T) {
	_, c := startServer(t)
	ctx := context.Background()

	tests := []struct {
		fn   string
		args []Value
		want string
	}{
		{"+", []Value{Int(2), Int(3)}, "5"},
		{"+", []Value{Int(2), Float(0.5)}, "2.5"},
		{"<", []Value{Str("a"), Str("b")}, "true"},
		{"tuple", []Value{Int(1), Str("x")}, `Tuple[1 "x"]`},
		{"typeof", []Value{Nothing()}, `"Nothing"`},
	}
	for _, tt := range tests {
		got, err := c.Call(ctx, tt.fn, tt.args)
		if err != nil {
			t.Errorf("%s%v: %v", tt.fn, tt.args, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("%s%v = %s, want %s", tt.fn, tt.args, got, tt.want)
		}
	}
}

func TestRemoteTypesAndInstances(t *testing.T) {
	rt, c := startServer(t)
	ctx := context.Background()

	if _, err := c.DeclareType(ctx, "Shape", "", true); err != nil {
		t.Fatal(err)
	}
	id, err := c.DeclareType(ctx, "Square", "Shape", false)
	if err != nil || id == 0 {
		t.Fatalf("DeclareType(Square) = %d, %v", id, err)
	}
	if _, err := c.DeclareType(ctx, "Square", "Shape", false); status.Code(err) != codes.AlreadyExists {
		t.Errorf("redeclare code = %v, want AlreadyExists", status.Code(err))
	}
	if _, err := c.DeclareType(ctx, "Blob", "Missing", false); status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown parent code = %v, want InvalidArgument", status.Code(err))
	}

	types, err := c.ListTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var square *TypeInfo
	for i := range types {
		if types[i].Name == "Square" {
			square = &types[i]
		}
	}
	if square == nil || square.Parent != "Shape" || square.Abstract {
		t.Errorf("Square in ListTypes = %+v", square)
	}

	if _, err := rt.DefineMethod("side", ast.Params(ast.Param("s", "Square")),
		&ast.FieldAccess{Object: ast.Ident("s"), Field: "side"}); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.DefineMethod("grow", ast.Params(ast.Param("s", "Square")), ast.Ident("s")); err != nil {
		t.Fatal(err)
	}

	sq := Value{Type: "Square", Fields: []Field{{Name: "side", Value: Int(4)}}}
	got, err := c.Call(ctx, "side", []Value{sq})
	if err != nil || got.Int != 4 {
		t.Errorf("side(Square) = %v, %v", got, err)
	}
	got, err = c.Call(ctx, "grow", []Value{sq})
	if err != nil || got.Type != "Square" || len(got.Fields) != 1 || got.Fields[0].Value.Int != 4 {
		t.Errorf("grow(Square) = %+v, %v", got, err)
	}

	_, err = c.Call(ctx, "side", []Value{{Type: "Shape"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("abstract instance code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestRemoteKeywordsAndMethods(t *testing.T) {
	rt, c := startServer(t)
	ctx := context.Background()

	if _, err := rt.DefineMethod("scale", &ast.ParameterList{
		Positional: []*ast.Parameter{ast.Param("x", "Real")},
		Keywords:   []*ast.Parameter{{Name: "by", Default: ast.Int(2)}},
	}, ast.Call("*", ast.Ident("x"), ast.Ident("by"))); err != nil {
		t.Fatal(err)
	}

	got, err := c.Call(ctx, "scale", []Value{Int(5)})
	if err != nil || got.Int != 10 {
		t.Errorf("scale(5) = %v, %v", got, err)
	}
	got, err = c.Call(ctx, "scale", []Value{Int(5)}, Field{Name: "by", Value: Int(3)})
	if err != nil || got.Int != 15 {
		t.Errorf("scale(5; by=3) = %v, %v", got, err)
	}

	methods, err := c.ListMethods(ctx, "scale")
	if err != nil || len(methods) != 1 || methods[0].Native {
		t.Fatalf("ListMethods(scale) = %v, %v", methods, err)
	}
	local, _ := rt.ListMethods("scale")
	if methods[0].ID != local[0].ID.String() || methods[0].Signature != local[0].Text {
		t.Errorf("remote %+v does not match local %+v", methods[0], local[0])
	}

	plus, err := c.ListMethods(ctx, "+")
	if err != nil || len(plus) == 0 || !plus[0].Native {
		t.Errorf("ListMethods(+) = %v, %v", plus, err)
	}
}

func TestRemoteErrors(t *testing.T) {
	rt, c := startServer(t)
	ctx := context.Background()

	rt.DefineMethod("f", ast.Params(ast.Param("x", "Int"), ast.Param("y", "")), ast.Int(1))
	rt.DefineMethod("f", ast.Params(ast.Param("x", ""), ast.Param("y", "Int")), ast.Int(2))

	tests := []struct {
		name string
		fn   string
		args []Value
		kw   []Field
		code codes.Code
		kind diagnostics.Kind
	}{
		{"ambiguous", "f", []Value{Int(1), Int(2)}, nil, codes.FailedPrecondition, diagnostics.KindAmbiguous},
		{"no method", "f", []Value{Str("a"), Str("b")}, nil, codes.NotFound, diagnostics.KindNoMethod},
		{"unknown function", "nope", nil, nil, codes.NotFound, diagnostics.KindName},
		{"unknown keyword", "f", []Value{Int(1), Str("b")}, []Field{{Name: "k", Value: Int(1)}}, codes.InvalidArgument, diagnostics.KindArgument},
		{"negative power", "^", []Value{Int(2), Int(-1)}, nil, codes.Internal, diagnostics.KindRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Call(ctx, tt.fn, tt.args, tt.kw...)
			if status.Code(err) != tt.code {
				t.Errorf("code = %v, want %v (%v)", status.Code(err), tt.code, err)
			}
			if k := Kind(err); k != tt.kind {
				t.Errorf("Kind = %v, want %v", k, tt.kind)
			}
		})
	}

	if _, err := c.ListMethods(ctx, "nope"); status.Code(err) != codes.NotFound {
		t.Errorf("ListMethods(nope) code = %v", status.Code(err))
	}
}

func TestValueConversion(t *testing.T) {
	rt, err := evaluator.NewRuntime(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	tests := []struct {
		in   Value
		want string
	}{
		{Int(-3), "-3"},
		{Str("hi"), `"hi"`},
		{Value{Type: "Char", Str: "λ"}, `'λ'`},
		{Bool(true), "true"},
		{Value{}, "nothing"},
		{Tuple(Int(1), Tuple()), "(1, ())"},
	}
	for _, tt := range tests {
		obj, err := toObject(rt, tt.in)
		if err != nil {
			t.Errorf("toObject(%v): %v", tt.in, err)
			continue
		}
		if obj.Inspect() != tt.want {
			t.Errorf("toObject(%v) = %s, want %s", tt.in, obj.Inspect(), tt.want)
		}
	}

	if _, err := toObject(rt, Value{Type: "Char", Str: "ab"}); err == nil {
		t.Error("expected error for two-character Char")
	}
	if _, err := toObject(rt, Value{Type: "Int32"}); err == nil {
		t.Error("expected error for unknown type")
	}

	fn, _ := rt.Global().Get("+")
	v := fromObject(rt, fn)
	if v.Type != "Function" || v.Str == "" {
		t.Errorf("fromObject(+) = %+v", v)
	}
}

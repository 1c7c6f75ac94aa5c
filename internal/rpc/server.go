package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/evaluator"
	"github.com/funvibe/dispatch/internal/typesystem"
)

type handlerFunc func(ctx context.Context, in *dynamic.Message, out *dynamic.Message) error

// Server serves one runtime over the Dispatch service.
type Server struct {
	rt       *evaluator.Runtime
	log      *slog.Logger
	sd       *desc.ServiceDescriptor
	srv      *grpc.Server
	handlers map[string]handlerFunc
}

// NewServer registers the Dispatch service for rt on a new grpc.Server.
// Every call is logged through logger.
func NewServer(rt *evaluator.Runtime, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	sd, err := service()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = rt.Logger()
	}
	s := &Server{rt: rt, log: logger, sd: sd}
	s.handlers = map[string]handlerFunc{
		"DeclareType": s.declareType,
		"ListTypes":   s.listTypes,
		"ListMethods": s.listMethods,
		"Call":        s.call,
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(s.logCalls))
	s.srv = grpc.NewServer(opts...)

	gd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
		Metadata:    sd.GetFile().GetName(),
	}
	for _, m := range sd.GetMethods() {
		md := m
		gd.Methods = append(gd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				h := srv.(*Server)
				in := dynamic.NewMessage(md.GetInputType())
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return h.handle(ctx, md, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(md.GetName())}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.handle(ctx, md, req.(*dynamic.Message))
				})
			},
		})
	}
	s.srv.RegisterService(gd, s)
	return s, nil
}

// GRPC exposes the underlying server, e.g. to register reflection.
func (s *Server) GRPC() *grpc.Server { return s.srv }

// Serve accepts connections on lis until Stop or GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("serving", "service", ServiceName, "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

func (s *Server) GracefulStop() { s.srv.GracefulStop() }

func (s *Server) Stop() { s.srv.Stop() }

func (s *Server) handle(ctx context.Context, md *desc.MethodDescriptor, in *dynamic.Message) (interface{}, error) {
	h, ok := s.handlers[md.GetName()]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", md.GetName())
	}
	out := dynamic.NewMessage(md.GetOutputType())
	if err := h(ctx, in, out); err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
	if err != nil {
		s.log.Warn("call failed", append(attrs, "code", status.Code(err).String(), "error", err)...)
	} else {
		s.log.Debug("call", attrs...)
	}
	return resp, err
}

func (s *Server) declareType(_ context.Context, in, out *dynamic.Message) error {
	name := in.GetFieldByName("name").(string)
	if name == "" {
		return status.Error(codes.InvalidArgument, "type name is required")
	}
	if _, exists := s.rt.Types().Lookup(name); exists {
		return status.Errorf(codes.AlreadyExists, "type %s is already declared", name)
	}
	id, err := s.rt.DeclareType(name, in.GetFieldByName("parent").(string), in.GetFieldByName("abstract").(bool))
	if err != nil {
		return err
	}
	out.SetFieldByName("id", int32(id))
	return nil
}

func (s *Server) listTypes(_ context.Context, _, out *dynamic.Message) error {
	h := s.rt.Types()
	infoMD := out.GetMessageDescriptor().FindFieldByName("types").GetMessageType()
	for _, t := range h.Types() {
		info := dynamic.NewMessage(infoMD)
		info.SetFieldByName("id", int32(t.ID))
		info.SetFieldByName("name", t.Name)
		if t.Parent != typesystem.NoType {
			info.SetFieldByName("parent", h.Name(t.Parent))
		}
		info.SetFieldByName("abstract", t.Abstract)
		out.AddRepeatedFieldByName("types", info)
	}
	return nil
}

func (s *Server) listMethods(_ context.Context, in, out *dynamic.Message) error {
	methods, err := s.rt.ListMethods(in.GetFieldByName("function").(string))
	if err != nil {
		return err
	}
	infoMD := out.GetMessageDescriptor().FindFieldByName("methods").GetMessageType()
	for _, m := range methods {
		info := dynamic.NewMessage(infoMD)
		info.SetFieldByName("id", m.ID.String())
		info.SetFieldByName("signature", m.Text)
		info.SetFieldByName("native", m.Native)
		out.AddRepeatedFieldByName("methods", info)
	}
	return nil
}

func (s *Server) call(ctx context.Context, in, out *dynamic.Message) error {
	name := in.GetFieldByName("function").(string)

	var args []evaluator.Object
	raw, _ := in.GetFieldByName("args").([]interface{})
	for i, r := range raw {
		m, err := asMessage(r)
		if err != nil {
			return err
		}
		obj, err := s.decodeObject(m)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "argument %d: %v", i+1, err)
		}
		args = append(args, obj)
	}

	var kwargs []evaluator.KeywordValue
	raw, _ = in.GetFieldByName("kwargs").([]interface{})
	for _, r := range raw {
		m, err := asMessage(r)
		if err != nil {
			return err
		}
		f, err := decodeField(m)
		if err != nil {
			return err
		}
		obj, err := toObject(s.rt, f.Value)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "keyword %s: %v", f.Name, err)
		}
		kwargs = append(kwargs, evaluator.KeywordValue{Name: f.Name, Value: obj})
	}

	result, err := s.rt.Call(ctx, name, args, kwargs)
	if err != nil {
		return err
	}
	valueMD := out.GetMessageDescriptor().FindFieldByName("result").GetMessageType()
	out.SetFieldByName("result", encodeValue(valueMD, fromObject(s.rt, result)))
	return nil
}

func (s *Server) decodeObject(m *dynamic.Message) (evaluator.Object, error) {
	v, err := decodeValue(m)
	if err != nil {
		return nil, err
	}
	return toObject(s.rt, v)
}

// toStatus maps runtime errors onto gRPC codes. Errors that already carry
// a status pass through.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	var code codes.Code
	switch diagnostics.KindOf(err) {
	case diagnostics.KindNoMethod, diagnostics.KindName:
		code = codes.NotFound
	case diagnostics.KindAmbiguous:
		code = codes.FailedPrecondition
	case diagnostics.KindArity, diagnostics.KindArgument, diagnostics.KindType, diagnostics.KindDefinition:
		code = codes.InvalidArgument
	case diagnostics.KindRuntime:
		code = codes.Internal
	default:
		code = codes.Unknown
	}
	return status.Error(code, err.Error())
}

// Kind recovers the runtime error kind from an error returned by a
// Dispatch client. It is zero when the message carries no kind prefix.
func Kind(err error) diagnostics.Kind {
	st, ok := status.FromError(err)
	if !ok {
		return diagnostics.KindOf(err)
	}
	for k := diagnostics.KindDefinition; k <= diagnostics.KindRuntime; k++ {
		if strings.HasPrefix(st.Message(), k.String()+":") {
			return k
		}
	}
	return 0
}

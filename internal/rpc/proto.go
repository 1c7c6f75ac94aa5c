// Package rpc exposes a runtime over gRPC. The service schema is parsed
// from source at startup and messages are handled dynamically, so no
// generated code is involved.
package rpc

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

const protoFile = "dispatch/v1/dispatch.proto"

const protoSource = `syntax = "proto3";

package dispatch.v1;

message Value {
  string type = 1;
  int64 int_value = 2;
  double float_value = 3;
  string str_value = 4;
  bool bool_value = 5;
  repeated Value items = 6;
  repeated Field fields = 7;
}

message Field {
  string name = 1;
  Value value = 2;
}

message DeclareTypeRequest {
  string name = 1;
  string parent = 2;
  bool abstract = 3;
}

message DeclareTypeResponse {
  int32 id = 1;
}

message ListTypesRequest {}

message TypeInfo {
  int32 id = 1;
  string name = 2;
  string parent = 3;
  bool abstract = 4;
}

message ListTypesResponse {
  repeated TypeInfo types = 1;
}

message ListMethodsRequest {
  string function = 1;
}

message MethodInfo {
  string id = 1;
  string signature = 2;
  bool native = 3;
}

message ListMethodsResponse {
  repeated MethodInfo methods = 1;
}

message CallRequest {
  string function = 1;
  repeated Value args = 2;
  repeated Field kwargs = 3;
}

message CallResponse {
  Value result = 1;
}

service Dispatch {
  rpc DeclareType(DeclareTypeRequest) returns (DeclareTypeResponse);
  rpc ListTypes(ListTypesRequest) returns (ListTypesResponse);
  rpc ListMethods(ListMethodsRequest) returns (ListMethodsResponse);
  rpc Call(CallRequest) returns (CallResponse);
}
`

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dispatch.v1.Dispatch"

var (
	schemaOnce sync.Once
	schemaFile *desc.FileDescriptor
	schemaErr  error
)

// Schema returns the parsed service file descriptor.
func Schema() (*desc.FileDescriptor, error) {
	schemaOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{protoFile: protoSource}),
		}
		fds, err := parser.ParseFiles(protoFile)
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse proto: %w", err)
			return
		}
		schemaFile = fds[0]
	})
	return schemaFile, schemaErr
}

// Source returns the service definition as .proto text.
func Source() string { return protoSource }

// DescriptorSet encodes the schema as a FileDescriptorSet, the format
// grpcurl and similar tools accept through -protoset.
func DescriptorSet() ([]byte, error) {
	fd, err := Schema()
	if err != nil {
		return nil, err
	}
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{fd.AsFileDescriptorProto()},
	}
	return proto.Marshal(set)
}

func service() (*desc.ServiceDescriptor, error) {
	fd, err := Schema()
	if err != nil {
		return nil, err
	}
	sd := fd.FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in schema", ServiceName)
	}
	return sd, nil
}

func method(name string) (*desc.MethodDescriptor, error) {
	sd, err := service()
	if err != nil {
		return nil, err
	}
	md := sd.FindMethodByName(name)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in %s", name, ServiceName)
	}
	return md, nil
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

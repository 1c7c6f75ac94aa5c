package rpc

import (
	"context"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
)

// TypeInfo is one entry of ListTypes. Parent is empty for a root.
type TypeInfo struct {
	ID       int32
	Name     string
	Parent   string
	Abstract bool
}

// MethodInfo is one entry of ListMethods.
type MethodInfo struct {
	ID        string
	Signature string
	Native    bool
}

// Client talks to a Dispatch server over an established connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// invoke builds the request for name with fill, sends it and returns the
// decoded response.
func (c *Client) invoke(ctx context.Context, name string, fill func(*dynamic.Message)) (*dynamic.Message, error) {
	md, err := method(name)
	if err != nil {
		return nil, err
	}
	req := dynamic.NewMessage(md.GetInputType())
	if fill != nil {
		fill(req)
	}
	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, fullMethod(name), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DeclareType(ctx context.Context, name, parent string, abstract bool) (int32, error) {
	resp, err := c.invoke(ctx, "DeclareType", func(req *dynamic.Message) {
		req.SetFieldByName("name", name)
		req.SetFieldByName("parent", parent)
		req.SetFieldByName("abstract", abstract)
	})
	if err != nil {
		return 0, err
	}
	return resp.GetFieldByName("id").(int32), nil
}

func (c *Client) ListTypes(ctx context.Context) ([]TypeInfo, error) {
	resp, err := c.invoke(ctx, "ListTypes", nil)
	if err != nil {
		return nil, err
	}
	raw, _ := resp.GetFieldByName("types").([]interface{})
	out := make([]TypeInfo, 0, len(raw))
	for _, r := range raw {
		m, err := asMessage(r)
		if err != nil {
			return nil, err
		}
		out = append(out, TypeInfo{
			ID:       m.GetFieldByName("id").(int32),
			Name:     m.GetFieldByName("name").(string),
			Parent:   m.GetFieldByName("parent").(string),
			Abstract: m.GetFieldByName("abstract").(bool),
		})
	}
	return out, nil
}

func (c *Client) ListMethods(ctx context.Context, function string) ([]MethodInfo, error) {
	resp, err := c.invoke(ctx, "ListMethods", func(req *dynamic.Message) {
		req.SetFieldByName("function", function)
	})
	if err != nil {
		return nil, err
	}
	raw, _ := resp.GetFieldByName("methods").([]interface{})
	out := make([]MethodInfo, 0, len(raw))
	for _, r := range raw {
		m, err := asMessage(r)
		if err != nil {
			return nil, err
		}
		out = append(out, MethodInfo{
			ID:        m.GetFieldByName("id").(string),
			Signature: m.GetFieldByName("signature").(string),
			Native:    m.GetFieldByName("native").(bool),
		})
	}
	return out, nil
}

// Call invokes function remotely with positional args and keyword kwargs.
func (c *Client) Call(ctx context.Context, function string, args []Value, kwargs ...Field) (Value, error) {
	resp, err := c.invoke(ctx, "Call", func(req *dynamic.Message) {
		req.SetFieldByName("function", function)
		valueMD := req.GetMessageDescriptor().FindFieldByName("args").GetMessageType()
		for _, a := range args {
			req.AddRepeatedFieldByName("args", encodeValue(valueMD, a))
		}
		fieldMD := req.GetMessageDescriptor().FindFieldByName("kwargs").GetMessageType()
		for _, kw := range kwargs {
			req.AddRepeatedFieldByName("kwargs", encodeField(fieldMD, kw))
		}
	})
	if err != nil {
		return Value{}, err
	}
	m, err := asMessage(resp.GetFieldByName("result"))
	if err != nil {
		return Value{}, err
	}
	return decodeValue(m)
}

package rpc

import (
	"fmt"
	"sort"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/funvibe/dispatch/internal/config"
	"github.com/funvibe/dispatch/internal/evaluator"
)

// Value is the wire form of a runtime value. Type names the runtime type;
// only the payload field matching it is meaningful. Instances of user
// types carry Fields; tuples carry Items. Function values travel as their
// printed form in Str.
type Value struct {
	Type   string
	Int    int64
	Float  float64
	Str    string
	Bool   bool
	Items  []Value
	Fields []Field
}

// Field is a named value: an instance field or a keyword argument.
type Field struct {
	Name  string
	Value Value
}

func Int(v int64) Value { return Value{Type: config.IntTypeName, Int: v} }

func Float(v float64) Value { return Value{Type: config.FloatTypeName, Float: v} }

func Str(v string) Value { return Value{Type: config.StringTypeName, Str: v} }

func Bool(v bool) Value { return Value{Type: config.BoolTypeName, Bool: v} }

func Nothing() Value { return Value{Type: config.NothingTypeName} }

func Tuple(items ...Value) Value { return Value{Type: config.TupleTypeName, Items: items} }

func (v Value) String() string {
	switch v.Type {
	case config.IntTypeName:
		return fmt.Sprintf("%d", v.Int)
	case config.FloatTypeName:
		return fmt.Sprintf("%g", v.Float)
	case config.StringTypeName:
		return fmt.Sprintf("%q", v.Str)
	case config.BoolTypeName:
		return fmt.Sprintf("%t", v.Bool)
	case config.NothingTypeName:
		return "nothing"
	}
	return fmt.Sprintf("%s%v", v.Type, v.Items)
}

func encodeValue(md *desc.MessageDescriptor, v Value) *dynamic.Message {
	msg := dynamic.NewMessage(md)
	msg.SetFieldByName("type", v.Type)
	if v.Int != 0 {
		msg.SetFieldByName("int_value", v.Int)
	}
	if v.Float != 0 {
		msg.SetFieldByName("float_value", v.Float)
	}
	if v.Str != "" {
		msg.SetFieldByName("str_value", v.Str)
	}
	if v.Bool {
		msg.SetFieldByName("bool_value", true)
	}
	for _, it := range v.Items {
		msg.AddRepeatedFieldByName("items", encodeValue(md, it))
	}
	fieldMD := md.FindFieldByName("fields").GetMessageType()
	for _, f := range v.Fields {
		msg.AddRepeatedFieldByName("fields", encodeField(fieldMD, f))
	}
	return msg
}

func encodeField(md *desc.MessageDescriptor, f Field) *dynamic.Message {
	msg := dynamic.NewMessage(md)
	msg.SetFieldByName("name", f.Name)
	msg.SetFieldByName("value", encodeValue(md.FindFieldByName("value").GetMessageType(), f.Value))
	return msg
}

// asMessage converts a nested message field value. Unset message fields
// come back nil.
func asMessage(v interface{}) (*dynamic.Message, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case *dynamic.Message:
		return m, nil
	}
	return nil, fmt.Errorf("unexpected message value %T", v)
}

func decodeValue(msg *dynamic.Message) (Value, error) {
	if msg == nil {
		return Nothing(), nil
	}
	v := Value{
		Type:  msg.GetFieldByName("type").(string),
		Int:   msg.GetFieldByName("int_value").(int64),
		Float: msg.GetFieldByName("float_value").(float64),
		Str:   msg.GetFieldByName("str_value").(string),
		Bool:  msg.GetFieldByName("bool_value").(bool),
	}
	items, _ := msg.GetFieldByName("items").([]interface{})
	for _, raw := range items {
		m, err := asMessage(raw)
		if err != nil {
			return v, err
		}
		it, err := decodeValue(m)
		if err != nil {
			return v, err
		}
		v.Items = append(v.Items, it)
	}
	fields, _ := msg.GetFieldByName("fields").([]interface{})
	for _, raw := range fields {
		m, err := asMessage(raw)
		if err != nil {
			return v, err
		}
		f, err := decodeField(m)
		if err != nil {
			return v, err
		}
		v.Fields = append(v.Fields, f)
	}
	return v, nil
}

func decodeField(msg *dynamic.Message) (Field, error) {
	inner, err := asMessage(msg.GetFieldByName("value"))
	if err != nil {
		return Field{}, err
	}
	v, err := decodeValue(inner)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: msg.GetFieldByName("name").(string), Value: v}, nil
}

// toObject converts a wire value into a runtime value. Unknown type names
// are treated as instances of declared types.
func toObject(rt *evaluator.Runtime, v Value) (evaluator.Object, error) {
	switch v.Type {
	case config.IntTypeName:
		return &evaluator.Integer{Value: v.Int}, nil
	case config.FloatTypeName:
		return &evaluator.Float{Value: v.Float}, nil
	case config.StringTypeName:
		return &evaluator.String{Value: v.Str}, nil
	case config.CharTypeName:
		r := []rune(v.Str)
		if len(r) != 1 {
			return nil, fmt.Errorf("char value must hold one character, got %q", v.Str)
		}
		return &evaluator.Char{Value: r[0]}, nil
	case config.BoolTypeName:
		if v.Bool {
			return evaluator.TRUE, nil
		}
		return evaluator.FALSE, nil
	case config.NothingTypeName, "":
		return evaluator.NOTHING, nil
	case config.TupleTypeName:
		items := make([]evaluator.Object, len(v.Items))
		for i, it := range v.Items {
			obj, err := toObject(rt, it)
			if err != nil {
				return nil, err
			}
			items[i] = obj
		}
		return evaluator.NewTuple(items), nil
	}
	fields := make(map[string]evaluator.Object, len(v.Fields))
	for _, f := range v.Fields {
		obj, err := toObject(rt, f.Value)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = obj
	}
	in, err := rt.NewInstance(v.Type, fields)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func fromObject(rt *evaluator.Runtime, obj evaluator.Object) Value {
	switch o := obj.(type) {
	case *evaluator.Integer:
		return Int(o.Value)
	case *evaluator.Float:
		return Float(o.Value)
	case *evaluator.String:
		return Str(o.Value)
	case *evaluator.Char:
		return Value{Type: config.CharTypeName, Str: string(o.Value)}
	case *evaluator.Boolean:
		return Bool(o.Value)
	case *evaluator.Nothing:
		return Nothing()
	case *evaluator.Tuple:
		items := make([]Value, o.Len())
		for i := range items {
			items[i] = fromObject(rt, o.At(i))
		}
		return Tuple(items...)
	case *evaluator.Instance:
		names := make([]string, 0, len(o.Fields))
		for k := range o.Fields {
			names = append(names, k)
		}
		sort.Strings(names)
		v := Value{Type: o.TypeName}
		for _, k := range names {
			v.Fields = append(v.Fields, Field{Name: k, Value: fromObject(rt, o.Fields[k])})
		}
		return v
	}
	return Value{Type: rt.TypeName(obj), Str: obj.Inspect()}
}

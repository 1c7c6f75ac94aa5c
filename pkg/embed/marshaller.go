package dispatch

import (
	"fmt"
	"reflect"

	"github.com/funvibe/dispatch/internal/evaluator"
)

// Char is a single character value. Plain runes convert as Int.
type Char rune

// Instance is a value of a declared type as seen from Go.
type Instance struct {
	Type   string
	Fields map[string]interface{}
}

var (
	charType     = reflect.TypeOf(Char(0))
	instanceType = reflect.TypeOf(Instance{})
	objectType   = reflect.TypeOf((*evaluator.Object)(nil)).Elem()
)

// Marshaller handles conversion between Go and runtime values. Instances
// need the runtime to resolve their types.
type Marshaller struct {
	rt *evaluator.Runtime
}

func NewMarshaller(rt *evaluator.Runtime) *Marshaller {
	return &Marshaller{rt: rt}
}

// ToValue converts a Go value to a runtime Object. Structs become
// instances of the declared type with the struct's name; a `dispatch`
// field tag renames a field and "-" skips it.
func (m *Marshaller) ToValue(val interface{}) (evaluator.Object, error) {
	if val == nil {
		return evaluator.NOTHING, nil
	}
	if obj, ok := val.(evaluator.Object); ok {
		return obj, nil
	}

	switch x := val.(type) {
	case Char:
		return &evaluator.Char{Value: rune(x)}, nil
	case Instance:
		return m.instance(x)
	case *Instance:
		if x == nil {
			return evaluator.NOTHING, nil
		}
		return m.instance(*x)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &evaluator.Integer{Value: v.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &evaluator.Integer{Value: int64(v.Uint())}, nil
	case reflect.Float32, reflect.Float64:
		return &evaluator.Float{Value: v.Float()}, nil
	case reflect.Bool:
		if v.Bool() {
			return evaluator.TRUE, nil
		}
		return evaluator.FALSE, nil
	case reflect.String:
		return &evaluator.String{Value: v.String()}, nil
	case reflect.Slice, reflect.Array:
		return m.sliceToTuple(v)
	case reflect.Struct:
		return m.structToInstance(v)
	case reflect.Ptr:
		if v.IsNil() {
			return evaluator.NOTHING, nil
		}
		return m.ToValue(v.Elem().Interface())
	}
	return nil, fmt.Errorf("unsupported Go type %s", v.Type())
}

func (m *Marshaller) instance(in Instance) (evaluator.Object, error) {
	fields := make(map[string]evaluator.Object, len(in.Fields))
	for k, fv := range in.Fields {
		obj, err := m.ToValue(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = obj
	}
	obj, err := m.rt.NewInstance(in.Type, fields)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (m *Marshaller) sliceToTuple(v reflect.Value) (*evaluator.Tuple, error) {
	elements := make([]evaluator.Object, v.Len())
	for i := range elements {
		val, err := m.ToValue(v.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		elements[i] = val
	}
	return evaluator.NewTuple(elements), nil
}

func (m *Marshaller) structToInstance(v reflect.Value) (evaluator.Object, error) {
	t := v.Type()
	fields := make(map[string]evaluator.Object)
	for i := 0; i < v.NumField(); i++ {
		name, ok := fieldName(t.Field(i))
		if !ok {
			continue
		}
		val, err := m.ToValue(v.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = val
	}
	obj, err := m.rt.NewInstance(t.Name(), fields)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func fieldName(f reflect.StructField) (string, bool) {
	if f.PkgPath != "" {
		return "", false
	}
	switch tag := f.Tag.Get("dispatch"); tag {
	case "-":
		return "", false
	case "":
		return f.Name, true
	default:
		return tag, true
	}
}

// FromValue converts an Object to a Go value. targetType is optional;
// without it integers become int, tuples []interface{} and instances
// Instance.
func (m *Marshaller) FromValue(obj evaluator.Object, targetType reflect.Type) (interface{}, error) {
	if targetType == nil {
		return m.natural(obj)
	}
	v, err := m.fromValue(obj, targetType)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (m *Marshaller) natural(obj evaluator.Object) (interface{}, error) {
	switch o := obj.(type) {
	case nil, *evaluator.Nothing:
		return nil, nil
	case *evaluator.Integer:
		return int(o.Value), nil
	case *evaluator.Float:
		return o.Value, nil
	case *evaluator.String:
		return o.Value, nil
	case *evaluator.Char:
		return Char(o.Value), nil
	case *evaluator.Boolean:
		return o.Value, nil
	case *evaluator.Tuple:
		out := make([]interface{}, o.Len())
		for i := range out {
			val, err := m.natural(o.At(i))
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case *evaluator.Instance:
		in := Instance{Type: o.TypeName, Fields: make(map[string]interface{}, len(o.Fields))}
		for k, fv := range o.Fields {
			val, err := m.natural(fv)
			if err != nil {
				return nil, err
			}
			in.Fields[k] = val
		}
		return in, nil
	}
	// functions stay opaque
	return obj, nil
}

// fromValue converts obj to a value assignable to target.
func (m *Marshaller) fromValue(obj evaluator.Object, target reflect.Type) (reflect.Value, error) {
	if target == objectType {
		return reflect.ValueOf(&obj).Elem(), nil
	}
	if target.Kind() == reflect.Interface {
		val, err := m.natural(obj)
		if err != nil {
			return reflect.Value{}, err
		}
		if val == nil {
			return reflect.Zero(target), nil
		}
		rv := reflect.ValueOf(val)
		if !rv.Type().AssignableTo(target) {
			return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), target)
		}
		return rv, nil
	}
	if _, ok := obj.(*evaluator.Nothing); ok {
		switch target.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map:
			return reflect.Zero(target), nil
		}
	}

	out := reflect.New(target).Elem()
	switch o := obj.(type) {
	case *evaluator.Integer:
		switch target.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if out.OverflowInt(o.Value) {
				return out, fmt.Errorf("%d overflows %s", o.Value, target)
			}
			out.SetInt(o.Value)
			return out, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if o.Value < 0 || out.OverflowUint(uint64(o.Value)) {
				return out, fmt.Errorf("%d overflows %s", o.Value, target)
			}
			out.SetUint(uint64(o.Value))
			return out, nil
		case reflect.Float32, reflect.Float64:
			out.SetFloat(float64(o.Value))
			return out, nil
		}
	case *evaluator.Float:
		switch target.Kind() {
		case reflect.Float32, reflect.Float64:
			out.SetFloat(o.Value)
			return out, nil
		}
	case *evaluator.String:
		if target.Kind() == reflect.String {
			out.SetString(o.Value)
			return out, nil
		}
	case *evaluator.Char:
		switch target.Kind() {
		case reflect.Int32:
			out.SetInt(int64(o.Value))
			return out, nil
		case reflect.String:
			out.SetString(string(o.Value))
			return out, nil
		}
	case *evaluator.Boolean:
		if target.Kind() == reflect.Bool {
			out.SetBool(o.Value)
			return out, nil
		}
	case *evaluator.Tuple:
		return m.tupleTo(o, target)
	case *evaluator.Instance:
		return m.instanceTo(o, target)
	}
	return out, fmt.Errorf("cannot convert %s to %s", m.rt.TypeName(obj), target)
}

func (m *Marshaller) tupleTo(t *evaluator.Tuple, target reflect.Type) (reflect.Value, error) {
	switch target.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(target, t.Len(), t.Len())
		for i := 0; i < t.Len(); i++ {
			ev, err := m.fromValue(t.At(i), target.Elem())
			if err != nil {
				return out, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Array:
		out := reflect.New(target).Elem()
		if t.Len() != target.Len() {
			return out, fmt.Errorf("tuple of %d elements does not fit %s", t.Len(), target)
		}
		for i := 0; i < t.Len(); i++ {
			ev, err := m.fromValue(t.At(i), target.Elem())
			if err != nil {
				return out, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert Tuple to %s", target)
}

func (m *Marshaller) instanceTo(in *evaluator.Instance, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.Ptr {
		ev, err := m.instanceTo(in, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(ev)
		return p, nil
	}
	if target == instanceType {
		val, err := m.natural(in)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(val), nil
	}
	if target.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", in.TypeName, target)
	}
	out := reflect.New(target).Elem()
	for i := 0; i < target.NumField(); i++ {
		name, ok := fieldName(target.Field(i))
		if !ok {
			continue
		}
		fv, present := in.Fields[name]
		if !present {
			continue
		}
		ev, err := m.fromValue(fv, target.Field(i).Type)
		if err != nil {
			return out, fmt.Errorf("field %s: %w", name, err)
		}
		out.Field(i).Set(ev)
	}
	return out, nil
}

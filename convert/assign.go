package convert

import (
	"encoding/json"
	"reflect"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wippyai/webbind"
	"github.com/wippyai/webbind/errors"
)

var (
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
	bytesType       = reflect.TypeOf([]byte(nil))
	emptyStructType = reflect.TypeOf(struct{}{})
	recordType      = reflect.TypeOf(map[string]any(nil))
	structpbType    = reflect.TypeOf((*structpb.Struct)(nil))
	loaderType      = reflect.TypeOf((*webbind.RecordLoader)(nil)).Elem()
	recorderType    = reflect.TypeOf((*webbind.Recorder)(nil)).Elem()
)

// ClassOf resolves a Go type to a registered class name.
type ClassOf func(reflect.Type) (string, bool)

// TypeOf derives the conversion rule for a Go parameter or result type.
func TypeOf(rt reflect.Type, classOf ClassOf) (Type, error) {
	if classOf != nil {
		if name, ok := classOf(rt); ok {
			return Handle{Class: name}, nil
		}
	}
	if rt == structpbType || rt.Implements(recorderType) || reflect.PointerTo(rt).Implements(loaderType) {
		return Record{}, nil
	}

	switch rt.Kind() {
	case reflect.Bool:
		return Bool{}, nil
	case reflect.String:
		return String{}, nil
	case reflect.Int8:
		return Int{Bits: 8, Signed: true}, nil
	case reflect.Int16:
		return Int{Bits: 16, Signed: true}, nil
	case reflect.Int32:
		return Int{Bits: 32, Signed: true}, nil
	case reflect.Int, reflect.Int64:
		return Int{Bits: 64, Signed: true}, nil
	case reflect.Uint8:
		return Int{Bits: 8}, nil
	case reflect.Uint16:
		return Int{Bits: 16}, nil
	case reflect.Uint32:
		return Int{Bits: 32}, nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return Int{Bits: 64}, nil
	case reflect.Float32:
		return Float{Bits: 32}, nil
	case reflect.Float64:
		return Float{Bits: 64}, nil
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			return Bytes{}, nil
		}
		elem, err := TypeOf(rt.Elem(), classOf)
		if err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case reflect.Map:
		if rt.Elem() == emptyStructType || rt.Elem().Kind() == reflect.Bool {
			elem, err := TypeOf(rt.Key(), classOf)
			if err != nil {
				return nil, err
			}
			return Set{Elem: elem}, nil
		}
		if rt.Key().Kind() != reflect.String {
			return nil, errors.Unsupported(errors.PhaseRegister, "map key type "+rt.Key().String())
		}
		if rt.Elem() == anyType {
			return Record{}, nil
		}
		value, err := TypeOf(rt.Elem(), classOf)
		if err != nil {
			return nil, err
		}
		return Map{Value: value}, nil
	case reflect.Pointer:
		switch rt.Elem().Kind() {
		case reflect.Struct:
			return Record{}, nil
		default:
			elem, err := TypeOf(rt.Elem(), classOf)
			if err != nil {
				return nil, err
			}
			return Optional{Elem: elem}, nil
		}
	case reflect.Struct:
		return Record{}, nil
	case reflect.Func:
		return Func{}, nil
	case reflect.Interface:
		if rt.NumMethod() == 0 {
			return JSON{}, nil
		}
		return nil, errors.Unsupported(errors.PhaseRegister, "interface type "+rt.String())
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, "Go type "+rt.String())
	}
}

// Assign turns a canonical native value into a value of Go type rt.
func Assign(v any, rt reflect.Type) (reflect.Value, error) {
	return assign(v, rt, nil)
}

func assign(v any, rt reflect.Type, path []string) (reflect.Value, error) {
	if isNil(v) {
		return reflect.Zero(rt), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(rt) {
		return rv, nil
	}

	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := checkInt(v, Int{Bits: rt.Bits(), Signed: true}, path, errors.PhaseToNative)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rt).Elem()
		out.SetInt(n.(int64))
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := checkInt(v, Int{Bits: rt.Bits()}, path, errors.PhaseToNative)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rt).Elem()
		out.SetUint(n.(uint64))
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, err := checkFloat(v, Float{Bits: rt.Bits()}, path, errors.PhaseToNative)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rt).Elem()
		out.SetFloat(f.(float64))
		return out, nil
	case reflect.String, reflect.Bool:
		if rv.Type().ConvertibleTo(rt) && rv.Kind() == rt.Kind() {
			return rv.Convert(rt), nil
		}
	case reflect.Slice:
		if rt == bytesType {
			b, err := toBytes(v, path)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b), nil
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(rt, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := assign(rv.Index(i).Interface(), rt.Elem(), appendPath(path, strconv.Itoa(i)))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(item)
		}
		return out, nil
	case reflect.Map:
		return assignMap(v, rv, rt, path)
	case reflect.Pointer:
		if rt == structpbType {
			rec, err := asRecord(v, path, errors.PhaseToNative)
			if err != nil {
				return reflect.Value{}, err
			}
			s, err := structpb.NewStruct(rec)
			if err != nil {
				return reflect.Value{}, errors.New(errors.PhaseToNative, errors.KindInvalidArguments).
					Path(path...).
					Cause(err).
					Build()
			}
			return reflect.ValueOf(s), nil
		}
		if rt.Implements(loaderType) {
			rec, err := asRecord(v, path, errors.PhaseToNative)
			if err != nil {
				return reflect.Value{}, err
			}
			out := reflect.New(rt.Elem())
			if err := out.Interface().(webbind.RecordLoader).FromRecord(rec); err != nil {
				return reflect.Value{}, errors.New(errors.PhaseToNative, errors.KindInvalidArguments).
					Path(path...).
					Cause(err).
					Build()
			}
			return out, nil
		}
		if rt.Elem().Kind() == reflect.Struct {
			return viaJSON(v, rt, path)
		}
		inner, err := assign(v, rt.Elem(), path)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rt.Elem())
		out.Elem().Set(inner)
		return out, nil
	case reflect.Struct:
		return viaJSON(v, rt, path)
	case reflect.Interface:
		if rv.Type().Implements(rt) {
			out := reflect.New(rt).Elem()
			out.Set(rv)
			return out, nil
		}
	}

	return reflect.Value{}, mismatch(errors.PhaseToNative, path, v, rt.String())
}

func assignMap(v any, rv reflect.Value, rt reflect.Type, path []string) (reflect.Value, error) {
	// set idiom from a canonical []any
	if rv.Kind() == reflect.Slice && (rt.Elem() == emptyStructType || rt.Elem().Kind() == reflect.Bool) {
		out := reflect.MakeMapWithSize(rt, rv.Len())
		member := reflect.New(rt.Elem()).Elem()
		if rt.Elem().Kind() == reflect.Bool {
			member.SetBool(true)
		}
		for i := 0; i < rv.Len(); i++ {
			key, err := assign(rv.Index(i).Interface(), rt.Key(), appendPath(path, strconv.Itoa(i)))
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(key, member)
		}
		return out, nil
	}

	rec, err := asRecord(v, path, errors.PhaseToNative)
	if err != nil {
		return reflect.Value{}, err
	}
	if rt.Key().Kind() != reflect.String {
		return reflect.Value{}, mismatch(errors.PhaseToNative, path, v, rt.String())
	}
	if rt == recordType {
		return reflect.ValueOf(rec), nil
	}
	out := reflect.MakeMapWithSize(rt, len(rec))
	for k, item := range rec {
		val, err := assign(item, rt.Elem(), appendPath(path, k))
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(rt.Key()), val)
	}
	return out, nil
}

func viaJSON(v any, rt reflect.Type, path []string) (reflect.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, mismatch(errors.PhaseToNative, path, v, rt.String())
	}
	out := reflect.New(rt)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return reflect.Value{}, errors.New(errors.PhaseToNative, errors.KindInvalidArguments).
			Path(path...).
			GoType(rt.String()).
			Cause(err).
			Build()
	}
	return out.Elem(), nil
}

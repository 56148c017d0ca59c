package shape

import (
	"reflect"
	"strings"

	"github.com/wippyai/webbind"
)

// Kind is a bit set of host value shapes. A rule position accepts an
// argument when the argument's kind is in the set.
type Kind uint16

const (
	Null Kind = 1 << iota
	String
	Number
	Boolean
	Object // handle-bearing value: a proxy or a raw delegate
	Record // key-unique string-keyed mapping
	Array
	Function
	Bytes
)

// Any accepts every shape.
const Any = Null | String | Number | Boolean | Object | Record | Array | Function | Bytes

var kindNames = []struct {
	kind Kind
	name string
}{
	{Null, "null"},
	{String, "string"},
	{Number, "number"},
	{Boolean, "boolean"},
	{Object, "object"},
	{Record, "record"},
	{Array, "array"},
	{Function, "function"},
	{Bytes, "bytes"},
}

func (k Kind) String() string {
	if k == Any {
		return "any"
	}
	if k == 0 {
		return "none"
	}
	var parts []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Accepts reports whether an argument of kind actual satisfies k.
func (k Kind) Accepts(actual Kind) bool {
	return k&actual != 0
}

// mapper matches structured records such as *structpb.Struct.
type mapper interface {
	AsMap() map[string]any
}

// Of classifies a host value.
func Of(v any) Kind {
	switch v.(type) {
	case nil:
		return Null
	case string:
		return String
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Number
	case []byte:
		return Bytes
	case map[string]any:
		return Record
	case []any:
		return Array
	case webbind.Unwrapper:
		return Object
	case webbind.Recorder, mapper:
		return Record
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return Null
		}
		return Function
	case reflect.String:
		return String
	case reflect.Bool:
		return Boolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number
	case reflect.Slice:
		if rv.IsNil() {
			return Null
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes
		}
		return Array
	case reflect.Array:
		return Array
	case reflect.Map:
		if rv.IsNil() {
			return Null
		}
		if rv.Type().Key().Kind() == reflect.String {
			return Record
		}
		return Array
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return Object
	default:
		return Object
	}
}

// Describe renders the shapes of actual arguments.
func Describe(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Of(a).String()
	}
	return out
}

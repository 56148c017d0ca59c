package convert

import (
	"strconv"
	"strings"

	"github.com/wippyai/webbind/shape"
)

// Type is a conversion rule for one parameter or return value.
type Type interface {
	isType()
}

type (
	String struct{}
	Bool   struct{}
	Char   struct{}
	Bytes  struct{}
	JSON   struct{} // free-form value, normalised recursively
	Void   struct{}
	Func   struct{} // host callback, passed through untouched

	Int struct {
		Bits   int
		Signed bool
	}

	Float struct {
		Bits int
	}

	List struct {
		Elem Type
	}

	// Set is a list whose elements are unique by canonical JSON equality.
	Set struct {
		Elem Type
	}

	// Map keeps string keys verbatim.
	Map struct {
		Value Type
	}

	// Record is a key-unique string-keyed mapping. Without Fields every
	// value is normalised as JSON.
	Record struct {
		Fields []Field
	}

	Field struct {
		Name string
		Type Type
	}

	Enum struct {
		Cases []string
	}

	Handle struct {
		Class string
	}

	Optional struct {
		Elem Type
	}
)

func (String) isType()   {}
func (Bool) isType()     {}
func (Char) isType()     {}
func (Bytes) isType()    {}
func (JSON) isType()     {}
func (Void) isType()     {}
func (Func) isType()     {}
func (Int) isType()      {}
func (Float) isType()    {}
func (List) isType()     {}
func (Set) isType()      {}
func (Map) isType()      {}
func (Record) isType()   {}
func (Enum) isType()     {}
func (Handle) isType()   {}
func (Optional) isType() {}

// Shape returns the host shapes a rule accepts.
func Shape(t Type) shape.Kind {
	switch t := t.(type) {
	case String, Char, Enum:
		return shape.String
	case Bool:
		return shape.Boolean
	case Int, Float:
		return shape.Number
	case Bytes:
		return shape.Bytes | shape.Array
	case List, Set:
		return shape.Array
	case Map, Record:
		return shape.Record
	case Handle:
		return shape.Object
	case Func:
		return shape.Function
	case Optional:
		return Shape(t.Elem) | shape.Null
	case Void:
		return shape.Null
	default:
		return shape.Any
	}
}

// TypeString renders a rule the way signatures are printed.
func TypeString(t Type) string {
	switch t := t.(type) {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Char:
		return "char"
	case Bytes:
		return "bytes"
	case JSON:
		return "json"
	case Void:
		return "void"
	case Func:
		return "func"
	case Int:
		prefix := "u"
		if t.Signed {
			prefix = "s"
		}
		return prefix + strconv.Itoa(t.Bits)
	case Float:
		return "f" + strconv.Itoa(t.Bits)
	case List:
		return "list<" + TypeString(t.Elem) + ">"
	case Set:
		return "set<" + TypeString(t.Elem) + ">"
	case Map:
		return "map<string, " + TypeString(t.Value) + ">"
	case Record:
		if len(t.Fields) == 0 {
			return "record"
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + TypeString(f.Type)
		}
		return "record{" + strings.Join(parts, ", ") + "}"
	case Enum:
		return "enum{" + strings.Join(t.Cases, "|") + "}"
	case Handle:
		return "handle<" + t.Class + ">"
	case Optional:
		return "option<" + TypeString(t.Elem) + ">"
	case nil:
		return "<nil>"
	default:
		return "unknown"
	}
}

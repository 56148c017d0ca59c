package convert

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/webbind/errors"
)

// FromWIT maps a WIT type onto a conversion rule.
// Tuples, results and variants have no host shape of their own and become JSON.
func FromWIT(t wit.Type) (Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return Bool{}, nil
	case wit.U8:
		return Int{Bits: 8}, nil
	case wit.S8:
		return Int{Bits: 8, Signed: true}, nil
	case wit.U16:
		return Int{Bits: 16}, nil
	case wit.S16:
		return Int{Bits: 16, Signed: true}, nil
	case wit.U32:
		return Int{Bits: 32}, nil
	case wit.S32:
		return Int{Bits: 32, Signed: true}, nil
	case wit.U64:
		return Int{Bits: 64}, nil
	case wit.S64:
		return Int{Bits: 64, Signed: true}, nil
	case wit.F32:
		return Float{Bits: 32}, nil
	case wit.F64:
		return Float{Bits: 64}, nil
	case wit.Char:
		return Char{}, nil
	case wit.String:
		return String{}, nil
	case *wit.TypeDef:
		return fromTypeDef(t)
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, "WIT type "+typeName(t))
	}
}

func fromTypeDef(td *wit.TypeDef) (Type, error) {
	switch kind := td.Kind.(type) {
	case *wit.List:
		if _, ok := kind.Type.(wit.U8); ok {
			return Bytes{}, nil
		}
		elem, err := FromWIT(kind.Type)
		if err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case *wit.Option:
		elem, err := FromWIT(kind.Type)
		if err != nil {
			return nil, err
		}
		return Optional{Elem: elem}, nil
	case *wit.Record:
		fields := make([]Field, 0, len(kind.Fields))
		for _, f := range kind.Fields {
			ft, err := FromWIT(f.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: f.Name, Type: ft})
		}
		return Record{Fields: fields}, nil
	case *wit.Enum:
		cases := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = c.Name
		}
		return Enum{Cases: cases}, nil
	case *wit.Flags:
		return Set{Elem: String{}}, nil
	case *wit.Tuple:
		return List{Elem: JSON{}}, nil
	case *wit.Result, *wit.Variant:
		return JSON{}, nil
	case *wit.Own:
		return Handle{Class: defName(kind.Type)}, nil
	case *wit.Borrow:
		return Handle{Class: defName(kind.Type)}, nil
	case wit.Type:
		return FromWIT(kind)
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, "WIT typedef kind "+typeName(kind))
	}
}

func defName(td *wit.TypeDef) string {
	if td == nil || td.Name == nil {
		return ""
	}
	return *td.Name
}

package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a deterministic Protocol Buffers codec. Values that are
// not proto messages travel as google.protobuf.Value.
func Proto() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (p protoCodec) ContentType() string { return ContentTypeProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return p.mo.Marshal(msg)
	}
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %w", err)
	}
	return p.mo.Marshal(pv)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return p.uo.Unmarshal(data, msg)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("protobuf: target must be a non-nil pointer, got %T", v)
	}
	var pv structpb.Value
	if err := p.uo.Unmarshal(data, &pv); err != nil {
		return err
	}
	decoded := pv.AsInterface()
	if decoded == nil {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	dv := reflect.ValueOf(decoded)
	if !dv.Type().AssignableTo(rv.Elem().Type()) {
		return fmt.Errorf("protobuf: cannot decode %T into %s", decoded, rv.Elem().Type())
	}
	rv.Elem().Set(dv)
	return nil
}

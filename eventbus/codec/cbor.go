package codec

import (
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949, canonical encoding).
// Maps decode to map[string]any so bodies look the same as JSON ones.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

// MustCBOR is CBOR for the built-in options, which never fail.
func MustCBOR() Codec {
	c, err := CBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (c cborCodec) ContentType() string                { return ContentTypeCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

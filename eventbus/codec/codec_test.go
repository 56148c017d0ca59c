package codec

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	in := map[string]any{"n": 42, "nested": map[string]any{"ok": true}}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", out)
	}
	if rec["n"] != uint64(42) {
		t.Errorf("n = %#v", rec["n"])
	}
	if nested, ok := rec["nested"].(map[string]any); !ok || nested["ok"] != true {
		t.Errorf("nested = %#v", rec["nested"])
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR()
	a, _ := c.Marshal(map[string]any{"z": 1, "a": 2, "m": 3})
	b, _ := c.Marshal(map[string]any{"m": 3, "z": 1, "a": 2})
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding differs for equal maps")
	}
}

func TestProtoCodec(t *testing.T) {
	c := Proto()

	t.Run("message", func(t *testing.T) {
		s, err := structpb.NewStruct(map[string]any{"k": "v"})
		if err != nil {
			t.Fatalf("struct: %v", err)
		}
		b, err := c.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out structpb.Struct
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Fields["k"].GetStringValue() != "v" {
			t.Fatalf("roundtrip mismatch")
		}
	})

	t.Run("plain record", func(t *testing.T) {
		b, err := c.Marshal(map[string]any{"args": []any{"x", 2.0}})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out map[string]any
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		args := out["args"].([]any)
		if args[0] != "x" || args[1] != 2.0 {
			t.Errorf("args = %#v", args)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := c.Marshal(make(chan int)); err == nil {
			t.Error("channel should not encode")
		}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for name, want := range map[string]string{
		"json":                            ContentTypeJSON,
		"":                                ContentTypeJSON,
		"application/json; charset=utf-8": ContentTypeJSON,
		"cbor":                            ContentTypeCBOR,
		"proto":                           ContentTypeProto,
	} {
		c := r.Get(name)
		if c == nil || c.ContentType() != want {
			t.Errorf("Get(%q) = %v, want %s", name, c, want)
		}
	}
	if _, err := r.Lookup("text/plain"); err == nil {
		t.Error("unknown content type should fail")
	}
}

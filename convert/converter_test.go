package convert

import (
	"errors"
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"
	"google.golang.org/protobuf/types/known/structpb"

	werrors "github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/resource"
)

type router struct{ name string }

type routerProxy struct{ d *router }

func (p *routerProxy) Delegate() any { return p.d }

type testBinder struct{ wraps int }

func (b *testBinder) Wrap(d any, class string) (any, error) {
	b.wraps++
	return &routerProxy{d: d.(*router)}, nil
}

func (b *testBinder) Accepts(d any, class string) bool {
	_, ok := d.(*router)
	return ok && class == "Router"
}

func TestIntOverflow(t *testing.T) {
	c := New()
	tests := []struct {
		name string
		v    any
		t    Int
		want any
		err  bool
	}{
		{"s8 in range", 127, Int{Bits: 8, Signed: true}, int64(127), false},
		{"s8 overflow", 128, Int{Bits: 8, Signed: true}, nil, true},
		{"s8 underflow", -129, Int{Bits: 8, Signed: true}, nil, true},
		{"u8 negative", -1, Int{Bits: 8}, nil, true},
		{"u32 from float", 4096.0, Int{Bits: 32}, uint64(4096), false},
		{"fractional", 1.5, Int{Bits: 32, Signed: true}, nil, true},
		{"u64 max", uint64(1<<64 - 1), Int{Bits: 64}, uint64(1<<64 - 1), false},
		{"s64 from huge uint", uint64(1 << 63), Int{Bits: 64, Signed: true}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ToNative(tt.v, tt.t)
			if tt.err {
				var e *werrors.Error
				if !errors.As(err, &e) || e.Kind != werrors.KindOverflow {
					t.Fatalf("err = %v, want overflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestFloat32Overflow(t *testing.T) {
	if _, err := New().ToNative(1e39, Float{Bits: 32}); err == nil {
		t.Error("1e39 must overflow f32")
	}
	if v, err := New().ToNative(3, Float{Bits: 64}); err != nil || v != 3.0 {
		t.Errorf("got %v %v", v, err)
	}
}

func TestMismatchIsInvalidArguments(t *testing.T) {
	_, err := New().ToNative("ten", Int{Bits: 32, Signed: true})
	if !errors.Is(err, werrors.ErrInvalidArguments) {
		t.Fatalf("err = %v", err)
	}
	_, err = New().ToNative(nil, String{})
	if !errors.Is(err, werrors.ErrInvalidArguments) {
		t.Fatalf("nil for string: err = %v", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	c := New()
	r := map[string]any{
		"status": "UP",
		"data":   map[string]any{"free": int64(10), "ratio": 0.5},
		"tags":   []any{"a", "b"},
		"ok":     true,
	}
	native, err := c.ToNative(r, Record{})
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.ToHost(native, Record{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, r) {
		t.Errorf("round trip = %#v, want %#v", back, r)
	}

	native.(map[string]any)["status"] = "DOWN"
	if r["status"] != "UP" {
		t.Error("conversion must copy records")
	}
}

func TestRecordEdgeShapes(t *testing.T) {
	c := New()
	tests := []struct {
		name string
		rec  map[string]any
	}{
		{"empty key", map[string]any{"": "blank", "x": int64(1)}},
		{"empty record", map[string]any{}},
		{"empty nested record", map[string]any{"data": map[string]any{}}},
		{"deep nesting", map[string]any{
			"a": map[string]any{
				"b": map[string]any{
					"c": map[string]any{
						"d": []any{map[string]any{"e": "deep"}},
					},
				},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native, err := c.ToNative(tt.rec, Record{})
			if err != nil {
				t.Fatal(err)
			}
			back, err := c.ToHost(native, Record{})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(back, tt.rec) {
				t.Errorf("round trip = %#v, want %#v", back, tt.rec)
			}
		})
	}
}

func TestRecordSources(t *testing.T) {
	c := New()
	pb, err := structpb.NewStruct(map[string]any{"id": "disk"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.ToNative(pb, Record{})
	if err != nil {
		t.Fatal(err)
	}
	if got.(map[string]any)["id"] != "disk" {
		t.Errorf("structpb record = %v", got)
	}

	_, err = c.ToNative(map[string]any{"a": 1}, Record{Fields: []Field{{Name: "b", Type: String{}}}})
	if !errors.Is(err, werrors.ErrInvalidArguments) {
		t.Errorf("missing field err = %v", err)
	}
}

func TestSetDedup(t *testing.T) {
	c := New()
	got, err := c.ToNative([]any{
		map[string]any{"a": 1, "b": 2},
		map[string]any{"b": 2, "a": 1},
		"x", "x",
	}, Set{Elem: JSON{}})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got.([]any)); n != 2 {
		t.Errorf("set size = %d, want 2", n)
	}

	host, err := c.ToHost(map[string]struct{}{"a": {}, "b": {}}, Set{Elem: String{}})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(host.([]any)); n != 2 {
		t.Errorf("host set size = %d", n)
	}
}

func TestHandles(t *testing.T) {
	b := &testBinder{}
	cache := resource.NewCache()
	c := New(WithBinder(b), WithCache(cache))
	d := &router{name: "main"}

	t.Run("proxy unwraps", func(t *testing.T) {
		got, err := c.ToNative(&routerProxy{d: d}, Handle{Class: "Router"})
		if err != nil || got != d {
			t.Fatalf("got %v %v", got, err)
		}
	})

	t.Run("raw delegate accepted", func(t *testing.T) {
		got, err := c.ToNative(d, Handle{Class: "Router"})
		if err != nil || got != d {
			t.Fatalf("got %v %v", got, err)
		}
	})

	t.Run("wrong class rejected", func(t *testing.T) {
		_, err := c.ToNative("router", Handle{Class: "Router"})
		if !errors.Is(err, werrors.ErrInvalidArguments) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("cached accessor keeps identity", func(t *testing.T) {
		first, err := c.ToHostFrom(1, "request", d, Handle{Class: "Router"})
		if err != nil {
			t.Fatal(err)
		}
		second, _ := c.ToHostFrom(1, "request", d, Handle{Class: "Router"})
		if first != second {
			t.Error("cached accessor returned a different proxy")
		}
		fresh, _ := c.ToHost(d, Handle{Class: "Router"})
		if fresh == first {
			t.Error("uncached conversion must build a fresh proxy")
		}
	})
}

func TestCharAndBytes(t *testing.T) {
	c := New()
	r, err := c.ToNative("é", Char{})
	if err != nil || r != 'é' {
		t.Fatalf("char = %v %v", r, err)
	}
	if _, err := c.ToNative("ab", Char{}); err == nil {
		t.Error("two runes must not convert to char")
	}
	s, _ := c.ToHost('x', Char{})
	if s != "x" {
		t.Errorf("host char = %v", s)
	}
	b, err := c.ToNative([]any{1, 2, 255}, Bytes{})
	if err != nil || !reflect.DeepEqual(b, []byte{1, 2, 255}) {
		t.Fatalf("bytes = %v %v", b, err)
	}
	if _, err := c.ToNative([]any{256}, Bytes{}); err == nil {
		t.Error("256 must overflow a byte")
	}
}

func TestOptional(t *testing.T) {
	c := New()
	v, err := c.ToNative(nil, Optional{Elem: String{}})
	if err != nil || v != nil {
		t.Fatalf("got %v %v", v, err)
	}
	n := 5
	h, err := c.ToHost(&n, Optional{Elem: Int{Bits: 64, Signed: true}})
	if err != nil || h != int64(5) {
		t.Fatalf("got %v %v", h, err)
	}
}

func TestTypeOfAndAssign(t *testing.T) {
	classOf := func(rt reflect.Type) (string, bool) {
		return "Router", rt == reflect.TypeOf(&router{})
	}
	tests := []struct {
		sample any
		want   string
	}{
		{0, "s64"},
		{int32(0), "s32"},
		{uint8(0), "u8"},
		{float32(0), "f32"},
		{"", "string"},
		{[]byte(nil), "bytes"},
		{[]string(nil), "list<string>"},
		{map[string]struct{}(nil), "set<string>"},
		{map[string]int(nil), "map<string, s64>"},
		{map[string]any(nil), "record"},
		{(*int)(nil), "option<s64>"},
		{&router{}, "handle<Router>"},
		{(*structpb.Struct)(nil), "record"},
	}
	for _, tt := range tests {
		typ, err := TypeOf(reflect.TypeOf(tt.sample), classOf)
		if err != nil {
			t.Fatalf("%T: %v", tt.sample, err)
		}
		if got := TypeString(typ); got != tt.want {
			t.Errorf("TypeOf(%T) = %s, want %s", tt.sample, got, tt.want)
		}
	}

	v, err := Assign(int64(300), reflect.TypeOf(int8(0)))
	if err == nil {
		t.Errorf("assign 300 to int8 = %v, want overflow", v)
	}
	v, err = Assign([]any{"a", "b"}, reflect.TypeOf(map[string]struct{}{}))
	if err != nil || v.Len() != 2 {
		t.Fatalf("set assign = %v %v", v, err)
	}
	v, err = Assign(map[string]any{"k": "v"}, reflect.TypeOf((*structpb.Struct)(nil)))
	if err != nil || v.Interface().(*structpb.Struct).AsMap()["k"] != "v" {
		t.Fatalf("structpb assign = %v %v", v, err)
	}
	v, err = Assign(int64(7), reflect.TypeOf((*int)(nil)))
	if err != nil || *(v.Interface().(*int)) != 7 {
		t.Fatalf("pointer assign = %v %v", v, err)
	}
}

func TestFromWIT(t *testing.T) {
	name := "request"
	resourceDef := &wit.TypeDef{Name: &name, Kind: &wit.Record{}}
	tests := []struct {
		in   wit.Type
		want string
	}{
		{wit.U8{}, "u8"},
		{wit.S64{}, "s64"},
		{wit.F32{}, "f32"},
		{wit.Char{}, "char"},
		{wit.String{}, "string"},
		{&wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}, "bytes"},
		{&wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}, "list<string>"},
		{&wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}}, "option<u32>"},
		{&wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "id", Type: wit.String{}}}}}, "record{id: string}"},
		{&wit.TypeDef{Kind: &wit.Own{Type: resourceDef}}, "handle<request>"},
		{&wit.TypeDef{Kind: &wit.Borrow{Type: resourceDef}}, "handle<request>"},
	}
	for _, tt := range tests {
		got, err := FromWIT(tt.in)
		if err != nil {
			t.Fatalf("FromWIT(%T): %v", tt.in, err)
		}
		if s := TypeString(got); s != tt.want {
			t.Errorf("FromWIT = %s, want %s", s, tt.want)
		}
	}
}

package shape

import (
	"errors"
	"strings"
	"testing"

	werrors "github.com/wippyai/webbind/errors"
)

type fakeProxy struct{ d any }

func (p *fakeProxy) Delegate() any { return p.d }

type fakeRecord struct{}

func (fakeRecord) ToRecord() map[string]any { return map[string]any{"a": 1} }

type delegate struct{}

func TestOf(t *testing.T) {
	var nilPtr *delegate
	var nilFunc func()
	tests := []struct {
		name string
		v    any
		want Kind
	}{
		{"nil", nil, Null},
		{"string", "x", String},
		{"bool", true, Boolean},
		{"int", 3, Number},
		{"uint8", uint8(3), Number},
		{"float", 1.5, Number},
		{"bytes", []byte("x"), Bytes},
		{"record", map[string]any{}, Record},
		{"recorder", fakeRecord{}, Record},
		{"typed map", map[string]int{}, Record},
		{"array", []any{1}, Array},
		{"typed slice", []string{"a"}, Array},
		{"proxy", &fakeProxy{}, Object},
		{"raw delegate", &delegate{}, Object},
		{"nil pointer", nilPtr, Null},
		{"function", func(error, any) {}, Function},
		{"nil function", nilFunc, Null},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.v); got != tt.want {
				t.Errorf("Of(%T) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if got := (String | Null).String(); got != "null|string" {
		t.Errorf("String|Null = %q", got)
	}
	if Any.String() != "any" {
		t.Errorf("Any = %q", Any.String())
	}
	if !Any.Accepts(Function) {
		t.Error("Any must accept function")
	}
}

func TestRuleMatch(t *testing.T) {
	r := NewRule(String, Function)
	if !r.Match([]any{"disk", func() {}}) {
		t.Error("expected match")
	}
	if r.Match([]any{"disk"}) {
		t.Error("arity mismatch must not match")
	}
	if r.Match([]any{1, func() {}}) {
		t.Error("number must not match string position")
	}
	if got := r.String(); got != "(string, function)" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewMethodRejectsOverlap(t *testing.T) {
	_, err := NewMethod("invoke", NewRule(String), NewRule(Any))
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	var e *werrors.Error
	if !errors.As(err, &e) || e.Kind != werrors.KindAmbiguous {
		t.Fatalf("err = %v", err)
	}

	if _, err := NewMethod("invoke", NewRule(Function), NewRule(String, Function)); err != nil {
		t.Fatalf("distinct arities rejected: %v", err)
	}
	if _, err := NewMethod("x"); err == nil {
		t.Error("method without rules must fail")
	}
}

func TestDispatcherSelect(t *testing.T) {
	d := NewDispatcher()
	if err := d.Define("invoke", NewRule(Function), NewRule(String, Function)); err != nil {
		t.Fatal(err)
	}
	if err := d.Define("setWebRoot", NewRule(String)); err != nil {
		t.Fatal(err)
	}

	t.Run("first overload", func(t *testing.T) {
		m, idx, err := d.Select("invoke", []any{func(error, any) {}})
		if err != nil || idx != 0 || m.Name != "invoke" {
			t.Fatalf("got %v %d %v", m, idx, err)
		}
	})

	t.Run("second overload", func(t *testing.T) {
		_, idx, err := d.Select("invoke", []any{"disk-space", func(error, any) {}})
		if err != nil || idx != 1 {
			t.Fatalf("got %d %v", idx, err)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, _, err := d.Select("setWebRoot", []any{42, true})
		if !errors.Is(err, werrors.ErrInvalidArguments) {
			t.Fatalf("err = %v", err)
		}
		msg := err.Error()
		for _, s := range []string{"setWebRoot", "number, boolean", "function invoked with invalid arguments"} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q lacks %q", msg, s)
			}
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		_, _, err := d.Select("nope", nil)
		if !errors.Is(err, werrors.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		if err := d.Define("invoke", NewRule(Boolean)); err == nil {
			t.Error("duplicate method must fail")
		}
	})

	if names := d.Names(); len(names) != 2 || names[0] != "invoke" {
		t.Errorf("Names() = %v", names)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]any{"a", nil, 1})
	want := []string{"string", "null", "number"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Describe[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

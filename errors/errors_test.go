package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseToNative,
				Kind:     KindTypeMismatch,
				Path:     []string{"options", "cache", "size"},
				GoType:   "int64",
				HostType: "string",
				Detail:   "cannot convert",
			},
			contains: []string{"[native]", "type_mismatch", "options.cache.size", "int64", "string", "cannot convert"},
		},
		{
			name: "invalid arguments carries method and shapes",
			err:  InvalidArguments(PhaseDispatch, "setWebRoot", []string{"number", "boolean"}),
			contains: []string{
				"[dispatch]", "invalid_arguments", "setWebRoot(number, boolean)",
				"function invoked with invalid arguments",
			},
		},
		{
			name:     "delegate failure",
			err:      DelegateFailure("RECIPIENT_FAILURE", 42, "boom"),
			contains: []string{"delegate_failure", "RECIPIENT_FAILURE(42)", "boom"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseBus,
				Kind:   KindTimeout,
				Detail: "no reply",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[bus]", "timeout", "no reply", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseGuest, KindInvalidInput, cause, "bad descriptor")

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseToNative, Kind: KindTypeMismatch}

	if !err.Is(&Error{Phase: PhaseToNative, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseToHost, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseToNative, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
	if !err.Is(&Error{Kind: KindTypeMismatch}) {
		t.Error("phase-less target should match on kind")
	}
}

func TestSentinels(t *testing.T) {
	wrapped := fmt.Errorf("call: %w", ProxyClosed("TestService@svc"))
	if !errors.Is(wrapped, ErrProxyClosed) {
		t.Error("wrapped ProxyClosed should match ErrProxyClosed")
	}
	if errors.Is(wrapped, ErrInvalidArguments) {
		t.Error("ProxyClosed must not match ErrInvalidArguments")
	}
	if !errors.Is(InvalidArguments(PhaseToNative, "m", nil), ErrInvalidArguments) {
		t.Error("InvalidArguments from convert phase should match sentinel")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseToNative, KindTypeMismatch).
		Method("setMaxCacheSize").
		Shapes("string").
		Path("arg0").
		GoType("int").
		HostType("string").
		Value("x").
		Cause(cause).
		Failure("TAG", 7).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseToNative || err.Kind != KindTypeMismatch {
		t.Errorf("phase/kind = %v/%v", err.Phase, err.Kind)
	}
	if err.Method != "setMaxCacheSize" || len(err.Shapes) != 1 {
		t.Errorf("method/shapes = %v/%v", err.Method, err.Shapes)
	}
	if err.Tag != "TAG" || err.Code != 7 {
		t.Errorf("tag/code = %v/%v", err.Tag, err.Code)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("builder cause not reachable")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Overflow", Overflow(PhaseToNative, []string{"v"}, 300, "s8"), KindOverflow},
		{"Unsupported", Unsupported(PhaseToHost, "chan int"), KindUnsupported},
		{"NotFound", NotFound(PhaseDispatch, "method", "nope"), KindNotFound},
		{"InvalidInput", InvalidInput(PhaseGuest, "empty"), KindInvalidInput},
		{"Registration", Registration("Router", "route", errors.New("x")), KindRegistration},
		{"Ambiguous", Ambiguous("invoke", []string{"string"}, []string{"any"}), KindAmbiguous},
		{"Timeout", Timeout(PhaseBus, "request"), KindTimeout},
		{"ProxyClosed", ProxyClosed("svc"), KindProxyClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestAsFailure(t *testing.T) {
	t.Run("delegate failure keeps taxonomy", func(t *testing.T) {
		f := AsFailure(fmt.Errorf("wrapped: %w", DelegateFailure("NO_HANDLERS", -1, "no consumer")))
		if f.Type != "NO_HANDLERS" || f.Code != -1 || f.Message != "no consumer" {
			t.Errorf("failure = %+v", f)
		}
		if !errors.Is(f, ErrDelegateFailure) {
			t.Error("failure should match ErrDelegateFailure")
		}
	})

	t.Run("structured error uses kind", func(t *testing.T) {
		f := AsFailure(NotFound(PhaseDelegate, "procedure", "disk"))
		if f.Type != string(KindNotFound) || f.Code != -1 {
			t.Errorf("failure = %+v", f)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		f := AsFailure(errors.New("BOOM"))
		if f.Type != "error" || f.Message != "BOOM" {
			t.Errorf("failure = %+v", f)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if AsFailure(nil) != nil {
			t.Error("nil error should give nil failure")
		}
	})

	t.Run("record round trip", func(t *testing.T) {
		f := &Failure{Type: "RECIPIENT_FAILURE", Code: 3, Message: "m"}
		back := FromRecord(f.ToRecord())
		if *back != *f {
			t.Errorf("round trip = %+v, want %+v", back, f)
		}
	})
}

package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the binding pipeline the error occurred
type Phase string

const (
	PhaseDispatch Phase = "dispatch" // shape rule selection
	PhaseToNative Phase = "native"   // host to delegate conversion
	PhaseToHost   Phase = "host"     // delegate to host conversion
	PhaseCallback Phase = "callback" // async result delivery
	PhaseProxy    Phase = "proxy"    // proxy identity and lifecycle
	PhaseRegister Phase = "register" // class and method registration
	PhaseDelegate Phase = "delegate" // the wrapped object itself
	PhaseBus      Phase = "bus"      // event bus transport
	PhaseGuest    Phase = "guest"    // script and wasm guests
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArguments Kind = "invalid_arguments"
	KindDelegateFailure  Kind = "delegate_failure"
	KindProxyClosed      Kind = "proxy_closed"
	KindTypeMismatch     Kind = "type_mismatch"
	KindOverflow         Kind = "overflow"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindRegistration     Kind = "registration"
	KindAmbiguous        Kind = "ambiguous"
	KindTimeout          Kind = "timeout"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrInvalidArguments = &Error{Kind: KindInvalidArguments}
	ErrDelegateFailure  = &Error{Kind: KindDelegateFailure}
	ErrProxyClosed      = &Error{Kind: KindProxyClosed}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrTimeout          = &Error{Kind: KindTimeout}
)

// Error is the structured error type used throughout the binding layer
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Method   string
	GoType   string
	HostType string
	Detail   string
	Tag      string
	Shapes   []string
	Path     []string
	Code     int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Method)
		if e.Shapes != nil {
			b.WriteByte('(')
			b.WriteString(strings.Join(e.Shapes, ", "))
			b.WriteByte(')')
		}
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.HostType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.HostType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", host type ")
			b.WriteString(e.HostType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		}
	}

	if e.Tag != "" {
		fmt.Fprintf(&b, " %s(%d)", e.Tag, e.Code)
	}

	if e.Detail != "" {
		if e.GoType != "" || e.HostType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Method sets the method the error belongs to
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Shapes sets the actual argument shapes
func (b *Builder) Shapes(shapes ...string) *Builder {
	b.err.Shapes = shapes
	return b
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// HostType sets the host-side type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Failure sets the failure tag and code
func (b *Builder) Failure(tag string, code int) *Builder {
	b.err.Tag = tag
	b.err.Code = code
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// InvalidArguments reports a call whose argument shapes match no rule.
func InvalidArguments(phase Phase, method string, shapes []string) *Error {
	if shapes == nil {
		shapes = []string{}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArguments,
		Method: method,
		Shapes: shapes,
		Detail: "function invoked with invalid arguments",
	}
}

// DelegateFailure wraps a failed delegate operation with its failure taxonomy.
func DelegateFailure(tag string, code int, msg string) *Error {
	return &Error{
		Phase:  PhaseDelegate,
		Kind:   KindDelegateFailure,
		Tag:    tag,
		Code:   code,
		Detail: msg,
	}
}

// ProxyClosed reports a call on a proxy after Close.
func ProxyClosed(target string) *Error {
	return &Error{
		Phase:  PhaseProxy,
		Kind:   KindProxyClosed,
		Detail: fmt.Sprintf("proxy %s is closed", target),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, hostType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		HostType: hostType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		HostType: targetType,
		Detail:   fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:    value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(class, method string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Method: method,
		Detail: fmt.Sprintf("register %s.%s", class, method),
		Cause:  cause,
	}
}

// Ambiguous reports two shape rules of one method accepting the same arguments.
func Ambiguous(method string, first, second []string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindAmbiguous,
		Method: method,
		Detail: fmt.Sprintf("rules (%s) and (%s) overlap",
			strings.Join(first, ", "), strings.Join(second, ", ")),
	}
}

// Timeout creates a timeout error for an operation that never completed.
func Timeout(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("%s timed out", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
)

// Failure is the minimal error record handed to host callbacks:
// a type tag, a numeric code and a message.
type Failure struct {
	Type    string
	Message string
	Code    int
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("%s(%d): %s", f.Type, f.Code, f.Message)
}

// ToRecord renders the failure as a host record.
func (f *Failure) ToRecord() map[string]any {
	return map[string]any{
		"type":    f.Type,
		"code":    f.Code,
		"message": f.Message,
	}
}

// Is lets a Failure produced from a delegate failure match ErrDelegateFailure.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindDelegateFailure && (t.Phase == "" || t.Phase == PhaseDelegate)
}

// AsFailure converts any error into a Failure.
// Delegate failures keep their tag and code; other structured errors use
// their kind as the tag and code -1.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if stderrors.As(err, &f) {
		return f
	}

	var e *Error
	if stderrors.As(err, &e) {
		if e.Kind == KindDelegateFailure {
			return &Failure{Type: e.Tag, Code: e.Code, Message: e.Detail}
		}
		return &Failure{Type: string(e.Kind), Code: -1, Message: e.Error()}
	}

	return &Failure{Type: "error", Code: -1, Message: err.Error()}
}

// FromRecord rebuilds a failure from its host record form.
func FromRecord(rec map[string]any) *Failure {
	f := &Failure{Type: "error", Code: -1}
	if s, ok := rec["type"].(string); ok {
		f.Type = s
	}
	if s, ok := rec["message"].(string); ok {
		f.Message = s
	}
	switch c := rec["code"].(type) {
	case int:
		f.Code = c
	case int64:
		f.Code = int(c)
	case uint64:
		f.Code = int(c)
	case float64:
		f.Code = int(c)
	}
	return f
}

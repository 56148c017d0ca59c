// Package errors provides structured error types for the binding layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Three kinds form the caller-visible taxonomy:
//
//	invalid_arguments  a call shape matched no rule; raised synchronously, never retried
//	delegate_failure   the wrapped operation failed; delivered through the async channel
//	proxy_closed       a call on a closed proxy; raised synchronously
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseToNative, errors.KindTypeMismatch).
//		Path("options", "maxAge").
//		GoType("int64").
//		HostType("string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidArguments(errors.PhaseDispatch, "setWebRoot", []string{"number"})
//	err := errors.DelegateFailure("RECIPIENT_FAILURE", 500, "boom")
//
// Kind-only sentinels (ErrInvalidArguments, ErrProxyClosed, ...) work with errors.Is.
// AsFailure flattens any error into the {type, code, message} record given to host callbacks.
package errors

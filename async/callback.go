package async

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
)

// Callback is the host completion convention: err is nil on success.
type Callback[T any] func(err error, value T)

// VoidCallback is the completion convention for results without a value.
type VoidCallback func(err error)

// Adapt turns a host callback into a one-shot result handler. Success calls
// cb(nil, value); failure calls cb(failure, zero) where failure is the
// minimal {type, code, message} record of the error. A second invocation is
// ignored. Panics raised by cb are not recovered.
func Adapt[T any](cb Callback[T]) func(Result[T]) {
	var fired atomic.Bool
	return func(r Result[T]) {
		if !fired.CompareAndSwap(false, true) {
			Logger().Warn("async result delivered twice, ignoring", zap.Bool("failed", r.Err != nil))
			return
		}
		if r.Err != nil {
			var zero T
			cb(errors.AsFailure(r.Err), zero)
			return
		}
		cb(nil, r.Value)
	}
}

// AdaptVoid is Adapt for callbacks that take no value. The success value is
// discarded.
func AdaptVoid[T any](cb VoidCallback) func(Result[T]) {
	return Adapt(func(err error, _ T) {
		cb(err)
	})
}

// Bridge returns a callback completing f. It is the inverse of Adapt and is
// used for delegates that report through the callback convention.
func Bridge[T any](f *Future[T]) Callback[T] {
	return func(err error, value T) {
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(value)
	}
}

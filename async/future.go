package async

import (
	"context"
	"reflect"
	"sync"
)

// Result is the outcome of one asynchronous delegate operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok creates a successful result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail creates a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Succeeded reports whether the result carries a value.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// Future is a one-shot result slot. Exactly one completion attempt wins;
// later attempts report false and change nothing.
type Future[T any] struct {
	done     chan struct{}
	handlers []func(Result[T])
	result   Result[T]
	mu       sync.Mutex
	complete bool
}

// NewFuture creates an incomplete future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already holding v.
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Go runs fn on a new goroutine and completes the future with its outcome.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(v)
	}()
	return f
}

// Complete resolves the future with v.
func (f *Future[T]) Complete(v T) bool {
	return f.TryComplete(Ok(v))
}

// Fail resolves the future with err. A nil err is treated as success with
// the zero value.
func (f *Future[T]) Fail(err error) bool {
	return f.TryComplete(Result[T]{Err: err})
}

// TryComplete resolves the future with r unless it is already resolved.
// Handlers run on the calling goroutine.
func (f *Future[T]) TryComplete(r Result[T]) bool {
	f.mu.Lock()
	if f.complete {
		f.mu.Unlock()
		return false
	}
	f.complete = true
	f.result = r
	handlers := f.handlers
	f.handlers = nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range handlers {
		h(r)
	}
	return true
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome and whether the future is resolved.
func (f *Future[T]) Result() (Result[T], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.complete
}

// Await blocks until the future resolves or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to receive the outcome. If the future is already
// resolved fn runs immediately on the calling goroutine.
func (f *Future[T]) OnComplete(fn func(Result[T])) {
	f.mu.Lock()
	if !f.complete {
		f.handlers = append(f.handlers, fn)
		f.mu.Unlock()
		return
	}
	r := f.result
	f.mu.Unlock()
	fn(r)
}

// Listen is the type-erased form of OnComplete.
func (f *Future[T]) Listen(fn func(value any, err error)) {
	f.OnComplete(func(r Result[T]) {
		if r.Err != nil {
			fn(nil, r.Err)
			return
		}
		fn(r.Value, nil)
	})
}

// ValueType returns the reflect type of T.
func (f *Future[T]) ValueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Awaitable is implemented by every Future regardless of its value type.
// The binding layer uses it to treat delegate futures uniformly.
type Awaitable interface {
	Listen(fn func(value any, err error))
	ValueType() reflect.Type
	Done() <-chan struct{}
}

// Map returns a future resolving to fn applied to f's value. Failures pass
// through unchanged; an error from fn fails the mapped future.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := NewFuture[U]()
	f.OnComplete(func(r Result[T]) {
		if r.Err != nil {
			out.Fail(r.Err)
			return
		}
		v, err := fn(r.Value)
		if err != nil {
			out.Fail(err)
			return
		}
		out.Complete(v)
	})
	return out
}

// FromAwaitable adapts an erased future into a Future[any].
func FromAwaitable(a Awaitable) *Future[any] {
	if f, ok := a.(*Future[any]); ok {
		return f
	}
	out := NewFuture[any]()
	a.Listen(func(v any, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		out.Complete(v)
	})
	return out
}

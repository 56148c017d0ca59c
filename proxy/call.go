package proxy

import (
	"context"
	stderrors "errors"
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/convert"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/shape"
)

// HostFunc is the uniform form of host functions passed as arguments.
// Hosts hand these to delegates as handlers and callbacks.
type HostFunc func(args ...any) (any, error)

func (r *Registry) call(ctx context.Context, p *Proxy, m *Method, idx int, args []any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e := m.entries[idx]
	ov := e.overload

	hostArgs := args
	var cb async.Callback[any]
	if e.trailingCallback {
		var ok bool
		cb, ok = hostCallback(args[len(args)-1])
		if !ok {
			return nil, errors.InvalidArguments(errors.PhaseToNative, m.Name, shape.Describe(args))
		}
		hostArgs = args[:len(args)-1]
	}

	in := make([]reflect.Value, 0, len(hostArgs)+2)
	if !ov.static {
		in = append(in, reflect.ValueOf(p.delegate))
	}
	if ov.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, a := range hostArgs {
		v, err := r.argument(a, ov.Params[i], ov.paramTypes[i])
		if err != nil {
			return nil, annotate(err, m.Name, i)
		}
		in = append(in, v)
	}

	out := ov.fn.Call(in)

	var value any
	if ov.resultType != nil {
		value = out[0].Interface()
	}
	if ov.hasErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, delegateError(m.Name, errv.Interface().(error))
		}
	}

	if !ov.Async {
		return r.result(p, m, ov, value)
	}

	aw, _ := value.(async.Awaitable)
	if aw == nil || reflect.ValueOf(aw).IsNil() {
		return nil, errors.New(errors.PhaseDelegate, errors.KindDelegateFailure).
			Method(m.Name).
			Failure("error", -1).
			Detail("delegate returned no future").
			Build()
	}
	hostFuture := async.NewFuture[any]()
	aw.Listen(func(v any, err error) {
		if err != nil {
			hostFuture.Fail(delegateError(m.Name, err))
			return
		}
		hv, err := r.result(p, m, ov, v)
		if err != nil {
			hostFuture.Fail(err)
			return
		}
		hostFuture.Complete(hv)
	})
	if cb != nil {
		if _, void := ov.Result.(convert.Void); void {
			hostFuture.OnComplete(async.AdaptVoid[any](hostVoidCallback(args[len(args)-1], cb)))
		} else {
			hostFuture.OnComplete(async.Adapt(cb))
		}
		return nil, nil
	}
	return hostFuture, nil
}

func (r *Registry) argument(a any, t convert.Type, rt reflect.Type) (reflect.Value, error) {
	if _, ok := t.(convert.Func); ok {
		return r.bridge(a, rt)
	}
	native, err := r.conv.ToNative(a, t)
	if err != nil {
		return reflect.Value{}, err
	}
	return convert.Assign(native, rt)
}

func (r *Registry) result(p *Proxy, m *Method, ov *Overload, v any) (any, error) {
	if p != nil {
		if m.Fluent || sameDelegate(v, p.delegate) {
			return p, nil
		}
		if m.Cacheable {
			return r.conv.ToHostFrom(p.handle, m.Name, v, ov.Result)
		}
	}
	hv, err := r.conv.ToHost(v, ov.Result)
	if err != nil {
		return nil, annotate(err, m.Name, -1)
	}
	return hv, nil
}

// bridge turns a host function into a Go function of type rt. Arguments
// are converted to host values, errors become failure records, and the
// host result is converted back when rt has results.
func (r *Registry) bridge(a any, rt reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(rt), nil
	}
	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(rt) {
		return av, nil
	}
	hf, ok := asHostFunc(a)
	if !ok {
		return reflect.Value{}, errors.New(errors.PhaseToNative, errors.KindInvalidArguments).
			GoType(av.Type().String()).
			HostType(rt.String()).
			Detail("function cannot be adapted").
			Build()
	}

	var once func(async.Result[any])
	if isCallbackType(rt) {
		once = async.Adapt(func(err error, v any) { _, _ = hf(err, v) })
	}

	fn := func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = r.hostValue(v)
		}
		if once != nil {
			var err error
			if e, ok := args[0].(error); ok {
				err = e
			}
			if err != nil {
				once(async.Fail[any](err))
			} else {
				once(async.Ok(args[1]))
			}
			return nil
		}
		res, err := hf(args...)
		return r.bridgeResults(rt, res, err)
	}
	return reflect.MakeFunc(rt, fn), nil
}

// hostValue converts a Go value received by a bridged function.
func (r *Registry) hostValue(v reflect.Value) any {
	if v.Type() == errorType {
		if v.IsNil() {
			return nil
		}
		return errors.AsFailure(v.Interface().(error))
	}
	t, err := convert.TypeOf(v.Type(), r.classOf)
	if err != nil {
		return v.Interface()
	}
	hv, err := r.conv.ToHost(v.Interface(), t)
	if err != nil {
		Logger().Warn("handler argument not converted", zap.String("type", v.Type().String()), zap.Error(err))
		return v.Interface()
	}
	return hv
}

func (r *Registry) bridgeResults(rt reflect.Type, res any, err error) []reflect.Value {
	out := make([]reflect.Value, rt.NumOut())
	for i := range out {
		out[i] = reflect.Zero(rt.Out(i))
	}
	n := rt.NumOut()
	if n == 0 {
		if err != nil {
			Logger().Warn("host handler failed", zap.Error(err))
		}
		return out
	}
	if rt.Out(n-1) == errorType {
		if err != nil {
			out[n-1] = reflect.ValueOf(&err).Elem()
			return out
		}
		n--
	}
	if n == 0 {
		return out
	}
	if err != nil {
		Logger().Warn("host handler failed", zap.Error(err))
		return out
	}
	t, terr := convert.TypeOf(rt.Out(0), r.classOf)
	if terr == nil {
		var native any
		if native, terr = r.conv.ToNative(res, t); terr == nil {
			var v reflect.Value
			if v, terr = convert.Assign(native, rt.Out(0)); terr == nil {
				out[0] = v
				return out
			}
		}
	}
	Logger().Warn("host handler result not converted", zap.Error(terr))
	if rt.Out(rt.NumOut()-1) == errorType {
		out[rt.NumOut()-1] = reflect.ValueOf(&terr).Elem()
	}
	return out
}

func asHostFunc(a any) (HostFunc, bool) {
	switch f := a.(type) {
	case HostFunc:
		return f, true
	case func(args ...any) (any, error):
		return f, true
	case func(err error, value any):
		return func(args ...any) (any, error) {
			err, _ := argAt(args, 0).(error)
			f(err, argAt(args, 1))
			return nil, nil
		}, true
	case async.Callback[any]:
		return func(args ...any) (any, error) {
			err, _ := argAt(args, 0).(error)
			f(err, argAt(args, 1))
			return nil, nil
		}, true
	}
	return nil, false
}

func hostCallback(a any) (async.Callback[any], bool) {
	switch f := a.(type) {
	case async.Callback[any]:
		return f, true
	case func(error, any):
		return f, true
	case HostFunc:
		return func(err error, v any) { _, _ = f(err, v) }, true
	case func(args ...any) (any, error):
		return func(err error, v any) { _, _ = f(err, v) }, true
	}
	return nil, false
}

// hostVoidCallback calls host functions with the error alone, so void
// completions arrive as (null).
func hostVoidCallback(a any, cb async.Callback[any]) async.VoidCallback {
	switch f := a.(type) {
	case HostFunc:
		return func(err error) { _, _ = f(nilIfNone(err)) }
	case func(args ...any) (any, error):
		return func(err error) { _, _ = f(nilIfNone(err)) }
	}
	return func(err error) { cb(err, nil) }
}

// nilIfNone keeps a nil error untyped when it is passed as an argument.
func nilIfNone(err error) any {
	if err == nil {
		return nil
	}
	return err
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func sameDelegate(v, delegate any) bool {
	if v == nil || delegate == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Type() != reflect.TypeOf(delegate) {
		return false
	}
	return v == delegate
}

// delegateError keeps structured errors and tags anything else as a
// generic delegate failure.
func delegateError(method string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	var f *errors.Failure
	if stderrors.As(err, &f) {
		return errors.DelegateFailure(f.Type, f.Code, f.Message)
	}
	return errors.New(errors.PhaseDelegate, errors.KindDelegateFailure).
		Method(method).
		Failure("error", -1).
		Detail("%s", err.Error()).
		Cause(err).
		Build()
}

func annotate(err error, method string, arg int) error {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return err
	}
	if e.Method == "" {
		e.Method = method
	}
	if arg >= 0 {
		e.Path = append([]string{"arg" + strconv.Itoa(arg)}, e.Path...)
	}
	return err
}

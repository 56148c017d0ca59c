package jsbind

import (
	stderrors "errors"
	"reflect"
	"strconv"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/proxy"
)

var bytesType = reflect.TypeOf([]byte(nil))

// call converts JS arguments, plans the async bookkeeping and runs a
// proxy or static call. Argument-shape mismatches throw TypeError.
func (r *Runtime) call(
	call goja.FunctionCall,
	selectFn func([]any) (proxy.Selection, error),
	run func([]any) (any, error),
) goja.Value {
	args := r.fromJSArgs(call.Arguments)
	sel, err := selectFn(args)
	if err != nil {
		panic(r.throw(err))
	}
	if sel.Overload.Async && sel.Callback {
		release := r.loop.Hold()
		last := len(args) - 1
		if cb, ok := args[last].(proxy.HostFunc); ok {
			args[last] = proxy.HostFunc(func(a ...any) (any, error) {
				defer release()
				return cb(a...)
			})
		}
		v, err := r.yield(run, args)
		if err != nil {
			release()
			panic(r.throw(err))
		}
		return r.toJS(v)
	}
	v, err := r.yield(run, args)
	if err != nil {
		panic(r.throw(err))
	}
	return r.toJS(v)
}

// yield runs a host call with the VM lock released.
func (r *Runtime) yield(run func([]any) (any, error), args []any) (v any, err error) {
	r.loop.Yield(func() { v, err = run(args) })
	return v, err
}

func (r *Runtime) invoke(p *proxy.Proxy, method string, call goja.FunctionCall) goja.Value {
	return r.call(call,
		func(args []any) (proxy.Selection, error) {
			if p.Closed() {
				return proxy.Selection{}, errors.ProxyClosed(p.String())
			}
			return p.Class().Select(method, args)
		},
		func(args []any) (any, error) { return p.Invoke(r.ctx, method, args...) })
}

// throw maps a binding error to the JS exception a script sees.
func (r *Runtime) throw(err error) *goja.Object {
	if stderrors.Is(err, errors.ErrInvalidArguments) {
		return r.vm.NewTypeError(err.Error())
	}
	return r.errorValue(err)
}

// errorValue renders err as an Error object carrying type and code.
func (r *Runtime) errorValue(err error) *goja.Object {
	f := errors.AsFailure(err)
	obj := r.vm.NewGoError(err)
	_ = obj.Set("type", f.Type)
	_ = obj.Set("code", f.Code)
	return obj
}

func (r *Runtime) fromJSArgs(vals []goja.Value) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = r.fromJS(v)
	}
	return args
}

// fromJS converts a JS value for the binding layer. Proxy objects become
// their proxy, functions become host functions, arrays and plain objects
// are converted element by element.
func (r *Runtime) fromJS(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if p := r.lookup(obj); p != nil {
		return p
	}
	if fn, ok := goja.AssertFunction(v); ok {
		return r.hostFunc(fn)
	}
	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := range out {
			out[i] = r.fromJS(obj.Get(strconv.Itoa(i)))
		}
		return out
	case "ArrayBuffer":
		if ab, ok := obj.Export().(goja.ArrayBuffer); ok {
			return append([]byte(nil), ab.Bytes()...)
		}
	case "Error":
		return &errors.Failure{
			Type:    stringProp(obj, "type", obj.Get("name")),
			Code:    int(intProp(obj, "code", -1)),
			Message: stringProp(obj, "message", nil),
		}
	}
	if obj.ExportType() == bytesType {
		return obj.Export()
	}
	out := make(map[string]any, len(obj.Keys()))
	for _, k := range obj.Keys() {
		out[k] = r.fromJS(obj.Get(k))
	}
	return out
}

func stringProp(obj *goja.Object, name string, fallback goja.Value) string {
	if v := obj.Get(name); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		return v.String()
	}
	if fallback != nil && !goja.IsUndefined(fallback) {
		return fallback.String()
	}
	return ""
}

func intProp(obj *goja.Object, name string, fallback int64) int64 {
	if v := obj.Get(name); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		return v.ToInteger()
	}
	return fallback
}

// toJS converts a host value for the script. A proxy always maps to the
// same JS object while its handle is live.
func (r *Runtime) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return x
	case *proxy.Proxy:
		return r.object(x)
	case async.Awaitable:
		return r.promise(async.FromAwaitable(x))
	case *errors.Failure:
		return r.errorValue(x)
	case error:
		return r.errorValue(x)
	case []byte:
		return r.vm.ToValue(r.vm.NewArrayBuffer(append([]byte(nil), x...)))
	case []any:
		vals := make([]any, len(x))
		for i, e := range x {
			vals[i] = r.toJS(e)
		}
		return r.vm.NewArray(vals...)
	case map[string]any:
		obj := r.vm.NewObject()
		for k, e := range x {
			_ = obj.Set(k, r.toJS(e))
		}
		return obj
	case proxy.HostFunc:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			res, err := r.yield(func(a []any) (any, error) { return x(a...) }, r.fromJSArgs(call.Arguments))
			if err != nil {
				panic(r.throw(err))
			}
			return r.toJS(res)
		})
	}
	return r.vm.ToValue(v)
}

// object returns the JS object of p, creating it on first use.
func (r *Runtime) object(p *proxy.Proxy) *goja.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.objects[p.Handle()]; ok {
		return o
	}
	o := r.vm.NewObject()
	for _, m := range p.Class().Methods() {
		name := m.Name
		_ = o.Set(name, func(call goja.FunctionCall) goja.Value {
			return r.invoke(p, name, call)
		})
	}
	_ = o.Set("toString", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(p.String())
	})
	r.objects[p.Handle()] = o
	r.proxies[o] = p
	return o
}

func (r *Runtime) lookup(obj *goja.Object) *proxy.Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proxies[obj]
}

// hostFunc wraps a JS function so Go code can call it from any goroutine.
// The call takes the VM lock, which script code only gives up while it is
// parked in a host call, so a delegate calling back synchronously runs
// inline.
func (r *Runtime) hostFunc(fn goja.Callable) proxy.HostFunc {
	return func(args ...any) (v any, err error) {
		if !r.loop.Running() && r.loop.Pending() == 0 {
			return nil, errLoopStopped
		}
		r.loop.Do(func() { v, err = r.callJS(fn, args) })
		return v, err
	}
}

func (r *Runtime) callJS(fn goja.Callable, args []any) (any, error) {
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = r.toJS(a)
	}
	v, err := fn(goja.Undefined(), vals...)
	if err != nil {
		Logger().Debug("script callback threw", zap.Error(err))
		return nil, scriptError(err)
	}
	return r.fromJS(v), nil
}

// FailureScript tags failures raised by script code.
const FailureScript = "SCRIPT_ERROR"

func scriptError(err error) error {
	return errors.New(errors.PhaseGuest, errors.KindDelegateFailure).
		Failure(FailureScript, -1).
		Detail("%s", err.Error()).
		Cause(err).
		Build()
}

// promise settles a JS promise on the loop once f completes.
func (r *Runtime) promise(f *async.Future[any]) goja.Value {
	p, resolve, reject := r.vm.NewPromise()
	release := r.loop.Hold()
	f.OnComplete(func(res async.Result[any]) {
		err := r.loop.Submit(func() {
			defer release()
			if res.Succeeded() {
				_ = resolve(r.toJS(res.Value))
				return
			}
			_ = reject(r.errorValue(res.Err))
		})
		if err != nil {
			release()
			Logger().Debug("promise settled after loop closed", zap.Error(err))
		}
	})
	return r.vm.ToValue(p)
}

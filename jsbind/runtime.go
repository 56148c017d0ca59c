package jsbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/resource"
)

var errLoopStopped = errors.New(errors.PhaseGuest, errors.KindInvalidInput).
	Detail("script loop is not running").Build()

// Runtime is a goja VM wired to a proxy registry.
type Runtime struct {
	vm      *goja.Runtime
	reg     *proxy.Registry
	loop    *Loop
	out     io.Writer
	ctx     context.Context
	objects map[resource.Handle]*goja.Object
	proxies map[*goja.Object]*proxy.Proxy
	mu      sync.Mutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sets where console.log writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) { r.out = w }
}

// New creates a runtime exposing every class of reg that has statics.
func New(reg *proxy.Registry, opts ...Option) (*Runtime, error) {
	loop, err := NewLoop()
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		vm:      goja.New(),
		reg:     reg,
		loop:    loop,
		out:     os.Stdout,
		ctx:     context.Background(),
		objects: make(map[resource.Handle]*goja.Object),
		proxies: make(map[*goja.Object]*proxy.Proxy),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if err := r.installGlobals(); err != nil {
		_ = loop.Close()
		return nil, err
	}
	reg.Table().Subscribe(r)
	return r, nil
}

// VM returns the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// Loop returns the runtime's event loop.
func (r *Runtime) Loop() *Loop { return r.loop }

// RunString evaluates src, then runs the loop until every pending callback,
// promise and timer has settled. It returns the script's completion value
// as a host value, converted once the loop has drained.
func (r *Runtime) RunString(ctx context.Context, name, src string) (any, error) {
	r.ctx = ctx
	var (
		completion goja.Value
		runErr     error
	)
	err := r.loop.Submit(func() {
		completion, runErr = r.vm.RunScript(name, src)
	})
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := r.loop.Run(ctx); err != nil {
		return nil, err
	}
	Logger().Debug("script finished",
		zap.String("name", name),
		zap.Duration("elapsed", time.Since(start)))
	if runErr != nil {
		return nil, scriptError(runErr)
	}
	var result any
	r.loop.Do(func() { result = r.fromJS(completion) })
	return result, nil
}

// Serve keeps the loop running until ctx ends, so host callbacks
// registered by a script (route handlers, bus consumers) keep working.
func (r *Runtime) Serve(ctx context.Context) error {
	r.ctx = ctx
	release := r.loop.Hold()
	defer release()
	err := r.loop.Run(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// Set defines a global from a host value; proxies become their JS object.
func (r *Runtime) Set(name string, v any) (err error) {
	r.loop.Do(func() { err = r.vm.Set(name, r.toJS(v)) })
	return err
}

// Get returns a global variable as a host value.
func (r *Runtime) Get(name string) (v any) {
	r.loop.Do(func() { v = r.fromJS(r.vm.Get(name)) })
	return v
}

// Close stops the loop and tracking of proxy lifecycle events.
func (r *Runtime) Close() error {
	r.reg.Table().Unsubscribe(r)
	r.mu.Lock()
	r.objects = make(map[resource.Handle]*goja.Object)
	r.proxies = make(map[*goja.Object]*proxy.Proxy)
	r.mu.Unlock()
	return r.loop.Close()
}

// OnResourceEvent forgets the JS object of a released handle, since the
// table reuses handles.
func (r *Runtime) OnResourceEvent(e resource.Event) {
	if e.Type != resource.EventDropped {
		return
	}
	r.mu.Lock()
	if o, ok := r.objects[e.Handle]; ok {
		delete(r.objects, e.Handle)
		delete(r.proxies, o)
	}
	r.mu.Unlock()
}

func (r *Runtime) installGlobals() error {
	for _, c := range r.reg.Classes() {
		statics := c.Statics()
		if len(statics) == 0 {
			continue
		}
		obj := r.vm.NewObject()
		for _, m := range statics {
			cls, name := c, m.Name
			err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
				return r.call(call,
					func(args []any) (proxy.Selection, error) { return cls.SelectStatic(name, args) },
					func(args []any) (any, error) { return cls.CallStatic(r.ctx, name, args...) })
			})
			if err != nil {
				return err
			}
		}
		if err := r.vm.Set(c.Name, obj); err != nil {
			return err
		}
	}

	console := r.vm.NewObject()
	if err := console.Set("log", r.consoleLog); err != nil {
		return err
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}
	return r.vm.Set("setTimeout", r.setTimeout)
}

func (r *Runtime) consoleLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = r.display(a)
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
	return goja.Undefined()
}

func (r *Runtime) display(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return v.String()
	}
	if p := r.lookup(obj); p != nil {
		return p.String()
	}
	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	s, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(s) {
		return v.String()
	}
	return s.String()
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout requires a function as first argument"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	release := r.loop.Hold()
	time.AfterFunc(delay, func() {
		err := r.loop.Submit(func() {
			defer release()
			if _, err := fn(goja.Undefined()); err != nil {
				Logger().Warn("uncaught error in timer callback", zap.Error(err))
			}
		})
		if err != nil {
			release()
		}
	})
	return goja.Undefined()
}

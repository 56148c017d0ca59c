package jsbind

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/healthcheck"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/web"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	reg := proxy.NewRegistry()
	for _, register := range []func(*proxy.Registry) error{web.Register, healthcheck.Register, eventbus.Register} {
		if err := register(reg); err != nil {
			t.Fatal(err)
		}
	}
	rt, err := New(reg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = rt.Close()
		_ = reg.Close()
	})
	return rt
}

func run(t *testing.T, rt *Runtime, src string) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := rt.RunString(ctx, "test.js", src)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestProxyIdentity(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var sh = StaticHandler.create();
		var fluent = sh.setMaxCacheSize(2048) === sh;
		var fresh = Cookie.cookie("a", "1") !== Cookie.cookie("a", "1");
		[fluent, fresh];
	`)
	if !reflect.DeepEqual(got, []any{true, true}) {
		t.Errorf("identity = %v, want [true true]", got)
	}
}

func TestInvalidArgumentsThrowTypeError(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var kind = "none";
		try {
			StaticHandler.create().setWebRoot(42);
		} catch (e) {
			kind = e instanceof TypeError ? "TypeError" : String(e);
		}
		kind;
	`)
	if got != "TypeError" {
		t.Errorf("setWebRoot(42) threw %v", got)
	}
}

func TestClosedProxyThrows(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var bus = EventBus.create();
		bus.close();
		var tag;
		try {
			bus.send("a", {});
		} catch (e) {
			tag = e.type;
		}
		tag;
	`)
	if got != "proxy_closed" {
		t.Errorf("closed send error type = %v", got)
	}
}

func TestAsyncCallbackAndPromise(t *testing.T) {
	rt := newRuntime(t)
	run(t, rt, `
		var hc = HealthChecks.create();
		hc.register("disk-space", function (p) { p.complete({ ok: true }); });
		var viaCallback, viaPromise, callbackErr;
		hc.invoke("disk-space", function (err, value) {
			callbackErr = err;
			viaCallback = value;
		});
		hc.invoke("disk-space").then(function (value) { viaPromise = value; });
	`)
	want := map[string]any{"disk-space": map[string]any{"status": "UP"}}
	if got := rt.Get("viaCallback"); !reflect.DeepEqual(got, want) {
		t.Errorf("callback value = %v, want %v", got, want)
	}
	if got := rt.Get("callbackErr"); got != nil {
		t.Errorf("callback err = %v", got)
	}
	if got := rt.Get("viaPromise"); !reflect.DeepEqual(got, want) {
		t.Errorf("promise value = %v, want %v", got, want)
	}
}

func TestBusRequestReply(t *testing.T) {
	rt := newRuntime(t)
	run(t, rt, `
		var bus = EventBus.create();
		bus.consumer("echo", function (m) { m.reply({ echo: m.body() }); });
		var reply, failure;
		bus.request("echo", { n: 1 }).then(function (m) { reply = m.body(); });
		bus.request("nobody", 1).catch(function (e) { failure = e.type; });
	`)
	want := map[string]any{"echo": map[string]any{"n": int64(1)}}
	if got := rt.Get("reply"); !reflect.DeepEqual(got, want) {
		t.Errorf("reply = %v, want %v", got, want)
	}
	if got := rt.Get("failure"); got != eventbus.FailureNoHandlers {
		t.Errorf("failure = %v", got)
	}
}

func TestRouterServedFromScript(t *testing.T) {
	rt := newRuntime(t)
	v := run(t, rt, `
		var router = Router.router();
		var cached = false;
		router.route("/hello").handler(function (ctx) {
			cached = ctx.request() === ctx.request() && ctx.response() === ctx.response();
			ctx.response().end("hi " + ctx.request().path());
		});
		router;
	`)
	p, ok := v.(*proxy.Proxy)
	if !ok {
		t.Fatalf("script returned %T", v)
	}
	router := p.Delegate().(*web.Router)

	ctx, cancel := context.WithCancel(context.Background())
	release := rt.Loop().Hold()
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx) }()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello", nil))
	if rec.Body.String() != "hi /hello" {
		t.Errorf("body = %q", rec.Body.String())
	}

	release()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve: %v", err)
	}
	if rt.Get("cached") != true {
		t.Error("request()/response() must return the same objects")
	}
}

func TestPredefinedGlobals(t *testing.T) {
	rt := newRuntime(t)
	p, err := rt.reg.Bind(web.NewStaticHandler())
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Set("statics", p); err != nil {
		t.Fatal(err)
	}
	if err := rt.Set("limits", map[string]any{"cache": int64(7)}); err != nil {
		t.Fatal(err)
	}
	got := run(t, rt, `statics.setMaxCacheSize(limits.cache) === statics`)
	if got != true {
		t.Error("fluent call on predefined proxy lost identity")
	}
	if p.Delegate().(*web.StaticHandler).MaxCacheSize() != 7 {
		t.Error("predefined proxy not the bound delegate")
	}
}

func TestConsoleAndTimers(t *testing.T) {
	var out bytes.Buffer
	rt := newRuntime(t, WithOutput(&out))
	run(t, rt, `
		var fired = false;
		setTimeout(function () { fired = true; console.log("fired", 1, { a: 1 }); }, 5);
	`)
	if rt.Get("fired") != true {
		t.Error("timer did not fire before RunString returned")
	}
	if got := strings.TrimSpace(out.String()); got != `fired 1 {"a":1}` {
		t.Errorf("console output = %q", got)
	}
}

func TestScriptErrorsAreReturned(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.RunString(context.Background(), "bad.js", `throw new Error("nope")`)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("err = %v", err)
	}
}

func TestCallbackAfterLoopStopped(t *testing.T) {
	rt := newRuntime(t)
	v := run(t, rt, `(function (x) { return x + 1; })`)
	fn, ok := v.(proxy.HostFunc)
	if !ok {
		t.Fatalf("function converted to %T", v)
	}
	if _, err := fn(int64(1)); err == nil {
		t.Error("calling into a stopped loop must fail")
	}
}

func TestLoopDrains(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	release := l.Hold()
	var order []int
	if err := l.Submit(func() { order = append(order, 1) }); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = l.Submit(func() {
			order = append(order, 2)
			release()
		})
	}()
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Errorf("order = %v", order)
	}
	if l.Running() {
		t.Error("loop still marked running")
	}
}

func TestLoopYieldAllowsReentry(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	var inner bool
	done := make(chan struct{})
	err = l.Submit(func() {
		l.Yield(func() {
			// another goroutine enters while the job is parked in a host call
			ch := make(chan struct{})
			go l.Do(func() { inner = true; close(ch) })
			<-ch
		})
		close(done)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-done
	if !inner {
		t.Error("Do did not run while the job yielded")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Submit(func() {}); err == nil {
		t.Error("submit on a closed loop must fail")
	}
}

func TestSynchronousCallbackFromHost(t *testing.T) {
	rt := newRuntime(t)
	apply := proxy.HostFunc(func(args ...any) (any, error) {
		fn, ok := args[0].(proxy.HostFunc)
		if !ok {
			return nil, fmt.Errorf("got %T", args[0])
		}
		return fn(int64(41))
	})
	if err := rt.Set("apply", apply); err != nil {
		t.Fatal(err)
	}
	got := run(t, rt, `apply(function (x) { return x + 1; })`)
	if got != int64(42) {
		t.Errorf("apply = %v (%T)", got, got)
	}
}

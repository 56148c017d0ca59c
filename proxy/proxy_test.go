package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/webbind/async"
	werrors "github.com/wippyai/webbind/errors"
)

type counter struct {
	closed bool
	n      int
	calls  int
}

func newCounter() *counter { return &counter{} }

func (c *counter) Add(n int8) *counter { c.n += int(n); return c }
func (c *counter) Value() int        { c.calls++; return c.n }
func (c *counter) Fresh() *counter   { return &counter{n: c.n} }
func (c *counter) Twin() *counter    { return &counter{n: c.n} }
func (c *counter) Label(ctx context.Context, prefix string) string {
	return fmt.Sprintf("%s%d", prefix, c.n)
}
func (c *counter) Fail() error                 { return errors.New("BOOM") }
func (c *counter) Later(n int) *async.Future[int] { return async.Completed(c.n + n) }
func (c *counter) Each(fn func(int)) {
	for i := 0; i < c.n; i++ {
		fn(i)
	}
}
func (c *counter) Reset() *async.Future[struct{}] {
	c.n = 0
	return async.Completed(struct{}{})
}
func (c *counter) Close() error { c.closed = true; return nil }

// job is a delegate scoped to one unit of work.
type job struct {
	ends []func()
	part *counter
}

func (j *job) Part() *counter { return j.part }
func (j *job) OnEnd(fn func()) { j.ends = append(j.ends, fn) }
func (j *job) end() {
	for _, fn := range j.ends {
		fn()
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := r.Register("Counter", &counter{},
		Overloads("add", "Add"),
		Cacheable("twin"),
		Static("create", newCounter))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func create(t *testing.T, r *Registry) *Proxy {
	t.Helper()
	c, _ := r.Lookup("Counter")
	v, err := c.CallStatic(context.Background(), "create")
	if err != nil {
		t.Fatal(err)
	}
	return v.(*Proxy)
}

func TestNames(t *testing.T) {
	tests := map[string][2]string{
		"SetMaxCacheSize": {"setMaxCacheSize", "set-max-cache-size"},
		"BodyAsJSON":      {"bodyAsJson", "body-as-json"},
		"ServeHTTP":       {"serveHttp", "serve-http"},
		"Request":         {"request", "request"},
	}
	for in, want := range tests {
		if got := HostName(in); got != want[0] {
			t.Errorf("HostName(%q) = %q, want %q", in, got, want[0])
		}
		if got := KebabName(in); got != want[1] {
			t.Errorf("KebabName(%q) = %q, want %q", in, got, want[1])
		}
	}
}

func TestGuard(t *testing.T) {
	var g Guard
	if g.Check("x") != nil {
		t.Fatal("open guard rejected")
	}
	if !g.Close() || g.Close() {
		t.Error("Close must transition exactly once")
	}
	if err := g.Check("svc"); !errors.Is(err, werrors.ErrProxyClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestFluentReturnsSameProxy(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	got, err := p.Invoke(context.Background(), "add", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Error("fluent method must return the same proxy")
	}
	v, _ := p.Invoke(context.Background(), "value")
	if v != int64(2) {
		t.Errorf("value = %v (%T)", v, v)
	}
}

func TestCachedAccessorIdentity(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	a, err := p.Invoke(context.Background(), "twin")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.Invoke(context.Background(), "twin")
	if !a.(*Proxy).Same(b.(*Proxy)) {
		t.Error("cacheable accessor must return the same proxy")
	}

	f1, _ := p.Invoke(context.Background(), "fresh")
	f2, _ := p.Invoke(context.Background(), "fresh")
	if f1.(*Proxy).Same(f2.(*Proxy)) {
		t.Error("non-cacheable method must return fresh proxies")
	}
}

func TestInvalidArguments(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	before := r.Table().Len()

	_, err := p.Invoke(context.Background(), "add", "two")
	if !errors.Is(err, werrors.ErrInvalidArguments) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "Counter.add") {
		t.Errorf("error should name the method: %v", err)
	}
	if p.Delegate().(*counter).n != 0 || r.Table().Len() != before {
		t.Error("failed dispatch must not touch the delegate")
	}

	_, err = p.Invoke(context.Background(), "add", 300)
	var e *werrors.Error
	if !errors.As(err, &e) || e.Kind != werrors.KindOverflow {
		t.Errorf("overflow err = %v", err)
	}
}

func TestContextAndDelegateFailure(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	v, err := p.Invoke(context.Background(), "label", "n=")
	if err != nil || v != "n=0" {
		t.Fatalf("label = %v %v", v, err)
	}

	_, err = p.Invoke(context.Background(), "fail")
	if !errors.Is(err, werrors.ErrDelegateFailure) {
		t.Fatalf("err = %v", err)
	}
	if f := werrors.AsFailure(err); f.Message != "BOOM" {
		t.Errorf("failure = %+v", f)
	}
}

func TestAsyncFutureAndCallback(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)

	v, err := p.Invoke(context.Background(), "later", 5)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.(*async.Future[any]).Await(context.Background())
	if err != nil || got != int64(5) {
		t.Fatalf("future = %v %v", got, err)
	}

	calls := 0
	v, err = p.Invoke(context.Background(), "later", 1, func(err error, value any) {
		calls++
		if err != nil || value != int64(1) {
			t.Errorf("callback got %v %v", err, value)
		}
	})
	if err != nil || v != nil {
		t.Fatalf("callback form = %v %v", v, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestAsyncVoidCallbackGetsErrorOnly(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)

	var got []any
	v, err := p.Invoke(context.Background(), "reset", HostFunc(func(args ...any) (any, error) {
		got = args
		return nil, nil
	}))
	if err != nil || v != nil {
		t.Fatalf("reset = %v %v", v, err)
	}
	if len(got) != 1 || got[0] != nil {
		t.Errorf("void callback args = %#v, want [nil]", got)
	}

	c, _ := r.Lookup("Counter")
	m, _ := c.Method("reset")
	if sig := m.Signatures()[0]; !strings.Contains(sig, "future") {
		t.Errorf("reset signature = %q", sig)
	}
}

func TestScopedDelegateReleased(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.Register("Job", &job{}, Cacheable("part")); err != nil {
		t.Fatal(err)
	}
	before := r.Table().Len()

	for i := 0; i < 10; i++ {
		j := &job{part: &counter{}}
		p, err := r.Bind(j)
		if err != nil {
			t.Fatal(err)
		}
		part, err := p.Invoke(context.Background(), "part")
		if err != nil {
			t.Fatal(err)
		}
		j.end()
		if !p.Closed() || !part.(*Proxy).Closed() {
			t.Fatal("scoped proxy and its cached accessor must close when the work ends")
		}
	}
	if got := r.Table().Len(); got != before {
		t.Errorf("table grew from %d to %d", before, got)
	}
}

func TestHandlerBridge(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	_, _ = p.Invoke(context.Background(), "add", 3)

	var seen []any
	_, err := p.Invoke(context.Background(), "each", HostFunc(func(args ...any) (any, error) {
		seen = append(seen, args[0])
		return nil, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[2] != int64(2) {
		t.Errorf("handler saw %v", seen)
	}
}

func TestCloseRejectsCalls(t *testing.T) {
	r := newRegistry(t)
	p := create(t, r)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !p.Delegate().(*counter).closed {
		t.Error("delegate Close not called")
	}
	before := p.Delegate().(*counter).calls
	_, err := p.Invoke(context.Background(), "value")
	if !errors.Is(err, werrors.ErrProxyClosed) {
		t.Fatalf("err = %v", err)
	}
	if got := p.Delegate().(*counter).calls; got != before {
		t.Errorf("closed proxy reached the delegate %d times", got-before)
	}
	if _, ok := r.Proxy(p.Handle()); ok {
		t.Error("closed proxy still in table")
	}
	if err := p.Close(); err != nil {
		t.Error("second Close must be a no-op")
	}
}

func TestRegistrationErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("", &counter{}); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := r.Register("Counter", &counter{}, Overloads("x", "Value", "Fresh")); err == nil {
		t.Error("overlapping overloads accepted")
	}
	if _, ok := r.Lookup("Counter"); ok {
		t.Error("failed registration left a class behind")
	}
	if _, err := r.Bind(&counter{}); err == nil {
		t.Error("bind of unregistered type accepted")
	}
}

func TestSignatures(t *testing.T) {
	r := newRegistry(t)
	c, _ := r.Lookup("Counter")
	m, ok := c.Method("later")
	if !ok {
		t.Fatal("later not bound")
	}
	if got := m.Signatures()[0]; got != "later(s64) -> future<s64>" {
		t.Errorf("signature = %q", got)
	}
	if _, ok := c.Method("close"); !ok {
		t.Error("close should be bound")
	}
}

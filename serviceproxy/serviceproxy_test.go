package serviceproxy

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/proxy"
)

type greeter struct {
	closed atomic.Bool
	calls  atomic.Int32
	name   string
}

func (g *greeter) Greet(who string) string {
	g.calls.Add(1)
	return g.name + " greets " + who
}

func (g *greeter) Add(a, b int32) int32 {
	g.calls.Add(1)
	return a + b
}

func (g *greeter) Refuse() error {
	return errors.DelegateFailure("REFUSED", 7, "not today")
}

func (g *greeter) Later(ctx context.Context, who string) *async.Future[string] {
	return async.Go(ctx, func(context.Context) (string, error) {
		return "later " + who, nil
	})
}

func (g *greeter) Child(name string) *greeter {
	return &greeter{name: name}
}

func (g *greeter) Rename(name string) *greeter {
	g.name = name
	return g
}

func (g *greeter) Close() {
	g.closed.Store(true)
}

type fixture struct {
	bus    *eventbus.Bus
	reg    *proxy.Registry
	binder *Binder
	target *greeter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := eventbus.New(eventbus.WithTimeout(2 * time.Second))
	reg := proxy.NewRegistry()
	if err := eventbus.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register("Greeter", &greeter{}); err != nil {
		t.Fatal(err)
	}
	f := &fixture{bus: bus, reg: reg, binder: NewBinder(bus, reg), target: &greeter{name: "svc"}}
	if _, err := f.binder.RegisterDelegate("greeter", f.target); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		f.binder.Close()
		_ = bus.Close()
	})
	return f
}

func call(t *testing.T, c *Client, action string, args ...any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fut, err := c.Call(ctx, action, args)
	if err != nil {
		return nil, err
	}
	return fut.Await(ctx)
}

func TestClientCalls(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	if v, err := call(t, c, "greet", "ada"); err != nil || v != "svc greets ada" {
		t.Errorf("greet = %v, %v", v, err)
	}
	if v, err := call(t, c, "add", 2, 3); err != nil || v != 5.0 {
		t.Errorf("add = %#v, %v", v, err)
	}
	if v, err := call(t, c, "later", "bob"); err != nil || v != "later bob" {
		t.Errorf("later = %v, %v", v, err)
	}
}

func TestClientFailures(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	_, err := call(t, c, "refuse")
	fl := errors.AsFailure(err)
	if fl.Type != eventbus.FailureRecipient || fl.Code != 7 || fl.Message != "not today" {
		t.Errorf("refuse failure = %+v", fl)
	}

	_, err = call(t, c, "add", "two", 3)
	if !stderrors.Is(err, errors.ErrDelegateFailure) {
		t.Errorf("bad args err = %v", err)
	}

	_, err = call(t, c, "add", 1<<40, 1)
	if fl := errors.AsFailure(err); fl == nil || fl.Type != eventbus.FailureRecipient {
		t.Errorf("overflow err = %v", err)
	}
}

func TestHandleResultGetsOwnAddress(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	v, err := call(t, c, "child", "junior")
	if err != nil {
		t.Fatal(err)
	}
	sub, ok := v.(*proxy.Proxy)
	if !ok {
		t.Fatalf("child = %T, want bound sub-client", v)
	}
	if f.binder.Addresses() != 2 {
		t.Errorf("addresses = %d", f.binder.Addresses())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := sub.Invoke(ctx, "call", "greet", []any{"ada"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := res.(*async.Future[any]).Await(ctx)
	if err != nil || got != "junior greets ada" {
		t.Errorf("sub greet = %v, %v", got, err)
	}
}

func TestFluentResultReusesAddress(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	v, err := call(t, c, "rename", "svc2")
	if err != nil {
		t.Fatal(err)
	}
	sub, ok := v.(*proxy.Proxy)
	if !ok {
		t.Fatalf("rename = %T, want bound client", v)
	}
	if f.binder.Addresses() != 1 {
		t.Errorf("addresses = %d, want 1", f.binder.Addresses())
	}
	if got := sub.Delegate().(*Client).Address(); got != "greeter" {
		t.Errorf("fluent address = %q, want greeter", got)
	}
	if v, err := call(t, c, "greet", "ada"); err != nil || v != "svc2 greets ada" {
		t.Errorf("greet after rename = %v, %v", v, err)
	}
}

func TestServedAddressIsUUID(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	v, err := call(t, c, "child", "junior")
	if err != nil {
		t.Fatal(err)
	}
	addr := v.(*proxy.Proxy).Delegate().(*Client).Address()
	if _, err := uuid.Parse(addr); err != nil {
		t.Errorf("served address %q is not a UUID: %v", addr, err)
	}
}

func TestClosedClientSendsNothing(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.bus, f.reg, "greeter")

	if _, err := call(t, c, "greet", "x"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !f.target.closed.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !f.target.closed.Load() {
		t.Fatal("service delegate not closed")
	}

	before := f.target.calls.Load()
	if _, err := c.Call(context.Background(), "greet", []any{"y"}); !stderrors.Is(err, errors.ErrProxyClosed) {
		t.Errorf("call after close = %v", err)
	}
	if err := c.Notify("greet", []any{"z"}); !stderrors.Is(err, errors.ErrProxyClosed) {
		t.Errorf("notify after close = %v", err)
	}
	if f.target.calls.Load() != before {
		t.Error("closed client reached the service")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close = %v", err)
	}
}

func TestBoundClientClosedGuard(t *testing.T) {
	f := newFixture(t)
	busProxy, err := f.reg.Bind(f.bus)
	if err != nil {
		t.Fatal(err)
	}

	clientClass, _ := f.reg.Lookup("ServiceClient")
	v, err := clientClass.CallStatic(context.Background(), "create", busProxy, "greeter")
	if err != nil {
		t.Fatal(err)
	}
	client := v.(*proxy.Proxy)

	if _, err := client.Invoke(context.Background(), "close"); err != nil {
		t.Fatal(err)
	}
	before := f.target.calls.Load()
	_, err = client.Invoke(context.Background(), "call", "greet", []any{"x"})
	if !stderrors.Is(err, errors.ErrProxyClosed) {
		t.Errorf("err = %v, want proxy closed", err)
	}
	if f.target.calls.Load() != before {
		t.Error("closed proxy reached the service")
	}
}

func TestMissingAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.bus.Request(context.Background(), "greeter", map[string]any{}).Await(context.Background())
	if fl := errors.AsFailure(err); fl == nil || fl.Message != "action not specified" {
		t.Errorf("err = %v", err)
	}
}

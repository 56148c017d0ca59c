package serviceproxy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/proxy"
)

// Header and body keys of the service protocol.
const (
	HeaderAction    = "action"
	HeaderProxyAddr = "proxyaddr"
	BodyArgs        = "args"
	BodyResult      = "result"
	ActionClose     = "close"
)

type service struct {
	target  *proxy.Proxy
	reg     *eventbus.Registration
	address string
}

// Binder serves proxies on event bus addresses.
type Binder struct {
	bus      *eventbus.Bus
	registry *proxy.Registry
	services map[string]*service
	timeout  time.Duration
	mu       sync.Mutex
}

// NewBinder creates a binder. registry binds raw delegates passed to
// RegisterDelegate.
func NewBinder(bus *eventbus.Bus, registry *proxy.Registry) *Binder {
	return &Binder{
		bus:      bus,
		registry: registry,
		services: make(map[string]*service),
		timeout:  eventbus.DefaultTimeout,
	}
}

// SetTimeout bounds each served call. Non-positive values keep the bus
// default.
func (b *Binder) SetTimeout(d time.Duration) *Binder {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// Register serves target on address.
func (b *Binder) Register(address string, target *proxy.Proxy) (*eventbus.Registration, error) {
	if target == nil {
		return nil, errors.InvalidInput(errors.PhaseBus, "target must not be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.services[address]; exists {
		return nil, errors.InvalidInput(errors.PhaseBus, "address "+address+" already serves a proxy")
	}
	s := &service{target: target, address: address}
	reg, err := b.bus.Consumer(address, func(m *eventbus.Message) { b.handle(s, m) })
	if err != nil {
		return nil, err
	}
	s.reg = reg
	b.services[address] = s
	Logger().Debug("service registered", zap.String("address", address), zap.Stringer("target", target))
	return reg, nil
}

// RegisterDelegate binds delegate through the registry and serves it.
func (b *Binder) RegisterDelegate(address string, delegate any) (*eventbus.Registration, error) {
	p, err := b.registry.Bind(delegate)
	if err != nil {
		return nil, err
	}
	return b.Register(address, p)
}

// Unregister stops serving address. The proxy itself stays open.
func (b *Binder) Unregister(address string) {
	b.mu.Lock()
	s, ok := b.services[address]
	delete(b.services, address)
	b.mu.Unlock()
	if ok {
		s.reg.Unregister()
	}
}

// Addresses returns the number of served addresses.
func (b *Binder) Addresses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.services)
}

// Close stops serving every address.
func (b *Binder) Close() {
	b.mu.Lock()
	services := b.services
	b.services = make(map[string]*service)
	b.mu.Unlock()
	for _, s := range services {
		s.reg.Unregister()
	}
}

func (b *Binder) handle(s *service, m *eventbus.Message) {
	action := m.Header(HeaderAction)
	if action == "" {
		_ = m.Fail(-1, "action not specified")
		return
	}
	args, err := decodeArgs(m)
	if err != nil {
		_ = m.Fail(-1, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	if action == ActionClose {
		defer cancel()
		_ = s.target.Close()
		b.Unregister(s.address)
		_ = m.Reply(nil)
		return
	}

	v, err := s.target.Invoke(ctx, action, args...)
	if err != nil {
		cancel()
		b.fail(m, action, err)
		return
	}
	if aw, ok := v.(async.Awaitable); ok {
		aw.Listen(func(v any, err error) {
			cancel()
			if err != nil {
				b.fail(m, action, err)
				return
			}
			b.reply(m, s, v)
		})
		return
	}
	cancel()
	b.reply(m, s, v)
}

func (b *Binder) reply(m *eventbus.Message, s *service, v any) {
	if p, ok := v.(*proxy.Proxy); ok {
		addr, err := b.serve(s, p)
		if err != nil {
			_ = m.Fail(-1, err.Error())
			return
		}
		_ = m.ReplyWithOptions(nil, eventbus.DeliveryOptions{
			Headers: map[string]string{HeaderProxyAddr: addr},
		})
		return
	}
	if err := m.Reply(map[string]any{BodyResult: v}); err != nil {
		Logger().Warn("service reply not encoded", zap.String("address", m.Address()), zap.Error(err))
		_ = m.Fail(-1, err.Error())
	}
}

// serve returns the address p is served on. Fluent results reuse the
// address of the called service; other proxies get a fresh one.
func (b *Binder) serve(s *service, p *proxy.Proxy) (string, error) {
	if p.Same(s.target) {
		return s.address, nil
	}
	b.mu.Lock()
	for addr, other := range b.services {
		if other.target.Same(p) {
			b.mu.Unlock()
			return addr, nil
		}
	}
	b.mu.Unlock()
	addr := uuid.NewString()
	if _, err := b.Register(addr, p); err != nil {
		return "", err
	}
	return addr, nil
}

func (b *Binder) fail(m *eventbus.Message, action string, err error) {
	f := errors.AsFailure(err)
	Logger().Debug("service call failed",
		zap.String("address", m.Address()),
		zap.String("action", action),
		zap.Error(err))
	_ = m.Fail(f.Code, f.Message)
}

func decodeArgs(m *eventbus.Message) ([]any, error) {
	body, err := m.Body()
	if err != nil || body == nil {
		return nil, err
	}
	rec, ok := body.(map[string]any)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseBus, "message body must be a record")
	}
	switch args := rec[BodyArgs].(type) {
	case nil:
		return nil, nil
	case []any:
		return args, nil
	default:
		return nil, errors.InvalidInput(errors.PhaseBus, "args must be a list")
	}
}

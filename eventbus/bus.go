package eventbus

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/eventbus/codec"
)

// DefaultTimeout bounds requests without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// Handler consumes messages.
type Handler func(*Message)

// Registration is one consumer of an address.
type Registration struct {
	bus     *Bus
	handler Handler
	address string
	id      uint64
	active  atomic.Bool
}

// Address returns the consumed address.
func (r *Registration) Address() string { return r.address }

// IsRegistered reports whether the consumer still receives messages.
func (r *Registration) IsRegistered() bool { return r.active.Load() }

// Unregister stops the consumer. Unregistering twice is a no-op.
func (r *Registration) Unregister() {
	if r.active.CompareAndSwap(true, false) {
		r.bus.remove(r)
	}
}

// Option configures a Bus.
type Option func(*Bus)

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithContentType sets the content type used when a send names none.
func WithContentType(ct string) Option {
	return func(b *Bus) { b.contentType = ct }
}

// WithCodecs replaces the codec registry.
func WithCodecs(r *codec.Registry) Option {
	return func(b *Bus) { b.codecs = r }
}

// Bus delivers messages between consumers in the same process. Each
// delivery runs on its own goroutine.
type Bus struct {
	codecs      *codec.Registry
	consumers   map[string][]*Registration
	cursor      map[string]int
	contentType string
	timeout     time.Duration
	nextID      uint64
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// New creates a bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		codecs:      codec.NewRegistry(),
		consumers:   make(map[string][]*Registration),
		cursor:      make(map[string]int),
		contentType: codec.ContentTypeJSON,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create returns a bus with default options.
func Create() *Bus {
	return New()
}

// Consumer registers handler on address.
func (b *Bus) Consumer(address string, handler Handler) (*Registration, error) {
	if address == "" {
		return nil, errors.InvalidInput(errors.PhaseBus, "address must not be empty")
	}
	if handler == nil {
		return nil, errors.InvalidInput(errors.PhaseBus, "handler must not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed()
	}
	b.nextID++
	r := &Registration{bus: b, handler: handler, address: address, id: b.nextID}
	r.active.Store(true)
	b.consumers[address] = append(b.consumers[address], r)
	Logger().Debug("consumer registered", zap.String("address", address), zap.Uint64("id", r.id))
	return r, nil
}

func (b *Bus) remove(r *Registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.consumers[r.address]
	for i, c := range regs {
		if c == r {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(b.consumers, r.address)
		delete(b.cursor, r.address)
		return
	}
	b.consumers[r.address] = regs
}

// Send delivers body to one consumer of address, chosen round-robin.
func (b *Bus) Send(address string, body any) error {
	return b.SendWithOptions(address, body, DeliveryOptions{})
}

// SendWithOptions is Send with headers, content type and timeout.
func (b *Bus) SendWithOptions(address string, body any, opts DeliveryOptions) error {
	m, err := b.newMessage(address, body, opts, true)
	if err != nil {
		return err
	}
	r, err := b.pick(address)
	if err != nil {
		return err
	}
	if r != nil {
		b.deliver(r, m)
	}
	return nil
}

// Publish delivers body to every consumer of address. Publishing to an
// address without consumers is not an error.
func (b *Bus) Publish(address string, body any) error {
	return b.PublishWithOptions(address, body, DeliveryOptions{})
}

// PublishWithOptions is Publish with headers and content type.
func (b *Bus) PublishWithOptions(address string, body any, opts DeliveryOptions) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errBusClosed()
	}
	regs := append([]*Registration(nil), b.consumers[address]...)
	b.mu.RUnlock()
	if len(regs) == 0 {
		return nil
	}

	msgs := make([]*Message, len(regs))
	for i := range regs {
		m, err := b.newMessage(address, body, opts, false)
		if err != nil {
			return err
		}
		msgs[i] = m
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errBusClosed()
	}
	b.wg.Add(len(regs))
	b.mu.RUnlock()
	for i, r := range regs {
		b.deliver(r, msgs[i])
	}
	return nil
}

// Request sends body to one consumer and completes with its reply.
func (b *Bus) Request(ctx context.Context, address string, body any) *async.Future[*Message] {
	return b.RequestWithOptions(ctx, address, body, DeliveryOptions{})
}

// RequestWithOptions is Request with headers, content type and timeout.
func (b *Bus) RequestWithOptions(ctx context.Context, address string, body any, opts DeliveryOptions) *async.Future[*Message] {
	m, err := b.newMessage(address, body, opts, true)
	if err != nil {
		return async.Failed[*Message](err)
	}
	r, err := b.pick(address)
	if err != nil {
		return async.Failed[*Message](err)
	}
	if r == nil {
		return async.Failed[*Message](errors.DelegateFailure(FailureNoHandlers, -1,
			"no handlers for address "+address))
	}

	timeout := b.timeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	f := async.NewFuture[*Message]()
	m.reply = func(reply *Message, err error) {
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(reply)
	}
	f.OnComplete(func(async.Result[*Message]) { m.finish() })
	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-f.Done():
		case <-t.C:
			f.Fail(errors.DelegateFailure(FailureTimeout, -1,
				fmt.Sprintf("timed out after waiting %s for a reply on %s", timeout, address)))
		case <-ctx.Done():
			f.Fail(ctx.Err())
		}
	}()
	b.deliver(r, m)
	return f
}

// pick returns the next consumer of address, or nil when there is none.
// A picked consumer is counted as in flight until deliver finishes it.
func (b *Bus) pick(address string) (*Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed()
	}
	regs := b.consumers[address]
	if len(regs) == 0 {
		return nil, nil
	}
	i := b.cursor[address] % len(regs)
	b.cursor[address] = i + 1
	b.wg.Add(1)
	return regs[i], nil
}

// deliver runs the consumer on its own goroutine. The caller has already
// added the delivery to b.wg.
func (b *Bus) deliver(r *Registration, m *Message) {
	go func() {
		defer b.wg.Done()
		defer func() {
			if m.reply == nil {
				m.finish()
			}
		}()
		defer func() {
			if p := recover(); p != nil {
				Logger().Error("consumer panicked",
					zap.String("address", m.address), zap.Any("panic", p))
				_ = m.Fail(-1, fmt.Sprint(p))
			}
		}()
		if !r.active.Load() {
			m.noHandlers()
			return
		}
		r.handler(m)
	}()
}

func (b *Bus) newMessage(address string, body any, opts DeliveryOptions, send bool) (*Message, error) {
	ct := opts.ContentType
	if ct == "" {
		ct = b.contentType
	}
	c, err := b.codecs.Lookup(ct)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBus, errors.KindUnsupported, err, "encode message body")
	}
	var raw []byte
	if body != nil {
		if raw, err = c.Marshal(body); err != nil {
			return nil, errors.New(errors.PhaseBus, errors.KindInvalidArguments).
				GoType(fmt.Sprintf("%T", body)).
				Cause(err).
				Detail("encode message body as %s", c.ContentType()).
				Build()
		}
	}
	return &Message{
		bus:         b,
		headers:     maps.Clone(opts.Headers),
		address:     address,
		contentType: c.ContentType(),
		body:        raw,
		send:        send,
	}, nil
}

// Codecs returns the codec registry.
func (b *Bus) Codecs() *codec.Registry {
	return b.codecs
}

// Close unregisters every consumer and waits for running deliveries.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var regs []*Registration
	for _, rs := range b.consumers {
		regs = append(regs, rs...)
	}
	b.consumers = make(map[string][]*Registration)
	b.mu.Unlock()

	for _, r := range regs {
		r.active.Store(false)
	}
	b.wg.Wait()
	return nil
}

func errBusClosed() error {
	return errors.New(errors.PhaseBus, errors.KindProxyClosed).Detail("event bus is closed").Build()
}

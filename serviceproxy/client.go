package serviceproxy

import (
	"context"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/proxy"
)

// Client calls a service served by a Binder.
type Client struct {
	bus      *eventbus.Bus
	registry *proxy.Registry
	address  string
	opts     eventbus.DeliveryOptions
	guard    proxy.Guard
}

// NewClient creates a client for address. When registry is not nil,
// handle results come back as bound proxies of sub-clients.
func NewClient(bus *eventbus.Bus, registry *proxy.Registry, address string) *Client {
	return &Client{bus: bus, registry: registry, address: address}
}

// Address returns the service address.
func (c *Client) Address() string { return c.address }

// SetTimeout sets the request timeout in milliseconds.
func (c *Client) SetTimeout(ms int64) *Client {
	c.opts.TimeoutMs = ms
	return c
}

// SetContentType selects the body codec.
func (c *Client) SetContentType(ct string) *Client {
	c.opts.ContentType = ct
	return c
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	return c.guard.Closed()
}

// Call invokes action with positional args and completes with the result.
// A closed client fails synchronously and sends nothing.
func (c *Client) Call(ctx context.Context, action string, args []any) (*async.Future[any], error) {
	if err := c.guard.Check(c.address); err != nil {
		return nil, err
	}
	reply := c.bus.RequestWithOptions(ctx, c.address, body(args), c.options(action))
	return async.Map(reply, c.result), nil
}

// Notify invokes action without waiting for a reply.
func (c *Client) Notify(action string, args []any) error {
	if err := c.guard.Check(c.address); err != nil {
		return err
	}
	return c.bus.SendWithOptions(c.address, body(args), c.options(action))
}

// Close marks the client closed and tells the service to close its proxy.
// Closing twice is a no-op.
func (c *Client) Close() error {
	if !c.guard.Close() {
		return nil
	}
	return c.bus.SendWithOptions(c.address, nil, c.options(ActionClose))
}

func (c *Client) options(action string) eventbus.DeliveryOptions {
	opts := c.opts
	opts.Headers = map[string]string{HeaderAction: action}
	return opts
}

func (c *Client) result(m *eventbus.Message) (any, error) {
	if addr := m.Header(HeaderProxyAddr); addr != "" {
		sub := NewClient(c.bus, c.registry, addr)
		sub.opts = c.opts
		if c.registry == nil {
			return sub, nil
		}
		return c.registry.Bind(sub)
	}
	v, err := m.Body()
	if err != nil {
		return nil, err
	}
	rec, _ := v.(map[string]any)
	return rec[BodyResult], nil
}

func body(args []any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{BodyArgs: args}
}

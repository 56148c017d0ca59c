package proxy

import (
	"context"
	"fmt"

	"github.com/wippyai/webbind/resource"
)

// Proxy is the host-facing stand-in for one delegate. Identity is the
// handle: two proxies are the same object iff their handles are equal.
type Proxy struct {
	class    *Class
	delegate any
	guard    Guard
	handle   resource.Handle
}

// Delegate returns the wrapped object.
func (p *Proxy) Delegate() any {
	return p.delegate
}

// Handle returns the proxy's table handle.
func (p *Proxy) Handle() resource.Handle {
	return p.handle
}

// Class returns the proxy's class.
func (p *Proxy) Class() *Class {
	return p.class
}

// Same reports whether p and other are the same proxy object.
func (p *Proxy) Same(other *Proxy) bool {
	return other != nil && p.handle == other.handle
}

// Closed reports whether the proxy rejects calls.
func (p *Proxy) Closed() bool {
	return p.guard.Closed()
}

func (p *Proxy) String() string {
	return fmt.Sprintf("%s@%d", p.class.Name, p.handle)
}

// Invoke calls a host method through the binding layer: closed check,
// overload selection, argument conversion, delegate call, result conversion.
func (p *Proxy) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	if err := p.guard.Check(p.String()); err != nil {
		return nil, err
	}
	m, idx, err := p.class.dispatch.Select(method, args)
	if err != nil {
		return nil, qualify(err, p.class.Name)
	}
	bound := p.class.methods[m.Name]
	if bound.entries[idx].overload.GoName == "Close" {
		return nil, p.Close()
	}
	return p.class.reg.call(ctx, p, bound, idx, args)
}

// Close closes the proxy and releases its handle. Delegates exposing
// Close() error are closed as well. Closing twice is a no-op.
func (p *Proxy) Close() error {
	if !p.guard.Close() {
		return nil
	}
	p.class.reg.table.Remove(p.handle)
	switch d := p.delegate.(type) {
	case interface{ Close() error }:
		return d.Close()
	case interface{ Close() }:
		d.Close()
	}
	return nil
}

// Drop implements resource.Dropper; a dropped handle closes the guard
// without closing the delegate.
func (p *Proxy) Drop() {
	p.guard.Close()
}

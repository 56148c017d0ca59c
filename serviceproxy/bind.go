package serviceproxy

import (
	"github.com/wippyai/webbind/eventbus"
	"github.com/wippyai/webbind/proxy"
)

// Register binds ServiceClient and ServiceBinder into reg. The event bus
// classes must already be registered.
func Register(reg *proxy.Registry) error {
	if _, err := reg.Register("ServiceClient", &Client{},
		proxy.Static("create", func(bus *eventbus.Bus, address string) *Client {
			return NewClient(bus, reg, address)
		}),
	); err != nil {
		return err
	}
	_, err := reg.Register("ServiceBinder", &Binder{},
		proxy.Exclude("Register", "SetTimeout"),
		proxy.Rename("RegisterDelegate", "register"),
		proxy.Static("create", func(bus *eventbus.Bus) *Binder {
			return NewBinder(bus, reg)
		}),
	)
	return err
}

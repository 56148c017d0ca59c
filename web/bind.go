package web

import (
	"time"

	"github.com/wippyai/webbind/proxy"
)

// Register binds the web delegates into reg. Classes are registered in
// dependency order so handle-typed parameters resolve.
func Register(reg *proxy.Registry) error {
	classes := []struct {
		sample any
		name   string
		opts   []proxy.Option
	}{
		{&Cookie{}, "Cookie", []proxy.Option{
			proxy.Static("cookie", NewCookie),
		}},
		{&Session{}, "Session", nil},
		{&SessionStore{}, "SessionStore", []proxy.Option{
			proxy.Static("create", func() *SessionStore { return NewSessionStore(0) }),
			proxy.Static("create", func(timeoutMs int64) *SessionStore {
				return NewSessionStore(time.Duration(timeoutMs) * time.Millisecond)
			}),
		}},
		{&Request{}, "Request", nil},
		{&Response{}, "Response", []proxy.Option{
			proxy.Overloads("end", "End", "EndWith"),
			proxy.Overloads("write", "Write", "WriteBytes"),
		}},
		{&RoutingContext{}, "RoutingContext", []proxy.Option{
			proxy.Cacheable("request", "response"),
		}},
		{&Route{}, "Route", nil},
		{&Router{}, "Router", []proxy.Option{
			proxy.Overloads("route", "RouteAll", "RoutePath", "Route"),
			proxy.Static("router", NewRouter),
		}},
		{&StaticHandler{}, "StaticHandler", []proxy.Option{
			proxy.Static("create", NewStaticHandler),
			proxy.Static("create", NewStaticHandlerAt),
		}},
	}
	for _, c := range classes {
		if _, err := reg.Register(c.name, c.sample, c.opts...); err != nil {
			return err
		}
	}
	return nil
}

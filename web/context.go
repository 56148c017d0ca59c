package web

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
)

type routeMatch struct {
	route  *Route
	params map[string]string
}

// RoutingContext carries one request through the matching routes.
type RoutingContext struct {
	router     *Router
	writer     http.ResponseWriter
	req        *http.Request
	request    *Request
	response   *Response
	session    *Session
	params     map[string]string
	data       map[string]any
	cookies    map[string]*Cookie
	body       []byte
	routes     []*Route
	segs       []string
	ends       []func()
	current    *Route
	next       int
	statusCode int
	mu         sync.Mutex
	bodyRead   bool
	failed     bool
	finished   bool
}

func newRoutingContext(rt *Router, w http.ResponseWriter, req *http.Request) *RoutingContext {
	ctx := &RoutingContext{
		router:     rt,
		writer:     w,
		req:        req,
		routes:     rt.snapshot(),
		segs:       pathSegments(cleanPath(req.URL.Path)),
		data:       make(map[string]any),
		cookies:    make(map[string]*Cookie),
		statusCode: -1,
	}
	for _, c := range req.Cookies() {
		ctx.cookies[c.Name] = &Cookie{name: c.Name, value: c.Value, path: c.Path, domain: c.Domain}
	}
	ctx.request = &Request{ctx: ctx}
	ctx.response = &Response{ctx: ctx, status: http.StatusOK}
	return ctx
}

// Request returns the request of this context. Repeated calls return the
// same object.
func (c *RoutingContext) Request() *Request {
	return c.request
}

// Response returns the response of this context. Repeated calls return the
// same object.
func (c *RoutingContext) Response() *Response {
	return c.response
}

// Next runs the handler of the next matching route. When no route is left
// an unended response gets 404.
func (c *RoutingContext) Next() {
	for c.next < len(c.routes) {
		r := c.routes[c.next]
		c.next++
		if c.failed {
			if r.failure == nil {
				continue
			}
			if _, ok := r.match(c.req.Method, c.segs); !ok {
				continue
			}
			c.current = r
			r.failure(c)
			return
		}
		params, ok := r.match(c.req.Method, c.segs)
		if !ok {
			continue
		}
		c.current = r
		c.params = params
		r.handler(c)
		return
	}

	if c.response.Ended() {
		return
	}
	if c.failed {
		c.writeFailure()
		return
	}
	c.response.SetStatusCode(http.StatusNotFound).EndWith("Not Found")
}

// Fail routes the context to failure handlers with an HTTP status code.
func (c *RoutingContext) Fail(code int) {
	Logger().Debug("routing context failed",
		zap.String("path", c.req.URL.Path),
		zap.Int("status", code))
	c.failed = true
	c.statusCode = code
	c.next = 0
	c.Next()
}

func (c *RoutingContext) writeFailure() {
	code := c.statusCode
	if code < 0 {
		code = http.StatusInternalServerError
	}
	c.response.SetStatusCode(code).EndWith(http.StatusText(code))
}

// OnEnd registers fn to run once the request has been handled. After
// that it runs fn at once.
func (c *RoutingContext) OnEnd(fn func()) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		fn()
		return
	}
	c.ends = append(c.ends, fn)
	c.mu.Unlock()
}

func (c *RoutingContext) finish() {
	c.mu.Lock()
	c.finished = true
	ends := c.ends
	c.ends = nil
	c.mu.Unlock()
	for _, fn := range ends {
		fn()
	}
}

// Context returns the context of the underlying request.
func (c *RoutingContext) Context() context.Context {
	return c.req.Context()
}

// RemainingPath returns the normalised path with the prefix of the current
// wildcard route removed. Exact routes return the whole path.
func (c *RoutingContext) RemainingPath() string {
	p := c.NormalisedPath()
	if c.current != nil && c.current.prefix {
		prefix := "/" + strings.Join(c.current.segs, "/")
		p = strings.TrimPrefix(p, strings.TrimRight(prefix, "/"))
	}
	return path.Clean("/" + p)
}

// Failed reports whether Fail was called.
func (c *RoutingContext) Failed() bool {
	return c.failed
}

// StatusCode returns the failure status code, or -1.
func (c *RoutingContext) StatusCode() int {
	return c.statusCode
}

// Param returns a path parameter of the current route.
func (c *RoutingContext) Param(name string) string {
	return c.params[name]
}

// NormalisedPath returns the cleaned request path.
func (c *RoutingContext) NormalisedPath() string {
	return cleanPath(c.req.URL.Path)
}

// Put stores request-scoped data.
func (c *RoutingContext) Put(key string, value any) *RoutingContext {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
	return c
}

// Get returns request-scoped data.
func (c *RoutingContext) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

// Data returns a copy of the request-scoped data.
func (c *RoutingContext) Data() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// GetCookie returns the named cookie or nil.
func (c *RoutingContext) GetCookie(name string) *Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies[name]
}

// AddCookie adds or replaces a cookie; it is sent with the response headers.
func (c *RoutingContext) AddCookie(cookie *Cookie) *RoutingContext {
	c.mu.Lock()
	cookie.changed = true
	c.cookies[cookie.name] = cookie
	c.mu.Unlock()
	return c
}

// RemoveCookie removes the named cookie and returns it, or nil.
func (c *RoutingContext) RemoveCookie(name string) *Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	cookie, ok := c.cookies[name]
	if !ok {
		return nil
	}
	delete(c.cookies, name)
	return cookie
}

// CookieCount returns the number of cookies.
func (c *RoutingContext) CookieCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cookies)
}

// Cookies returns all cookies.
func (c *RoutingContext) Cookies() []*Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Cookie, 0, len(c.cookies))
	for _, cookie := range c.cookies {
		out = append(out, cookie)
	}
	return out
}

func (c *RoutingContext) changedCookies() []*Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Cookie
	for _, cookie := range c.cookies {
		if cookie.changed {
			out = append(out, cookie)
		}
	}
	return out
}

// Session returns the session attached by a SessionHandler, or nil.
func (c *RoutingContext) Session() *Session {
	return c.session
}

// SetSession attaches a session.
func (c *RoutingContext) SetSession(s *Session) *RoutingContext {
	c.session = s
	return c
}

func (c *RoutingContext) readBody() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.bodyRead {
		c.bodyRead = true
		if c.req.Body != nil {
			b, err := io.ReadAll(c.req.Body)
			if err != nil {
				Logger().Warn("read request body", zap.Error(err))
			}
			c.body = b
		}
	}
	return c.body
}

// BodyAsString returns the request body.
func (c *RoutingContext) BodyAsString() string {
	return string(c.readBody())
}

// BodyAsJSON parses the request body as a JSON object.
func (c *RoutingContext) BodyAsJSON() (map[string]any, error) {
	body := c.readBody()
	if !gjson.ValidBytes(body) {
		return nil, errors.InvalidInput(errors.PhaseDelegate, "request body is not valid JSON")
	}
	m, ok := gjson.ParseBytes(body).Value().(map[string]any)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseDelegate, "request body is not a JSON object")
	}
	return m, nil
}

// BodyPath extracts a value from a JSON body by gjson path.
func (c *RoutingContext) BodyPath(path string) any {
	return gjson.GetBytes(c.readBody(), path).Value()
}

package web

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler handles one routing step. It must call Next, Fail or end the
// response.
type Handler func(*RoutingContext)

// Route matches requests by method and path pattern. Patterns use {name}
// segments for parameters and a trailing * to match any suffix.
type Route struct {
	router  *Router
	handler Handler
	failure Handler
	method  string
	pattern string
	segs    []string
	prefix  bool
	enabled bool
}

// Handler sets the route's handler.
func (r *Route) Handler(fn Handler) *Route {
	r.router.mu.Lock()
	r.handler = fn
	r.router.mu.Unlock()
	return r
}

// FailureHandler sets the handler run when a context fails on this route.
func (r *Route) FailureHandler(fn Handler) *Route {
	r.router.mu.Lock()
	r.failure = fn
	r.router.mu.Unlock()
	return r
}

// Method restricts the route to one HTTP method.
func (r *Route) Method(method string) *Route {
	r.router.mu.Lock()
	r.method = strings.ToUpper(method)
	r.router.mu.Unlock()
	return r
}

// Path replaces the route's path pattern.
func (r *Route) Path(pattern string) *Route {
	r.router.mu.Lock()
	r.setPattern(pattern)
	r.router.mu.Unlock()
	return r
}

// Disable stops the route from matching.
func (r *Route) Disable() *Route {
	r.router.mu.Lock()
	r.enabled = false
	r.router.mu.Unlock()
	return r
}

// Enable lets a disabled route match again.
func (r *Route) Enable() *Route {
	r.router.mu.Lock()
	r.enabled = true
	r.router.mu.Unlock()
	return r
}

// Remove deletes the route from its router.
func (r *Route) Remove() *Route {
	r.router.mu.Lock()
	defer r.router.mu.Unlock()
	for i, other := range r.router.routes {
		if other == r {
			r.router.routes = append(r.router.routes[:i], r.router.routes[i+1:]...)
			break
		}
	}
	return r
}

// GetPath returns the route's pattern, or "" for a route matching any path.
func (r *Route) GetPath() string {
	return r.pattern
}

func (r *Route) setPattern(pattern string) {
	r.pattern = pattern
	r.prefix = false
	r.segs = nil
	if pattern == "" {
		return
	}
	p := cleanPath(pattern)
	if strings.HasSuffix(p, "*") {
		r.prefix = true
		p = cleanPath(strings.TrimSuffix(p, "*"))
	}
	r.segs = pathSegments(p)
}

// match reports whether the route accepts method and path segments and
// returns the captured parameters.
func (r *Route) match(method string, segs []string) (map[string]string, bool) {
	if !r.enabled || r.handler == nil {
		return nil, false
	}
	if r.method != "" && r.method != method {
		return nil, false
	}
	if r.pattern == "" {
		return nil, true
	}
	if len(segs) < len(r.segs) || (!r.prefix && len(segs) != len(r.segs)) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range r.segs {
		if name, ok := isParamSegment(seg); ok {
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[name] = segs[i]
			continue
		}
		if seg != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// Router dispatches requests to routes in registration order. A handler
// passes control to the next matching route with RoutingContext.Next.
type Router struct {
	routes []*Route
	mu     sync.RWMutex
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// RouteAll adds a route matching every request.
func (rt *Router) RouteAll() *Route {
	return rt.add("", "")
}

// RoutePath adds a route matching path for any method.
func (rt *Router) RoutePath(path string) *Route {
	return rt.add("", path)
}

// Route adds a route matching method and path.
func (rt *Router) Route(method, path string) *Route {
	return rt.add(strings.ToUpper(method), path)
}

// Get adds a GET route.
func (rt *Router) Get(path string) *Route { return rt.add(http.MethodGet, path) }

// Post adds a POST route.
func (rt *Router) Post(path string) *Route { return rt.add(http.MethodPost, path) }

// Put adds a PUT route.
func (rt *Router) Put(path string) *Route { return rt.add(http.MethodPut, path) }

// Delete adds a DELETE route.
func (rt *Router) Delete(path string) *Route { return rt.add(http.MethodDelete, path) }

// Clear removes every route.
func (rt *Router) Clear() *Router {
	rt.mu.Lock()
	rt.routes = nil
	rt.mu.Unlock()
	return rt
}

// RouteCount returns the number of routes.
func (rt *Router) RouteCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.routes)
}

func (rt *Router) add(method, path string) *Route {
	r := &Route{router: rt, method: method, enabled: true}
	r.setPattern(path)
	rt.mu.Lock()
	rt.routes = append(rt.routes, r)
	rt.mu.Unlock()
	return r
}

func (rt *Router) snapshot() []*Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]*Route(nil), rt.routes...)
}

// Accept routes one request.
func (rt *Router) Accept(w http.ResponseWriter, req *http.Request) {
	ctx := newRoutingContext(rt, w, req)
	defer ctx.finish()
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Error("handler panicked",
				zap.String("path", req.URL.Path),
				zap.Any("panic", rec))
			ctx.Fail(http.StatusInternalServerError)
		}
	}()
	ctx.Next()
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt.Accept(w, req)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func pathSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isParamSegment(seg string) (string, bool) {
	if len(seg) < 3 || seg[0] != '{' || seg[len(seg)-1] != '}' {
		return "", false
	}
	name := seg[1 : len(seg)-1]
	if strings.ContainsAny(name, "/{}") {
		return "", false
	}
	return name, true
}

package proxy

import (
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/convert"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/resource"
)

// Registry is the binding generator. It reflects delegate types into
// classes and creates proxies for delegates.
type Registry struct {
	classes map[string]*Class
	byType  map[reflect.Type]*Class
	table   *resource.Table
	cache   *resource.Cache
	conv    *convert.Converter
	mu      sync.RWMutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTable shares a handle table with other hosts.
func WithTable(t *resource.Table) RegistryOption {
	return func(r *Registry) { r.table = t }
}

// NewRegistry creates an empty registry with its own handle table and
// accessor cache.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		classes: make(map[string]*Class),
		byType:  make(map[reflect.Type]*Class),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.table == nil {
		r.table = resource.NewTable()
	}
	r.cache = resource.NewCache()
	r.table.Subscribe(r)
	r.conv = convert.New(convert.WithBinder(r), convert.WithCache(r.cache))
	return r
}

// Register binds the exported methods of sample's type under name.
// Classes referenced by parameter or result types should be registered
// first so they resolve to handles rather than records.
func (r *Registry) Register(name string, sample any, opts ...Option) (*Class, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseRegister, "class name cannot be empty")
	}
	if sample == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "sample delegate cannot be nil")
	}
	rt := reflect.TypeOf(sample)

	cfg := newClassConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	r.mu.Lock()
	if _, exists := r.classes[name]; exists {
		r.mu.Unlock()
		return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
			Detail("class %s already registered", name).
			Build()
	}
	// placeholder so fluent and self-referencing signatures resolve to the class
	r.byType[rt] = &Class{Name: name, Type: rt}
	r.mu.Unlock()

	c, err := r.buildClass(name, rt, cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		delete(r.byType, rt)
		return nil, err
	}
	r.classes[name] = c
	r.byType[rt] = c

	Logger().Debug("class registered",
		zap.String("class", name),
		zap.String("type", rt.String()),
		zap.Int("methods", len(c.methods)),
		zap.Int("statics", len(c.statics)))
	return c, nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry) MustRegister(name string, sample any, opts ...Option) *Class {
	c, err := r.Register(name, sample, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup finds a class by name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Classes returns the registered classes sorted by name.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	out := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) classOf(rt reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byType[rt]; ok {
		return c.Name, true
	}
	return "", false
}

// Bind creates a proxy for a delegate of a registered type.
func (r *Registry) Bind(delegate any) (*Proxy, error) {
	if delegate == nil {
		return nil, errors.InvalidInput(errors.PhaseProxy, "delegate cannot be nil")
	}
	r.mu.RLock()
	c, ok := r.byType[reflect.TypeOf(delegate)]
	r.mu.RUnlock()
	if !ok || c.reg == nil {
		return nil, errors.NotFound(errors.PhaseProxy, "class for type", reflect.TypeOf(delegate).String())
	}
	return r.newProxy(c, delegate)
}

// Wrap implements convert.Binder.
func (r *Registry) Wrap(delegate any, class string) (any, error) {
	if class == "" {
		return r.Bind(delegate)
	}
	c, ok := r.Lookup(class)
	if !ok {
		return nil, errors.NotFound(errors.PhaseProxy, "class", class)
	}
	if !r.Accepts(delegate, class) {
		return nil, errors.TypeMismatch(errors.PhaseToHost, nil, reflect.TypeOf(delegate).String(), class)
	}
	return r.newProxy(c, delegate)
}

// Accepts implements convert.Binder.
func (r *Registry) Accepts(delegate any, class string) bool {
	c, ok := r.Lookup(class)
	if !ok || delegate == nil {
		return false
	}
	dt := reflect.TypeOf(delegate)
	return dt == c.Type || (c.Type.Kind() == reflect.Interface && dt.Implements(c.Type))
}

func (r *Registry) newProxy(c *Class, delegate any) (*Proxy, error) {
	p := &Proxy{class: c, delegate: delegate}
	h, err := r.table.Insert(c.Name, p)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProxy, errors.KindInvalidInput, err, "insert delegate handle")
	}
	p.handle = h
	if s, ok := delegate.(Scoped); ok {
		s.OnEnd(func() { r.release(p) })
	}
	return p, nil
}

// release drops p's handle if p still owns it.
func (r *Registry) release(p *Proxy) {
	if cur, ok := r.table.Get(p.handle); ok && cur == any(p) {
		r.table.Remove(p.handle)
	}
}

// OnResourceEvent releases the cached accessor results of a dropped
// owner; they share its lifetime.
func (r *Registry) OnResourceEvent(e resource.Event) {
	if e.Type != resource.EventDropped {
		return
	}
	for _, v := range r.cache.Forget(e.Handle) {
		if p, ok := v.(*Proxy); ok {
			r.release(p)
		}
	}
}

// Proxy returns the live proxy behind a handle.
func (r *Registry) Proxy(h resource.Handle) (*Proxy, bool) {
	v, ok := r.table.Get(h)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Proxy)
	return p, ok
}

// Converter returns the converter bound to this registry.
func (r *Registry) Converter() *convert.Converter {
	return r.conv
}

// Table returns the handle table holding the registry's proxies.
func (r *Registry) Table() *resource.Table {
	return r.table
}

// Close drops every proxy. Closed proxies reject further calls.
func (r *Registry) Close() error {
	return r.table.Close()
}

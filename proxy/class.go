package proxy

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/convert"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/shape"
)

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	awaitableType = reflect.TypeOf((*async.Awaitable)(nil)).Elem()
)

// skipped are Go methods that belong to the binding plumbing itself.
var skipped = map[string]bool{
	"Delegate":   true,
	"ToRecord":   true,
	"FromRecord": true,
	"Drop":       true,
	"ServeHTTP":  true,
	"Error":      true,
}

// Overload is one Go function reachable under a host method name.
type Overload struct {
	fn         reflect.Value
	resultType reflect.Type
	GoName     string
	Params     []convert.Type
	paramTypes []reflect.Type
	Result     convert.Type
	withCtx    bool
	hasErr     bool
	static     bool
	// Async overloads return a future; hosts may pass a trailing callback.
	Async bool
	// Callback overloads take a func(error, T) as their last parameter.
	Callback bool
}

// Signature renders the overload for listings.
func (o *Overload) Signature(name string) string {
	params := make([]string, len(o.Params))
	for i, p := range o.Params {
		params[i] = convert.TypeString(p)
	}
	res := convert.TypeString(o.Result)
	if o.Async {
		res = "future<" + res + ">"
	}
	return name + "(" + strings.Join(params, ", ") + ") -> " + res
}

type entry struct {
	overload         *Overload
	trailingCallback bool
}

// Method groups the overloads exposed under one host name.
type Method struct {
	Name      string
	Overloads []*Overload
	entries   []entry
	Cacheable bool
	Fluent    bool
}

// Signatures renders every overload of the method.
func (m *Method) Signatures() []string {
	out := make([]string, len(m.Overloads))
	for i, o := range m.Overloads {
		out[i] = o.Signature(m.Name)
	}
	return out
}

// Class is the binding of one delegate type.
type Class struct {
	Type           reflect.Type
	reg            *Registry
	methods        map[string]*Method
	statics        map[string]*Method
	dispatch       *shape.Dispatcher
	staticDispatch *shape.Dispatcher
	Name           string
}

// Method looks up an instance method by host name.
func (c *Class) Method(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Methods returns instance methods in registration order.
func (c *Class) Methods() []*Method {
	return collect(c.methods, c.dispatch.Names())
}

// Statics returns static factories in registration order.
func (c *Class) Statics() []*Method {
	return collect(c.statics, c.staticDispatch.Names())
}

func collect(byName map[string]*Method, names []string) []*Method {
	out := make([]*Method, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n])
	}
	return out
}

// CallStatic invokes a static factory such as Router.router().
func (c *Class) CallStatic(ctx context.Context, name string, args ...any) (any, error) {
	m, idx, err := c.staticDispatch.Select(name, args)
	if err != nil {
		return nil, qualify(err, c.Name)
	}
	return c.reg.call(ctx, nil, c.statics[m.Name], idx, args)
}

// Selection describes the overload a call resolves to.
type Selection struct {
	Overload *Overload
	// Callback is set when the last argument is taken as a trailing
	// completion callback.
	Callback bool
}

// Select resolves an instance call without running it.
func (c *Class) Select(method string, args []any) (Selection, error) {
	return selectIn(c, c.dispatch, c.methods, method, args)
}

// SelectStatic resolves a static call without running it.
func (c *Class) SelectStatic(name string, args []any) (Selection, error) {
	return selectIn(c, c.staticDispatch, c.statics, name, args)
}

func selectIn(c *Class, d *shape.Dispatcher, byName map[string]*Method, name string, args []any) (Selection, error) {
	m, idx, err := d.Select(name, args)
	if err != nil {
		return Selection{}, qualify(err, c.Name)
	}
	e := byName[m.Name].entries[idx]
	return Selection{Overload: e.overload, Callback: e.trailingCallback}, nil
}

func qualify(err error, class string) error {
	if e, ok := err.(*errors.Error); ok && e.Method != "" && !strings.Contains(e.Method, ".") {
		e.Method = class + "." + e.Method
	}
	return err
}

// Option configures class registration.
type Option func(*classConfig)

type staticDef struct {
	fn   any
	name string
}

type classConfig struct {
	names     map[string]string // Go name -> host name
	order     map[string]int    // Go name -> overload position
	cacheable map[string]bool
	fluent    map[string]bool
	exclude   map[string]bool
	statics   []staticDef
}

func newClassConfig() *classConfig {
	return &classConfig{
		names:     make(map[string]string),
		order:     make(map[string]int),
		cacheable: make(map[string]bool),
		fluent:    make(map[string]bool),
		exclude:   make(map[string]bool),
	}
}

// Overloads exposes several Go methods under one host name. Their rules are
// tried in the order given.
func Overloads(host string, goMethods ...string) Option {
	return func(c *classConfig) {
		for i, g := range goMethods {
			c.names[g] = host
			c.order[g] = i
		}
	}
}

// Rename exposes a Go method under an explicit host name.
func Rename(goMethod, host string) Option {
	return func(c *classConfig) { c.names[goMethod] = host }
}

// Cacheable marks host methods whose handle results are memoised per proxy.
func Cacheable(hostMethods ...string) Option {
	return func(c *classConfig) {
		for _, m := range hostMethods {
			c.cacheable[m] = true
		}
	}
}

// Fluent marks host methods that always return the receiving proxy.
// Methods returning their own receiver are detected without this option.
func Fluent(hostMethods ...string) Option {
	return func(c *classConfig) {
		for _, m := range hostMethods {
			c.fluent[m] = true
		}
	}
}

// Exclude hides Go methods from the host.
func Exclude(goMethods ...string) Option {
	return func(c *classConfig) {
		for _, m := range goMethods {
			c.exclude[m] = true
		}
	}
}

// Static adds a factory function reachable on the class itself. Several
// Static options with one name form an overload set.
func Static(host string, fn any) Option {
	return func(c *classConfig) {
		c.statics = append(c.statics, staticDef{name: host, fn: fn})
	}
}

type candidate struct {
	ov    *Overload
	host  string
	order int
}

func (r *Registry) buildClass(name string, rt reflect.Type, cfg *classConfig) (*Class, error) {
	c := &Class{
		Name:           name,
		Type:           rt,
		reg:            r,
		methods:        make(map[string]*Method),
		statics:        make(map[string]*Method),
		dispatch:       shape.NewDispatcher(),
		staticDispatch: shape.NewDispatcher(),
	}

	var cands []candidate
	for i := 0; i < rt.NumMethod(); i++ {
		gm := rt.Method(i)
		if !gm.IsExported() || skipped[gm.Name] || cfg.exclude[gm.Name] {
			continue
		}
		ov, err := r.buildOverload(gm.Name, gm.Func, false)
		if err != nil {
			Logger().Debug("method not bound",
				zap.String("class", name),
				zap.String("method", gm.Name),
				zap.Error(err))
			continue
		}
		host, ok := cfg.names[gm.Name]
		if !ok {
			host = HostName(gm.Name)
		}
		cands = append(cands, candidate{ov: ov, host: host, order: cfg.order[gm.Name]})
	}
	if err := r.addMethods(c, c.methods, c.dispatch, cands, cfg); err != nil {
		return nil, err
	}

	var statics []candidate
	for i, s := range cfg.statics {
		fv := reflect.ValueOf(s.fn)
		if fv.Kind() != reflect.Func {
			return nil, errors.Registration(name, s.name, errors.InvalidInput(errors.PhaseRegister, "static must be a function"))
		}
		ov, err := r.buildOverload(s.name, fv, true)
		if err != nil {
			return nil, errors.Registration(name, s.name, err)
		}
		statics = append(statics, candidate{ov: ov, host: s.name, order: i})
	}
	if err := r.addMethods(c, c.statics, c.staticDispatch, statics, cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Registry) addMethods(c *Class, into map[string]*Method, d *shape.Dispatcher, cands []candidate, cfg *classConfig) error {
	var hostOrder []string
	grouped := make(map[string][]candidate)
	for _, cand := range cands {
		if _, seen := grouped[cand.host]; !seen {
			hostOrder = append(hostOrder, cand.host)
		}
		grouped[cand.host] = append(grouped[cand.host], cand)
	}

	for _, host := range hostOrder {
		group := grouped[host]
		sort.SliceStable(group, func(i, j int) bool { return group[i].order < group[j].order })
		m := &Method{
			Name:      host,
			Cacheable: cfg.cacheable[host],
			Fluent:    cfg.fluent[host],
		}
		for _, cand := range group {
			m.Overloads = append(m.Overloads, cand.ov)
		}
		var rules []shape.Rule
		for _, ov := range m.Overloads {
			kinds := make([]shape.Kind, len(ov.Params))
			for i, p := range ov.Params {
				kinds[i] = convert.Shape(p)
			}
			rules = append(rules, shape.NewRule(kinds...))
			m.entries = append(m.entries, entry{overload: ov})
			if ov.Async {
				rules = append(rules, shape.NewRule(append(kinds, shape.Function)...))
				m.entries = append(m.entries, entry{overload: ov, trailingCallback: true})
			}
		}
		sm, err := shape.NewMethod(host, rules...)
		if err != nil {
			return errors.Registration(c.Name, host, err)
		}
		if err := d.Add(sm); err != nil {
			return errors.Registration(c.Name, host, err)
		}
		into[host] = m
	}
	return nil
}

// buildOverload derives conversion rules from a Go function type. For
// methods fn is the method expression and its first parameter the receiver.
func (r *Registry) buildOverload(goName string, fn reflect.Value, static bool) (*Overload, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseRegister, "variadic method "+goName)
	}
	ov := &Overload{GoName: goName, fn: fn, static: static}

	start := 0
	if !static {
		start = 1
	}
	if ft.NumIn() > start && ft.In(start) == contextType {
		ov.withCtx = true
		start++
	}
	for i := start; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		t, err := convert.TypeOf(pt, r.classOf)
		if err != nil {
			return nil, err
		}
		ov.Params = append(ov.Params, t)
		ov.paramTypes = append(ov.paramTypes, pt)
		if i == ft.NumIn()-1 && isCallbackType(pt) {
			ov.Callback = true
		}
	}

	switch ft.NumOut() {
	case 0:
		ov.Result = convert.Void{}
		return ov, nil
	case 1:
		if ft.Out(0) == errorType {
			ov.hasErr = true
			ov.Result = convert.Void{}
			return ov, nil
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.Unsupported(errors.PhaseRegister, "second result of "+goName+" must be error")
		}
		ov.hasErr = true
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, "too many results in "+goName)
	}

	rt := ft.Out(0)
	ov.resultType = rt
	if rt.Implements(awaitableType) && rt.Kind() == reflect.Pointer {
		ov.Async = true
		rt = reflect.New(rt.Elem()).Interface().(async.Awaitable).ValueType()
		if rt.Kind() == reflect.Struct && rt.NumField() == 0 {
			ov.Result = convert.Void{}
			return ov, nil
		}
	}
	t, err := convert.TypeOf(rt, r.classOf)
	if err != nil {
		return nil, err
	}
	ov.Result = t
	return ov, nil
}

// isCallbackType matches func(error, T) with no results.
func isCallbackType(t reflect.Type) bool {
	return t.Kind() == reflect.Func && t.NumOut() == 0 && t.NumIn() == 2 && t.In(0) == errorType
}

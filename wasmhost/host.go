package wasmhost

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/proxy"
	"github.com/wippyai/webbind/resource"
)

// ModuleName is the import module guests link against.
const ModuleName = "webbind"

// DefaultTimeout bounds how long invoke waits for an async result.
const DefaultTimeout = 30 * time.Second

// Reply keys.
const (
	keyHandle = "$handle"
	keyClass  = "$class"
)

// Host serves guest invoke calls against a registry.
type Host struct {
	reg     *proxy.Registry
	issued  map[resource.Handle]*proxy.Proxy
	kebab   map[string]map[string]string
	timeout time.Duration
	mu      sync.Mutex
}

// Option configures a Host.
type Option func(*Host)

// WithTimeout bounds async calls. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a host for reg.
func New(reg *proxy.Registry, opts ...Option) *Host {
	h := &Host{
		reg:     reg,
		issued:  make(map[resource.Handle]*proxy.Proxy),
		kebab:   make(map[string]map[string]string),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	for _, c := range reg.Classes() {
		names := make(map[string]string)
		for _, m := range c.Methods() {
			names[proxy.KebabName(m.Name)] = m.Name
		}
		for _, m := range c.Statics() {
			names[proxy.KebabName(m.Name)] = m.Name
		}
		h.kebab[c.Name] = names
	}
	reg.Table().Subscribe(h)
	return h
}

// Config tunes the wazero runtime built by NewRuntime.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages; 0 keeps wazero's
	// default.
	MemoryLimitPages uint32
}

// NewRuntime creates a wazero runtime.
func NewRuntime(ctx context.Context, cfg Config) wazero.Runtime {
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return wazero.NewRuntimeWithConfig(ctx, rc)
}

// Instantiate registers the webbind host module in rt.
func (h *Host) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	mod, err := rt.NewHostModuleBuilder(ModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.invoke),
			[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("invoke").
		Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindRegistration, err, "instantiate host module")
	}
	return mod, nil
}

// Close stops tracking handle events.
func (h *Host) Close() {
	h.reg.Table().Unsubscribe(h)
}

// OnResourceEvent forgets a closed proxy once its handle is reused. Until
// then calls on the stale handle report ProxyClosed.
func (h *Host) OnResourceEvent(e resource.Event) {
	if e.Type != resource.EventCreated {
		return
	}
	h.mu.Lock()
	if p, ok := h.issued[e.Handle]; ok && p.Closed() {
		delete(h.issued, e.Handle)
	}
	h.mu.Unlock()
}

func (h *Host) invoke(ctx context.Context, mod api.Module, stack []uint64) {
	descPtr, descLen := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	outPtr, outCap := api.DecodeU32(stack[2]), api.DecodeU32(stack[3])

	mem := mod.Memory()
	if mem == nil {
		stack[0] = api.EncodeI32(-1)
		return
	}
	desc, ok := mem.Read(descPtr, descLen)
	if !ok {
		Logger().Warn("descriptor out of bounds",
			zap.Uint32("ptr", descPtr),
			zap.Uint32("len", descLen))
		stack[0] = api.EncodeI32(-1)
		return
	}
	reply := h.Call(ctx, desc)
	if uint32(len(reply)) > outCap {
		stack[0] = api.EncodeI32(-int32(len(reply)))
		return
	}
	if !mem.Write(outPtr, reply) {
		stack[0] = api.EncodeI32(-1)
		return
	}
	stack[0] = api.EncodeI32(int32(len(reply)))
}

type descriptor struct {
	Class  string          `json:"class,omitempty"`
	Method string          `json:"method"`
	Args   []any           `json:"args"`
	Target resource.Handle `json:"target"`
}

type failureReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Call runs one JSON call descriptor and returns the JSON reply. It is the
// whole invoke protocol minus guest memory.
func (h *Host) Call(ctx context.Context, desc []byte) []byte {
	v, err := h.call(ctx, desc)
	if err != nil {
		return h.errorReply(err)
	}
	out, err := json.Marshal(map[string]any{"value": v})
	if err != nil {
		return h.errorReply(errors.Wrap(errors.PhaseToHost, errors.KindUnsupported, err, "encode reply"))
	}
	return out
}

func (h *Host) errorReply(err error) []byte {
	f := errors.AsFailure(err)
	out, _ := json.Marshal(map[string]any{
		"error": failureReply{Type: f.Type, Code: f.Code, Message: f.Message},
	})
	return out
}

func (h *Host) call(ctx context.Context, raw []byte) (any, error) {
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "decode call descriptor")
	}
	if d.Method == "" {
		return nil, errors.InvalidInput(errors.PhaseGuest, "call descriptor has no method")
	}
	args := make([]any, len(d.Args))
	for i, a := range d.Args {
		v, err := h.inbound(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	var (
		v   any
		err error
	)
	if d.Target == 0 {
		c, ok := h.reg.Lookup(d.Class)
		if !ok {
			return nil, errors.NotFound(errors.PhaseGuest, "class", d.Class)
		}
		v, err = c.CallStatic(ctx, h.methodName(c.Name, d.Method), args...)
	} else {
		p, perr := h.target(d.Target)
		if perr != nil {
			return nil, perr
		}
		v, err = p.Invoke(ctx, h.methodName(p.Class().Name, d.Method), args...)
	}
	if err != nil {
		return nil, err
	}
	return h.outbound(ctx, v)
}

func (h *Host) methodName(class, method string) string {
	if name, ok := h.kebab[class][method]; ok {
		return name
	}
	return method
}

func (h *Host) target(handle resource.Handle) (*proxy.Proxy, error) {
	h.mu.Lock()
	p, ok := h.issued[handle]
	h.mu.Unlock()
	if ok {
		return p, nil
	}
	if p, ok := h.reg.Proxy(handle); ok {
		h.track(p)
		return p, nil
	}
	return nil, errors.NotFound(errors.PhaseGuest, "handle", handleString(handle))
}

func (h *Host) track(p *proxy.Proxy) {
	h.mu.Lock()
	h.issued[p.Handle()] = p
	h.mu.Unlock()
}

// inbound resolves handle references inside guest arguments.
func (h *Host) inbound(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if ref, ok := x[keyHandle]; ok {
			n, ok := ref.(float64)
			if !ok || n <= 0 {
				return nil, errors.InvalidInput(errors.PhaseGuest, "malformed handle reference")
			}
			return h.target(resource.Handle(n))
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := h.inbound(e)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := h.inbound(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// outbound turns a host value into its JSON form, awaiting futures.
func (h *Host) outbound(ctx context.Context, v any) (any, error) {
	switch x := v.(type) {
	case *proxy.Proxy:
		h.track(x)
		return map[string]any{keyHandle: uint32(x.Handle()), keyClass: x.Class().Name}, nil
	case async.Awaitable:
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		res, err := async.FromAwaitable(x).Await(ctx)
		if err == context.DeadlineExceeded {
			return nil, errors.Timeout(errors.PhaseGuest, "async result")
		}
		if err != nil {
			return nil, err
		}
		return h.outbound(ctx, res)
	case error:
		return errors.AsFailure(x).ToRecord(), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := h.outbound(ctx, e)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := h.outbound(ctx, e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

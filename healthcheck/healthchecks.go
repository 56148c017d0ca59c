package healthcheck

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
)

// DefaultTimeout bounds a procedure run when no timeout is configured.
const DefaultTimeout = time.Second

const (
	causeTimeout     = "Timeout"
	procedureFailure = "procedure-execution-failure"
)

type node struct {
	procedure Procedure
	name      string
	children  []*node
}

func (n *node) composite() bool {
	return n.procedure == nil
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) remove(name string) bool {
	for i, c := range n.children {
		if c.name == name {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return true
		}
	}
	return false
}

// HealthChecks is a registry of health procedures.
type HealthChecks struct {
	root    *node
	timeout time.Duration
	mu      sync.RWMutex
}

// New creates an empty registry. A non-positive timeout selects
// DefaultTimeout.
func New(timeout time.Duration) *HealthChecks {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HealthChecks{root: &node{}, timeout: timeout}
}

// Create returns a registry using DefaultTimeout.
func Create() *HealthChecks {
	return New(DefaultTimeout)
}

// SetTimeout changes the per-procedure timeout in milliseconds.
func (h *HealthChecks) SetTimeout(ms int64) *HealthChecks {
	h.mu.Lock()
	if ms <= 0 {
		h.timeout = DefaultTimeout
	} else {
		h.timeout = time.Duration(ms) * time.Millisecond
	}
	h.mu.Unlock()
	return h
}

// Timeout returns the per-procedure timeout in milliseconds.
func (h *HealthChecks) Timeout() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.timeout.Milliseconds()
}

func splitName(name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.InvalidInput(errors.PhaseDelegate, "procedure name must not be empty")
	}
	parts := strings.Split(name, "/")
	for _, p := range parts {
		if p == "" {
			return nil, errors.InvalidInput(errors.PhaseDelegate, fmt.Sprintf("invalid procedure name %q", name))
		}
	}
	return parts, nil
}

// Register adds a procedure. Names containing '/' create composite groups
// on the way.
func (h *HealthChecks) Register(name string, procedure Procedure) (*HealthChecks, error) {
	if procedure == nil {
		return nil, errors.InvalidInput(errors.PhaseDelegate, "procedure must not be nil")
	}
	parts, err := splitName(name)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	parent := h.root
	for _, p := range parts[:len(parts)-1] {
		next := parent.child(p)
		if next == nil {
			next = &node{name: p}
			parent.children = append(parent.children, next)
		} else if !next.composite() {
			return nil, errors.InvalidInput(errors.PhaseDelegate,
				fmt.Sprintf("%q is a procedure, not a group", p))
		}
		parent = next
	}
	last := parts[len(parts)-1]
	if parent.child(last) != nil {
		return nil, errors.InvalidInput(errors.PhaseDelegate,
			fmt.Sprintf("a procedure named %q already exists", name))
	}
	parent.children = append(parent.children, &node{name: last, procedure: procedure})
	Logger().Debug("health procedure registered", zap.String("name", name))
	return h, nil
}

// Unregister removes a procedure or group. Unknown names are ignored.
func (h *HealthChecks) Unregister(name string) *HealthChecks {
	parts, err := splitName(name)
	if err != nil {
		return h
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	parent := h.root
	for _, p := range parts[:len(parts)-1] {
		if parent = parent.child(p); parent == nil {
			return h
		}
	}
	parent.remove(parts[len(parts)-1])
	return h
}

// Invoke runs the named procedure or group. The report is keyed by name:
// {"<name>": {"status": "UP"|"DOWN", "data"?: {...}, "checks"?: [...]}}.
func (h *HealthChecks) Invoke(ctx context.Context, name string) *async.Future[map[string]any] {
	report, err := h.Check(ctx, name)
	if err != nil {
		return async.Failed[map[string]any](err)
	}
	return async.Map(report, func(r map[string]any) (map[string]any, error) {
		delete(r, "id")
		return map[string]any{name: r}, nil
	})
}

// InvokeAll runs every registered procedure and reports the overall
// outcome: {"status": ..., "outcome": ..., "checks": [...]}.
func (h *HealthChecks) InvokeAll(ctx context.Context) *async.Future[map[string]any] {
	h.mu.RLock()
	root, timeout := h.root, h.timeout
	h.mu.RUnlock()

	return async.Map(h.run(ctx, root, "", timeout), func(r map[string]any) (map[string]any, error) {
		delete(r, "id")
		r["outcome"] = r["status"]
		return r, nil
	})
}

// Check runs the named procedure or group and returns its report with an
// "id" entry. Unknown names fail with a not-found error.
func (h *HealthChecks) Check(ctx context.Context, name string) (*async.Future[map[string]any], error) {
	parts, err := splitName(name)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	n := h.root
	for _, p := range parts {
		if n = n.child(p); n == nil {
			break
		}
	}
	timeout := h.timeout
	h.mu.RUnlock()

	if n == nil {
		return nil, errors.NotFound(errors.PhaseDelegate, "health check", name)
	}
	return h.run(ctx, n, n.name, timeout), nil
}

func (h *HealthChecks) run(ctx context.Context, n *node, id string, timeout time.Duration) *async.Future[map[string]any] {
	if !n.composite() {
		return async.Map(h.runProcedure(ctx, n, timeout), func(r async.Result[*Status]) (map[string]any, error) {
			return leafReport(id, r), nil
		})
	}

	children := append([]*node(nil), n.children...)
	out := async.NewFuture[map[string]any]()
	if len(children) == 0 {
		out.Complete(map[string]any{"id": id, "status": "UP", "checks": []any{}})
		return out
	}

	checks := make([]any, len(children))
	var mu sync.Mutex
	pending := len(children)
	for i, c := range children {
		h.run(ctx, c, c.name, timeout).OnComplete(func(r async.Result[map[string]any]) {
			mu.Lock()
			checks[i] = r.Value
			pending--
			done := pending == 0
			mu.Unlock()
			if done {
				out.Complete(compositeReport(id, checks))
			}
		})
	}
	return out
}

// runProcedure resolves to the procedure's result, never failing itself.
func (h *HealthChecks) runProcedure(ctx context.Context, n *node, timeout time.Duration) *async.Future[async.Result[*Status]] {
	p := newPromise()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Logger().Warn("health procedure panicked",
					zap.String("name", n.name), zap.Any("panic", r))
				p.f.Fail(&panicError{value: r})
			}
		}()
		n.procedure(p)
	}()

	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-p.f.Done():
		case <-t.C:
			if p.f.Fail(errors.Timeout(errors.PhaseDelegate, "procedure "+n.name)) {
				Logger().Debug("health procedure timed out", zap.String("name", n.name))
			}
		case <-ctx.Done():
			p.f.Fail(ctx.Err())
		}
	}()

	out := async.NewFuture[async.Result[*Status]]()
	p.f.OnComplete(func(r async.Result[*Status]) { out.Complete(r) })
	return out
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprint(e.value)
}

func leafReport(id string, r async.Result[*Status]) map[string]any {
	report := map[string]any{"id": id}
	if !r.Succeeded() {
		report["status"] = "DOWN"
		data := map[string]any{"cause": causeOf(r.Err)}
		if _, ok := r.Err.(*panicError); ok {
			data[procedureFailure] = true
		}
		report["data"] = data
		return report
	}
	s := r.Value
	if s == nil {
		s = StatusOK()
	}
	report["status"] = s.label()
	data := make(map[string]any, len(s.Data)+1)
	for k, v := range s.Data {
		data[k] = v
	}
	if s.ProcedureError {
		data[procedureFailure] = true
	}
	if len(data) > 0 {
		report["data"] = data
	}
	return report
}

func compositeReport(id string, checks []any) map[string]any {
	status := "UP"
	for _, c := range checks {
		if m, ok := c.(map[string]any); !ok || m["status"] != "UP" {
			status = "DOWN"
			break
		}
	}
	return map[string]any{"id": id, "status": status, "checks": checks}
}

func causeOf(err error) string {
	if stderrors.Is(err, errors.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
		return causeTimeout
	}
	return errors.AsFailure(err).Message
}

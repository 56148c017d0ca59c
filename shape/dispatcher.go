package shape

import (
	"github.com/wippyai/webbind/errors"
)

// Dispatcher holds the overload sets of one class.
// It is immutable after registration and safe for concurrent Select calls.
type Dispatcher struct {
	methods map[string]*Method
	order   []string
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{methods: make(map[string]*Method)}
}

// Add registers a method. Names must be unique.
func (d *Dispatcher) Add(m *Method) error {
	if _, exists := d.methods[m.Name]; exists {
		return errors.New(errors.PhaseRegister, errors.KindRegistration).
			Method(m.Name).
			Detail("method already defined").
			Build()
	}
	d.methods[m.Name] = m
	d.order = append(d.order, m.Name)
	return nil
}

// Define builds and registers a method from rules.
func (d *Dispatcher) Define(name string, rules ...Rule) error {
	m, err := NewMethod(name, rules...)
	if err != nil {
		return err
	}
	return d.Add(m)
}

// Method looks up a method by name.
func (d *Dispatcher) Method(name string) (*Method, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// Names returns method names in registration order.
func (d *Dispatcher) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Select picks the overload of name matching args.
func (d *Dispatcher) Select(name string, args []any) (*Method, int, error) {
	m, ok := d.methods[name]
	if !ok {
		return nil, -1, errors.NotFound(errors.PhaseDispatch, "method", name)
	}
	idx, err := m.Select(args)
	if err != nil {
		return nil, -1, err
	}
	return m, idx, nil
}

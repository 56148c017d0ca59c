package resource

import (
	"errors"
	"reflect"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

// Table maps handles to delegates. It records the class each delegate was
// registered under and never owns the delegate beyond calling Drop.
type Table struct {
	entries   []entry
	freeList  []Handle
	index     map[any]Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	class string
	valid bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		index:    make(map[any]Handle),
	}
}

// Insert stores a delegate and returns a fresh handle.
func (t *Table) Insert(class string, value any) (Handle, error) {
	t.mu.Lock()
	h, err := t.insertLocked(class, value)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}

	t.notify(Event{Type: EventCreated, Handle: h, Class: class, Value: value})
	return h, nil
}

// Intern returns the existing handle of a pointer-identified delegate
// registered under the same class, or inserts it.
func (t *Table) Intern(class string, value any) (Handle, error) {
	key, ok := identity(value)
	if !ok {
		return t.Insert(class, value)
	}

	t.mu.Lock()
	if h, found := t.index[key]; found && t.entries[h-1].class == class {
		t.mu.Unlock()
		return h, nil
	}
	h, err := t.insertLocked(class, value)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}

	t.notify(Event{Type: EventCreated, Handle: h, Class: class, Value: value})
	return h, nil
}

func (t *Table) insertLocked(class string, value any) (Handle, error) {
	if t.closed {
		return 0, ErrClosed
	}

	e := entry{value: value, class: class, valid: true}

	var h Handle
	if len(t.freeList) > 0 {
		h = t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}

	if key, ok := identity(value); ok {
		if _, exists := t.index[key]; !exists {
			t.index[key] = h
		}
	}
	return h, nil
}

// Lookup finds the handle of a pointer-identified delegate.
func (t *Table) Lookup(value any) (Handle, bool) {
	key, ok := identity(value)
	if !ok {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, found := t.index[key]
	return h, found
}

// Get retrieves a delegate by handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookupLocked(h)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetTyped retrieves a delegate only if it was registered under class.
func (t *Table) GetTyped(h Handle, class string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookupLocked(h)
	if !ok || e.class != class {
		return nil, false
	}
	return e.value, true
}

// Class returns the class a handle was registered under.
func (t *Table) Class(h Handle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookupLocked(h)
	if !ok {
		return "", false
	}
	return e.class, true
}

func (t *Table) lookupLocked(h Handle) (entry, bool) {
	if h == 0 || int(h) > len(t.entries) {
		return entry{}, false
	}
	e := t.entries[h-1]
	return e, e.valid
}

// Remove drops a handle and returns (delegate, true) if it was live.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	e, ok := t.lookupLocked(h)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	t.entries[h-1] = entry{}
	t.freeList = append(t.freeList, h)
	if key, ok := identity(e.value); ok && t.index[key] == h {
		delete(t.index, key)
	}
	t.mu.Unlock()

	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{Type: EventDropped, Handle: h, Class: e.class, Value: e.value})
	return e.value, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live handles until fn returns false.
func (t *Table) Each(fn func(Handle, string, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.class, e.value) {
				break
			}
		}
	}
}

// Clear drops all handles.
func (t *Table) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.Each(func(h Handle, _ string, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close drops all handles and stops accepting inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}

// identity returns a map key for delegates with pointer identity.
func identity(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return v, true
	default:
		return nil, false
	}
}

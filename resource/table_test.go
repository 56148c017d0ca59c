package resource

import (
	"errors"
	"sync"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type delegate struct {
	name string
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert("Cookie", "test")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "test" {
		t.Fatalf("Get = %v, %v", val, ok)
	}

	if _, ok := table.GetTyped(h, "Cookie"); !ok {
		t.Fatal("GetTyped with correct class failed")
	}
	if _, ok := table.GetTyped(h, "Router"); ok {
		t.Fatal("GetTyped with wrong class should fail")
	}

	class, ok := table.Class(h)
	if !ok || class != "Cookie" {
		t.Fatalf("Class = %q, %v", class, ok)
	}

	val, ok = table.Remove(h)
	if !ok || val != "test" {
		t.Fatalf("Remove = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
	if _, ok := table.Get(h); ok {
		t.Fatal("Expected Get to fail after Remove")
	}
}

func TestTable_InvalidHandles(t *testing.T) {
	table := NewTable()
	if _, ok := table.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
	if _, ok := table.Get(99); ok {
		t.Fatal("out of range handle must be invalid")
	}
	if _, ok := table.Remove(99); ok {
		t.Fatal("removing unknown handle must fail")
	}
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable()

	h1, _ := table.Insert("A", 1)
	table.Remove(h1)
	h2, _ := table.Insert("A", 2)

	if h1 != h2 {
		t.Fatalf("expected freed handle %d to be reused, got %d", h1, h2)
	}
	v, _ := table.Get(h2)
	if v != 2 {
		t.Fatalf("reused slot holds %v", v)
	}
}

func TestTable_Intern(t *testing.T) {
	table := NewTable()
	d := &delegate{name: "router"}

	h1, err := table.Intern("Router", d)
	if err != nil {
		t.Fatalf("Intern failed: %v", err)
	}
	h2, _ := table.Intern("Router", d)
	if h1 != h2 {
		t.Fatalf("same delegate interned twice: %d != %d", h1, h2)
	}

	other, _ := table.Intern("Router", &delegate{name: "router"})
	if other == h1 {
		t.Fatal("distinct pointers must get distinct handles")
	}

	// value types are never interned
	v1, _ := table.Intern("Status", "up")
	v2, _ := table.Intern("Status", "up")
	if v1 == v2 {
		t.Fatal("value delegates must not share handles")
	}

	found, ok := table.Lookup(d)
	if !ok || found != h1 {
		t.Fatalf("Lookup = %d, %v", found, ok)
	}

	table.Remove(h1)
	if _, ok := table.Lookup(d); ok {
		t.Fatal("Lookup should fail after Remove")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert("A", "test")
	if len(obs.events) != 1 || obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Fatalf("unexpected events: %+v", obs.events)
	}

	table.Remove(h)
	if len(obs.events) != 2 || obs.events[1].Type != EventDropped || obs.events[1].Class != "A" {
		t.Fatalf("unexpected events: %+v", obs.events)
	}

	table.Unsubscribe(obs)
	table.Insert("A", "test2")
	if len(obs.events) != 2 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_CloseDropsAndRejects(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	table.Insert("A", d)
	table.Insert("A", "b")

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Dropper called %d times, want 1", d.count)
	}
	if table.Len() != 0 {
		t.Fatalf("Len after Close = %d", table.Len())
	}
	if _, err := table.Insert("A", "c"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close = %v, want ErrClosed", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, err := table.Insert("A", i*1000+j)
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				if _, ok := table.Get(h); !ok {
					t.Errorf("Get(%d) failed", h)
				}
				table.Remove(h)
			}
		}(i)
	}
	wg.Wait()
	if table.Len() != 0 {
		t.Fatalf("Len = %d", table.Len())
	}
}

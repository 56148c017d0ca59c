// Package resource provides delegate handle management.
//
// A delegate is the native Go object a proxy forwards calls to. Host code
// never holds delegates directly; it holds handles issued by a Table:
//
//	table := resource.NewTable()
//
//	// Insert a delegate under its class, get a handle
//	h, err := table.Insert("Router", router)
//
//	// Pointer delegates are interned: wrapping twice yields one handle
//	h2, _ := table.Intern("Router", router) // h2 == h
//
//	// Class-checked retrieval
//	v, ok := table.GetTyped(h, "Router") // ok
//	v, ok = table.GetTyped(h, "Cookie")  // !ok
//
// The table never owns delegate lifecycle. Remove only forgets the handle
// and calls Drop on delegates implementing Dropper.
//
// # Accessor Cache
//
// Cache preserves proxy identity for idempotent accessors such as a routing
// context's request() and response(): the first call creates the value,
// later calls for the same owner and accessor return it unchanged.
//
//	cache := resource.NewCache()
//	table.Subscribe(cache) // forget entries when the owner handle is dropped
//
// # Thread Safety
//
// Table and Cache are safe for concurrent use.
package resource

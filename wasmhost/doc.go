// Package wasmhost lets WebAssembly guests call bound delegates through
// wazero.
//
// Guests import one function from the "webbind" module:
//
//	invoke(desc_ptr, desc_len, out_ptr, out_cap i32) -> i32
//
// The descriptor at desc_ptr is JSON:
//
//	{"target": 3, "method": "set-max-cache-size", "args": [2048]}
//	{"class": "StaticHandler", "method": "create", "args": []}
//
// A zero target with a class names a static factory. Method names may be
// camelCase or kebab-case. Proxies travel as {"$handle": N, "$class": "X"}
// in both directions.
//
// The reply {"value": ...} or {"error": {"type", "code", "message"}} is
// written at out_ptr. invoke returns the reply length, or -needed when
// out_cap is too small; the guest retries with a larger buffer. It returns
// -1 when the guest pointers are out of bounds.
//
// Async results are awaited before replying, bounded by the host timeout.
package wasmhost

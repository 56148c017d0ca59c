// Package convert marshals values between host and delegate representations.
//
// Every parameter and return value of a bound method carries a Type rule.
// ToNative turns host values into canonical delegate values and Assign then
// fits them into the concrete Go parameter type. ToHost goes the other way.
//
// Canonical forms:
//
//	Int{Signed}     int64
//	Int{unsigned}   uint64
//	Float           float64
//	Char            rune (host side: one-character string)
//	Bytes           []byte
//	List, Set       []any
//	Map, Record     map[string]any
//	Handle          the delegate itself (host side: its proxy)
//
// Narrowing is checked. A value that does not fit the declared integer width,
// or a fractional number for an integer rule, fails with an overflow error
// instead of being truncated.
//
// Sets are de-duplicated by canonical JSON equality and their order carries
// no meaning. Records are key-unique by construction and accept
// map[string]any, *structpb.Struct, or anything implementing
// webbind.Recorder.
//
// Handle rules unwrap proxies on the way in and wrap delegates through a
// Binder on the way out. ToHostFrom memoises the wrapped proxy per owner and
// accessor so that cached accessors keep identity.
package convert

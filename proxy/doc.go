// Package proxy binds Go delegates to dynamic hosts.
//
// A Registry reflects the exported methods of a delegate type into a Class.
// Each host method name owns an overload set whose shape rules come from the
// Go parameter types, so a host call is resolved without static typing:
//
//	reg := proxy.NewRegistry()
//	reg.MustRegister("StaticHandler", &web.StaticHandler{},
//		proxy.Static("create", web.NewStaticHandler))
//	h, _ := reg.Lookup("StaticHandler")
//	p, _ := h.CallStatic(ctx, "create")
//	p.(*proxy.Proxy).Invoke(ctx, "setMaxCacheSize", 2048)
//
// Invoke runs the call pipeline: the closed guard, overload selection,
// argument conversion, the delegate call, and result conversion.
//
// Results are shaped by the method's flags. Fluent methods, and methods that
// return their own receiver, yield the receiving proxy. Cacheable accessors
// yield one proxy per receiver and accessor name. Every other handle result
// is wrapped in a fresh proxy.
//
// A method whose first parameter is a context.Context receives the caller's
// context. Methods returning *async.Future[T] are asynchronous; hosts either
// take the returned future or pass a trailing (err, value) callback, which
// is called exactly once.
package proxy

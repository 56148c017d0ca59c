// Package webbind exposes native Go web delegates to dynamic hosts through
// the delegate-proxy binding pattern.
//
// A host never touches a delegate directly. It holds a proxy that owns a
// handle into a resource table, and every call goes through the same
// pipeline:
//
//	closed check -> shape dispatch -> argument conversion -> delegate call
//	-> result conversion (fluent, cached or fresh proxy)
//
// # Layout
//
//	webbind/           Unwrapper, Recorder and RecordLoader contracts
//	├── errors/        InvalidArguments, DelegateFailure, ProxyClosed and friends
//	├── resource/      handle table and per-owner accessor cache
//	├── shape/         argument-shape dispatcher
//	├── convert/       value converter and WIT type mapping
//	├── async/         futures and the exactly-once callback adapter
//	├── proxy/         binding generator, proxies and the closed guard
//	├── web/           router, routing context, cookies, sessions, static files
//	├── healthcheck/   nested health procedures and their HTTP handler
//	├── eventbus/      in-process event bus with JSON, CBOR and protobuf codecs
//	├── serviceproxy/  service calls over the event bus
//	├── jsbind/        JavaScript host (goja)
//	├── wasmhost/      WebAssembly host module (wazero)
//	├── config/        viper configuration
//	└── observability/ zap logger setup
//
// # Quick Start
//
//	reg := proxy.NewRegistry()
//	if err := web.Register(reg); err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := jsbind.New(reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := rt.RunString(ctx, "main.js", `
//	    var sh = StaticHandler.create();
//	    sh.setMaxCacheSize(2048) === sh;
//	`)
//	fmt.Println(v) // true
//
// # Thread Safety
//
// Registries, tables and futures are safe for concurrent use. A jsbind
// Runtime runs all script code on its loop goroutine; host callbacks that
// arrive on other goroutines are queued onto it.
package webbind

// Package jsbind exposes bound classes to JavaScript through goja.
//
// Every registered class with static factories becomes a global object
// (Router.router(), StaticHandler.create(), ...). Proxies appear as JS
// objects whose methods go through the proxy layer; one proxy always maps
// to one JS object, so fluent methods and cached accessors return values
// that are === to earlier ones. Calls whose argument shapes match no rule
// throw TypeError. Async methods take a trailing (err, value) callback or,
// without one, return a Promise.
//
// The VM is single-threaded. A Runtime runs scripts and all callbacks on
// its Loop; host functions invoked from other goroutines are queued onto
// it and wait for the result.
package jsbind

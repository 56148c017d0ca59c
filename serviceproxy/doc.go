// Package serviceproxy exposes bound delegates over the event bus.
//
// A Binder consumes an address and turns each message into a proxy call:
// the "action" header names the host method and the body record carries
// positional arguments under "args". The reply body is {"result": value};
// handle results are registered at a fresh address announced in the
// "proxyaddr" reply header. A Client is the calling side. Once closed it
// fails every call with a proxy-closed error without touching the bus.
package serviceproxy

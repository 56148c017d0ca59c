// Package web holds the HTTP delegates exposed to hosts: a router with
// ordered routes and path parameters, the per-request routing context with
// its request, response, cookies and session, and a static file handler.
//
// These are small implementations meant to be bound through package proxy;
// Register adds all of them to a registry.
package web

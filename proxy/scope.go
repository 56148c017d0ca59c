package proxy

// Scoped is implemented by delegates that live for one unit of work, such
// as an HTTP request or a delivered message. Their proxies are released
// when the work ends, and so are the results of their cacheable accessors.
type Scoped interface {
	// OnEnd registers fn to run once the work ends. Registering after the
	// end runs fn immediately.
	OnEnd(fn func())
}

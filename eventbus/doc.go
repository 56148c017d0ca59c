// Package eventbus is an in-process message bus with point-to-point,
// publish/subscribe and request/reply delivery.
//
// Bodies are encoded with a codec from the codec subpackage, selected per
// message by content type. Requests complete a future with the reply or
// fail with a delegate failure tagged NO_HANDLERS, TIMEOUT or
// RECIPIENT_FAILURE.
package eventbus

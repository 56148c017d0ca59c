// Package async converts one-shot delegate results into host completions.
//
// Delegates report through Future[T]. Hosts that use the callback convention
// receive exactly one call through Adapt:
//
//	f := checks.Invoke(ctx, "disk-space")
//	f.OnComplete(async.Adapt(func(err error, v map[string]any) { ... }))
//
// Go callers can simply Await the future.
package async

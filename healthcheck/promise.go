package healthcheck

import (
	"github.com/wippyai/webbind/async"
	"github.com/wippyai/webbind/errors"
)

// Procedure checks one aspect of the system and must complete or fail the
// promise it is given.
type Procedure func(p *Promise)

// Promise is the completion side of one procedure run. The first
// completion wins; later ones return false.
type Promise struct {
	f *async.Future[*Status]
}

func newPromise() *Promise {
	return &Promise{f: async.NewFuture[*Status]()}
}

// Complete reports a status. A nil status counts as UP.
func (p *Promise) Complete(s *Status) bool {
	return p.f.Complete(s)
}

// Succeed reports UP without data.
func (p *Promise) Succeed() bool {
	return p.f.Complete(nil)
}

// Fail reports DOWN with message as the cause.
func (p *Promise) Fail(message string) bool {
	return p.f.Fail(errors.DelegateFailure("HEALTH_CHECK_FAILURE", -1, message))
}

// FailWith reports DOWN with err as the cause.
func (p *Promise) FailWith(err error) bool {
	return p.f.Fail(err)
}

// Future exposes the promise as a future.
func (p *Promise) Future() *async.Future[*Status] {
	return p.f
}

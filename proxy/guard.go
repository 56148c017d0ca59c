package proxy

import (
	"sync/atomic"

	"github.com/wippyai/webbind/errors"
)

// State is the lifecycle state of a proxy.
type State int32

const (
	Open State = iota
	Closed
)

func (s State) String() string {
	if s == Closed {
		return "closed"
	}
	return "open"
}

// Guard rejects calls once its owner is closed.
// Open -> Closed is the only transition and happens at most once.
type Guard struct {
	state atomic.Int32
}

// Close moves the guard to Closed. It reports whether this call made the
// transition.
func (g *Guard) Close() bool {
	return g.state.CompareAndSwap(int32(Open), int32(Closed))
}

// State returns the current state.
func (g *Guard) State() State {
	return State(g.state.Load())
}

// Closed reports whether the guard rejects calls.
func (g *Guard) Closed() bool {
	return g.State() == Closed
}

// Check returns a ProxyClosed error naming target once the guard is closed.
func (g *Guard) Check(target string) error {
	if g.Closed() {
		return errors.ProxyClosed(target)
	}
	return nil
}

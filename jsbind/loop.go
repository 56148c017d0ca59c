package jsbind

import (
	"context"
	"sync"
	"sync/atomic"

	goeventloop "github.com/joeycumines/go-eventloop"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
)

var errLoopClosed = errors.New(errors.PhaseGuest, errors.KindInvalidInput).
	Detail("script loop is closed").Build()

// Loop schedules script jobs on a go-eventloop loop and owns the VM lock.
// Jobs run holding the lock; a host call made from script releases it
// until the call returns, so Go code may call back into the VM from any
// goroutine meanwhile. Run waits until no job is queued and no hold is
// outstanding.
type Loop struct {
	loop    *goeventloop.Loop
	stop    context.CancelFunc
	changed chan struct{}
	vm      sync.Mutex
	pending atomic.Int64
	queued  atomic.Int64
	running atomic.Int32
	closed  atomic.Bool
}

// NewLoop starts an idle loop. Close releases it.
func NewLoop() (*Loop, error) {
	el, err := goeventloop.New()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "create event loop")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{loop: el, stop: cancel, changed: make(chan struct{}, 1)}
	go func() {
		if err := el.Run(ctx); err != nil && ctx.Err() == nil {
			Logger().Warn("event loop stopped", zap.Error(err))
		}
	}()
	return l, nil
}

// Submit queues fn to run holding the VM lock. It is safe to call from any
// goroutine.
func (l *Loop) Submit(fn func()) error {
	if l.closed.Load() {
		return errLoopClosed
	}
	l.queued.Add(1)
	err := l.loop.Submit(func() {
		defer l.finished()
		l.Do(fn)
	})
	if err != nil {
		l.finished()
		return errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "submit to event loop")
	}
	return nil
}

func (l *Loop) finished() {
	l.queued.Add(-1)
	l.signal()
}

// Do runs fn holding the VM lock on the calling goroutine.
func (l *Loop) Do(fn func()) {
	l.vm.Lock()
	defer l.vm.Unlock()
	fn()
}

// Yield runs fn with the VM lock released. The caller must hold the lock.
func (l *Loop) Yield(fn func()) {
	l.vm.Unlock()
	defer l.vm.Lock()
	fn()
}

// Hold keeps Run alive until the returned release is called. Release is
// idempotent.
func (l *Loop) Hold() (release func()) {
	l.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.pending.Add(-1)
			l.signal()
		})
	}
}

// Pending returns the number of outstanding holds.
func (l *Loop) Pending() int64 {
	return l.pending.Load()
}

// Running reports whether a goroutine is inside Run.
func (l *Loop) Running() bool {
	return l.running.Load() > 0
}

// Run waits until the loop drains or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Add(1)
	defer l.running.Add(-1)

	for {
		if l.pending.Load() == 0 && l.queued.Load() == 0 {
			return nil
		}
		select {
		case <-l.changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the loop; later submits fail.
func (l *Loop) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.stop()
	return l.loop.Close()
}

func (l *Loop) signal() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

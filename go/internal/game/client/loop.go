package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Loop is the single cooperative thread every session mutation runs on.
// Channel deliveries, timer callbacks and intents are queued as closures
// and executed one at a time in arrival order.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewLoop creates a loop with room for buffer pending closures.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes queued closures until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Stop ends Run. Closures still queued are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Stopped reports whether the loop has ended.
func (l *Loop) Stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Post queues fn. It blocks while the queue is full and returns false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(ran)
	}) {
		return ErrStopped
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	}
}

// loopScheduler fires clockwork timers back onto the loop so the clock
// reconciler never runs concurrently with event handling.
type loopScheduler struct {
	clock clockwork.Clock
	loop  *Loop
}

func (s loopScheduler) After(d time.Duration, fn func()) func() bool {
	timer := s.clock.AfterFunc(d, func() {
		if !s.loop.Post(fn) {
			log.Debug().Msg("timer fired after loop stopped")
		}
	})
	return timer.Stop
}

package clocksync

import (
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Clock is the time source we read. clockwork.Clock satisfies it; tests
// use a clockwork FakeClock.
type Clock interface {
	Now() time.Time
}

// Scheduler runs fn once after d on the owner's event loop. The returned
// function cancels it and reports whether it was still pending.
type Scheduler interface {
	After(d time.Duration, fn func()) (stop func() bool)
}

// DefaultTickInterval is the countdown tick unit.
const DefaultTickInterval = time.Second

// Arming describes how a timer sample was turned into a countdown.
type Arming struct {
	Latency   time.Duration // estimated one-way latency
	ServerNow time.Duration // estimated server clock on receipt
	Delay     time.Duration // local wait before the countdown starts; zero if already running
	Remaining time.Duration // remaining time when the countdown starts
}

// Countdown is a read-only view of the reconciler.
type Countdown struct {
	Armed     bool
	Running   bool
	Expired   bool
	Remaining time.Duration
	Deadline  *Deadline
}

// Reconciler turns the request_timer / timer_started exchange into a local
// countdown tracking the server deadline. It is not safe for concurrent use:
// every method, and every Scheduler callback, must run on the same loop.
type Reconciler struct {
	clock Clock
	sched Scheduler
	tick  time.Duration

	requestedAt time.Time
	requested   bool
	latency     time.Duration

	deadline *Deadline
	armed    bool
	running  bool
	expired  bool

	// generation invalidates callbacks that fired but were still queued
	// on the loop when their timer was cancelled
	generation uint64
	stop       func() bool

	onTick   func(remaining time.Duration)
	onExpire func()
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithTickInterval overrides the countdown tick.
func WithTickInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithTickHandler is called with the remaining time when the countdown
// starts and on every tick.
func WithTickHandler(fn func(remaining time.Duration)) Option {
	return func(r *Reconciler) { r.onTick = fn }
}

// WithExpireHandler is called once when the countdown reaches zero.
func WithExpireHandler(fn func()) Option {
	return func(r *Reconciler) { r.onExpire = fn }
}

// NewReconciler creates an idle reconciler.
func NewReconciler(clock Clock, sched Scheduler, opts ...Option) *Reconciler {
	r := &Reconciler{
		clock: clock,
		sched: sched,
		tick:  DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RequestSent records the local send time of request_timer.
func (r *Reconciler) RequestSent() {
	r.requestedAt = r.clock.Now()
	r.requested = true
}

// Arm builds the deadline from a timer_started sample and starts, or
// schedules, the countdown. A countdown is armed at most once per round;
// later samples return false and change nothing.
func (r *Reconciler) Arm(p events.TimerStartedPayload) (Arming, bool) {
	if r.armed {
		log.Debug().Int64("start_time", p.StartTime).Msg("countdown already armed, ignoring timer sample")
		return Arming{}, false
	}

	now := r.clock.Now()
	if r.requested {
		// Symmetric latency assumption: half the round trip each way.
		r.latency = now.Sub(r.requestedAt) / 2
	} else {
		r.latency = 0
	}

	r.deadline = r.sample(now, p)
	r.armed = true
	arming := r.plan(now)

	log.Info().
		Dur("latency", arming.Latency).
		Dur("delay", arming.Delay).
		Dur("remaining", arming.Remaining).
		Msg("countdown armed")

	return arming, true
}

// Correct replaces the deadline with a fresh server sample, reusing the
// latency estimate from the arming exchange. It never rearms: it returns
// false when nothing is armed or the countdown already reached zero.
func (r *Reconciler) Correct(p events.TimerStartedPayload) bool {
	if !r.armed || r.expired {
		return false
	}

	now := r.clock.Now()
	r.deadline = r.sample(now, p)

	if !r.running {
		r.cancel()
		r.plan(now)
	} else if r.deadline.Remaining(now) == 0 {
		r.expire()
	}

	log.Debug().Dur("remaining", r.Remaining()).Msg("countdown corrected")
	return true
}

// Penalize subtracts amount from the remaining time, clamped at zero.
func (r *Reconciler) Penalize(amount time.Duration) bool {
	if r.deadline == nil || r.expired || amount <= 0 {
		return false
	}

	r.deadline.TargetServerTime -= amount
	if r.deadline.Remaining(r.clock.Now()) == 0 {
		r.expire()
	}

	log.Debug().Dur("penalty", amount).Dur("remaining", r.Remaining()).Msg("countdown penalized")
	return true
}

// Remaining returns the time left, zero when idle or expired.
func (r *Reconciler) Remaining() time.Duration {
	if r.deadline == nil || r.expired {
		return 0
	}
	return r.deadline.Remaining(r.clock.Now())
}

// Countdown returns a snapshot of the reconciler state.
func (r *Reconciler) Countdown() Countdown {
	c := Countdown{
		Armed:     r.armed,
		Running:   r.running,
		Expired:   r.expired,
		Remaining: r.Remaining(),
	}
	if r.deadline != nil {
		d := *r.deadline
		c.Deadline = &d
	}
	return c
}

// Reset cancels the outstanding timer and discards the deadline and the
// arming guard. Callbacks scheduled before Reset become no-ops.
func (r *Reconciler) Reset() {
	r.cancel()
	r.requested = false
	r.requestedAt = time.Time{}
	r.latency = 0
	r.deadline = nil
	r.armed = false
	r.running = false
	r.expired = false
}

func (r *Reconciler) sample(now time.Time, p events.TimerStartedPayload) *Deadline {
	return &Deadline{
		OriginEstimateAt:    now,
		ServerEpochAtOrigin: p.Sent() + r.latency,
		StartServerTime:     p.Start(),
		TargetServerTime:    p.Start() + p.Length(),
		Latency:             r.latency,
	}
}

// plan starts the countdown now if the round is already under way,
// otherwise schedules its start.
func (r *Reconciler) plan(now time.Time) Arming {
	d := r.deadline
	serverNow := d.ServerNow(now)
	arming := Arming{Latency: d.Latency, ServerNow: serverNow}

	if serverNow > d.StartServerTime {
		arming.Remaining = d.Remaining(now)
		r.begin()
		return arming
	}

	arming.Delay = d.StartServerTime - serverNow
	arming.Remaining = d.TargetServerTime - d.StartServerTime
	r.schedule(arming.Delay, r.begin)
	return arming
}

func (r *Reconciler) begin() {
	r.stop = nil
	r.running = true

	remaining := r.Remaining()
	r.notifyTick(remaining)
	if remaining == 0 {
		r.expire()
		return
	}
	r.schedule(r.tick, r.tickFired)
}

func (r *Reconciler) tickFired() {
	r.stop = nil

	remaining := r.Remaining()
	r.notifyTick(remaining)
	if remaining == 0 {
		r.expire()
		return
	}
	r.schedule(r.tick, r.tickFired)
}

func (r *Reconciler) expire() {
	r.cancel()
	r.running = false
	r.expired = true

	log.Info().Msg("countdown expired")
	if r.onExpire != nil {
		r.onExpire()
	}
}

// schedule holds at most one timer handle at a time
func (r *Reconciler) schedule(d time.Duration, fn func()) {
	r.cancel()
	gen := r.generation
	r.stop = r.sched.After(d, func() {
		if gen != r.generation {
			return
		}
		fn()
	})
}

func (r *Reconciler) cancel() {
	r.generation++
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

func (r *Reconciler) notifyTick(remaining time.Duration) {
	if r.onTick != nil {
		r.onTick(remaining)
	}
}

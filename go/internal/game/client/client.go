// Package client composes the channel adapter, clock reconciler, session
// machine and intent dispatcher around one event loop.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/clocksync"
	"github.com/mcdev12/maninthemiddle/go/internal/game/config"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/mcdev12/maninthemiddle/go/internal/game/intent"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// Client is one participant's session runtime. Its methods may be called
// from any goroutine; they block until the work ran on the loop.
type Client struct {
	loop    *Loop
	clock   clockwork.Clock
	adapter *channel.Adapter

	// owned by the loop
	machine    *session.Machine
	reconciler *clocksync.Reconciler
	dispatcher *intent.Dispatcher
	scope      *channel.Scope

	onChange func(View)

	cleanupOnce sync.Once
}

type options struct {
	clock     clockwork.Clock
	observers session.Observers
	onChange  func(View)
}

// Option configures a Client
type Option func(*options)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithObserver adds a session observer next to the default log observer.
func WithObserver(obs session.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithChangeHandler is called on the loop with a fresh view after every
// accepted event, intent or countdown tick.
func WithChangeHandler(fn func(View)) Option {
	return func(o *options) { o.onChange = fn }
}

// New wires a client. Nothing happens until Run is started.
func New(cfg *config.Config, dialer channel.Dialer, opts ...Option) *Client {
	o := options{
		clock:     clockwork.NewRealClock(),
		observers: session.Observers{session.LogObserver{}},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		loop:     NewLoop(cfg.Loop.Queue),
		clock:    o.clock,
		onChange: o.onChange,
	}
	c.adapter = channel.NewAdapter(dialer,
		channel.WithConfig(cfg.Channel.Transport()),
		channel.WithExecutor(func(fn func()) {
			if !c.loop.Post(fn) {
				log.Debug().Msg("dropping delivery, loop stopped")
			}
		}),
	)
	c.machine = session.NewMachine(
		session.WithObserver(o.observers),
		session.WithNow(o.clock.Now),
	)
	c.reconciler = clocksync.NewReconciler(o.clock, loopScheduler{clock: o.clock, loop: c.loop},
		clocksync.WithTickInterval(cfg.Clock.Tick),
		clocksync.WithTickHandler(func(time.Duration) { c.changed() }),
		clocksync.WithExpireHandler(c.changed),
	)
	c.dispatcher = intent.NewDispatcher(c.machine, c.adapter, cfg.Limits.Intent())
	return c
}

// Run drives the loop until ctx is cancelled or Stop is called, then
// releases the connection and every timer.
func (c *Client) Run(ctx context.Context) error {
	if err := c.loop.Run(ctx); errors.Is(err, ErrAlreadyRunning) {
		return err
	}
	c.cleanup()
	return nil
}

// Stop ends Run.
func (c *Client) Stop() {
	c.loop.Stop()
}

func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		// The loop is gone, so this goroutine is the only owner left.
		if c.scope != nil {
			c.scope.Release()
		}
		c.reconciler.Reset()
		c.adapter.Teardown()
	})
}

// Connect opens the channel and subscribes the session to every inbound
// event. Calling it while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.loop.Do(ctx, c.subscribe); err != nil {
		return err
	}
	return c.adapter.Connect(ctx)
}

func (c *Client) subscribe() {
	if c.scope != nil && !c.scope.Released() {
		return
	}
	c.scope = c.adapter.NewScope()
	for _, name := range events.Inbound {
		c.scope.Subscribe(name, c.handle)
	}
}

// JoinRoom connects if needed and asks to join roomID.
func (c *Client) JoinRoom(ctx context.Context, displayName, roomID string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.do(ctx, func() error { return c.dispatcher.JoinRoom(displayName, roomID) })
}

// CreateRoom connects if needed and asks the server for a new room.
func (c *Client) CreateRoom(ctx context.Context, displayName string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.do(ctx, func() error { return c.dispatcher.CreateRoom(displayName) })
}

// CancelJoin abandons a pending join or create.
func (c *Client) CancelJoin(ctx context.Context) error {
	return c.do(ctx, c.dispatcher.CancelJoin)
}

// ToggleReady marks the participant ready.
func (c *Client) ToggleReady(ctx context.Context) error {
	return c.do(ctx, c.dispatcher.ToggleReady)
}

// SendChat posts a chat line.
func (c *Client) SendChat(ctx context.Context, text string) error {
	return c.do(ctx, func() error { return c.dispatcher.SendChat(text) })
}

// SubmitAnswer sends the final answer for the round.
func (c *Client) SubmitAnswer(ctx context.Context, text string) error {
	return c.do(ctx, func() error { return c.dispatcher.SubmitAnswer(text) })
}

// BroadcastDisinformation sends a fake answer to the room.
func (c *Client) BroadcastDisinformation(ctx context.Context, prompt, fakeAnswer string) error {
	return c.do(ctx, func() error { return c.dispatcher.BroadcastDisinformation(prompt, fakeAnswer) })
}

// AskAssistant sends a question to the assistant.
func (c *Client) AskAssistant(ctx context.Context, question string) error {
	return c.do(ctx, func() error { return c.dispatcher.AskAssistant(question) })
}

// DismissNotice clears the current user-facing notice.
func (c *Client) DismissNotice(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.machine.ClearNotice()
		return nil
	})
}

// Leave ends the session from any phase. When it returns no handler or
// countdown tick will run for the old session.
func (c *Client) Leave(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.dispatcher.Leave()
		c.teardown()
		return nil
	})
}

// View returns a copy of the current state.
func (c *Client) View(ctx context.Context) (View, error) {
	var v View
	err := c.loop.Do(ctx, func() { v = c.view() })
	return v, err
}

func (c *Client) do(ctx context.Context, fn func() error) error {
	var err error
	if doErr := c.loop.Do(ctx, func() {
		err = fn()
		c.changed()
	}); doErr != nil {
		return doErr
	}
	return err
}

// teardown releases every per-session resource. Runs on the loop.
func (c *Client) teardown() {
	released := 0
	if c.scope != nil {
		released = c.scope.Release()
	}
	c.reconciler.Reset()
	c.adapter.Teardown()
	log.Debug().Int("released_subscriptions", released).Msg("session torn down")
}

// handle applies an inbound event. Runs on the loop.
func (c *Client) handle(env *channel.Envelope) {
	if !c.machine.Handle(env) {
		return
	}

	switch env.Type {
	case events.AllReady:
		if err := c.dispatcher.RequestRoles(); err != nil {
			log.Warn().Err(err).Str("room_id", c.machine.RoomID()).Msg("failed to request roles")
		}
	case events.RoleAssigned:
		c.requestTimer()
	case events.TimerStarted, events.TimerCorrected, events.TimerPenalty:
		c.applyTimer(env)
	case events.Disconnected:
		c.dispatcher.Reset()
		c.teardown()
	}

	// The countdown belongs to the round; drop it once the round is over.
	if phase := c.machine.Phase(); phase != session.PhaseRoleAssigned && phase != session.PhaseActiveRound {
		if c.reconciler.Countdown().Armed {
			c.reconciler.Reset()
		}
	}
	c.changed()
}

func (c *Client) requestTimer() {
	c.reconciler.RequestSent()
	if err := c.dispatcher.RequestTimer(); err != nil {
		log.Warn().Err(err).Str("room_id", c.machine.RoomID()).Msg("failed to request timer")
	}
}

func (c *Client) applyTimer(env *channel.Envelope) {
	payload, err := channel.ParseEventPayload(env)
	if err != nil {
		return
	}
	switch p := payload.(type) {
	case events.TimerStartedPayload:
		if env.Type == events.TimerCorrected {
			c.reconciler.Correct(p)
			return
		}
		c.reconciler.Arm(p)
	case events.TimerPenaltyPayload:
		c.reconciler.Penalize(p.Penalty())
	}
}

func (c *Client) changed() {
	if c.onChange != nil {
		c.onChange(c.view())
	}
}

func (c *Client) view() View {
	cd := c.reconciler.Countdown()
	return View{
		Session:   c.machine.Snapshot(),
		Countdown: newCountdownView(cd),
		Counters:  c.dispatcher.Counters(),
		Connected: c.adapter.Connected(),
	}
}

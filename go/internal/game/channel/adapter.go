package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Handler receives inbound events for a subscribed name.
type Handler func(env *Envelope)

// Token identifies a subscription for Unsubscribe.
type Token string

// Executor runs delivery closures. The session client passes its event loop
// so that handlers never run concurrently with each other or with intents.
type Executor func(fn func())

// Adapter wraps a single persistent connection to the game server. It does
// not reconnect on its own: after a disconnected event the caller decides
// whether to Connect again.
type Adapter struct {
	dialer Dialer
	config Config
	exec   Executor

	mu            sync.Mutex
	link          *link
	subscriptions map[events.Name][]subscription
	tokens        map[Token]events.Name
}

type subscription struct {
	token   Token
	handler Handler
}

// link is one dialed connection and its pumps
type link struct {
	id        string
	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	torn      atomic.Bool
}

func (l *link) close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Option configures an Adapter
type Option func(*Adapter)

// WithConfig overrides the connection configuration.
func WithConfig(cfg Config) Option {
	return func(a *Adapter) { a.config = cfg }
}

// WithExecutor sets where handlers run. Default: the read goroutine.
func WithExecutor(exec Executor) Option {
	return func(a *Adapter) { a.exec = exec }
}

// NewAdapter creates an adapter that dials with dialer on Connect.
func NewAdapter(dialer Dialer, opts ...Option) *Adapter {
	a := &Adapter{
		dialer:        dialer,
		config:        DefaultConfig(),
		exec:          func(fn func()) { fn() },
		subscriptions: make(map[events.Name][]subscription),
		tokens:        make(map[Token]events.Name),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.config.SendBuffer <= 0 {
		a.config.SendBuffer = DefaultConfig().SendBuffer
	}
	return a
}

// Connect dials the server. Calling it while connected is a no-op.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.link != nil {
		return nil
	}

	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial game server: %w", err)
	}

	l := &link{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, a.config.SendBuffer),
		done: make(chan struct{}),
	}
	a.link = l

	go a.writePump(l)
	go a.readPump(l)

	log.Info().Str("connection_id", l.id).Msg("channel connected")
	return nil
}

// Connected reports whether a connection is currently open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.link != nil
}

// Send queues an event for the server. Delivery is fire-and-forget.
func (a *Adapter) Send(name events.Name, payload interface{}) error {
	env, err := NewEnvelope(name, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	a.mu.Lock()
	l := a.link
	a.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	select {
	case <-l.done:
		return ErrNotConnected
	default:
	}

	select {
	case l.send <- data:
		log.Debug().Str("event", string(name)).Str("connection_id", l.id).Msg("event queued")
		return nil
	default:
		log.Warn().Str("event", string(name)).Str("connection_id", l.id).Msg("send buffer full, dropping event")
		return ErrSendBufferFull
	}
}

// Subscribe registers handler for name and returns a token for Unsubscribe.
func (a *Adapter) Subscribe(name events.Name, handler Handler) Token {
	token := Token(uuid.New().String())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscriptions[name] = append(a.subscriptions[name], subscription{token: token, handler: handler})
	a.tokens[token] = name
	return token
}

// Unsubscribe removes a subscription. It reports false for unknown or
// already released tokens.
func (a *Adapter) Unsubscribe(token Token) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	name, ok := a.tokens[token]
	if !ok {
		return false
	}
	delete(a.tokens, token)

	subs := a.subscriptions[name]
	kept := subs[:0]
	for _, s := range subs {
		if s.token != token {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(a.subscriptions, name)
	} else {
		a.subscriptions[name] = kept
	}
	return true
}

// Teardown drops every subscription and closes the connection. Events read
// before Teardown but not yet delivered are discarded. Queued sends are
// flushed before the socket closes.
func (a *Adapter) Teardown() {
	a.mu.Lock()
	l := a.link
	a.link = nil
	released := len(a.tokens)
	a.subscriptions = make(map[events.Name][]subscription)
	a.tokens = make(map[Token]events.Name)
	a.mu.Unlock()

	if l == nil {
		return
	}
	l.torn.Store(true)
	l.close()

	log.Info().
		Str("connection_id", l.id).
		Int("released_subscriptions", released).
		Msg("channel torn down")
}

// handlersFor snapshots the handlers for name
func (a *Adapter) handlersFor(name events.Name) []Handler {
	a.mu.Lock()
	defer a.mu.Unlock()

	subs := a.subscriptions[name]
	handlers := make([]Handler, 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.handler)
	}
	return handlers
}

func (a *Adapter) deliver(l *link, env *Envelope) {
	if l.torn.Load() {
		log.Debug().
			Str("event", string(env.Type)).
			Str("connection_id", l.id).
			Msg("dropping event for torn down connection")
		return
	}
	for _, h := range a.handlersFor(env.Type) {
		h(env)
	}
}

// lost detaches l after a transport failure and emits exactly one
// synthetic disconnected event for it.
func (a *Adapter) lost(l *link, cause error) {
	a.mu.Lock()
	if a.link == l {
		a.link = nil
	}
	a.mu.Unlock()
	l.close()

	log.Error().Err(cause).Str("connection_id", l.id).Msg("channel lost")

	env, err := NewEnvelope(events.Disconnected, events.DisconnectedPayload{Reason: cause.Error()})
	if err != nil {
		log.Error().Err(err).Msg("failed to build disconnected event")
		return
	}
	a.exec(func() { a.deliver(l, env) })
}

// writePump handles sending messages to the connection
func (a *Adapter) writePump(l *link) {
	var pings <-chan time.Time
	if a.config.PingInterval > 0 {
		ticker := time.NewTicker(a.config.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer l.conn.Close()

	for {
		select {
		case message := <-l.send:
			if err := a.write(l, websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", l.id).Msg("failed to write message")
				return
			}

		case <-pings:
			if err := a.write(l, websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", l.id).Msg("failed to send ping")
				return
			}

		case <-l.done:
			// Flush what was queued before teardown, then say goodbye.
			for {
				select {
				case message := <-l.send:
					if err := a.write(l, websocket.TextMessage, message); err != nil {
						return
					}
				default:
					_ = a.write(l, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (a *Adapter) write(l *link, messageType int, data []byte) error {
	if a.config.WriteTimeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
	}
	return l.conn.WriteMessage(messageType, data)
}

// readPump handles reading messages from the connection
func (a *Adapter) readPump(l *link) {
	if a.config.MaxMessageSize > 0 {
		l.conn.SetReadLimit(a.config.MaxMessageSize)
	}
	a.extendReadDeadline(l)
	l.conn.SetPongHandler(func(string) error {
		a.extendReadDeadline(l)
		return nil
	})

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if l.torn.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("connection_id", l.id).Msg("unexpected close")
			}
			a.lost(l, err)
			return
		}
		a.extendReadDeadline(l)

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Str("connection_id", l.id).Msg("discarding malformed event")
			continue
		}
		if env.Type == events.Disconnected {
			log.Warn().Str("connection_id", l.id).Msg("discarding server-sent disconnected event")
			continue
		}

		a.exec(func() { a.deliver(l, &env) })
	}
}

func (a *Adapter) extendReadDeadline(l *link) {
	if a.config.ReadTimeout > 0 {
		_ = l.conn.SetReadDeadline(time.Now().Add(a.config.ReadTimeout))
	}
}

// Package channeltest provides an in-memory game server for exercising the
// channel adapter and everything built on top of it.
package channeltest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
)

// ErrClosed is returned by reads and writes on a closed fake connection.
var ErrClosed = errors.New("channeltest: connection closed")

// Server records what clients send and pushes events to the latest connection.
type Server struct {
	mu      sync.Mutex
	conns   []*Conn
	sent    []channel.Envelope
	dialErr error
	changed chan struct{}
}

// NewServer creates an empty fake server.
func NewServer() *Server {
	return &Server{changed: make(chan struct{})}
}

// Dialer returns a channel.Dialer that connects to s.
func (s *Server) Dialer() channel.Dialer {
	return channel.DialerFunc(func(ctx context.Context) (channel.Conn, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.dialErr != nil {
			return nil, s.dialErr
		}
		c := &Conn{
			server:  s,
			inbound: make(chan []byte, 128),
			closed:  make(chan struct{}),
			dropped: make(chan struct{}),
		}
		s.conns = append(s.conns, c)
		s.notifyLocked()
		return c, nil
	})
}

// FailDials makes every following dial return err. Pass nil to recover.
func (s *Server) FailDials(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// Dials returns how many connections were opened.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Latest returns the most recent connection, or nil.
func (s *Server) Latest() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

// Push sends an event to the latest connection.
func (s *Server) Push(name events.Name, payload interface{}) error {
	c := s.Latest()
	if c == nil {
		return fmt.Errorf("channeltest: no connection to push %s", name)
	}
	return c.Push(name, payload)
}

// Drop simulates a transport failure on the latest connection.
func (s *Server) Drop() {
	if c := s.Latest(); c != nil {
		c.Drop()
	}
}

// Sent returns every envelope clients wrote, in order.
func (s *Server) Sent() []channel.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]channel.Envelope, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentOf returns the envelopes clients wrote for name.
func (s *Server) SentOf(name events.Name) []channel.Envelope {
	var out []channel.Envelope
	for _, env := range s.Sent() {
		if env.Type == name {
			out = append(out, env)
		}
	}
	return out
}

// WaitFor blocks until at least n envelopes named name were written.
func (s *Server) WaitFor(name events.Name, n int, timeout time.Duration) ([]channel.Envelope, error) {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		changed := s.changed
		s.mu.Unlock()

		if got := s.SentOf(name); len(got) >= n {
			return got, nil
		}
		select {
		case <-changed:
		case <-deadline:
			return s.SentOf(name), fmt.Errorf("timeout waiting for %d %s events", n, name)
		}
	}
}

func (s *Server) record(env channel.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	s.notifyLocked()
}

func (s *Server) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Conn is the client side of a fake connection. It implements channel.Conn.
type Conn struct {
	server  *Server
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	dropOnce  sync.Once
	dropped   chan struct{}
}

// Push queues an event for the client to read.
func (c *Conn) Push(name events.Name, payload interface{}) error {
	env, err := channel.NewEnvelope(name, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.PushRaw(data)
}

// PushRaw queues raw bytes for the client to read.
func (c *Conn) PushRaw(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	case c.inbound <- data:
		return nil
	}
}

// Drop makes the next read fail as an abnormal closure.
func (c *Conn) Drop() {
	c.dropOnce.Do(func() { close(c.dropped) })
}

// Closed reports whether the client closed the connection.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ReadMessage implements channel.Conn. Queued events are drained before a
// drop is reported.
func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbound:
		return websocket.TextMessage, msg, nil
	default:
	}
	select {
	case msg := <-c.inbound:
		return websocket.TextMessage, msg, nil
	case <-c.dropped:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "connection dropped"}
	case <-c.closed:
		return 0, nil, ErrClosed
	}
}

// WriteMessage implements channel.Conn. Only text frames are recorded.
func (c *Conn) WriteMessage(messageType int, data []byte) error {
	if c.Closed() {
		return ErrClosed
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	var env channel.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("channeltest: bad envelope: %w", err)
	}
	c.server.record(env)
	return nil
}

// SetReadLimit implements channel.Conn.
func (c *Conn) SetReadLimit(int64) {}

// SetReadDeadline implements channel.Conn.
func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline implements channel.Conn.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

// SetPongHandler implements channel.Conn.
func (c *Conn) SetPongHandler(func(string) error) {}

// Close implements channel.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

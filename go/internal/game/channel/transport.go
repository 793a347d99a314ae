package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the adapter drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a new connection to the game server.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Config holds configuration for the server connection
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultConfig returns default connection configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// WebSocketDialer dials the game server over gorilla/websocket.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWebSocketDialer normalizes http(s) URLs to ws(s) and returns a dialer.
func NewWebSocketDialer(rawURL string) (*WebSocketDialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	return &WebSocketDialer{URL: u.String()}, nil
}

// Dial establishes the websocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

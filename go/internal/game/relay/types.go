package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes relayed records.
type Kind string

const (
	KindTransition Kind = "transition"
	KindIgnored    Kind = "ignored"
)

// Record is one session observation sent off-process.
type Record struct {
	ID     uuid.UUID `json:"id"`
	Kind   Kind      `json:"kind"`
	RoomID string    `json:"roomId,omitempty"`
	Event  string    `json:"event"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Phase  string    `json:"phase,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Sink delivers records. JetStreamSink is the production implementation.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

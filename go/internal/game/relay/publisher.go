// Package relay forwards session transitions and ignored events to NATS
// JetStream for out-of-process observability.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

const defaultBuffer = 256

// Publisher is a session.Observer that queues records and publishes them
// from its own goroutine so the session loop never waits on the network.
type Publisher struct {
	sink    Sink
	queue   chan Record
	timeout time.Duration
	dropped atomic.Int64
}

// NewPublisher creates a publisher holding up to buffer undelivered records.
func NewPublisher(sink Sink, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Publisher{
		sink:    sink,
		queue:   make(chan Record, buffer),
		timeout: 5 * time.Second,
	}
}

func (p *Publisher) PhaseChanged(t session.Transition) {
	p.enqueue(Record{
		ID:     uuid.New(),
		Kind:   KindTransition,
		RoomID: t.RoomID,
		Event:  string(t.Cause),
		From:   t.From.String(),
		To:     t.To.String(),
		At:     t.At.UTC(),
	})
}

func (p *Publisher) EventIgnored(roomID string, name events.Name, phase session.Phase, reason string) {
	p.enqueue(Record{
		ID:     uuid.New(),
		Kind:   KindIgnored,
		RoomID: roomID,
		Event:  string(name),
		Phase:  phase.String(),
		Reason: reason,
		At:     time.Now().UTC(),
	})
}

// Dropped returns how many records were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) enqueue(rec Record) {
	select {
	case p.queue <- rec:
	default:
		p.dropped.Add(1)
		log.Warn().Str("kind", string(rec.Kind)).Str("event", rec.Event).Msg("relay queue full, dropping record")
	}
}

// Run publishes queued records until ctx is cancelled. Records still
// queued at that point are flushed with a short grace period.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-p.queue:
			p.publish(ctx, rec)
		case <-ctx.Done():
			p.flush()
			return nil
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for {
		select {
		case rec := <-p.queue:
			p.publish(ctx, rec)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.sink.Publish(ctx, rec); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("failed to relay session record")
	}
}

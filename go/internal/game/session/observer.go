package session

import (
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Transition records a phase change.
type Transition struct {
	RoomID string      `json:"roomId,omitempty"`
	From   Phase       `json:"from"`
	To     Phase       `json:"to"`
	Cause  events.Name `json:"cause"`
	At     time.Time   `json:"at"`
}

// Observer is told about phase changes and about events the machine
// declined to apply. Implementations must not block.
type Observer interface {
	PhaseChanged(t Transition)
	EventIgnored(roomID string, name events.Name, phase Phase, reason string)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) PhaseChanged(t Transition) {
	for _, obs := range o {
		obs.PhaseChanged(t)
	}
}

func (o Observers) EventIgnored(roomID string, name events.Name, phase Phase, reason string) {
	for _, obs := range o {
		obs.EventIgnored(roomID, name, phase, reason)
	}
}

// LogObserver writes transitions and ignored events to the global logger.
type LogObserver struct{}

func (LogObserver) PhaseChanged(t Transition) {
	log.Info().
		Str("room_id", t.RoomID).
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Str("cause", string(t.Cause)).
		Msg("session phase changed")
}

func (LogObserver) EventIgnored(roomID string, name events.Name, phase Phase, reason string) {
	log.Debug().
		Str("room_id", roomID).
		Str("event", string(name)).
		Str("phase", phase.String()).
		Str("reason", reason).
		Msg("event ignored")
}

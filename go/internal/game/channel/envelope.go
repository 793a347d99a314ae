package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
)

// Envelope is the wire structure of every channel event
type Envelope struct {
	ID        string          `json:"id,omitempty"`   // Event UUID, set on outbound events
	Type      events.Name     `json:"type"`           // Event name
	Timestamp time.Time       `json:"timestamp"`      // Creation time on the sending side
	Data      json.RawMessage `json:"data,omitempty"` // Event-specific payload
}

// NewEnvelope builds an outbound envelope. A nil payload produces an empty data field.
func NewEnvelope(name events.Name, payload interface{}) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.New().String(),
		Type:      name,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	env.Data = data
	return env, nil
}

// ParseEventPayload parses event data into the appropriate payload struct.
// Events without a payload and unknown events return nil, nil.
func ParseEventPayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case events.RoomValidated:
		return decode[events.RoomValidatedPayload](env)
	case events.NewRoomID:
		return decode[events.NewRoomIDPayload](env)
	case events.RosterUpdate:
		return decode[events.RosterUpdatePayload](env)
	case events.RoleAssigned:
		return decode[events.RoleAssignedPayload](env)
	case events.ChatMessage:
		return decode[events.ChatMessagePayload](env)
	case events.SystemMessage:
		return decode[events.SystemMessagePayload](env)
	case events.TimerStarted, events.TimerCorrected:
		return decode[events.TimerStartedPayload](env)
	case events.TimerPenalty:
		return decode[events.TimerPenaltyPayload](env)
	case events.AnswerResult:
		return decode[events.AnswerResultPayload](env)
	case events.RoundOver:
		return decode[events.RoundOverPayload](env)
	case events.Disconnected:
		return decode[events.DisconnectedPayload](env)
	case events.JoinRoom:
		return decode[events.JoinRoomPayload](env)
	case events.RequestNewRoom:
		return decode[events.RequestNewRoomPayload](env)
	case events.SubmitAnswer:
		return decode[events.SubmitAnswerPayload](env)
	case events.DisinformationBroadcast:
		return decode[events.DisinformationPayload](env)
	case events.AssistantQuestion:
		return decode[events.AssistantQuestionPayload](env)
	default:
		return nil, nil
	}
}

func decode[T any](env *Envelope) (interface{}, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return payload, nil
}

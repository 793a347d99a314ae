package events

import (
	"math"
	"time"
)

// Event payload types shared between the channel, session and intent packages.
// Field names follow the server protocol.

// JoinRoomPayload is the payload for a join_room event
type JoinRoomPayload struct {
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomId"`
}

// RequestNewRoomPayload is the payload for a request_new_room event
type RequestNewRoomPayload struct {
	DisplayName string `json:"displayName"`
}

// NewRoomIDPayload is the payload for a new_room_id event
type NewRoomIDPayload struct {
	RoomID string `json:"roomId"`
}

// RoomValidatedPayload is the payload for a room_validated event
type RoomValidatedPayload struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason,omitempty"`
	Members []RosterEntry `json:"members,omitempty"`
}

// RosterEntry is one member of a roster snapshot
type RosterEntry struct {
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
	Role        string `json:"role,omitempty"`
}

// RosterUpdatePayload is the full roster snapshot carried by roster_update
type RosterUpdatePayload []RosterEntry

// RoleAssignedPayload is the payload for a role_assigned event. Answer is only
// populated for the adversary.
type RoleAssignedPayload struct {
	Role   string   `json:"role"`
	Prompt string   `json:"prompt"`
	Hints  []string `json:"hints"`
	Answer string   `json:"answer,omitempty"`
}

// ChatMessagePayload is the payload for a chat_message event
type ChatMessagePayload struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// SystemMessagePayload is the payload for a system_message event
type SystemMessagePayload struct {
	Text string `json:"text"`
}

// TimerStartedPayload carries server clock values in epoch milliseconds.
// It is also the payload of timer_correction.
type TimerStartedPayload struct {
	StartTime  int64 `json:"startTime"`
	Duration   int64 `json:"duration"`
	ServerTime int64 `json:"serverTime"`
}

// Start returns StartTime as a duration since the server epoch.
func (p TimerStartedPayload) Start() time.Duration {
	return time.Duration(p.StartTime) * time.Millisecond
}

// Length returns Duration as a time.Duration.
func (p TimerStartedPayload) Length() time.Duration {
	return time.Duration(p.Duration) * time.Millisecond
}

// Sent returns ServerTime as a duration since the server epoch.
func (p TimerStartedPayload) Sent() time.Duration {
	return time.Duration(p.ServerTime) * time.Millisecond
}

// TimerPenaltyPayload is the payload for a timer_penalty event. Amount is in
// whole seconds, the countdown's tick unit.
type TimerPenaltyPayload struct {
	Amount int `json:"amount"`
}

// Penalty returns Amount as a time.Duration, saturating instead of overflowing.
func (p TimerPenaltyPayload) Penalty() time.Duration {
	const limit = math.MaxInt64 / int64(time.Second)
	switch amount := int64(p.Amount); {
	case amount > limit:
		return math.MaxInt64
	case amount < -limit:
		return math.MinInt64
	}
	return time.Duration(p.Amount) * time.Second
}

// SubmitAnswerPayload is the payload for a submit_answer event
type SubmitAnswerPayload struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// AnswerResultPayload is the payload for an answer_result event
type AnswerResultPayload struct {
	Author    string `json:"author"`
	IsCorrect bool   `json:"isCorrect"`
}

// DisinformationPayload is the payload for a disinformation_broadcast event
type DisinformationPayload struct {
	Prompt     string `json:"prompt"`
	FakeAnswer string `json:"fakeAnswer"`
}

// AssistantQuestionPayload is the payload for an assistant_question event
type AssistantQuestionPayload struct {
	Question string `json:"question"`
}

// RoundOverPayload is the payload for a round_over event
type RoundOverPayload struct {
	Winner     string `json:"winner"`
	TrueAnswer string `json:"trueAnswer"`
}

// DisconnectedPayload is the payload of the synthetic disconnected event
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

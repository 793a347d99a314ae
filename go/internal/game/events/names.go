package events

// Name identifies a channel event on the wire.
type Name string

// Client to server events
const (
	JoinRoom                Name = "join_room"
	RequestNewRoom          Name = "request_new_room"
	SetReady                Name = "set_ready"
	RequestRoles            Name = "request_roles"
	RequestTimer            Name = "request_timer"
	SubmitAnswer            Name = "submit_answer"
	DisinformationBroadcast Name = "disinformation_broadcast"
	AssistantQuestion       Name = "assistant_question"
	Leave                   Name = "leave"
)

// Server to client events
const (
	RoomValidated  Name = "room_validated"
	NewRoomID      Name = "new_room_id"
	RosterUpdate   Name = "roster_update"
	AllReady       Name = "all_ready"
	RoleAssigned   Name = "role_assigned"
	SystemMessage  Name = "system_message"
	TimerStarted   Name = "timer_started"
	TimerCorrected Name = "timer_correction"
	TimerPenalty   Name = "timer_penalty"
	AnswerResult   Name = "answer_result"
	RoundOver      Name = "round_over"
)

// ChatMessage travels in both directions.
const ChatMessage Name = "chat_message"

// Disconnected is synthesized locally by the channel adapter when the
// transport drops. The server never sends it.
const Disconnected Name = "disconnected"

// Inbound lists every event the session runtime subscribes to.
var Inbound = []Name{
	RoomValidated,
	NewRoomID,
	RosterUpdate,
	AllReady,
	RoleAssigned,
	ChatMessage,
	SystemMessage,
	TimerStarted,
	TimerCorrected,
	TimerPenalty,
	AnswerResult,
	RoundOver,
	Disconnected,
}

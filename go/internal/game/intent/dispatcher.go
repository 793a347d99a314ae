// Package intent turns user actions into outbound channel events after
// checking them against the local session.
package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// Sender delivers an outbound event. *channel.Adapter satisfies it.
type Sender interface {
	Send(name events.Name, payload interface{}) error
}

// Limits caps the per-round special actions.
type Limits struct {
	Disinformation int
	Assistant      int
}

// DefaultLimits matches what the game server hands out per round.
func DefaultLimits() Limits {
	return Limits{Disinformation: 2, Assistant: 2}
}

// Counters is the local one-shot and finite-use state of a session.
type Counters struct {
	Submitted          bool `json:"submitted"`
	DisinformationLeft int  `json:"disinformationLeft"`
	AssistantLeft      int  `json:"assistantLeft"`
}

// Dispatcher validates intents against the machine and sends them. Like the
// machine, it must only be used from the session loop.
type Dispatcher struct {
	machine *session.Machine
	sender  Sender
	limits  Limits

	counters Counters
}

// NewDispatcher creates a dispatcher for machine sending through sender.
func NewDispatcher(machine *session.Machine, sender Sender, limits Limits) *Dispatcher {
	d := &Dispatcher{
		machine: machine,
		sender:  sender,
		limits:  limits,
	}
	d.Reset()
	return d
}

// Counters returns the current local counters.
func (d *Dispatcher) Counters() Counters { return d.counters }

// Reset restores the counters for a fresh session.
func (d *Dispatcher) Reset() {
	d.counters = Counters{
		DisinformationLeft: d.limits.Disinformation,
		AssistantLeft:      d.limits.Assistant,
	}
}

// JoinRoom asks to join an existing room.
func (d *Dispatcher) JoinRoom(displayName, roomID string) error {
	displayName, roomID = strings.TrimSpace(displayName), strings.TrimSpace(roomID)
	if d.machine.Phase() != session.PhaseUnjoined {
		return d.reject("join room", ErrWrongPhase)
	}
	if displayName == "" || roomID == "" {
		return d.reject("join room", ErrInvalidIdentifier)
	}

	payload := events.JoinRoomPayload{DisplayName: displayName, RoomID: roomID}
	if err := d.send(events.JoinRoom, payload); err != nil {
		return err
	}
	d.Reset()
	d.machine.BeginJoin(displayName, roomID)
	return nil
}

// CreateRoom asks the server to allocate a new room.
func (d *Dispatcher) CreateRoom(displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if d.machine.Phase() != session.PhaseUnjoined {
		return d.reject("create room", ErrWrongPhase)
	}
	if displayName == "" {
		return d.reject("create room", ErrInvalidIdentifier)
	}

	if err := d.send(events.RequestNewRoom, events.RequestNewRoomPayload{DisplayName: displayName}); err != nil {
		return err
	}
	d.Reset()
	d.machine.BeginCreate(displayName)
	return nil
}

// CancelJoin abandons a pending join. The local state is reset even when
// the leave notification cannot be sent.
func (d *Dispatcher) CancelJoin() error {
	if d.machine.Phase() != session.PhaseAwaitingRoomValidation {
		return d.reject("cancel join", ErrWrongPhase)
	}
	if err := d.sender.Send(events.Leave, nil); err != nil {
		log.Warn().Err(err).Msg("failed to notify server of cancelled join")
	}
	d.machine.CancelJoin()
	return nil
}

// ToggleReady marks the local participant ready. There is no way back.
func (d *Dispatcher) ToggleReady() error {
	if d.machine.Phase() != session.PhaseLobby {
		return d.reject("ready", ErrWrongPhase)
	}
	if d.machine.Self().Ready {
		return d.reject("ready", ErrAlreadyReady)
	}
	if err := d.send(events.SetReady, nil); err != nil {
		return err
	}
	d.machine.MarkReady()
	return nil
}

// SendChat posts a chat line and echoes it locally.
func (d *Dispatcher) SendChat(text string) error {
	phase := d.machine.Phase()
	if phase != session.PhaseLobby && phase != session.PhaseActiveRound {
		return d.reject("chat", ErrWrongPhase)
	}
	if strings.TrimSpace(text) == "" {
		return d.reject("chat", ErrEmptyInput)
	}

	payload := events.ChatMessagePayload{Text: text, Author: d.machine.Self().DisplayName}
	if err := d.send(events.ChatMessage, payload); err != nil {
		return err
	}
	d.machine.AppendLocalChat(text)
	return nil
}

// SubmitAnswer sends the final answer. Only the first call in a round
// reaches the server.
func (d *Dispatcher) SubmitAnswer(text string) error {
	if d.machine.Phase() != session.PhaseActiveRound {
		return d.reject("submit answer", ErrWrongPhase)
	}
	if d.counters.Submitted {
		return d.reject("submit answer", ErrAlreadySubmitted)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return d.reject("submit answer", ErrEmptyInput)
	}

	payload := events.SubmitAnswerPayload{Text: text, Author: d.machine.Self().DisplayName}
	if err := d.send(events.SubmitAnswer, payload); err != nil {
		return err
	}
	d.counters.Submitted = true
	return nil
}

// BroadcastDisinformation sends a fake answer to the other participants.
func (d *Dispatcher) BroadcastDisinformation(prompt, fakeAnswer string) error {
	if d.machine.Phase() != session.PhaseActiveRound {
		return d.reject("disinformation", ErrWrongPhase)
	}
	if d.machine.Self().Role != session.RoleAdversary {
		return d.reject("disinformation", ErrRoleForbidden)
	}
	if d.counters.DisinformationLeft <= 0 {
		return d.reject("disinformation", ErrNoUsesLeft)
	}
	prompt, fakeAnswer = strings.TrimSpace(prompt), strings.TrimSpace(fakeAnswer)
	if prompt == "" || fakeAnswer == "" {
		return d.reject("disinformation", ErrEmptyInput)
	}

	payload := events.DisinformationPayload{Prompt: prompt, FakeAnswer: fakeAnswer}
	if err := d.send(events.DisinformationBroadcast, payload); err != nil {
		return err
	}
	d.counters.DisinformationLeft--
	return nil
}

// AskAssistant sends an ally question to the server-side assistant.
func (d *Dispatcher) AskAssistant(question string) error {
	if d.machine.Phase() != session.PhaseActiveRound {
		return d.reject("ask assistant", ErrWrongPhase)
	}
	if d.machine.Self().Role != session.RoleAlly {
		return d.reject("ask assistant", ErrRoleForbidden)
	}
	if d.counters.AssistantLeft <= 0 {
		return d.reject("ask assistant", ErrNoUsesLeft)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return d.reject("ask assistant", ErrEmptyInput)
	}

	if err := d.send(events.AssistantQuestion, events.AssistantQuestionPayload{Question: question}); err != nil {
		return err
	}
	d.counters.AssistantLeft--
	return nil
}

// RequestRoles asks the server to deal roles once everyone is ready.
func (d *Dispatcher) RequestRoles() error {
	if d.machine.Phase() != session.PhaseRoleAssigned {
		return ErrWrongPhase
	}
	return d.send(events.RequestRoles, nil)
}

// RequestTimer starts the clock exchange for the active round.
func (d *Dispatcher) RequestTimer() error {
	if d.machine.Phase() != session.PhaseActiveRound {
		return ErrWrongPhase
	}
	return d.send(events.RequestTimer, nil)
}

// Leave notifies the server and resets the local session. It always
// succeeds locally.
func (d *Dispatcher) Leave() {
	if d.machine.Phase() != session.PhaseUnjoined {
		if err := d.sender.Send(events.Leave, nil); err != nil {
			log.Debug().Err(err).Msg("leave not delivered")
		}
	}
	d.machine.Leave()
	d.Reset()
}

func (d *Dispatcher) send(name events.Name, payload interface{}) error {
	if err := d.sender.Send(name, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

// reject records err as a user-facing notice and returns it wrapped
func (d *Dispatcher) reject(action string, err error) error {
	log.Debug().
		Str("intent", action).
		Str("phase", d.machine.Phase().String()).
		Err(err).
		Msg("intent rejected")
	d.machine.Reject(fmt.Sprintf("%s: %s", action, err))
	return fmt.Errorf("%s: %w", action, err)
}

// IsRejection reports whether err is a local validation failure rather
// than a transport error.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrWrongPhase, ErrEmptyInput, ErrAlreadySubmitted, ErrAlreadyReady,
		ErrRoleForbidden, ErrNoUsesLeft, ErrInvalidIdentifier,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

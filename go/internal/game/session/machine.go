// Package session holds the single source of truth for one participant's
// game session and the rules for moving it between phases.
package session

import (
	"strings"
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
)

// Phases in which the room membership is established.
var joined = []Phase{PhaseLobby, PhaseRoleAssigned, PhaseActiveRound, PhaseResolved}

// Machine is the session state machine. It never fails on an unexpected
// event: such events are reported to the observer and dropped. It is not
// safe for concurrent use; the client drives it from its event loop.
type Machine struct {
	s        Session
	observer Observer
	now      func() time.Time
	creating bool
}

// Option configures a Machine
type Option func(*Machine)

// WithObserver sets the observer notified of transitions and ignored events.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observer = o }
}

// WithNow overrides the transition timestamp source.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a machine in PhaseUnjoined.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		s:        newSession(),
		observer: LogObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.s.Phase }

// Self returns the local participant.
func (m *Machine) Self() Participant { return m.s.Self }

// RoomID returns the room identifier, empty until known.
func (m *Machine) RoomID() string { return m.s.RoomID }

// Snapshot returns a deep copy of the session for read-only use.
func (m *Machine) Snapshot() Session { return m.s.clone() }

// BeginJoin moves Unjoined to AwaitingRoomValidation for an existing room.
func (m *Machine) BeginJoin(displayName, roomID string) bool {
	displayName, roomID = strings.TrimSpace(displayName), strings.TrimSpace(roomID)
	if m.s.Phase != PhaseUnjoined || displayName == "" || roomID == "" {
		return false
	}
	m.s = newSession()
	m.s.RoomID = roomID
	m.s.Self.DisplayName = displayName
	m.creating = false
	m.transition(PhaseAwaitingRoomValidation, events.JoinRoom)
	return true
}

// BeginCreate moves Unjoined to AwaitingRoomValidation for a room the server
// has yet to allocate.
func (m *Machine) BeginCreate(displayName string) bool {
	displayName = strings.TrimSpace(displayName)
	if m.s.Phase != PhaseUnjoined || displayName == "" {
		return false
	}
	m.s = newSession()
	m.s.Self.DisplayName = displayName
	m.creating = true
	m.transition(PhaseAwaitingRoomValidation, events.RequestNewRoom)
	return true
}

// CancelJoin abandons a pending join or create.
func (m *Machine) CancelJoin() bool {
	if m.s.Phase != PhaseAwaitingRoomValidation {
		return false
	}
	m.reset(events.Leave, nil)
	return true
}

// MarkReady sets the local readiness flag. Readiness is one-way.
func (m *Machine) MarkReady() bool {
	if m.s.Phase != PhaseLobby || m.s.Self.Ready {
		return false
	}
	m.s.Self.Ready = true
	if entry, ok := m.s.Roster[m.s.Self.DisplayName]; ok {
		entry.Ready = true
		m.s.Roster[m.s.Self.DisplayName] = entry
	}
	return true
}

// AppendLocalChat records a chat line sent by the local participant.
func (m *Machine) AppendLocalChat(text string) {
	m.appendChat(m.s.Self.DisplayName, text, false)
}

// Reject records a user-facing rejection without changing phase.
func (m *Machine) Reject(message string) {
	m.s.Notice = &Notice{Kind: NoticeRejected, Message: message}
}

// ClearNotice drops the current notice once the user acknowledged it.
func (m *Machine) ClearNotice() {
	m.s.Notice = nil
}

// Leave resets the session to Unjoined from any phase.
func (m *Machine) Leave() {
	m.reset(events.Leave, nil)
}

// Handle applies a server event. It reports whether the event was accepted
// in the current phase; rejected events leave the session untouched.
func (m *Machine) Handle(env *channel.Envelope) bool {
	payload, err := channel.ParseEventPayload(env)
	if err != nil {
		m.ignore(env.Type, "malformed payload: "+err.Error())
		return false
	}

	switch env.Type {
	case events.RoomValidated:
		return m.roomValidated(payload.(events.RoomValidatedPayload))
	case events.NewRoomID:
		return m.newRoomID(payload.(events.NewRoomIDPayload))
	case events.RosterUpdate:
		return m.rosterUpdate(payload.(events.RosterUpdatePayload))
	case events.AllReady:
		return m.allReady()
	case events.RoleAssigned:
		return m.roleAssigned(payload.(events.RoleAssignedPayload))
	case events.ChatMessage:
		p := payload.(events.ChatMessagePayload)
		if !m.s.Phase.in(joined...) {
			m.ignore(env.Type, "not in a room")
			return false
		}
		m.appendChat(p.Author, p.Text, false)
		return true
	case events.SystemMessage:
		p := payload.(events.SystemMessagePayload)
		if m.s.Phase == PhaseUnjoined {
			m.ignore(env.Type, "not in a room")
			return false
		}
		m.appendChat("", p.Text, true)
		return true
	case events.TimerStarted, events.TimerCorrected, events.TimerPenalty:
		// The deadline itself belongs to the clock reconciler; the machine
		// only decides whether a round exists to time.
		if !m.s.Phase.in(PhaseRoleAssigned, PhaseActiveRound) {
			m.ignore(env.Type, "no round in progress")
			return false
		}
		return true
	case events.AnswerResult:
		return m.answerResult(payload.(events.AnswerResultPayload))
	case events.RoundOver:
		return m.roundOver(payload.(events.RoundOverPayload))
	case events.Disconnected:
		reason := "connection to the game server was lost"
		if p, ok := payload.(events.DisconnectedPayload); ok && p.Reason != "" {
			reason = reason + ": " + p.Reason
		}
		m.reset(events.Disconnected, &Notice{Kind: NoticeChannelLost, Message: reason})
		return true
	default:
		m.ignore(env.Type, "unknown event")
		return false
	}
}

func (m *Machine) roomValidated(p events.RoomValidatedPayload) bool {
	if m.s.Phase != PhaseAwaitingRoomValidation {
		m.ignore(events.RoomValidated, "no join pending")
		return false
	}

	if !p.Success {
		reason := p.Reason
		if reason == "" {
			reason = "room could not be joined"
		}
		m.reset(events.RoomValidated, &Notice{Kind: NoticeRejected, Message: reason})
		return true
	}

	m.s.Notice = nil
	if len(p.Members) > 0 {
		m.replaceRoster(p.Members)
	} else {
		m.s.Roster = map[string]Participant{
			m.s.Self.DisplayName: {DisplayName: m.s.Self.DisplayName, Role: RoleUnknown},
		}
	}
	m.transition(PhaseLobby, events.RoomValidated)
	return true
}

func (m *Machine) newRoomID(p events.NewRoomIDPayload) bool {
	if m.s.Phase != PhaseAwaitingRoomValidation || !m.creating || m.s.RoomID != "" {
		m.ignore(events.NewRoomID, "no room creation pending")
		return false
	}
	if strings.TrimSpace(p.RoomID) == "" {
		m.ignore(events.NewRoomID, "empty room id")
		return false
	}

	m.s.RoomID = p.RoomID
	m.s.Notice = nil
	m.s.Roster = map[string]Participant{
		m.s.Self.DisplayName: {DisplayName: m.s.Self.DisplayName, Role: RoleUnknown},
	}
	m.transition(PhaseLobby, events.NewRoomID)
	return true
}

// rosterUpdate replaces the roster wholesale: last snapshot wins
func (m *Machine) rosterUpdate(members events.RosterUpdatePayload) bool {
	if !m.s.Phase.in(joined...) {
		m.ignore(events.RosterUpdate, "not in a room")
		return false
	}
	m.replaceRoster(members)
	return true
}

func (m *Machine) replaceRoster(members []events.RosterEntry) {
	roster := make(map[string]Participant, len(members))
	for _, entry := range members {
		p := Participant{
			DisplayName: entry.DisplayName,
			Ready:       entry.Ready,
			Role:        ParseRole(entry.Role),
		}
		if p.DisplayName == m.s.Self.DisplayName {
			// Readiness never goes back to false locally, and our own role
			// is only ever taken from role_assigned.
			p.Ready = p.Ready || m.s.Self.Ready
			m.s.Self.Ready = p.Ready
			p.Role = m.s.Self.Role
		}
		roster[p.DisplayName] = p
	}
	m.s.Roster = roster
}

func (m *Machine) allReady() bool {
	if m.s.Phase != PhaseLobby {
		m.ignore(events.AllReady, "not in lobby")
		return false
	}
	m.transition(PhaseRoleAssigned, events.AllReady)
	return true
}

func (m *Machine) roleAssigned(p events.RoleAssignedPayload) bool {
	if !m.s.Phase.in(PhaseLobby, PhaseRoleAssigned) {
		m.ignore(events.RoleAssigned, "no role assignment pending")
		return false
	}
	if m.s.Self.Role != RoleUnknown {
		m.ignore(events.RoleAssigned, "role already assigned")
		return false
	}
	role := ParseRole(p.Role)
	if role == RoleUnknown {
		m.ignore(events.RoleAssigned, "unrecognized role "+p.Role)
		return false
	}

	m.s.Self.Role = role
	if entry, ok := m.s.Roster[m.s.Self.DisplayName]; ok {
		entry.Role = role
		m.s.Roster[m.s.Self.DisplayName] = entry
	}

	round := &Round{
		Prompt: p.Prompt,
		Hints:  append([]string(nil), p.Hints...),
	}
	if role == RoleAdversary {
		round.TrueAnswer = p.Answer
	}
	m.s.Round = round

	if m.s.Phase == PhaseLobby {
		m.transition(PhaseRoleAssigned, events.RoleAssigned)
	}
	// There is no gate between role assignment and the round.
	m.transition(PhaseActiveRound, events.RoleAssigned)
	return true
}

func (m *Machine) answerResult(p events.AnswerResultPayload) bool {
	if !m.s.Phase.in(PhaseActiveRound, PhaseResolved) {
		m.ignore(events.AnswerResult, "no round in progress")
		return false
	}
	if p.Author == "" {
		m.ignore(events.AnswerResult, "missing author")
		return false
	}
	if m.s.Answers == nil {
		m.s.Answers = make(map[string]bool)
	}
	m.s.Answers[p.Author] = p.IsCorrect
	return true
}

func (m *Machine) roundOver(p events.RoundOverPayload) bool {
	if m.s.Phase != PhaseActiveRound {
		m.ignore(events.RoundOver, "no round in progress")
		return false
	}
	m.s.Outcome = &Outcome{Winner: p.Winner, TrueAnswer: p.TrueAnswer}
	m.transition(PhaseResolved, events.RoundOver)
	return true
}

func (m *Machine) appendChat(author, text string, system bool) {
	m.s.ChatLog = append(m.s.ChatLog, ChatEntry{
		Seq:    len(m.s.ChatLog),
		Author: author,
		Text:   text,
		System: system,
	})
}

// reset discards the session, keeping only notice for the presentation layer
func (m *Machine) reset(cause events.Name, notice *Notice) {
	from, roomID := m.s.Phase, m.s.RoomID
	m.s = newSession()
	m.s.Notice = notice
	m.creating = false
	if from != PhaseUnjoined {
		m.observer.PhaseChanged(Transition{RoomID: roomID, From: from, To: PhaseUnjoined, Cause: cause, At: m.now()})
	}
}

func (m *Machine) transition(to Phase, cause events.Name) {
	from := m.s.Phase
	m.s.Phase = to
	m.observer.PhaseChanged(Transition{RoomID: m.s.RoomID, From: from, To: to, Cause: cause, At: m.now()})
}

func (m *Machine) ignore(name events.Name, reason string) {
	m.observer.EventIgnored(m.s.RoomID, name, m.s.Phase, reason)
}

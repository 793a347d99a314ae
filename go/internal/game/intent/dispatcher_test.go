package intent

import (
	"errors"
	"testing"

	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
)

type sent struct {
	name    events.Name
	payload interface{}
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(name events.Name, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{name: name, payload: payload})
	return nil
}

func (f *fakeSender) count(name events.Name) int {
	n := 0
	for _, s := range f.sent {
		if s.name == name {
			n++
		}
	}
	return n
}

func push(t *testing.T, m *session.Machine, name events.Name, payload interface{}) {
	t.Helper()
	env, err := channel.NewEnvelope(name, payload)
	if err != nil {
		t.Fatalf("Failed to build %s: %v", name, err)
	}
	if !m.Handle(env) {
		t.Fatalf("Expected %s to be accepted in %s", name, m.Phase())
	}
}

func setup(t *testing.T) (*Dispatcher, *session.Machine, *fakeSender) {
	t.Helper()
	m := session.NewMachine(session.WithObserver(session.Observers{}))
	s := &fakeSender{}
	return NewDispatcher(m, s, DefaultLimits()), m, s
}

func lobby(t *testing.T) (*Dispatcher, *session.Machine, *fakeSender) {
	t.Helper()
	d, m, s := setup(t)
	if err := d.JoinRoom("alice", "42"); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	push(t, m, events.RoomValidated, events.RoomValidatedPayload{Success: true})
	return d, m, s
}

func round(t *testing.T, role string) (*Dispatcher, *session.Machine, *fakeSender) {
	t.Helper()
	d, m, s := lobby(t)
	push(t, m, events.AllReady, nil)
	push(t, m, events.RoleAssigned, events.RoleAssignedPayload{Role: role, Prompt: "p", Answer: "a"})
	return d, m, s
}

func TestJoinRoom(t *testing.T) {
	d, m, s := setup(t)

	err := d.JoinRoom("alice", " ")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Expected ErrInvalidIdentifier, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("Expected nothing sent, got %d events", len(s.sent))
	}
	if notice := m.Snapshot().Notice; notice == nil || notice.Kind != session.NoticeRejected {
		t.Errorf("Expected a rejected notice, got %+v", notice)
	}

	if err := d.JoinRoom("alice", "42"); err != nil {
		t.Fatalf("Expected join to succeed, got %v", err)
	}
	if m.Phase() != session.PhaseAwaitingRoomValidation {
		t.Errorf("Expected phase %s, got %s", session.PhaseAwaitingRoomValidation, m.Phase())
	}
	payload, ok := s.sent[0].payload.(events.JoinRoomPayload)
	if !ok || payload.DisplayName != "alice" || payload.RoomID != "42" {
		t.Errorf("Expected join_room payload for alice/42, got %+v", s.sent[0].payload)
	}
	if m.Snapshot().Notice != nil {
		t.Error("Expected the old notice to be cleared by a new join")
	}
}

func TestJoinRoom_SendFailureKeepsUnjoined(t *testing.T) {
	d, m, s := setup(t)
	s.err = channel.ErrNotConnected

	err := d.JoinRoom("alice", "42")
	if !errors.Is(err, channel.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if IsRejection(err) {
		t.Error("Expected transport failure not to count as a rejection")
	}
	if m.Phase() != session.PhaseUnjoined {
		t.Errorf("Expected phase %s, got %s", session.PhaseUnjoined, m.Phase())
	}
}

func TestCreateRoom(t *testing.T) {
	d, m, s := setup(t)
	if err := d.CreateRoom("alice"); err != nil {
		t.Fatalf("Expected create to succeed, got %v", err)
	}
	if s.count(events.RequestNewRoom) != 1 {
		t.Errorf("Expected 1 request_new_room, got %d", s.count(events.RequestNewRoom))
	}
	if err := d.CreateRoom("alice"); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase, got %v", err)
	}
	push(t, m, events.NewRoomID, events.NewRoomIDPayload{RoomID: "ab12"})
	if m.RoomID() != "ab12" {
		t.Errorf("Expected room ab12, got %q", m.RoomID())
	}
}

func TestCancelJoin(t *testing.T) {
	d, m, s := setup(t)
	if err := d.CancelJoin(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase, got %v", err)
	}

	d.JoinRoom("alice", "42")
	if err := d.CancelJoin(); err != nil {
		t.Fatalf("Expected cancel to succeed, got %v", err)
	}
	if m.Phase() != session.PhaseUnjoined {
		t.Errorf("Expected phase %s, got %s", session.PhaseUnjoined, m.Phase())
	}
	if s.count(events.Leave) != 1 {
		t.Errorf("Expected 1 leave, got %d", s.count(events.Leave))
	}
}

func TestToggleReady_OneWay(t *testing.T) {
	d, m, s := lobby(t)

	if err := d.ToggleReady(); err != nil {
		t.Fatalf("Expected ready to succeed, got %v", err)
	}
	if err := d.ToggleReady(); !errors.Is(err, ErrAlreadyReady) {
		t.Errorf("Expected ErrAlreadyReady, got %v", err)
	}
	if s.count(events.SetReady) != 1 {
		t.Errorf("Expected 1 set_ready, got %d", s.count(events.SetReady))
	}
	if !m.Self().Ready {
		t.Error("Expected self ready")
	}
}

func TestToggleReady_OnlyInLobby(t *testing.T) {
	d, _, s := setup(t)
	if err := d.ToggleReady(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Error("Expected nothing sent")
	}
}

func TestSendChat(t *testing.T) {
	d, m, s := lobby(t)

	if err := d.SendChat("   "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
	if s.count(events.ChatMessage) != 0 {
		t.Error("Expected blank chat not to be sent")
	}

	if err := d.SendChat("hello"); err != nil {
		t.Fatalf("Expected chat to succeed, got %v", err)
	}
	log := m.Snapshot().ChatLog
	if len(log) != 1 || log[0].Author != "alice" || log[0].Text != "hello" {
		t.Errorf("Expected local echo of hello by alice, got %+v", log)
	}
	payload := s.sent[len(s.sent)-1].payload.(events.ChatMessagePayload)
	if payload.Author != "alice" {
		t.Errorf("Expected author alice, got %q", payload.Author)
	}
}

func TestSendChat_NotInRoleAssigned(t *testing.T) {
	d, m, _ := lobby(t)
	push(t, m, events.AllReady, nil)
	if err := d.SendChat("hi"); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase, got %v", err)
	}
}

func TestSubmitAnswer_Once(t *testing.T) {
	d, _, s := round(t, "ally")

	if err := d.SubmitAnswer("blue"); err != nil {
		t.Fatalf("Expected first answer to succeed, got %v", err)
	}
	if err := d.SubmitAnswer("red"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Expected ErrAlreadySubmitted, got %v", err)
	}
	if err := d.SubmitAnswer("green"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Expected ErrAlreadySubmitted, got %v", err)
	}
	if got := s.count(events.SubmitAnswer); got != 1 {
		t.Errorf("Expected exactly 1 submit_answer, got %d", got)
	}
	if !d.Counters().Submitted {
		t.Error("Expected submitted flag")
	}
}

func TestSubmitAnswer_FailedSendCanRetry(t *testing.T) {
	d, _, s := round(t, "ally")
	s.err = channel.ErrSendBufferFull

	if err := d.SubmitAnswer("blue"); err == nil {
		t.Fatal("Expected send error")
	}
	if d.Counters().Submitted {
		t.Error("Expected submitted flag to stay unset after a failed send")
	}

	s.err = nil
	if err := d.SubmitAnswer("blue"); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
}

func TestBroadcastDisinformation(t *testing.T) {
	d, _, s := round(t, "adversary")

	if err := d.BroadcastDisinformation("Is it blue?", ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
	if d.Counters().DisinformationLeft != 2 {
		t.Errorf("Expected 2 uses left after rejected input, got %d", d.Counters().DisinformationLeft)
	}

	for i := 0; i < 2; i++ {
		if err := d.BroadcastDisinformation("Is it blue?", "Yes"); err != nil {
			t.Fatalf("Expected broadcast %d to succeed, got %v", i, err)
		}
	}
	if err := d.BroadcastDisinformation("Is it blue?", "Yes"); !errors.Is(err, ErrNoUsesLeft) {
		t.Errorf("Expected ErrNoUsesLeft, got %v", err)
	}
	if got := s.count(events.DisinformationBroadcast); got != 2 {
		t.Errorf("Expected 2 broadcasts, got %d", got)
	}
}

func TestBroadcastDisinformation_AllyForbidden(t *testing.T) {
	d, _, s := round(t, "ally")
	if err := d.BroadcastDisinformation("Is it blue?", "Yes"); !errors.Is(err, ErrRoleForbidden) {
		t.Errorf("Expected ErrRoleForbidden, got %v", err)
	}
	if s.count(events.DisinformationBroadcast) != 0 {
		t.Error("Expected nothing sent")
	}
}

func TestAskAssistant(t *testing.T) {
	d, _, s := round(t, "ally")

	if err := d.AskAssistant("is it a colour?"); err != nil {
		t.Fatalf("Expected question to succeed, got %v", err)
	}
	if d.Counters().AssistantLeft != 1 {
		t.Errorf("Expected 1 use left, got %d", d.Counters().AssistantLeft)
	}
	if s.count(events.AssistantQuestion) != 1 {
		t.Errorf("Expected 1 assistant_question, got %d", s.count(events.AssistantQuestion))
	}

	adv, _, _ := round(t, "adversary")
	if err := adv.AskAssistant("anything"); !errors.Is(err, ErrRoleForbidden) {
		t.Errorf("Expected ErrRoleForbidden for adversary, got %v", err)
	}
}

func TestLeave_ResetsCounters(t *testing.T) {
	d, m, s := round(t, "adversary")
	d.SubmitAnswer("blue")
	d.BroadcastDisinformation("q", "a")

	d.Leave()
	if m.Phase() != session.PhaseUnjoined {
		t.Errorf("Expected phase %s, got %s", session.PhaseUnjoined, m.Phase())
	}
	if s.count(events.Leave) != 1 {
		t.Errorf("Expected 1 leave, got %d", s.count(events.Leave))
	}
	c := d.Counters()
	if c.Submitted || c.DisinformationLeft != 2 {
		t.Errorf("Expected fresh counters, got %+v", c)
	}

	// Leaving while unjoined does not bother the server.
	d.Leave()
	if s.count(events.Leave) != 1 {
		t.Errorf("Expected still 1 leave, got %d", s.count(events.Leave))
	}
}

func TestLeave_SendFailureStillResets(t *testing.T) {
	d, m, s := lobby(t)
	s.err = channel.ErrNotConnected
	d.Leave()
	if m.Phase() != session.PhaseUnjoined {
		t.Errorf("Expected phase %s, got %s", session.PhaseUnjoined, m.Phase())
	}
}

package session

import (
	"fmt"
	"strings"
)

// Phase is the session lifecycle stage.
type Phase int

const (
	PhaseUnjoined Phase = iota
	PhaseAwaitingRoomValidation
	PhaseLobby
	PhaseRoleAssigned
	PhaseActiveRound
	PhaseResolved
)

var phaseNames = map[Phase]string{
	PhaseUnjoined:               "unjoined",
	PhaseAwaitingRoomValidation: "awaiting_room_validation",
	PhaseLobby:                  "lobby",
	PhaseRoleAssigned:           "role_assigned",
	PhaseActiveRound:            "active_round",
	PhaseResolved:               "resolved",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase name in JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// in reports whether p is one of phases
func (p Phase) in(phases ...Phase) bool {
	for _, candidate := range phases {
		if p == candidate {
			return true
		}
	}
	return false
}

// Role is the covert role assigned for the round.
type Role string

const (
	RoleUnknown   Role = "unknown"
	RoleAdversary Role = "adversary"
	RoleAlly      Role = "ally"
)

// ParseRole maps a server role string to a Role. The server's legacy names
// "catcher" and "normal" are accepted.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adversary", "catcher":
		return RoleAdversary
	case "ally", "normal":
		return RoleAlly
	default:
		return RoleUnknown
	}
}

// Participant is a roster member.
type Participant struct {
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
	Role        Role   `json:"role"`
}

// Round holds the live prompt. TrueAnswer is only ever set for the adversary.
type Round struct {
	Prompt     string   `json:"prompt"`
	Hints      []string `json:"hints"`
	TrueAnswer string   `json:"trueAnswer,omitempty"`
}

// Hint returns the hint at index i.
func (r *Round) Hint(i int) (string, bool) {
	if r == nil || i < 0 || i >= len(r.Hints) {
		return "", false
	}
	return r.Hints[i], true
}

// ChatEntry is one chat log line. Seq is the arrival order.
type ChatEntry struct {
	Seq    int    `json:"seq"`
	Author string `json:"author"`
	Text   string `json:"text"`
	System bool   `json:"system,omitempty"`
}

// Outcome is the resolved result of the round.
type Outcome struct {
	Winner     string `json:"winner"`
	TrueAnswer string `json:"trueAnswer"`
}

// NoticeKind classifies user-visible conditions.
type NoticeKind string

const (
	NoticeRejected    NoticeKind = "rejected"
	NoticeChannelLost NoticeKind = "channel_lost"
)

// Notice is a user-facing message for the presentation layer.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Session is one participant's view of a game room for one connection.
type Session struct {
	Phase   Phase                  `json:"phase"`
	RoomID  string                 `json:"roomId,omitempty"`
	Self    Participant            `json:"self"`
	Roster  map[string]Participant `json:"roster"`
	Round   *Round                 `json:"round,omitempty"`
	ChatLog []ChatEntry            `json:"chatLog"`
	Outcome *Outcome               `json:"outcome,omitempty"`
	Answers map[string]bool        `json:"answers,omitempty"` // answer_result by author
	Notice  *Notice                `json:"notice,omitempty"`
}

func newSession() Session {
	return Session{
		Phase:  PhaseUnjoined,
		Self:   Participant{Role: RoleUnknown},
		Roster: make(map[string]Participant),
	}
}

// clone deep-copies s so snapshots never alias machine state
func (s Session) clone() Session {
	out := s
	out.Roster = make(map[string]Participant, len(s.Roster))
	for k, v := range s.Roster {
		out.Roster[k] = v
	}
	if s.Round != nil {
		r := *s.Round
		r.Hints = append([]string(nil), s.Round.Hints...)
		out.Round = &r
	}
	out.ChatLog = append([]ChatEntry(nil), s.ChatLog...)
	if s.Outcome != nil {
		o := *s.Outcome
		out.Outcome = &o
	}
	if s.Answers != nil {
		out.Answers = make(map[string]bool, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

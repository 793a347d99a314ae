package client

import (
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/clocksync"
	"github.com/mcdev12/maninthemiddle/go/internal/game/intent"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
)

// View is a read-only snapshot for the presentation layer.
type View struct {
	Session   session.Session `json:"session"`
	Countdown CountdownView   `json:"countdown"`
	Counters  intent.Counters `json:"counters"`
	Connected bool            `json:"connected"`
}

// CountdownView is the round countdown as seen by the presentation layer.
type CountdownView struct {
	Armed       bool          `json:"armed"`
	Running     bool          `json:"running"`
	Expired     bool          `json:"expired"`
	Remaining   time.Duration `json:"-"`
	RemainingMs int64         `json:"remainingMs"`
}

func newCountdownView(cd clocksync.Countdown) CountdownView {
	return CountdownView{
		Armed:       cd.Armed,
		Running:     cd.Running,
		Expired:     cd.Expired,
		Remaining:   cd.Remaining,
		RemainingMs: cd.Remaining.Milliseconds(),
	}
}

// Seconds is the remaining time rounded up to whole seconds, the way the
// countdown is displayed.
func (v CountdownView) Seconds() int {
	return int((v.Remaining + time.Second - 1) / time.Second)
}

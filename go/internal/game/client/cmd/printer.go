package main

import (
	"fmt"
	"io"

	"github.com/mcdev12/maninthemiddle/go/internal/game/client"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
)

// printer writes what changed between two views. It runs on the session
// loop, so it keeps its own state without locking.
type printer struct {
	out     io.Writer
	phase   session.Phase
	chat    int
	notice  *session.Notice
	seconds int
}

func newPrinter(out io.Writer) func(client.View) {
	p := &printer{out: out, seconds: -1}
	return p.print
}

func (p *printer) print(v client.View) {
	s := v.Session

	if s.Phase != p.phase {
		p.phase = s.Phase
		p.chat = 0
		fmt.Fprintln(p.out, "--", describe(v))
	}

	if len(s.ChatLog) < p.chat {
		p.chat = 0
	}
	for _, entry := range s.ChatLog[p.chat:] {
		if entry.System {
			fmt.Fprintf(p.out, "* %s\n", entry.Text)
		} else {
			fmt.Fprintf(p.out, "<%s> %s\n", entry.Author, entry.Text)
		}
	}
	p.chat = len(s.ChatLog)

	if s.Notice != nil && (p.notice == nil || *p.notice != *s.Notice) {
		fmt.Fprintf(p.out, "! %s\n", s.Notice.Message)
	}
	p.notice = s.Notice

	if !v.Countdown.Armed {
		p.seconds = -1
		return
	}
	// Announce every ten seconds and the final five.
	if secs := v.Countdown.Seconds(); secs != p.seconds && (secs%10 == 0 || secs <= 5) {
		p.seconds = secs
		fmt.Fprintf(p.out, "time left: %ds\n", secs)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mcdev12/maninthemiddle/go/internal/game/client"
	"github.com/mcdev12/maninthemiddle/go/internal/game/intent"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
)

var errQuit = errors.New("quit")

var errUsage = errors.New("usage")

type commandKind int

const (
	cmdChat commandKind = iota
	cmdReady
	cmdAnswer
	cmdDisinfo
	cmdAsk
	cmdJoin
	cmdCreate
	cmdCancel
	cmdLeave
	cmdState
	cmdDismiss
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	args []string
}

const helpText = `commands:
  /join <name> <room>          join an existing room
  /create <name>               create a room
  /cancel                      cancel a pending join
  /ready                       mark yourself ready
  /answer <text>               submit the final answer (once)
  /disinfo <prompt> | <fake>   broadcast a fake answer (adversary)
  /ask <question>              ask the assistant (ally)
  /state                       print the session
  /dismiss                     clear the current notice
  /leave                       leave the session
  /quit                        exit
anything else is sent as chat`

// parseLine turns one input line into a command. Plain text is chat.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdChat, args: []string{line}}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "ready":
		return command{kind: cmdReady}, nil
	case "answer":
		return command{kind: cmdAnswer, args: []string{rest}}, nil
	case "disinfo":
		prompt, fake, ok := strings.Cut(rest, "|")
		if !ok {
			return command{}, fmt.Errorf("%w: /disinfo <prompt> | <fake answer>", errUsage)
		}
		return command{kind: cmdDisinfo, args: []string{strings.TrimSpace(prompt), strings.TrimSpace(fake)}}, nil
	case "ask":
		return command{kind: cmdAsk, args: []string{rest}}, nil
	case "join":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return command{}, fmt.Errorf("%w: /join <name> <room>", errUsage)
		}
		return command{kind: cmdJoin, args: fields}, nil
	case "create":
		if rest == "" {
			return command{}, fmt.Errorf("%w: /create <name>", errUsage)
		}
		return command{kind: cmdCreate, args: []string{rest}}, nil
	case "cancel":
		return command{kind: cmdCancel}, nil
	case "leave":
		return command{kind: cmdLeave}, nil
	case "state":
		return command{kind: cmdState}, nil
	case "dismiss":
		return command{kind: cmdDismiss}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s, try /help", name)
	}
}

// execute runs cmd against c, writing user-facing output to out.
func execute(ctx context.Context, c *client.Client, cmd command, out io.Writer) error {
	switch cmd.kind {
	case cmdChat:
		return c.SendChat(ctx, cmd.args[0])
	case cmdReady:
		return c.ToggleReady(ctx)
	case cmdAnswer:
		return c.SubmitAnswer(ctx, cmd.args[0])
	case cmdDisinfo:
		return c.BroadcastDisinformation(ctx, cmd.args[0], cmd.args[1])
	case cmdAsk:
		return c.AskAssistant(ctx, cmd.args[0])
	case cmdJoin:
		return c.JoinRoom(ctx, cmd.args[0], cmd.args[1])
	case cmdCreate:
		return c.CreateRoom(ctx, cmd.args[0])
	case cmdCancel:
		return c.CancelJoin(ctx)
	case cmdLeave:
		return c.Leave(ctx)
	case cmdDismiss:
		return c.DismissNotice(ctx)
	case cmdState:
		v, err := c.View(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describe(v))
		return nil
	case cmdHelp:
		fmt.Fprintln(out, helpText)
		return nil
	case cmdQuit:
		return errQuit
	}
	return nil
}

// describe renders a view as a few human readable lines.
func describe(v client.View) string {
	var b strings.Builder
	s := v.Session
	fmt.Fprintf(&b, "phase: %s", s.Phase)
	if s.RoomID != "" {
		fmt.Fprintf(&b, "  room: %s", s.RoomID)
	}
	if s.Self.DisplayName != "" {
		fmt.Fprintf(&b, "  you: %s (%s)", s.Self.DisplayName, s.Self.Role)
	}
	for _, p := range sortedRoster(s.Roster) {
		ready := " "
		if p.Ready {
			ready = "x"
		}
		fmt.Fprintf(&b, "\n  [%s] %s", ready, p.DisplayName)
	}
	if s.Round != nil {
		fmt.Fprintf(&b, "\nprompt: %s", s.Round.Prompt)
		for i, hint := range s.Round.Hints {
			fmt.Fprintf(&b, "\n  hint %d: %s", i+1, hint)
		}
		if s.Round.TrueAnswer != "" {
			fmt.Fprintf(&b, "\ntrue answer: %s", s.Round.TrueAnswer)
		}
	}
	if v.Countdown.Armed {
		fmt.Fprintf(&b, "\ntime left: %ds", v.Countdown.Seconds())
	}
	if s.Self.Role == session.RoleAdversary {
		fmt.Fprintf(&b, "\ndisinformation left: %d", v.Counters.DisinformationLeft)
	}
	if s.Self.Role == session.RoleAlly {
		fmt.Fprintf(&b, "\nassistant questions left: %d", v.Counters.AssistantLeft)
	}
	if s.Outcome != nil {
		fmt.Fprintf(&b, "\nwinner: %s  answer: %s", s.Outcome.Winner, s.Outcome.TrueAnswer)
	}
	if s.Notice != nil {
		fmt.Fprintf(&b, "\n! %s", s.Notice.Message)
	}
	return b.String()
}

func sortedRoster(roster map[string]session.Participant) []session.Participant {
	out := make([]session.Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// userError reports whether err should be shown as a message rather than
// logged as a failure.
func userError(err error) bool {
	return intent.IsRejection(err) || errors.Is(err, errUsage)
}

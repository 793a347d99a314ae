package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/channel/channeltest"
	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
)

const wait = 2 * time.Second

func receive(t *testing.T, ch <-chan *channel.Envelope) *channel.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(wait):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestAdapter_ConnectIsIdempotent(t *testing.T) {
	server := channeltest.NewServer()
	adapter := channel.NewAdapter(server.Dialer())
	defer adapter.Teardown()

	ctx := context.Background()
	if err := adapter.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := adapter.Connect(ctx); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if got := server.Dials(); got != 1 {
		t.Errorf("Expected 1 dial, got %d", got)
	}
	if !adapter.Connected() {
		t.Error("Expected adapter to report connected")
	}
}

func TestAdapter_ConnectDialError(t *testing.T) {
	server := channeltest.NewServer()
	server.FailDials(errors.New("refused"))
	adapter := channel.NewAdapter(server.Dialer())

	if err := adapter.Connect(context.Background()); err == nil {
		t.Fatal("Expected dial error")
	}
	if adapter.Connected() {
		t.Error("Adapter should not be connected after a failed dial")
	}
}

func TestAdapter_SendWithoutConnection(t *testing.T) {
	adapter := channel.NewAdapter(channeltest.NewServer().Dialer())

	err := adapter.Send(events.SetReady, nil)
	if !errors.Is(err, channel.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestAdapter_SendReachesServer(t *testing.T) {
	server := channeltest.NewServer()
	adapter := channel.NewAdapter(server.Dialer())
	defer adapter.Teardown()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	payload := events.JoinRoomPayload{DisplayName: "A", RoomID: "42"}
	if err := adapter.Send(events.JoinRoom, payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	sent, err := server.WaitFor(events.JoinRoom, 1, wait)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := channel.ParseEventPayload(&sent[0])
	if err != nil {
		t.Fatalf("ParseEventPayload failed: %v", err)
	}
	if got := parsed.(events.JoinRoomPayload); got != payload {
		t.Errorf("Expected %+v, got %+v", payload, got)
	}
	if sent[0].ID == "" {
		t.Error("Expected outbound envelope to carry an ID")
	}
}

func TestAdapter_SubscribeAndUnsubscribe(t *testing.T) {
	server := channeltest.NewServer()
	adapter := channel.NewAdapter(server.Dialer())
	defer adapter.Teardown()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	chats := make(chan *channel.Envelope, 4)
	token := adapter.Subscribe(events.ChatMessage, func(env *channel.Envelope) { chats <- env })

	if err := server.Push(events.ChatMessage, events.ChatMessagePayload{Text: "hi", Author: "B"}); err != nil {
		t.Fatal(err)
	}
	env := receive(t, chats)
	if env.Type != events.ChatMessage {
		t.Errorf("Expected chat_message, got %s", env.Type)
	}

	if !adapter.Unsubscribe(token) {
		t.Error("Expected first Unsubscribe to succeed")
	}
	if adapter.Unsubscribe(token) {
		t.Error("Expected second Unsubscribe to report false")
	}

	// A marker subscription proves later events are being processed.
	markers := make(chan *channel.Envelope, 1)
	adapter.Subscribe(events.AllReady, func(env *channel.Envelope) { markers <- env })
	_ = server.Push(events.ChatMessage, events.ChatMessagePayload{Text: "again", Author: "B"})
	_ = server.Push(events.AllReady, nil)
	receive(t, markers)

	select {
	case env := <-chats:
		t.Errorf("Unsubscribed handler received %s", env.Type)
	default:
	}
}

func TestAdapter_DisconnectedEmittedOnce(t *testing.T) {
	server := channeltest.NewServer()
	adapter := channel.NewAdapter(server.Dialer())
	defer adapter.Teardown()

	lost := make(chan *channel.Envelope, 4)
	adapter.Subscribe(events.Disconnected, func(env *channel.Envelope) { lost <- env })
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	server.Drop()
	env := receive(t, lost)
	parsed, err := channel.ParseEventPayload(env)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.(events.DisconnectedPayload).Reason == "" {
		t.Error("Expected a disconnect reason")
	}

	select {
	case <-lost:
		t.Error("Expected exactly one disconnected event")
	case <-time.After(50 * time.Millisecond):
	}
	if adapter.Connected() {
		t.Error("Adapter should not report connected after loss")
	}

	// Reconnecting is an explicit decision.
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if got := server.Dials(); got != 2 {
		t.Errorf("Expected 2 dials, got %d", got)
	}
}

func TestAdapter_TeardownStopsDelivery(t *testing.T) {
	server := channeltest.NewServer()

	// Hold deliveries until after teardown to model an in-flight message.
	queued := make(chan func(), 8)
	adapter := channel.NewAdapter(server.Dialer(), channel.WithExecutor(func(fn func()) { queued <- fn }))

	calls := 0
	adapter.Subscribe(events.ChatMessage, func(*channel.Envelope) { calls++ })
	adapter.Subscribe(events.Disconnected, func(*channel.Envelope) { calls++ })
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_ = server.Push(events.ChatMessage, events.ChatMessagePayload{Text: "late", Author: "B"})
	var pending func()
	select {
	case pending = <-queued:
	case <-time.After(wait):
		t.Fatal("timeout waiting for queued delivery")
	}

	adapter.Teardown()
	pending()

	if calls != 0 {
		t.Errorf("Expected no handler calls after teardown, got %d", calls)
	}
	if err := adapter.Send(events.SetReady, nil); !errors.Is(err, channel.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after teardown, got %v", err)
	}
}

func TestAdapter_TeardownFlushesQueuedSends(t *testing.T) {
	server := channeltest.NewServer()
	adapter := channel.NewAdapter(server.Dialer())
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := adapter.Send(events.Leave, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	adapter.Teardown()

	if _, err := server.WaitFor(events.Leave, 1, wait); err != nil {
		t.Error(err)
	}
}

func TestScope_ReleaseOnce(t *testing.T) {
	adapter := channel.NewAdapter(channeltest.NewServer().Dialer())
	scope := adapter.NewScope()

	scope.Subscribe(events.ChatMessage, func(*channel.Envelope) {})
	scope.Subscribe(events.RosterUpdate, func(*channel.Envelope) {})

	if got := scope.Release(); got != 2 {
		t.Errorf("Expected 2 released subscriptions, got %d", got)
	}
	if got := scope.Release(); got != 0 {
		t.Errorf("Expected second Release to release nothing, got %d", got)
	}
	if token := scope.Subscribe(events.ChatMessage, func(*channel.Envelope) {}); token != "" {
		t.Error("Expected Subscribe on a released scope to be a no-op")
	}
	if !scope.Released() {
		t.Error("Expected scope to report released")
	}
}

func TestParseEventPayload(t *testing.T) {
	env, err := channel.NewEnvelope(events.TimerStarted, events.TimerStartedPayload{StartTime: 5000, Duration: 60000, ServerTime: 5000})
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := channel.ParseEventPayload(env)
	if err != nil {
		t.Fatal(err)
	}
	if got := parsed.(events.TimerStartedPayload).Length(); got != time.Minute {
		t.Errorf("Expected 1m duration, got %v", got)
	}

	bad := &channel.Envelope{Type: events.RoundOver, Data: []byte(`{"winner":`)}
	if _, err := channel.ParseEventPayload(bad); err == nil {
		t.Error("Expected decode error for truncated payload")
	}

	unknown := &channel.Envelope{Type: "mystery"}
	if parsed, err := channel.ParseEventPayload(unknown); parsed != nil || err != nil {
		t.Errorf("Expected nil, nil for unknown event, got %v, %v", parsed, err)
	}
}

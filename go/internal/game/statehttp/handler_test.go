package statehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/client"
	"github.com/mcdev12/maninthemiddle/go/internal/game/session"
)

type stubProvider struct {
	view client.View
	err  error
}

func (s stubProvider) View(context.Context) (client.View, error) {
	return s.view, s.err
}

func TestHandleGetState(t *testing.T) {
	view := client.View{
		Session: session.Session{
			Phase:  session.PhaseActiveRound,
			RoomID: "42",
			Self:   session.Participant{DisplayName: "A", Role: session.RoleAdversary},
		},
		Countdown: client.CountdownView{Armed: true, Running: true, Remaining: 59900 * time.Millisecond, RemainingMs: 59900},
		Connected: true,
	}
	srv := httptest.NewServer(NewServer(":0", stubProvider{view: view}).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/session/state")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var body struct {
		Session struct {
			Phase  string `json:"phase"`
			RoomID string `json:"roomId"`
			Self   struct {
				Role string `json:"role"`
			} `json:"self"`
		} `json:"session"`
		Countdown struct {
			RemainingMs int64 `json:"remainingMs"`
		} `json:"countdown"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Session.Phase != "active_round" {
		t.Errorf("Expected phase active_round, got %q", body.Session.Phase)
	}
	if body.Session.RoomID != "42" || body.Session.Self.Role != "adversary" {
		t.Errorf("Expected room 42 adversary, got %+v", body.Session)
	}
	if body.Countdown.RemainingMs != 59900 {
		t.Errorf("Expected 59900ms remaining, got %d", body.Countdown.RemainingMs)
	}
}

func TestHandleGetState_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		want   int
	}{
		{"wrong method", http.MethodPost, nil, http.StatusMethodNotAllowed},
		{"stopped", http.MethodGet, client.ErrStopped, http.StatusServiceUnavailable},
		{"failure", http.MethodGet, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStateHandler(stubProvider{err: tt.err})
			rec := httptest.NewRecorder()
			h.HandleGetState(rec, httptest.NewRequest(tt.method, "/api/session/state", nil))
			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	NewStateHandler(stubProvider{}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", stubProvider{}).Handler)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/session/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard CORS origin, got %q", got)
	}
}

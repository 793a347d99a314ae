// Package statehttp serves the session view to an out-of-process
// presentation layer.
package statehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/maninthemiddle/go/internal/game/client"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// StateProvider returns the current session view.
type StateProvider interface {
	View(ctx context.Context) (client.View, error)
}

// StateHandler handles HTTP requests for session state
type StateHandler struct {
	provider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleGetState handles GET /api/session/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := h.provider.View(r.Context())
	if err != nil {
		if errors.Is(err, client.ErrStopped) {
			http.Error(w, "Session client stopped", http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Msg("failed to get session view")
		http.Error(w, "Failed to get session state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Error().Err(err).Msg("failed to encode session state response")
	}
}

// RegisterRoutes registers state and health routes on mux.
func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/state", h.HandleGetState)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// NewServer builds the HTTP server with CORS for browser front ends and
// cleartext HTTP/2.
func NewServer(addr string, provider StateProvider) *http.Server {
	mux := http.NewServeMux()
	NewStateHandler(provider).RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}

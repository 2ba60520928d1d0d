// Package api provides the HTTP observability endpoints of the relay.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/relaychat/internal/presence"
	"github.com/go-chi/chi/v5"
)

// Handler exposes read-only JSON views of the presence registry.
type Handler struct {
	registry *presence.Registry
	started  time.Time
}

// NewHandler creates a new Handler over the given registry.
func NewHandler(registry *presence.Registry) *Handler {
	return &Handler{registry: registry, started: time.Now()}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the observability routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/roster", h.Roster)
	})
}

// Health reports process liveness, uptime and the live connection
// count. The registry is in-memory, so there is no dependency to probe
// beyond the process itself.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"online": h.registry.OnlineCount(),
		"uptime": int64(time.Since(h.started).Seconds()),
	})
}

// Roster returns a snapshot of all known identities, online and
// offline. Read-only; presence mutates only through the channel.
func (h *Handler) Roster(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.registry.Roster())
}

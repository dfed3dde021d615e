// Package api exposes the shop over HTTP (chi) and MCP. The transport layer
// stays thin: every decision about a message belongs to the chat pipeline
// and the inventory index.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/derpdot/cardshop/internal/chat"
	"github.com/derpdot/cardshop/internal/guard"
	"github.com/derpdot/cardshop/internal/inventory"
	"github.com/derpdot/cardshop/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Backend is the subset of the generative client the health check needs.
type Backend interface {
	IsRunning(ctx context.Context) bool
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Orchestrator *chat.Orchestrator
	Index        *inventory.Index
	Limiter      *guard.Limiter
	Store        *storage.Store
	Backend      Backend
	// Token guards the admin endpoints (reload, transcripts).
	Token string
	// InventoryPath is the CSV file reloaded when no replacement table is
	// posted.
	InventoryPath string
}

// NewHandler builds the chi router for the public and admin API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/chat", handleChat(deps))
	r.Get("/inventory/search", handleSearch(deps))
	r.Get("/inventory/cards/{id}", handleCard(deps))
	r.Get("/inventory/stats", handleStats(deps))

	r.Group(func(admin chi.Router) {
		admin.Use(BearerAuth(deps.Token))
		admin.Post("/inventory/reload", handleReload(deps))
		admin.Get("/transcripts", handleTranscripts(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if deps.Index.Len() == 0 {
			status = "degraded"
		}
		backendUp := deps.Backend != nil && deps.Backend.IsRunning(r.Context())
		if !backendUp {
			// Chat still answers from inventory alone, hence degraded
			// rather than down.
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":     status,
			"cards":      deps.Index.Len(),
			"backend_up": backendUp,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// Package www is the node-local diagnostics surface: a small HTTP endpoint
// a supervisor or operator can poke to see what the display thinks it is
// doing. It is not a management front end.
package www

import (
	"encoding/json"
	"image/png"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"slidenode/render"
)

// Status is the playback summary served by /api/status. Built by the
// engine on each request.
type Status struct {
	NodeUUID     string   `json:"node_uuid"`
	DeckRevision string   `json:"deck_revision"`
	Fallback     bool     `json:"fallback"`
	SlideCount   int      `json:"slide_count"`
	CurrentSlide string   `json:"current_slide"`
	CurrentIndex int      `json:"current_index"`
	Phase        string   `json:"phase"`
	CachedMedia  []string `json:"cached_media"`
	FeedHealthy  bool     `json:"feed_healthy"`
}

// StatusSource builds the current status snapshot. Satisfied by the
// engine.
type StatusSource interface {
	Status() Status
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	source StatusSource
	screen *render.Latest // nil when no diagnostics surface is wired
}

// NewRouter creates the chi router for the diagnostics endpoint.
func NewRouter(source StatusSource, screen *render.Latest) http.Handler {
	h := &Handlers{source: source, screen: screen}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/api/status", h.handleStatus)
	r.Get("/frame.png", h.handleFrame)
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.source.Status())
}

// handleFrame serves the most recently presented frame as a PNG, so an
// operator can see the screen without standing in front of it.
func (h *Handlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	if h.screen == nil {
		http.Error(w, "no diagnostics surface", http.StatusNotFound)
		return
	}
	frame := h.screen.Frame()
	if frame == nil {
		http.Error(w, "no frame presented yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := png.Encode(w, frame); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mira-notes/mira/internal/llm"
	"github.com/mira-notes/mira/internal/reasoning"
	"github.com/mira-notes/mira/internal/sse"
)

// NotesHandlers serves note enhancement and its progress stream.
type NotesHandlers struct {
	engine      *reasoning.Engine
	broadcaster *sse.Broadcaster
}

// NewNotesHandlers creates a new NotesHandlers instance.
func NewNotesHandlers(engine *reasoning.Engine, broadcaster *sse.Broadcaster) *NotesHandlers {
	return &NotesHandlers{engine: engine, broadcaster: broadcaster}
}

// EnhanceNote handles POST /api/v3/notes/enhance. The caller identity comes
// from the x-user-id header; validation failures return 400, upstream
// generation failures 502. A tripped breaker still returns 200 with a
// degraded body.
func (h *NotesHandlers) EnhanceNote(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req EnhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.engine.Enhance(r.Context(), userID, req.NoteID, req.Text, req.Options)
	if err != nil {
		if errors.Is(err, llm.ErrValidation) {
			respondError(w, http.StatusBadRequest, "invalid input", err)
			return
		}
		respondError(w, http.StatusBadGateway, "enhancement failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// NoteEvents handles GET /api/v3/notes/{id}/events, streaming pipeline
// progress for the note over SSE.
func (h *NotesHandlers) NoteEvents(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")
	if noteID == "" {
		respondError(w, http.StatusBadRequest, "missing note id", nil)
		return
	}
	h.broadcaster.Serve(w, r, noteID)
}

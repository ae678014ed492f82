package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/mira-notes/mira/internal/llm"
	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/internal/tasks"
	"github.com/mira-notes/mira/pkg/types"
)

const (
	defaultTaskLimit = 20
	maxTaskLimit     = 100
)

// TasksHandlers serves the task API.
type TasksHandlers struct {
	svc *tasks.Service
}

// NewTasksHandlers creates a new TasksHandlers instance.
func NewTasksHandlers(svc *tasks.Service) *TasksHandlers {
	return &TasksHandlers{svc: svc}
}

// ListTasks handles GET /api/v3/tasks with status/priority filters and
// limit/offset pagination. The limit must be 1-100 (default 20) and the
// offset non-negative; anything else is a 400.
func (h *TasksHandlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if !llm.ValidUserID(userID) {
		respondError(w, http.StatusBadRequest, "missing or invalid x-user-id header", nil)
		return
	}

	q := r.URL.Query()
	status := types.TaskStatus(q.Get("status"))
	if status != "" && !types.ValidTaskStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid status filter", nil)
		return
	}
	priority := types.TaskPriority(q.Get("priority"))
	if priority != "" && !types.ValidTaskPriority(priority) {
		respondError(w, http.StatusBadRequest, "invalid priority filter", nil)
		return
	}

	limit, err := parsePageParam(q.Get("limit"), defaultTaskLimit, 1, maxTaskLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit parameter", err)
		return
	}
	offset, err := parsePageParam(q.Get("offset"), 0, 0, math.MaxInt32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid offset parameter", err)
		return
	}

	filter := storage.TaskFilter{
		Status:   status,
		Priority: priority,
		Limit:    limit,
		Offset:   offset,
	}
	items, total, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "task store unavailable", err)
		return
	}
	if items == nil {
		items = []*types.Task{}
	}

	resp := ListTasksResponse{Tasks: items, Total: total}
	if next := offset + len(items); next < total {
		resp.NextOffset = &next
	}
	respondJSON(w, http.StatusOK, resp)
}

// CreateTask handles POST /api/v3/tasks.
func (h *TasksHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if !llm.ValidUserID(userID) {
		respondError(w, http.StatusBadRequest, "missing or invalid x-user-id header", nil)
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id, err := h.svc.Create(r.Context(), userID, tasks.CreateParams{
		Title:       req.Title,
		NaturalText: req.NaturalText,
		Priority:    req.Priority,
		Confidence:  req.Confidence,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid task", err)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "task store unavailable", err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateTaskResponse{ID: id})
}

// CompleteTask handles POST /api/v3/tasks/{id}/complete. Completing twice
// is fine and returns the same 204.
func (h *TasksHandlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing task id", nil)
		return
	}
	if err := h.svc.Complete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "task not found", nil)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "task store unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"github.com/mira-notes/mira/internal/reasoning"
	"github.com/mira-notes/mira/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EnhanceRequest is the request format for POST /api/v3/notes/enhance.
type EnhanceRequest struct {
	NoteID  string            `json:"note_id,omitempty"`
	Text    string            `json:"text"`
	Options reasoning.Options `json:"options"`
}

// CreateTaskRequest is the request format for POST /api/v3/tasks.
type CreateTaskRequest struct {
	Title       string             `json:"title"`
	NaturalText string             `json:"natural_text,omitempty"`
	Priority    types.TaskPriority `json:"priority,omitempty"`
	Confidence  float64            `json:"confidence"`
}

// CreateTaskResponse is the response format for POST /api/v3/tasks.
type CreateTaskResponse struct {
	ID string `json:"id"`
}

// ListTasksResponse is the response format for GET /api/v3/tasks.
// NextOffset is null when the page reaches the end of the result set.
type ListTasksResponse struct {
	Tasks      []*types.Task `json:"tasks"`
	Total      int           `json:"total"`
	NextOffset *int          `json:"nextOffset"`
}

// StatsResponse is the response format for GET /api/v3/stats.
type StatsResponse struct {
	Reasoning      reasoning.Stats `json:"reasoning"`
	SchedulerQueue int             `json:"scheduler_queue"`
}

// BreakerRequest is the request format for POST /api/v3/admin/breaker.
type BreakerRequest struct {
	Action string `json:"action"` // trip or reset
}

package types

import "time"

// TaskStatus is the lifecycle state of a task.
// pending → scheduled → completed, with archived as a terminal side-branch.
// Tasks are never hard-deleted; archival is a status value.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusScheduled TaskStatus = "scheduled"
	StatusCompleted TaskStatus = "completed"
	StatusArchived  TaskStatus = "archived"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// TaskPriority is the coarse priority bucket for a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// ValidTaskPriority reports whether p is a known priority.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a persisted action item derived from a note. Identity is the
// (user_id, title) pair; duplicate creations merge by keeping the higher
// confidence rather than erroring.
type Task struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	Title                string       `json:"title"`
	NaturalText          string       `json:"natural_text,omitempty"`
	Priority             TaskPriority `json:"priority"`
	Status               TaskStatus   `json:"status"`
	ParsedDueDate        *time.Time   `json:"parsed_due_date,omitempty"`
	DueDateConfidence    float64      `json:"due_date_confidence"`
	Confidence           float64      `json:"confidence"`
	SourceReasoningLogID string       `json:"source_reasoning_log_id,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
}

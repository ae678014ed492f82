// Package storage provides composable storage interfaces for the Mira pipeline.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The relational store is
// the single source of truth for facts and tasks; all mutation goes through
// upsert statements that push conflict resolution to the database.
package storage

import (
	"context"
	"time"

	"github.com/mira-notes/mira/pkg/types"
)

// FactUpsert carries the optional attributes for a fact write.
type FactUpsert struct {
	Aliases  []string
	Contexts []string
	Metadata map[string]interface{}
}

// FactStore persists entity facts per user with upsert-on-conflict semantics.
type FactStore interface {
	// UpsertFact inserts a fact or, on (user_id, name, kind) conflict,
	// increments frequency, boosts strength (×1.1 capped at 1.0), refreshes
	// last_mentioned and appends any new aliases. Returns the resulting row.
	UpsertFact(ctx context.Context, userID, name string, kind types.EntityKind, opts FactUpsert) (*types.Fact, error)

	// QueryFacts returns facts for a user ordered by frequency descending,
	// then recency descending. An empty query returns the most relevant
	// facts; a non-empty query matches the name by case-insensitive
	// substring.
	QueryFacts(ctx context.Context, userID, query string, limit int) ([]*types.Fact, error)
}

// TaskFilter narrows task listing queries. Zero values mean "no filter".
type TaskFilter struct {
	Status   types.TaskStatus
	Priority types.TaskPriority
	Limit    int
	Offset   int
}

// TaskStore persists tasks with (user_id, title) dedup semantics.
type TaskStore interface {
	// UpsertTask inserts a task or, on (user_id, title) conflict, keeps the
	// greater of the existing and incoming confidence. Returns the id of the
	// canonical row (the existing one on conflict).
	UpsertTask(ctx context.Context, task *types.Task) (string, error)

	// GetTask returns a task by id, or ErrNotFound.
	GetTask(ctx context.Context, id string) (*types.Task, error)

	// CompleteTask sets status=completed and the completion timestamp.
	// Idempotent: completing an already-completed task is not an error.
	CompleteTask(ctx context.Context, id string) error

	// FetchUnscheduled returns up to limit pending tasks that have no parsed
	// due date yet, oldest first.
	FetchUnscheduled(ctx context.Context, limit int) ([]*types.Task, error)

	// MarkScheduled persists a parsed due date and confidence and moves the
	// task to status=scheduled.
	MarkScheduled(ctx context.Context, id string, due time.Time, confidence float64) error

	// ListTasks returns a user's tasks newest first, applying the filter's
	// status/priority constraints and limit/offset pagination.
	ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*types.Task, error)

	// CountTasks returns the total matching ListTasks without pagination.
	CountTasks(ctx context.Context, userID string, filter TaskFilter) (int, error)
}

// LogStore appends immutable audit records.
type LogStore interface {
	AppendReasoningLog(ctx context.Context, entry *types.ReasoningLog) error
	AppendNotification(ctx context.Context, attempt *types.NotificationAttempt) error
}

// SettingsReader reads the generic key-value config table. Used by the
// entity extractor at startup; load failure must not block extraction.
type SettingsReader interface {
	// GetSetting returns the value for key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)
}

// Store is the full storage surface consumed by the pipeline.
type Store interface {
	FactStore
	TaskStore
	LogStore
	SettingsReader

	// Close releases any resources held by the store.
	Close() error
}

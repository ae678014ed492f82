// Package tasks provides the task service: validated writes on top of the
// task store's dedup semantics.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

const (
	minTitleLen = 2
	maxTitleLen = 200
)

// CreateParams carries a validated task write.
type CreateParams struct {
	Title                string
	NaturalText          string
	Priority             types.TaskPriority
	Confidence           float64
	SourceReasoningLogID string
}

// Service validates and persists tasks.
type Service struct {
	store storage.TaskStore
}

// NewService wraps a TaskStore.
func NewService(store storage.TaskStore) *Service {
	return &Service{store: store}
}

// Create upserts a task for the user. Titles are trimmed and must be 2-200
// characters; duplicate (user, title) pairs collapse onto the existing row,
// keeping the higher confidence. Returns the canonical task id.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("tasks: %w: user id is required", storage.ErrInvalidInput)
	}
	title := strings.TrimSpace(p.Title)
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return "", fmt.Errorf("tasks: %w: title must be %d-%d characters", storage.ErrInvalidInput, minTitleLen, maxTitleLen)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return "", fmt.Errorf("tasks: %w: confidence out of range", storage.ErrInvalidInput)
	}
	priority := p.Priority
	if !types.ValidTaskPriority(priority) {
		priority = types.PriorityMedium
	}

	task := &types.Task{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Title:                title,
		NaturalText:          p.NaturalText,
		Priority:             priority,
		Status:               types.StatusPending,
		Confidence:           p.Confidence,
		SourceReasoningLogID: p.SourceReasoningLogID,
		CreatedAt:            time.Now().UTC(),
	}
	id, err := s.store.UpsertTask(ctx, task)
	if err != nil {
		return "", fmt.Errorf("tasks: create failed: %w", err)
	}
	return id, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, id string) (*types.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Complete marks a task completed. Safe to call more than once.
func (s *Service) Complete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("tasks: %w: task id is required", storage.ErrInvalidInput)
	}
	if err := s.store.CompleteTask(ctx, id); err != nil {
		return fmt.Errorf("tasks: complete failed: %w", err)
	}
	return nil
}

// List returns a page of the user's tasks plus the unpaginated total.
func (s *Service) List(ctx context.Context, userID string, filter storage.TaskFilter) ([]*types.Task, int, error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("tasks: %w: user id is required", storage.ErrInvalidInput)
	}
	items, err := s.store.ListTasks(ctx, userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("tasks: list failed: %w", err)
	}
	total, err := s.store.CountTasks(ctx, userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("tasks: count failed: %w", err)
	}
	return items, total, nil
}

package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

// testStore is an in-memory storage.Store for handler tests.
type testStore struct {
	mu      sync.Mutex
	facts   map[string]*types.Fact
	tasks   map[string]*types.Task
	order   []string
	logs    []*types.ReasoningLog
	failAll bool
}

func newTestStore() *testStore {
	return &testStore{
		facts: make(map[string]*types.Fact),
		tasks: make(map[string]*types.Task),
	}
}

func (s *testStore) UpsertFact(_ context.Context, userID, name string, kind types.EntityKind, _ storage.FactUpsert) (*types.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + name + "/" + string(kind)
	if f, ok := s.facts[key]; ok {
		f.Frequency++
		return f, nil
	}
	f := &types.Fact{UserID: userID, Name: name, Kind: kind, Frequency: 1, Strength: 0.5}
	s.facts[key] = f
	return f, nil
}

func (s *testStore) QueryFacts(_ context.Context, userID, _ string, _ int) ([]*types.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Fact
	for _, f := range s.facts {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *testStore) UpsertTask(_ context.Context, task *types.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return "", errDown()
	}
	for _, id := range s.order {
		existing := s.tasks[id]
		if existing.UserID == task.UserID && existing.Title == task.Title {
			if task.Confidence > existing.Confidence {
				existing.Confidence = task.Confidence
			}
			return existing.ID, nil
		}
	}
	cp := *task
	s.tasks[task.ID] = &cp
	s.order = append(s.order, task.ID)
	return task.ID, nil
}

func (s *testStore) GetTask(_ context.Context, id string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (s *testStore) CompleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = types.StatusCompleted
	return nil
}

func (s *testStore) FetchUnscheduled(context.Context, int) ([]*types.Task, error) {
	return nil, nil
}

func (s *testStore) MarkScheduled(context.Context, string, time.Time, float64) error {
	return nil
}

func (s *testStore) matching(userID string, filter storage.TaskFilter) []*types.Task {
	var out []*types.Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t.UserID != userID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *testStore) ListTasks(_ context.Context, userID string, filter storage.TaskFilter) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errDown()
	}
	out := s.matching(userID, filter)
	if filter.Offset > len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *testStore) CountTasks(_ context.Context, userID string, filter storage.TaskFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errDown()
	}
	return len(s.matching(userID, filter)), nil
}

func (s *testStore) AppendReasoningLog(_ context.Context, entry *types.ReasoningLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *testStore) AppendNotification(context.Context, *types.NotificationAttempt) error {
	return nil
}

func (s *testStore) GetSetting(context.Context, string) (string, error) {
	return "", storage.ErrNotFound
}

func (s *testStore) Close() error { return nil }

func errDown() error { return context.DeadlineExceeded }

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertFactInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fact, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{
		Contexts: []string{"had coffee with sarah"},
		Metadata: map[string]interface{}{"method": "pattern"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, fact.ID)
	assert.Equal(t, 1, fact.Frequency)
	assert.Equal(t, 0.5, fact.Strength)
	assert.Equal(t, []string{"had coffee with sarah"}, fact.Contexts)
	assert.Equal(t, "pattern", fact.Metadata["method"])
}

func TestUpsertFactConflictBoosts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{})
	require.NoError(t, err)

	second, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Frequency)
	assert.InDelta(t, 0.55, second.Strength, 1e-9)
	assert.True(t, second.LastMentioned.After(first.CreatedAt) || second.LastMentioned.Equal(first.CreatedAt))
}

func TestUpsertFactStrengthCapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var fact *types.Fact
	var err error
	for i := 0; i < 12; i++ {
		fact, err = store.UpsertFact(ctx, "u1", "biscuit", types.KindPet, storage.FactUpsert{})
		require.NoError(t, err)
	}
	assert.Equal(t, 12, fact.Frequency)
	assert.LessOrEqual(t, fact.Strength, 1.0)
}

func TestUpsertFactMergesAliases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{
		Aliases: []string{"Sarah"},
	})
	require.NoError(t, err)

	fact, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{
		Aliases: []string{"Sarah", "Sarah K"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Sarah", "Sarah K"}, fact.Aliases)
}

func TestUpsertFactSeparateKinds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// The same name under a different kind is a different fact.
	_, err := store.UpsertFact(ctx, "u1", "charlie", types.KindPerson, storage.FactUpsert{})
	require.NoError(t, err)
	fact, err := store.UpsertFact(ctx, "u1", "charlie", types.KindPet, storage.FactUpsert{})
	require.NoError(t, err)
	assert.Equal(t, 1, fact.Frequency)
}

func TestUpsertFactValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertFact(ctx, "", "x", types.KindPerson, storage.FactUpsert{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.UpsertFact(ctx, "u1", "x", "alien", storage.FactUpsert{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestQueryFactsOrderingAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.UpsertFact(ctx, "u1", "sarah", types.KindPerson, storage.FactUpsert{})
		require.NoError(t, err)
	}
	_, err := store.UpsertFact(ctx, "u1", "sam", types.KindPerson, storage.FactUpsert{})
	require.NoError(t, err)
	_, err = store.UpsertFact(ctx, "u2", "sarah", types.KindPerson, storage.FactUpsert{})
	require.NoError(t, err)

	facts, err := store.QueryFacts(ctx, "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "sarah", facts[0].Name) // highest frequency first

	// Case-insensitive substring match.
	facts, err = store.QueryFacts(ctx, "u1", "SAR", 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "sarah", facts[0].Name)
}

func newTask(userID, title string, confidence float64) *types.Task {
	return &types.Task{
		UserID:     userID,
		Title:      title,
		Priority:   types.PriorityMedium,
		Status:     types.StatusPending,
		Confidence: confidence,
	}
}

func TestUpsertTaskDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertTask(ctx, newTask("u1", "Call the vet", 0.6))
	require.NoError(t, err)
	id2, err := store.UpsertTask(ctx, newTask("u1", "Call the vet", 0.9))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	task, err := store.GetTask(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, task.Confidence)

	// Lower confidence does not downgrade.
	_, err = store.UpsertTask(ctx, newTask("u1", "Call the vet", 0.3))
	require.NoError(t, err)
	task, err = store.GetTask(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, task.Confidence)

	// Same title for another user is a separate task.
	id3, err := store.UpsertTask(ctx, newTask("u2", "Call the vet", 0.5))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestCompleteTaskIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertTask(ctx, newTask("u1", "Water plants", 0.7))
	require.NoError(t, err)

	require.NoError(t, store.CompleteTask(ctx, id))
	first, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	require.NoError(t, store.CompleteTask(ctx, id))
	second, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, second.Status)
	// The original completion timestamp is preserved.
	assert.True(t, second.CompletedAt.Equal(*first.CompletedAt))
}

func TestCompleteTaskNotFound(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.CompleteTask(context.Background(), "nope"), storage.ErrNotFound)
}

func TestFetchUnscheduledAndMarkScheduled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertTask(ctx, newTask("u1", "Dentist appointment", 0.8))
	require.NoError(t, err)

	batch, err := store.FetchUnscheduled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, id, batch[0].ID)

	due := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.MarkScheduled(ctx, id, due, 0.9))

	// Scheduled tasks drop out of the unscheduled set.
	batch, err = store.FetchUnscheduled(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	task, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusScheduled, task.Status)
	require.NotNil(t, task.ParsedDueDate)
	assert.True(t, task.ParsedDueDate.Equal(due))
	assert.Equal(t, 0.9, task.DueDateConfidence)
}

func TestListAndCountTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		task := newTask("u1", fmt.Sprintf("Task %d", i), 0.7)
		if i%2 == 0 {
			task.Priority = types.PriorityHigh
		}
		task.CreatedAt = time.Now().Add(time.Duration(i) * time.Second).UTC()
		_, err := store.UpsertTask(ctx, task)
		require.NoError(t, err)
	}

	all, err := store.ListTasks(ctx, "u1", storage.TaskFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	// Newest first.
	assert.Equal(t, "Task 4", all[0].Title)

	high, err := store.ListTasks(ctx, "u1", storage.TaskFilter{Priority: types.PriorityHigh, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, high, 3)

	total, err := store.CountTasks(ctx, "u1", storage.TaskFilter{Priority: types.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	page, err := store.ListTasks(ctx, "u1", storage.TaskFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestAppendLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.AppendReasoningLog(ctx, &types.ReasoningLog{
		UserID:      "u1",
		NoteExcerpt: "walked the dog",
		NoteHash:    "abc123",
		Model:       "gpt-4o-mini",
		LatencyMS:   42,
		TokenUsage:  &types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Answer:      "Nice walk!",
		Success:     true,
	})
	require.NoError(t, err)

	err = store.AppendNotification(ctx, &types.NotificationAttempt{
		TaskID:       "t1",
		UserID:       "u1",
		Channel:      "push",
		Success:      false,
		ErrorMessage: "gateway timeout",
	})
	require.NoError(t, err)
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "extractor_cache_size")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, "extractor_cache_size", "500"))
	v, err := store.GetSetting(ctx, "extractor_cache_size")
	require.NoError(t, err)
	assert.Equal(t, "500", v)

	require.NoError(t, store.SetSetting(ctx, "extractor_cache_size", "750"))
	v, err = store.GetSetting(ctx, "extractor_cache_size")
	require.NoError(t, err)
	assert.Equal(t, "750", v)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-notes/mira/internal/tasks"
	"github.com/mira-notes/mira/pkg/types"
)

func newTasksMux(store *testStore) *http.ServeMux {
	h := NewTasksHandlers(tasks.NewService(store))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/tasks", h.ListTasks)
	mux.HandleFunc("POST /api/v3/tasks", h.CreateTask)
	mux.HandleFunc("POST /api/v3/tasks/{id}/complete", h.CompleteTask)
	return mux
}

func seedTasks(t *testing.T, store *testStore, userID string, n int) []string {
	t.Helper()
	var ids []string
	base := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		task := &types.Task{
			ID:        fmt.Sprintf("%s-%02d", userID, i),
			UserID:    userID,
			Title:     fmt.Sprintf("Task number %02d", i),
			Priority:  types.PriorityMedium,
			Status:    types.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		id, err := store.UpsertTask(t.Context(), task)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestListTasksRequiresUser(t *testing.T) {
	mux := newTasksMux(newTestStore())

	req := httptest.NewRequest("GET", "/api/v3/tasks", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Oversized header is rejected too.
	req = httptest.NewRequest("GET", "/api/v3/tasks", nil)
	req.Header.Set(userIDHeader, strings.Repeat("u", 101))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksPagination(t *testing.T) {
	store := newTestStore()
	seedTasks(t, store, "u1", 25)
	mux := newTasksMux(store)

	req := httptest.NewRequest("GET", "/api/v3/tasks", nil)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 20) // default limit
	assert.Equal(t, 25, resp.Total)
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 20, *resp.NextOffset)

	// Second page exhausts the set; nextOffset becomes null.
	req = httptest.NewRequest("GET", "/api/v3/tasks?offset=20", nil)
	req.Header.Set(userIDHeader, "u1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 5)
	assert.Nil(t, resp.NextOffset)
}

func TestListTasksRejectsBadPagination(t *testing.T) {
	store := newTestStore()
	seedTasks(t, store, "u1", 5)
	mux := newTasksMux(store)

	for _, query := range []string{
		"limit=abc", "limit=0", "limit=-5", "limit=101", "limit=9999",
		"offset=-1", "offset=xyz",
	} {
		req := httptest.NewRequest("GET", "/api/v3/tasks?"+query, nil)
		req.Header.Set(userIDHeader, "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp), query)
		assert.NotEmpty(t, errResp.Error, query)
	}

	// The boundary values themselves are fine.
	req := httptest.NewRequest("GET", "/api/v3/tasks?limit=100&offset=0", nil)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 5)
}

func TestListTasksBadFilter(t *testing.T) {
	mux := newTasksMux(newTestStore())

	req := httptest.NewRequest("GET", "/api/v3/tasks?status=bogus", nil)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksStoreDown(t *testing.T) {
	store := newTestStore()
	store.failAll = true
	mux := newTasksMux(store)

	req := httptest.NewRequest("GET", "/api/v3/tasks", nil)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateTask(t *testing.T) {
	store := newTestStore()
	mux := newTasksMux(store)

	body := `{"title":"Call the vet","priority":"high","confidence":0.9}`
	req := httptest.NewRequest("POST", "/api/v3/tasks", strings.NewReader(body))
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	task, err := store.GetTask(t.Context(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Call the vet", task.Title)
	assert.Equal(t, types.PriorityHigh, task.Priority)
}

func TestCreateTaskValidation(t *testing.T) {
	mux := newTasksMux(newTestStore())

	body := `{"title":"x","confidence":0.9}`
	req := httptest.NewRequest("POST", "/api/v3/tasks", strings.NewReader(body))
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteTask(t *testing.T) {
	store := newTestStore()
	ids := seedTasks(t, store, "u1", 1)
	mux := newTasksMux(store)

	req := httptest.NewRequest("POST", "/api/v3/tasks/"+ids[0]+"/complete", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second completion is still a 204.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v3/tasks/"+ids[0]+"/complete", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	task, err := store.GetTask(t.Context(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
}

func TestCompleteTaskNotFound(t *testing.T) {
	mux := newTasksMux(newTestStore())

	req := httptest.NewRequest("POST", "/api/v3/tasks/nope/complete", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mira-notes/mira/internal/reasoning"
)

// QueueLenGetter exposes the scheduler's queue depth for stats.
type QueueLenGetter interface {
	QueueLen() int
}

// Breaker is the admin surface of the LLM circuit breaker.
type Breaker interface {
	TripForTest()
	Reset()
	State() string
}

// StatsHandlers serves engine counters and the breaker admin endpoint.
type StatsHandlers struct {
	engine  *reasoning.Engine
	queue   QueueLenGetter
	breaker Breaker
}

// NewStatsHandlers creates a new StatsHandlers instance. queue may be nil.
func NewStatsHandlers(engine *reasoning.Engine, queue QueueLenGetter, breaker Breaker) *StatsHandlers {
	return &StatsHandlers{engine: engine, queue: queue, breaker: breaker}
}

// GetStats handles GET /api/v3/stats.
func (h *StatsHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Reasoning: h.engine.Stats()}
	if h.queue != nil {
		resp.SchedulerQueue = h.queue.QueueLen()
	}
	respondJSON(w, http.StatusOK, resp)
}

// PostBreaker handles POST /api/v3/admin/breaker with {"action":"trip"} or
// {"action":"reset"}.
func (h *StatsHandlers) PostBreaker(w http.ResponseWriter, r *http.Request) {
	var req BreakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch req.Action {
	case "trip":
		h.breaker.TripForTest()
	case "reset":
		h.breaker.Reset()
	default:
		respondError(w, http.StatusBadRequest, "action must be trip or reset", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": h.breaker.State()})
}

// Package reasoning runs the note enhancement pipeline: validate, extract
// entities, remember and recall facts, call the model through its breaker,
// parse the answer, and persist the audit trail off the request path.
package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mira-notes/mira/internal/extractor"
	"github.com/mira-notes/mira/internal/llm"
	"github.com/mira-notes/mira/internal/memory"
	"github.com/mira-notes/mira/internal/sse"
	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/internal/tasks"
	"github.com/mira-notes/mira/pkg/types"
)

const (
	resultCacheSize = 2000
	resultCacheTTL  = 10 * time.Minute

	// taskPersistThreshold gates automatic task creation from completions.
	taskPersistThreshold = 0.6

	// recallLimit is how many known facts are folded into the prompt.
	recallLimit = 5

	// noteExcerptLen bounds the excerpt stored in reasoning logs.
	noteExcerptLen = 120

	// persistTimeout bounds each background persistence write.
	persistTimeout = 5 * time.Second

	degradedAnswer = "I'm temporarily unavailable – please try again soon."
)

// Options tunes a single enhancement call. Bio is optional profile text
// folded into the prompt.
type Options struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Bio         string  `json:"bio,omitempty"`
}

// Result is the outcome of one enhancement. Confidence is 1 for a live
// model answer and 0 when the answer is the degraded placeholder.
type Result struct {
	Answer     string                  `json:"answer"`
	Entities   []types.ExtractedEntity `json:"entities"`
	Task       *llm.TaskCandidate      `json:"task,omitempty"`
	Model      string                  `json:"model"`
	Confidence float64                 `json:"confidence"`
	Degraded   bool                    `json:"degraded"`
	Cached     bool                    `json:"cached"`
	Latency    int64                   `json:"latency_ms"`
}

// Publisher receives pipeline progress events for a note. Implementations
// must not block.
type Publisher interface {
	Publish(noteID string, ev sse.Event)
}

// nopPublisher drops all events.
type nopPublisher struct{}

func (nopPublisher) Publish(string, sse.Event) {}

// Stats is a snapshot of engine counters.
type Stats struct {
	Requests     uint64 `json:"requests"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
	Degraded     uint64 `json:"degraded"`
	Errors       uint64 `json:"errors"`
	AvgLatencyMS int64  `json:"avg_latency_ms"`
	CacheSize    int    `json:"cache_size"`
	BreakerState string `json:"breaker_state"`
}

// Engine orchestrates the enhancement pipeline. Safe for concurrent use.
type Engine struct {
	extractor *extractor.Extractor
	memory    *memory.Service
	generator *llm.BreakerGenerator
	tasks     *tasks.Service
	logs      storage.LogStore
	events    Publisher

	cache *expirable.LRU[string, Result]

	requests    atomic.Uint64
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	degraded    atomic.Uint64
	failures    atomic.Uint64
	completions atomic.Uint64
	latencySum  atomic.Int64

	wg sync.WaitGroup
}

// NewEngine wires the pipeline. events may be nil.
func NewEngine(ex *extractor.Extractor, mem *memory.Service, gen *llm.BreakerGenerator, taskSvc *tasks.Service, logs storage.LogStore, events Publisher) *Engine {
	if events == nil {
		events = nopPublisher{}
	}
	return &Engine{
		extractor: ex,
		memory:    mem,
		generator: gen,
		tasks:     taskSvc,
		logs:      logs,
		events:    events,
		cache:     expirable.NewLRU[string, Result](resultCacheSize, nil, resultCacheTTL),
	}
}

// Enhance runs the full pipeline for one note. noteID keys progress events
// and may be empty. Validation failures return llm.ErrValidation; a tripped
// breaker yields a degraded result instead of an error.
func (e *Engine) Enhance(ctx context.Context, userID, noteID, note string, opts Options) (*Result, error) {
	e.requests.Add(1)

	if err := llm.ValidateInput(userID, note); err != nil {
		return nil, err
	}
	clean := llm.Sanitize(note)
	if clean == "" {
		return nil, fmt.Errorf("%w: note is empty after sanitization", llm.ErrValidation)
	}

	key := cacheKey(userID, clean, opts)
	if cached, ok := e.cache.Get(key); ok {
		e.cacheHits.Add(1)
		cached.Cached = true
		e.events.Publish(noteID, sse.Event{Type: sse.EventComplete, Stage: "done", Data: map[string]bool{"cached": true}})
		return &cached, nil
	}
	e.cacheMisses.Add(1)

	e.events.Publish(noteID, sse.Event{Type: sse.EventProgress, Stage: "processing"})

	entities := e.extractor.Extract(clean)
	e.events.Publish(noteID, sse.Event{Type: sse.EventProgress, Stage: "entities", Data: map[string]int{"count": len(entities)}})

	if _, err := e.memory.Remember(ctx, userID, entities, clean); err != nil {
		log.Printf("WARNING: [reasoning] fact persistence incomplete: %v", err)
	}
	facts, err := e.memory.Recall(ctx, userID, "", recallLimit)
	if err != nil {
		log.Printf("WARNING: [reasoning] recall failed, continuing without context: %v", err)
		facts = nil
	}

	req := llm.BuildRequest(clean, facts, opts.Bio)
	req.MaxTokens = opts.MaxTokens
	req.Temperature = opts.Temperature

	e.events.Publish(noteID, sse.Event{Type: sse.EventProgress, Stage: "generating"})
	resp, err := e.generator.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrCircuitOpen) {
			e.degraded.Add(1)
			e.events.Publish(noteID, sse.Event{Type: sse.EventComplete, Stage: "degraded", Message: "model unavailable"})
			result := Result{
				Answer:     degradedAnswer,
				Entities:   entities,
				Confidence: 0,
				Degraded:   true,
			}
			e.persistAsync(userID, clean, "", nil, "circuit open")
			return &result, nil
		}
		e.failures.Add(1)
		e.events.Publish(noteID, sse.Event{Type: sse.EventError, Stage: "generating", Message: err.Error()})
		e.persistAsync(userID, clean, "", nil, err.Error())
		return nil, fmt.Errorf("reasoning: generation failed: %w", err)
	}
	e.completions.Add(1)
	e.latencySum.Add(resp.LatencyMS)

	result := Result{
		Answer:     llm.CleanAnswer(resp.Text),
		Entities:   entities,
		Model:      resp.Model,
		Confidence: 1,
		Latency:    resp.LatencyMS,
	}
	if cand, ok := llm.ExtractTask(resp.Text); ok {
		result.Task = cand
	}

	e.persistAsync(userID, clean, resp.Model, &persistedResponse{
		answer:  result.Answer,
		task:    result.Task,
		usage:   resp.Usage,
		latency: resp.LatencyMS,
	}, "")

	e.cache.Add(key, result)
	e.events.Publish(noteID, sse.Event{Type: sse.EventComplete, Stage: "done", Data: map[string]bool{"cached": false}})
	return &result, nil
}

type persistedResponse struct {
	answer  string
	task    *llm.TaskCandidate
	usage   types.TokenUsage
	latency int64
}

// persistAsync writes the reasoning log and, when the task candidate clears
// the confidence threshold, the task row. Runs off the request path; errors
// are logged, never surfaced.
func (e *Engine) persistAsync(userID, note, model string, resp *persistedResponse, errMsg string) {
	logID := uuid.New().String()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		entry := &types.ReasoningLog{
			ID:           logID,
			UserID:       userID,
			NoteExcerpt:  excerpt(note),
			NoteHash:     hash16(note),
			Model:        model,
			Success:      errMsg == "",
			ErrorMessage: errMsg,
			CreatedAt:    time.Now().UTC(),
		}
		if resp != nil {
			entry.Answer = resp.answer
			entry.LatencyMS = resp.latency
			entry.TokenUsage = &resp.usage
			if resp.task != nil {
				if raw, err := json.Marshal(resp.task); err == nil {
					entry.TaskJSON = string(raw)
				}
			}
		}
		if err := e.logs.AppendReasoningLog(ctx, entry); err != nil {
			log.Printf("ERROR: [reasoning] log append failed: %v", err)
		}

		if resp == nil || resp.task == nil || resp.task.Confidence < taskPersistThreshold {
			return
		}
		_, err := e.tasks.Create(ctx, userID, tasks.CreateParams{
			Title:                resp.task.Title,
			NaturalText:          resp.task.NaturalText,
			Priority:             resp.task.Priority,
			Confidence:           resp.task.Confidence,
			SourceReasoningLogID: logID,
		})
		if err != nil {
			log.Printf("ERROR: [reasoning] task persist failed: %v", err)
		}
	}()
}

// Drain blocks until all background persistence has finished. Called on
// shutdown and by tests.
func (e *Engine) Drain() {
	e.wg.Wait()
}

// Stats returns a snapshot of the engine counters. Average latency covers
// successful model calls only; cache hits and degraded answers are free.
func (e *Engine) Stats() Stats {
	var avg int64
	if n := e.completions.Load(); n > 0 {
		avg = e.latencySum.Load() / int64(n)
	}
	return Stats{
		Requests:     e.requests.Load(),
		CacheHits:    e.cacheHits.Load(),
		CacheMisses:  e.cacheMisses.Load(),
		Degraded:     e.degraded.Load(),
		Errors:       e.failures.Load(),
		AvgLatencyMS: avg,
		CacheSize:    e.cache.Len(),
		BreakerState: e.generator.State(),
	}
}

// cacheKey is user scoped and content addressed: the note and options are
// hashed so unrelated users can never share a cached answer.
func cacheKey(userID, note string, opts Options) string {
	optsJSON, _ := json.Marshal(opts)
	return userID + ":" + hash16(note) + ":" + hash16(string(optsJSON))
}

// hash16 returns the first 16 hex chars of the SHA-256 of s.
func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func excerpt(note string) string {
	note = strings.TrimSpace(note)
	if len(note) > noteExcerptLen {
		return note[:noteExcerptLen]
	}
	return note
}

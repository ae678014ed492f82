package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mira-notes/mira/internal/config"
	"github.com/mira-notes/mira/pkg/types"
)

// MockGenerator serves deterministic completions for local development when
// no API key is configured. If the prompt looks actionable it emits a task
// candidate line the same way the real model is instructed to.
type MockGenerator struct{}

// actionCues are phrases that make the mock emit a task candidate.
var actionCues = []string{"need to", "have to", "remind", "todo", "don't forget", "must "}

// Generate returns a canned answer without any network call.
func (MockGenerator) Generate(_ context.Context, req Request) (*Response, error) {
	start := time.Now()
	answer := "Noted. I've captured the key points from your entry."

	lower := strings.ToLower(req.Prompt)
	for _, cue := range actionCues {
		if strings.Contains(lower, cue) {
			answer += fmt.Sprintf("\nTASK_JSON: %s",
				`{"title":"Follow up on your note","priority":"medium","confidence":0.7}`)
			break
		}
	}

	return &Response{
		Text:      answer,
		Model:     "mock",
		LatencyMS: time.Since(start).Milliseconds(),
		Usage:     types.TokenUsage{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(answer) / 4, TotalTokens: (len(req.Prompt) + len(answer)) / 4},
	}, nil
}

// NewFromConfig returns the OpenAI client when an API key is configured and
// the mock generator otherwise, wrapped in a circuit breaker either way.
func NewFromConfig(cfg config.LLMConfig) *BreakerGenerator {
	var inner Generator
	if cfg.APIKey == "" {
		inner = MockGenerator{}
	} else {
		inner = NewOpenAIClient(cfg)
	}
	return NewBreakerGenerator(inner)
}

var _ Generator = MockGenerator{}

// Package llm provides the completion client used by the reasoning engine:
// an OpenAI-compatible HTTP generator, a circuit breaker wrapper, and the
// prompt builder with its task-candidate parsing.
package llm

import (
	"context"
	"errors"

	"github.com/mira-notes/mira/pkg/types"
)

// Sentinel errors surfaced to callers.
var (
	// ErrCircuitOpen is returned while the breaker refuses calls.
	ErrCircuitOpen = errors.New("llm: circuit open")

	// ErrValidation marks rejected input (bad user id, empty or oversized note).
	ErrValidation = errors.New("llm: invalid input")
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the completion text and accounting data.
type Response struct {
	Text      string
	Model     string
	Usage     types.TokenUsage
	LatencyMS int64
}

// Generator produces completions. Implementations must honor context
// cancellation and deadlines.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

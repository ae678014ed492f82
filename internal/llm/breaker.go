package llm

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
)

// BreakerConfig tunes the circuit breaker. Zero values take the defaults:
// 5 consecutive failures, 60s cooldown.
type BreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// BreakerGenerator wraps a Generator with a circuit breaker: consecutive
// failures past the threshold open the circuit, calls fail fast with
// ErrCircuitOpen for the cooldown window, then a single probe call decides
// whether the circuit closes again.
type BreakerGenerator struct {
	inner      Generator
	config     BreakerConfig
	cb         atomic.Pointer[gobreaker.CircuitBreaker]
	forcedOpen atomic.Bool
}

// NewBreakerGenerator wraps inner with the default breaker settings.
func NewBreakerGenerator(inner Generator) *BreakerGenerator {
	return NewBreakerGeneratorWithConfig(inner, BreakerConfig{})
}

// NewBreakerGeneratorWithConfig wraps inner with tuned breaker settings.
func NewBreakerGeneratorWithConfig(inner Generator, cfg BreakerConfig) *BreakerGenerator {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	b := &BreakerGenerator{inner: inner, config: cfg}
	b.cb.Store(gobreaker.NewCircuitBreaker(b.settings()))
	return b
}

func (b *BreakerGenerator) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     b.config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[llm] breaker %s: %s -> %s", name, from, to)
		},
	}
}

// Generate forwards to the wrapped generator unless the circuit is open.
func (b *BreakerGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if b.forcedOpen.Load() {
		return nil, ErrCircuitOpen
	}
	result, err := b.cb.Load().Execute(func() (interface{}, error) {
		return b.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(*Response), nil
}

// State returns the breaker state as a string (closed, half-open, open).
func (b *BreakerGenerator) State() string {
	if b.forcedOpen.Load() {
		return gobreaker.StateOpen.String()
	}
	return b.cb.Load().State().String()
}

// TripForTest forces the circuit open until Reset is called. Used by the
// admin stats endpoint and tests to exercise degraded responses.
func (b *BreakerGenerator) TripForTest() {
	b.forcedOpen.Store(true)
}

// Reset clears a forced trip and discards accumulated failure counts.
func (b *BreakerGenerator) Reset() {
	b.forcedOpen.Store(false)
	b.cb.Store(gobreaker.NewCircuitBreaker(b.settings()))
}

var _ Generator = (*BreakerGenerator)(nil)

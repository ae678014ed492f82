package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator fails until the failure budget is used up.
type scriptedGenerator struct {
	failuresLeft int
	calls        int
}

func (s *scriptedGenerator) Generate(_ context.Context, _ Request) (*Response, error) {
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, errors.New("upstream down")
	}
	return &Response{Text: "ok", Model: "test"}, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreakerGenerator(&scriptedGenerator{})
	resp, err := b.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerOpensAfterFiveFailures(t *testing.T) {
	inner := &scriptedGenerator{failuresLeft: 100}
	b := NewBreakerGenerator(inner)

	for i := 0; i < 5; i++ {
		_, err := b.Generate(context.Background(), Request{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	// Calls now fail fast without reaching the generator.
	_, err := b.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerStaysClosedOnIntermittentFailures(t *testing.T) {
	inner := &scriptedGenerator{failuresLeft: 4}
	b := NewBreakerGenerator(inner)

	for i := 0; i < 4; i++ {
		_, err := b.Generate(context.Background(), Request{})
		require.Error(t, err)
	}
	// A success resets the consecutive-failure count.
	_, err := b.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerTripAndReset(t *testing.T) {
	inner := &scriptedGenerator{}
	b := NewBreakerGenerator(inner)

	b.TripForTest()
	assert.Equal(t, "open", b.State())
	_, err := b.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, inner.calls)

	b.Reset()
	assert.Equal(t, "closed", b.State())
	_, err = b.Generate(context.Background(), Request{})
	assert.NoError(t, err)
}

// funcGenerator adapts a function to the Generator interface.
type funcGenerator func(ctx context.Context, req Request) (*Response, error)

func (f funcGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func openBreaker(t *testing.T, b *BreakerGenerator) {
	t.Helper()
	for i := 0; i < 5; i++ {
		_, err := b.Generate(context.Background(), Request{})
		require.Error(t, err)
	}
	require.Equal(t, "open", b.State())
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	inner := &scriptedGenerator{failuresLeft: 5}
	b := NewBreakerGeneratorWithConfig(inner, BreakerConfig{Cooldown: 50 * time.Millisecond})
	openBreaker(t, b)

	_, err := b.Generate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrCircuitOpen)

	// After the cooldown one probe is allowed through; its success closes
	// the circuit again.
	time.Sleep(80 * time.Millisecond)
	resp, err := b.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "closed", b.State())

	_, err = b.Generate(context.Background(), Request{})
	assert.NoError(t, err)
	assert.Equal(t, 7, inner.calls)
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	inner := &scriptedGenerator{failuresLeft: 100}
	b := NewBreakerGeneratorWithConfig(inner, BreakerConfig{Cooldown: 50 * time.Millisecond})
	openBreaker(t, b)

	time.Sleep(80 * time.Millisecond)
	_, err := b.Generate(context.Background(), Request{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen) // the probe reached the generator

	// The failed probe restarts the cooldown; calls fail fast again.
	_, err = b.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 6, inner.calls)
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	var (
		mu          sync.Mutex
		failing     = true
		probeReady  = make(chan struct{})
		releaseProb = make(chan struct{})
	)
	gen := funcGenerator(func(context.Context, Request) (*Response, error) {
		mu.Lock()
		f := failing
		mu.Unlock()
		if f {
			return nil, errors.New("upstream down")
		}
		close(probeReady)
		<-releaseProb
		return &Response{Text: "ok"}, nil
	})

	b := NewBreakerGeneratorWithConfig(gen, BreakerConfig{Cooldown: 40 * time.Millisecond})
	openBreaker(t, b)

	mu.Lock()
	failing = false
	mu.Unlock()
	time.Sleep(60 * time.Millisecond)

	probeErr := make(chan error, 1)
	go func() {
		_, err := b.Generate(context.Background(), Request{})
		probeErr <- err
	}()
	<-probeReady

	// While the probe is in flight only that one call is admitted.
	_, err := b.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(releaseProb)
	require.NoError(t, <-probeErr)
	assert.Equal(t, "closed", b.State())
}

func TestMockGeneratorEmitsTaskLine(t *testing.T) {
	resp, err := MockGenerator{}.Generate(context.Background(), Request{Prompt: "I need to buy milk"})
	require.NoError(t, err)
	_, ok := ExtractTask(resp.Text)
	assert.True(t, ok)

	resp, err = MockGenerator{}.Generate(context.Background(), Request{Prompt: "lovely weather"})
	require.NoError(t, err)
	_, ok = ExtractTask(resp.Text)
	assert.False(t, ok)
}

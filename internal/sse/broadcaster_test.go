package sse

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.subscribe("n1")
	defer b.unsubscribe("n1", ch)

	b.Publish("n1", Event{Type: EventProgress, Stage: "processing"})

	select {
	case data := <-ch:
		assert.Contains(t, string(data), `"type":"progress"`)
		assert.Contains(t, string(data), `"stage":"processing"`)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster()
	// Must not panic or accumulate state.
	b.Publish("n1", Event{Type: EventComplete, Stage: "done"})
	b.Publish("", Event{Type: EventComplete, Stage: "done"})
	assert.Zero(t, b.SubscriberCount("n1"))
}

func TestPublishIsScopedToNote(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.subscribe("n1")
	ch2 := b.subscribe("n2")
	defer b.unsubscribe("n1", ch1)
	defer b.unsubscribe("n2", ch2)

	b.Publish("n1", Event{Type: EventComplete, Stage: "done"})

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("n1 subscriber missed its event")
	}
	select {
	case <-ch2:
		t.Fatal("n2 subscriber received n1's event")
	default:
	}
}

func TestSlowSubscriberPruned(t *testing.T) {
	b := NewBroadcaster()
	b.subscribe("n1")
	require.Equal(t, 1, b.SubscriberCount("n1"))

	// Overflow the buffer; the subscriber never reads.
	for i := 0; i < subscriberBuffer+1; i++ {
		b.Publish("n1", Event{Type: EventProgress, Stage: "entities", Data: i})
	}
	assert.Zero(t, b.SubscriberCount("n1"))
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.subscribe("n1")
	b.unsubscribe("n1", ch)
	b.unsubscribe("n1", ch)
	assert.Zero(t, b.SubscriberCount("n1"))
}

func TestServeStreamsEvents(t *testing.T) {
	b := NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v3/notes/n1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.Serve(rec, req, "n1")
		close(done)
	}()

	// Wait for the subscription to land, then publish and disconnect.
	require.Eventually(t, func() bool { return b.SubscriberCount("n1") == 1 }, time.Second, 5*time.Millisecond)
	b.Publish("n1", Event{Type: EventComplete, Stage: "done", Data: map[string]bool{"cached": false}})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, `"type":"complete"`)
	assert.Contains(t, body, `"stage":"done"`)
	assert.Zero(t, b.SubscriberCount("n1"))
}

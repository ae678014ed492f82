// Package sse streams pipeline progress to clients over Server-Sent Events.
// Subscriptions are keyed by note id; each enhancement publishes its stage
// transitions and subscribers watching that note receive them live.
package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	heartbeatInterval = 20 * time.Second

	// subscriberBuffer is the per-connection event backlog. A subscriber
	// that falls this far behind is considered dead and pruned.
	subscriberBuffer = 16
)

// Frame types. Heartbeats are emitted by the broadcaster itself.
const (
	EventProgress  = "progress"
	EventComplete  = "complete"
	EventError     = "error"
	eventHeartbeat = "heartbeat"
)

// Event is one progress frame pushed to the subscribers of a note.
type Event struct {
	Type    string
	Stage   string
	Message string
	Data    interface{}
}

// envelope is the JSON written on each data line.
type envelope struct {
	Type      string      `json:"type"`
	Stage     string      `json:"stage,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Broadcaster fans events out to per-note subscriber sets. Safe for
// concurrent use.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish sends an event to every subscriber of the note. Never blocks:
// subscribers that cannot keep up are dropped. An empty note id is a no-op.
func (b *Broadcaster) Publish(noteID string, ev Event) {
	if noteID == "" {
		return
	}
	data, err := json.Marshal(envelope{
		Type:      ev.Type,
		Stage:     ev.Stage,
		Message:   ev.Message,
		Timestamp: time.Now().UnixMilli(),
		Data:      ev.Data,
	})
	if err != nil {
		log.Printf("WARNING: [sse] marshal %s/%s event failed: %v", ev.Type, ev.Stage, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[noteID]
	if !ok {
		return
	}
	for ch := range set {
		select {
		case ch <- data:
		default:
			delete(set, ch)
			close(ch)
		}
	}
	if len(set) == 0 {
		delete(b.subs, noteID)
	}
}

// SubscriberCount reports the live subscribers for a note.
func (b *Broadcaster) SubscriberCount(noteID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[noteID])
}

func (b *Broadcaster) subscribe(noteID string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	set, ok := b.subs[noteID]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.subs[noteID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(noteID string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[noteID]
	if !ok {
		return
	}
	if _, live := set[ch]; live {
		delete(set, ch)
		close(ch)
	}
	if len(set) == 0 {
		delete(b.subs, noteID)
	}
}

// Serve streams the note's events to one HTTP client until it disconnects.
// A heartbeat frame is written every 20 seconds to keep intermediaries from
// closing the idle connection.
func (b *Broadcaster) Serve(w http.ResponseWriter, r *http.Request, noteID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.subscribe(noteID)
	defer b.unsubscribe(noteID, ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			frame, err := json.Marshal(envelope{Type: eventHeartbeat, Timestamp: time.Now().UnixMilli()})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

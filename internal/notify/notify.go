// Package notify delivers task reminders. Push is the primary channel; SMS
// is the fallback. Every attempt, successful or not, is appended to the
// notification log, and delivery never propagates an error to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mira-notes/mira/internal/config"
	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

const deliverTimeout = 10 * time.Second

// errNotConfigured marks a channel without a gateway URL.
var errNotConfigured = errors.New("notify: channel not configured")

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, task *types.Task) error
}

// payload is the JSON body posted to gateways.
type payload struct {
	TaskID string     `json:"task_id"`
	UserID string     `json:"user_id"`
	Title  string     `json:"title"`
	Due    *time.Time `json:"due,omitempty"`
}

// httpChannel posts reminder payloads to a gateway endpoint.
type httpChannel struct {
	name   string
	url    string
	client *http.Client
}

func newHTTPChannel(name, url string) *httpChannel {
	return &httpChannel{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: deliverTimeout},
	}
}

func (c *httpChannel) Name() string { return c.name }

func (c *httpChannel) Send(ctx context.Context, task *types.Task) error {
	if c.url == "" {
		return errNotConfigured
	}
	body, err := json.Marshal(payload{
		TaskID: task.ID,
		UserID: task.UserID,
		Title:  task.Title,
		Due:    task.ParsedDueDate,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %s gateway unreachable: %w", c.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s gateway returned %d", c.name, resp.StatusCode)
	}
	return nil
}

// Notifier fans a reminder across channels in fallback order.
type Notifier struct {
	channels []Channel
	logs     storage.LogStore
}

// NewNotifier builds the production notifier from config: push first, SMS
// fallback.
func NewNotifier(cfg config.NotifyConfig, logs storage.LogStore) *Notifier {
	return &Notifier{
		channels: []Channel{
			newHTTPChannel("push", cfg.PushGatewayURL),
			newHTTPChannel("sms", cfg.SMSGatewayURL),
		},
		logs: logs,
	}
}

// NewNotifierWithChannels builds a notifier over explicit channels, in
// fallback order. Used by tests.
func NewNotifierWithChannels(logs storage.LogStore, channels ...Channel) *Notifier {
	return &Notifier{channels: channels, logs: logs}
}

// Deliver tries each channel in order until one succeeds. Every attempt is
// logged. Failures are swallowed: a reminder that cannot be delivered must
// never break the scheduler loop.
func (n *Notifier) Deliver(ctx context.Context, task *types.Task) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	for _, ch := range n.channels {
		err := ch.Send(ctx, task)
		n.logAttempt(ctx, task, ch.Name(), err)
		if err == nil {
			log.Printf("[notify] delivered task %s via %s", task.ID, ch.Name())
			return
		}
		log.Printf("WARNING: [notify] %s delivery failed for task %s: %v", ch.Name(), task.ID, err)
	}
	log.Printf("ERROR: [notify] all channels failed for task %s", task.ID)
}

func (n *Notifier) logAttempt(ctx context.Context, task *types.Task, channel string, sendErr error) {
	body, _ := json.Marshal(payload{TaskID: task.ID, UserID: task.UserID, Title: task.Title, Due: task.ParsedDueDate})
	attempt := &types.NotificationAttempt{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		UserID:    task.UserID,
		Channel:   channel,
		Payload:   string(body),
		Success:   sendErr == nil,
		CreatedAt: time.Now().UTC(),
	}
	if sendErr != nil {
		attempt.ErrorMessage = sendErr.Error()
	}
	if err := n.logs.AppendNotification(ctx, attempt); err != nil {
		log.Printf("ERROR: [notify] attempt log failed: %v", err)
	}
}

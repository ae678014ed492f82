package types

import "time"

// TokenUsage reports token counts for one LLM invocation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ReasoningLog is the immutable audit record of one LLM invocation and its
// outcome. Created once per non-cached reasoning call; referenced by id from
// any Task it spawns.
type ReasoningLog struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	NoteExcerpt  string      `json:"note_excerpt"`
	NoteHash     string      `json:"note_hash"`
	Model        string      `json:"model"`
	LatencyMS    int64       `json:"latency_ms"`
	TokenUsage   *TokenUsage `json:"token_usage,omitempty"`
	Answer       string      `json:"answer"`
	TaskJSON     string      `json:"task_json,omitempty"`
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NotificationAttempt is one row of the append-only delivery log. Every
// channel attempt is recorded, success or failure, primary or fallback.
type NotificationAttempt struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	UserID       string    `json:"user_id"`
	Channel      string    `json:"channel"`
	Payload      string    `json:"payload"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

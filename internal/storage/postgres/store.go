// Package postgres implements the storage interfaces on PostgreSQL via
// lib/pq. It is the backend used in hosted deployments where multiple
// processes share one database; conflict resolution lives entirely in the
// ON CONFLICT clauses so concurrent writers never race in application code.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool and applies the schema.
func New(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection pool.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertFact inserts or updates a fact keyed on (user_id, name, kind). The
// conflict path increments frequency, boosts strength with a 1.0 ceiling,
// and appends incoming aliases with the JSONB || operator.
func (s *Store) UpsertFact(ctx context.Context, userID, name string, kind types.EntityKind, opts storage.FactUpsert) (*types.Fact, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user id and name are required", storage.ErrInvalidInput)
	}
	if !types.ValidEntityKind(kind) {
		return nil, fmt.Errorf("%w: unknown entity kind %q", storage.ErrInvalidInput, kind)
	}

	aliasesJSON, err := json.Marshal(emptyIfNil(opts.Aliases))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aliases: %w", err)
	}
	contextsJSON, err := json.Marshal(emptyIfNil(opts.Contexts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contexts: %w", err)
	}
	metadata := opts.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO facts (id, user_id, name, kind, aliases, contexts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, name, kind) DO UPDATE SET
			frequency = facts.frequency + 1,
			strength = LEAST(facts.strength * $8, 1.0),
			last_mentioned = NOW(),
			aliases = facts.aliases || EXCLUDED.aliases
		RETURNING id, user_id, name, kind, aliases, contexts, metadata,
			frequency, strength, last_mentioned, created_at
	`, uuid.New().String(), userID, name, string(kind),
		string(aliasesJSON), string(contextsJSON), string(metadataJSON),
		types.StrengthBoost)

	return scanFact(row)
}

// QueryFacts returns facts ordered by frequency desc, then recency desc.
func (s *Store) QueryFacts(ctx context.Context, userID, query string, limit int) ([]*types.Fact, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind, aliases, contexts, metadata,
			frequency, strength, last_mentioned, created_at
		FROM facts
		WHERE user_id = $1
			AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY frequency DESC, last_mentioned DESC
		LIMIT $3
	`, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var facts []*types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(sc scanner) (*types.Fact, error) {
	var fact types.Fact
	var kind string
	var aliasesJSON, contextsJSON, metadataJSON []byte

	err := sc.Scan(&fact.ID, &fact.UserID, &fact.Name, &kind,
		&aliasesJSON, &contextsJSON, &metadataJSON,
		&fact.Frequency, &fact.Strength, &fact.LastMentioned, &fact.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}
	fact.Kind = types.EntityKind(kind)

	if len(aliasesJSON) > 0 {
		if err := json.Unmarshal(aliasesJSON, &fact.Aliases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
		}
	}
	if len(contextsJSON) > 0 {
		if err := json.Unmarshal(contextsJSON, &fact.Contexts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contexts: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &fact.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &fact, nil
}

// UpsertTask inserts a task or merges with an existing (user_id, title) row,
// keeping the greater confidence. Returns the canonical row id.
func (s *Store) UpsertTask(ctx context.Context, task *types.Task) (string, error) {
	if task == nil {
		return "", storage.ErrInvalidInput
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = types.StatusPending
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, user_id, title, natural_text, priority, status,
			parsed_due_date, due_date_confidence, confidence, source_reasoning_log_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, title) DO UPDATE SET
			confidence = GREATEST(tasks.confidence, EXCLUDED.confidence)
		RETURNING id
	`, task.ID, task.UserID, task.Title, nullStr(task.NaturalText),
		string(task.Priority), string(task.Status),
		nullableTime(task.ParsedDueDate), task.DueDateConfidence, task.Confidence,
		nullStr(task.SourceReasoningLogID)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert task: %w", err)
	}
	return id, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: task id is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = $1`, id)
	return scanTask(row)
}

// CompleteTask marks a task completed, preserving the first completion time.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: task id is required", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, completed_at = COALESCE(completed_at, NOW())
		WHERE id = $2
	`, string(types.StatusCompleted), id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FetchUnscheduled returns pending tasks with no parsed due date, oldest first.
func (s *Store) FetchUnscheduled(ctx context.Context, limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, taskSelect+`
		WHERE status = $1 AND parsed_due_date IS NULL
		ORDER BY created_at
		LIMIT $2
	`, string(types.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unscheduled tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MarkScheduled persists the parsed due date and moves the task to scheduled.
func (s *Store) MarkScheduled(ctx context.Context, id string, due time.Time, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET parsed_due_date = $1, due_date_confidence = $2, status = $3
		WHERE id = $4
	`, due.UTC(), confidence, string(types.StatusScheduled), id)
	if err != nil {
		return fmt.Errorf("failed to mark task scheduled: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTasks returns a user's tasks newest first with optional filters.
func (s *Store) ListTasks(ctx context.Context, userID string, filter storage.TaskFilter) ([]*types.Task, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	where, args := taskFilterClause(userID, filter)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"%s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		taskSelect, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the filter.
func (s *Store) CountTasks(ctx context.Context, userID string, filter storage.TaskFilter) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	where, args := taskFilterClause(userID, filter)

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return total, nil
}

const taskSelect = `
	SELECT id, user_id, title, natural_text, priority, status,
		parsed_due_date, due_date_confidence, confidence,
		source_reasoning_log_id, created_at, completed_at
	FROM tasks`

func taskFilterClause(userID string, filter storage.TaskFilter) (string, []interface{}) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectTasks(rows *sql.Rows) ([]*types.Task, error) {
	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(sc scanner) (*types.Task, error) {
	var task types.Task
	var naturalText, sourceLogID sql.NullString
	var priority, status string
	var dueDate, completedAt sql.NullTime

	err := sc.Scan(&task.ID, &task.UserID, &task.Title, &naturalText,
		&priority, &status, &dueDate, &task.DueDateConfidence, &task.Confidence,
		&sourceLogID, &task.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Priority = types.TaskPriority(priority)
	task.Status = types.TaskStatus(status)
	task.NaturalText = naturalText.String
	task.SourceReasoningLogID = sourceLogID.String
	if dueDate.Valid {
		task.ParsedDueDate = &dueDate.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

// AppendReasoningLog inserts one immutable reasoning audit record.
func (s *Store) AppendReasoningLog(ctx context.Context, entry *types.ReasoningLog) error {
	if entry == nil {
		return storage.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var usageJSON []byte
	if entry.TokenUsage != nil {
		var err error
		usageJSON, err = json.Marshal(entry.TokenUsage)
		if err != nil {
			return fmt.Errorf("failed to marshal token usage: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reasoning_logs (id, user_id, note_excerpt, note_hash, model,
			latency_ms, token_usage, answer, task_json, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.UserID, entry.NoteExcerpt, entry.NoteHash, entry.Model,
		entry.LatencyMS, nullStr(string(usageJSON)), entry.Answer,
		nullStr(entry.TaskJSON), entry.Success, nullStr(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to append reasoning log: %w", err)
	}
	return nil
}

// AppendNotification inserts one delivery attempt record.
func (s *Store) AppendNotification(ctx context.Context, attempt *types.NotificationAttempt) error {
	if attempt == nil {
		return storage.ErrInvalidInput
	}
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, task_id, user_id, channel, payload,
			success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attempt.ID, attempt.TaskID, attempt.UserID, attempt.Channel,
		nullStr(attempt.Payload), attempt.Success, nullStr(attempt.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

// GetSetting returns a value from the settings table, or storage.ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a key-value pair with upsert semantics.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, key, value)
	return err
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// Package sqlite implements the storage interfaces on SQLite via
// modernc.org/sqlite. It is the default backend for local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

// initialStrength is the strength assigned to a fact on first mention.
const initialStrength = 0.5

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, configures WAL mode, and creates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection for config and settings access.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertFact inserts or updates a fact keyed on (user_id, name, kind).
// On conflict the counters are resolved in SQL; alias merging happens in a
// follow-up statement on the same (single) connection, so writes stay
// serialised.
func (s *Store) UpsertFact(ctx context.Context, userID, name string, kind types.EntityKind, opts storage.FactUpsert) (*types.Fact, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user id and name are required", storage.ErrInvalidInput)
	}
	if !types.ValidEntityKind(kind) {
		return nil, fmt.Errorf("%w: unknown entity kind %q", storage.ErrInvalidInput, kind)
	}

	aliasesJSON, err := marshalSlice(opts.Aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aliases: %w", err)
	}
	contextsJSON, err := marshalSlice(opts.Contexts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contexts: %w", err)
	}
	var metadataJSON []byte
	if opts.Metadata != nil {
		metadataJSON, err = json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_id, name, kind, aliases, contexts, metadata,
			frequency, strength, last_mentioned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_id, name, kind) DO UPDATE SET
			frequency = frequency + 1,
			strength = MIN(strength * ?, 1.0),
			last_mentioned = excluded.last_mentioned
	`, uuid.New().String(), userID, name, string(kind),
		nullString(aliasesJSON), nullString(contextsJSON), nullString(metadataJSON),
		initialStrength, now, now, types.StrengthBoost)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert fact: %w", err)
	}

	fact, err := s.getFact(ctx, userID, name, kind)
	if err != nil {
		return nil, err
	}

	// Append any aliases the conflict path could not add in SQL.
	if merged, changed := mergeAliases(fact.Aliases, opts.Aliases); changed {
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal merged aliases: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE facts SET aliases = ? WHERE id = ?`, string(mergedJSON), fact.ID); err != nil {
			return nil, fmt.Errorf("failed to update aliases: %w", err)
		}
		fact.Aliases = merged
	}

	return fact, nil
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
		WHERE user_id = ?
			AND (? = '' OR LOWER(name) LIKE '%' || LOWER(?) || '%')
		ORDER BY frequency DESC, last_mentioned DESC
		LIMIT ?
	`, userID, query, query, limit)
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

func (s *Store) getFact(ctx context.Context, userID, name string, kind types.EntityKind) (*types.Fact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, aliases, contexts, metadata,
			frequency, strength, last_mentioned, created_at
		FROM facts
		WHERE user_id = ? AND name = ? AND kind = ?
	`, userID, name, string(kind))
	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return fact, err
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(sc scanner) (*types.Fact, error) {
	var fact types.Fact
	var kind string
	var aliasesJSON, contextsJSON, metadataJSON sql.NullString

	err := sc.Scan(&fact.ID, &fact.UserID, &fact.Name, &kind,
		&aliasesJSON, &contextsJSON, &metadataJSON,
		&fact.Frequency, &fact.Strength, &fact.LastMentioned, &fact.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}
	fact.Kind = types.EntityKind(kind)

	if err := unmarshalSlice(aliasesJSON, &fact.Aliases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
	}
	if err := unmarshalSlice(contextsJSON, &fact.Contexts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contexts: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &fact.Metadata); err != nil {
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
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
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
			parsed_due_date, due_date_confidence, confidence,
			source_reasoning_log_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, title) DO UPDATE SET
			confidence = MAX(confidence, excluded.confidence)
		RETURNING id
	`, task.ID, task.UserID, task.Title, nullStr(task.NaturalText),
		string(task.Priority), string(task.Status),
		nullableTime(task.ParsedDueDate), task.DueDateConfidence, task.Confidence,
		nullStr(task.SourceReasoningLogID), task.CreatedAt).Scan(&id)
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
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return task, err
}

// CompleteTask marks a task completed. Completing an already-completed task
// leaves the original completion timestamp in place.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: task id is required", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, completed_at = COALESCE(completed_at, ?)
		WHERE id = ?
	`, string(types.StatusCompleted), time.Now().UTC(), id)
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
		WHERE status = ? AND parsed_due_date IS NULL
		ORDER BY created_at
		LIMIT ?
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
		SET parsed_due_date = ?, due_date_confidence = ?, status = ?
		WHERE id = ?
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

	rows, err := s.db.QueryContext(ctx,
		taskSelect+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
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
	conds := []string{"user_id = ?"}
	args := []interface{}{userID}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
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
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
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
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
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
			latency_ms, token_usage, answer, task_json, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.NoteExcerpt, entry.NoteHash, entry.Model,
		entry.LatencyMS, nullString(usageJSON), entry.Answer,
		nullStr(entry.TaskJSON), entry.Success, nullStr(entry.ErrorMessage),
		entry.CreatedAt)
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
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, task_id, user_id, channel, payload,
			success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, attempt.ID, attempt.TaskID, attempt.UserID, attempt.Channel,
		nullStr(attempt.Payload), attempt.Success, nullStr(attempt.ErrorMessage),
		attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

// GetSetting returns a value from the settings table, or storage.ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
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
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// helpers

func marshalSlice(values []string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalSlice(src sql.NullString, dst *[]string) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func mergeAliases(existing, incoming []string) ([]string, bool) {
	if len(incoming) == 0 {
		return existing, false
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	merged := existing
	changed := false
	for _, a := range incoming {
		if a != "" && !seen[a] {
			seen[a] = true
			merged = append(merged, a)
			changed = true
		}
	}
	return merged, changed
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
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

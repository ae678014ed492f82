package postgres

// Schema contains the SQL statements to create the PostgreSQL schema.
// Array-valued fact columns use JSONB so the conflict path can append
// aliases in SQL with the || operator.
const Schema = `
CREATE TABLE IF NOT EXISTS facts (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	aliases JSONB NOT NULL DEFAULT '[]'::jsonb,
	contexts JSONB NOT NULL DEFAULT '[]'::jsonb,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	frequency INTEGER NOT NULL DEFAULT 1,
	strength DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	last_mentioned TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, name, kind)
);

CREATE INDEX IF NOT EXISTS idx_facts_user_freq
	ON facts(user_id, frequency DESC, last_mentioned DESC);

CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	natural_text TEXT,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'pending',
	parsed_due_date TIMESTAMPTZ,
	due_date_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_reasoning_log_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ,
	UNIQUE (user_id, title)
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_created
	ON tasks(user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_tasks_unscheduled
	ON tasks(status, created_at) WHERE parsed_due_date IS NULL;

CREATE TABLE IF NOT EXISTS reasoning_logs (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	note_excerpt TEXT,
	note_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	token_usage JSONB,
	answer TEXT,
	task_json JSONB,
	success BOOLEAN NOT NULL DEFAULT TRUE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	task_id UUID NOT NULL,
	user_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	payload JSONB,
	success BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

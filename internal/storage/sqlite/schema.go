package sqlite

// Schema contains the SQL statements to create the SQLite database schema.
// All statements use IF NOT EXISTS so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	aliases TEXT,
	contexts TEXT,
	metadata TEXT,
	frequency INTEGER NOT NULL DEFAULT 1,
	strength REAL NOT NULL DEFAULT 0.5,
	last_mentioned TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, name, kind)
);

CREATE INDEX IF NOT EXISTS idx_facts_user_freq
	ON facts(user_id, frequency DESC, last_mentioned DESC);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	natural_text TEXT,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'pending',
	parsed_due_date TIMESTAMP,
	due_date_confidence REAL NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	source_reasoning_log_id TEXT,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	UNIQUE (user_id, title)
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_created
	ON tasks(user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_tasks_unscheduled
	ON tasks(status, created_at) WHERE parsed_due_date IS NULL;

CREATE TABLE IF NOT EXISTS reasoning_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	note_excerpt TEXT,
	note_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	token_usage TEXT,
	answer TEXT,
	task_json TEXT,
	success INTEGER NOT NULL DEFAULT 1,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	payload TEXT,
	success INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

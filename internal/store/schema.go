package store

// Schema is the full set of CREATE TABLE IF NOT EXISTS statements for this
// repository's domain, following spec.md §3's data model. Idempotent, so
// Store.migrate can re-apply it on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS task_runs (
	run_id            TEXT PRIMARY KEY,
	task_id           TEXT NOT NULL,
	channel           TEXT NOT NULL,
	sender            TEXT NOT NULL,
	sender_id         TEXT NOT NULL,
	conversation_id   TEXT,
	branch_key        TEXT,
	objective         TEXT NOT NULL,
	risk_level        TEXT NOT NULL,
	status            TEXT NOT NULL,
	assigned_agent    TEXT,
	loop_iteration    INTEGER NOT NULL DEFAULT 0,
	max_iterations    INTEGER NOT NULL DEFAULT 1,
	verifier_outcome  TEXT,
	result_text       TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_runs_channel_sender ON task_runs(channel, sender_id);
CREATE INDEX IF NOT EXISTS idx_task_runs_status ON task_runs(status);

CREATE TABLE IF NOT EXISTS task_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_events_run ON task_events(run_id);
CREATE INDEX IF NOT EXISTS idx_task_events_kind ON task_events(kind);

CREATE TABLE IF NOT EXISTS task_steps (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	iteration  INTEGER NOT NULL,
	output     TEXT,
	verdict    TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_steps_run ON task_steps(run_id);

CREATE TABLE IF NOT EXISTS memory_records (
	record_id     TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	confidence    REAL NOT NULL,
	source_run_id TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	UNIQUE(user_id, category, key)
);
CREATE INDEX IF NOT EXISTS idx_memory_user_category ON memory_records(user_id, category);

CREATE TABLE IF NOT EXISTS memory_daily_summaries (
	summary_date TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS permissions (
	permission_id TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	subject       TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource      TEXT,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permissions_user_subject ON permissions(user_id, subject, action);

CREATE TABLE IF NOT EXISTS tools (
	tool_id     TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	source      TEXT,
	trust_class TEXT NOT NULL,
	status      TEXT NOT NULL,
	metadata    TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
	skill_id      TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	content_path  TEXT NOT NULL,
	current_version INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_skills_name ON skills(name);

CREATE TABLE IF NOT EXISTS skill_versions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	skill_id     TEXT NOT NULL,
	version      INTEGER NOT NULL,
	content_path TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE(skill_id, version)
);

CREATE TABLE IF NOT EXISTS browser_sessions (
	session_id    TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	host          TEXT NOT NULL,
	port          INTEGER NOT NULL,
	profile_path  TEXT,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS browser_tabs (
	tab_id       TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_browser_tabs_run ON browser_tabs(run_id);

CREATE TABLE IF NOT EXISTS browser_actions (
	action_id         TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	tab_id            TEXT NOT NULL,
	kind              TEXT NOT NULL,
	selector          TEXT,
	value             TEXT,
	risk              TEXT NOT NULL,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_browser_actions_run ON browser_actions(run_id);

CREATE TABLE IF NOT EXISTS browser_approvals (
	request_id  TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	action_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	decided_at  TEXT
);

CREATE TABLE IF NOT EXISTS browser_audits (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL,
	tab_id            TEXT NOT NULL,
	action_id         TEXT NOT NULL,
	before_screenshot TEXT,
	after_screenshot  TEXT,
	selector_trace    TEXT,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_browser_audits_run_tab ON browser_audits(run_id, tab_id);

CREATE TABLE IF NOT EXISTS channel_pending_messages (
	message_id TEXT PRIMARY KEY,
	channel    TEXT NOT NULL,
	sender     TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	chat_ref   TEXT,
	reply_ref  TEXT,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_channel_message ON channel_pending_messages(channel, message_id);
CREATE INDEX IF NOT EXISTS idx_pending_expires ON channel_pending_messages(expires_at);

CREATE TABLE IF NOT EXISTS metrics (
	name  TEXT PRIMARY KEY,
	value REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metric_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	delta      REAL NOT NULL,
	metadata   TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_events_name ON metric_events(name);

CREATE TABLE IF NOT EXISTS proactive_outreach (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	outreach_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proactive_outreach_run ON proactive_outreach(run_id);

CREATE TABLE IF NOT EXISTS proactive_digest_sent (
	digest_date TEXT NOT NULL,
	channel     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sent_at     TEXT NOT NULL,
	PRIMARY KEY (digest_date, channel, sender_id)
);
`

package store

// schemaVersion is the current schema revision. Every fresh database is
// created directly at this revision — there is no incremental ALTER TABLE
// migration path; the schema is owned outright from the first write.
const schemaVersion = 1

// sharedSchema creates the tables that live in the shared registry database
// (one process-wide file: registry.db).
const sharedSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tenants (
	tenant_id    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	phone_number TEXT NOT NULL UNIQUE,
	status       TEXT NOT NULL DEFAULT 'active',
	timezone     TEXT NOT NULL DEFAULT 'UTC',
	config       TEXT NOT NULL DEFAULT '{}',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tenants_phone ON tenants(phone_number);
CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);

CREATE TABLE IF NOT EXISTS admin_audit_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
`

// tenantSchema creates the tables that live in each tenant's own database
// file (client-<tenant_id>.db).
const tenantSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_credentials (
	provider      TEXT PRIMARY KEY,
	calendar_id   TEXT NOT NULL DEFAULT '',
	encrypted_blob TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS appointment_cache (
	calendar_event_id TEXT PRIMARY KEY,
	provider          TEXT NOT NULL DEFAULT '',
	starts_at         TEXT NOT NULL,
	ends_at           TEXT NOT NULL,
	duration_minutes  INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'confirmed',
	summary           TEXT NOT NULL DEFAULT '',
	customer_name     TEXT NOT NULL DEFAULT '',
	customer_phone    TEXT NOT NULL DEFAULT '',
	customer_email    TEXT NOT NULL DEFAULT '',
	service_type      TEXT NOT NULL DEFAULT '',
	synced_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointment_cache_window ON appointment_cache(starts_at, ends_at);

CREATE TABLE IF NOT EXISTS call_logs (
	call_sid        TEXT PRIMARY KEY,
	from_number     TEXT NOT NULL,
	direction       TEXT NOT NULL DEFAULT 'inbound',
	status          TEXT NOT NULL DEFAULT 'initiated',
	started_at      TEXT NOT NULL,
	ended_at        TEXT,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	detected_intent TEXT NOT NULL DEFAULT '',
	error_text      TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	turn_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	call_sid   TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_call ON conversation_turns(call_sid);

CREATE TABLE IF NOT EXISTS voicemails (
	id          TEXT PRIMARY KEY,
	call_sid    TEXT NOT NULL,
	caller_name TEXT NOT NULL DEFAULT '',
	callback    TEXT NOT NULL DEFAULT '',
	transcript  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS client_metrics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	metric     TEXT NOT NULL,
	value      REAL NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_client_metrics_recorded ON client_metrics(metric, recorded_at);

CREATE TABLE IF NOT EXISTS calendar_sync_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	detail      TEXT NOT NULL DEFAULT ''
);
`

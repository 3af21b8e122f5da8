package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CallStatus is the lifecycle status of a persisted call log row.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
)

// CallDirection is the direction of a call relative to this deployment.
type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"
	CallDirectionOutbound CallDirection = "outbound"
)

// CallLog is one row of the call_logs table.
type CallLog struct {
	CallSID         string
	FromNumber      string
	Direction       CallDirection
	Status          CallStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	DetectedIntent  string
	ErrorText       string
	Outcome         string
	TurnCount       int
}

// ConversationTurn is one row of the conversation_turns table.
type ConversationTurn struct {
	ID        int64
	CallSID   string
	Role      string
	Text      string
	CreatedAt time.Time
}

// AppointmentStatus is the lifecycle status of a cached appointment.
type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentNoShow    AppointmentStatus = "no-show"
)

// AppointmentCacheRow is one row of the appointment_cache table: a
// materialized view of a single calendar event, not a source of truth.
type AppointmentCacheRow struct {
	CalendarEventID string
	Provider        string
	StartsAt        time.Time
	EndsAt          time.Time
	DurationMinutes int
	Status          AppointmentStatus
	Summary         string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	ServiceType     string
	SyncedAt        time.Time
}

// Voicemail is one row of the voicemails table.
type Voicemail struct {
	ID         string
	CallSID    string
	CallerName string
	Callback   string
	Transcript string
	CreatedAt  time.Time
}

// SyncRunStatus is the outcome of a calendar sync loop iteration.
type SyncRunStatus string

const (
	SyncRunRunning SyncRunStatus = "running"
	SyncRunOK      SyncRunStatus = "ok"
	SyncRunFailed  SyncRunStatus = "failed"
)

// maxTurnTextBytes caps conversation turn text before persistence, per the
// call orchestrator's truncate-before-store rule.
const maxTurnTextBytes = 4096

// TenantStore is a typed query layer over a single tenant's database file.
// It is obtained from a [Factory] and is safe for concurrent use (the
// underlying *sql.DB pool serializes as needed).
type TenantStore struct {
	db *sql.DB
}

// NewTenantStore wraps db, the database handle for one tenant returned by
// [Factory.Open] or [Factory.Get].
func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

// InsertCallLog records a new call session row, typically with status
// [CallStatusInitiated] at socket-open time.
func (s *TenantStore) InsertCallLog(ctx context.Context, c CallLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_logs (call_sid, from_number, direction, status, started_at, outcome, turn_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CallSID, c.FromNumber, string(c.Direction), string(c.Status),
		c.StartedAt.UTC().Format(time.RFC3339), c.Outcome, c.TurnCount,
	)
	if err != nil {
		return fmt.Errorf("store: insert call log %q: %w", c.CallSID, err)
	}
	return nil
}

// UpdateCallLog applies the terminal fields of a call session once it has
// ended: status, outcome, detected intent, error text, duration, and turn
// count.
func (s *TenantStore) UpdateCallLog(ctx context.Context, callSID string, status CallStatus, outcome, detectedIntent, errorText string, durationSeconds, turnCount int, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE call_logs
		SET status = ?, outcome = ?, detected_intent = ?, error_text = ?,
		    duration_seconds = ?, turn_count = ?, ended_at = ?
		WHERE call_sid = ?`,
		string(status), outcome, detectedIntent, errorText,
		durationSeconds, turnCount, endedAt.UTC().Format(time.RFC3339), callSID,
	)
	if err != nil {
		return fmt.Errorf("store: update call log %q: %w", callSID, err)
	}
	return nil
}

// InsertConversationTurn persists one user or assistant utterance. Text
// longer than 4 KiB is truncated before storage.
func (s *TenantStore) InsertConversationTurn(ctx context.Context, callSID, role, text string, createdAt time.Time) error {
	if len(text) > maxTurnTextBytes {
		text = text[:maxTurnTextBytes]
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (call_sid, role, text, created_at)
		VALUES (?, ?, ?, ?)`,
		callSID, role, text, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: insert conversation turn for %q: %w", callSID, err)
	}
	return nil
}

// ListConversationTurns returns every turn recorded for callSID in
// insertion order.
func (s *TenantStore) ListConversationTurns(ctx context.Context, callSID string) ([]ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_sid, role, text, created_at
		FROM conversation_turns WHERE call_sid = ? ORDER BY id ASC`, callSID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversation turns for %q: %w", callSID, err)
	}
	defer rows.Close()

	var out []ConversationTurn
	for rows.Next() {
		var t ConversationTurn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.CallSID, &t.Role, &t.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation turn: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertAppointmentCache writes or replaces a materialized calendar event,
// keyed on calendar_event_id. Both the booking tool and the calendar sync
// loop use this so that a re-synced event never creates a duplicate row.
func (s *TenantStore) UpsertAppointmentCache(ctx context.Context, row AppointmentCacheRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointment_cache (
			calendar_event_id, provider, starts_at, ends_at, duration_minutes,
			status, summary, customer_name, customer_phone, customer_email,
			service_type, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(calendar_event_id) DO UPDATE SET
			provider = excluded.provider,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			duration_minutes = excluded.duration_minutes,
			status = excluded.status,
			summary = excluded.summary,
			customer_name = excluded.customer_name,
			customer_phone = excluded.customer_phone,
			customer_email = excluded.customer_email,
			service_type = excluded.service_type,
			synced_at = excluded.synced_at`,
		row.CalendarEventID, row.Provider,
		row.StartsAt.UTC().Format(time.RFC3339), row.EndsAt.UTC().Format(time.RFC3339),
		row.DurationMinutes, string(row.Status), row.Summary,
		row.CustomerName, row.CustomerPhone, row.CustomerEmail, row.ServiceType,
		row.SyncedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: upsert appointment cache %q: %w", row.CalendarEventID, err)
	}
	return nil
}

// ListAppointmentCacheWindow returns cached appointments overlapping
// [from, to), ordered by start time. The cache is best-effort and must
// never be presented as authoritative; the external calendar dominates.
func (s *TenantStore) ListAppointmentCacheWindow(ctx context.Context, from, to time.Time) ([]AppointmentCacheRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT calendar_event_id, provider, starts_at, ends_at, duration_minutes,
		       status, summary, customer_name, customer_phone, customer_email,
		       service_type, synced_at
		FROM appointment_cache
		WHERE starts_at < ? AND ends_at > ?
		ORDER BY starts_at ASC`,
		to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list appointment cache window: %w", err)
	}
	defer rows.Close()

	var out []AppointmentCacheRow
	for rows.Next() {
		var row AppointmentCacheRow
		var status, startsAt, endsAt, syncedAt string
		if err := rows.Scan(&row.CalendarEventID, &row.Provider, &startsAt, &endsAt,
			&row.DurationMinutes, &status, &row.Summary, &row.CustomerName,
			&row.CustomerPhone, &row.CustomerEmail, &row.ServiceType, &syncedAt); err != nil {
			return nil, fmt.Errorf("store: scan appointment cache row: %w", err)
		}
		row.Status = AppointmentStatus(status)
		row.StartsAt, _ = time.Parse(time.RFC3339, startsAt)
		row.EndsAt, _ = time.Parse(time.RFC3339, endsAt)
		row.SyncedAt, _ = time.Parse(time.RFC3339, syncedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertVoicemail records a caller's voicemail. The ingress
// /voicemail-callback handler calls it when the telephony provider delivers
// a recording.
func (s *TenantStore) InsertVoicemail(ctx context.Context, v Voicemail) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voicemails (id, call_sid, caller_name, callback, transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.CallSID, v.CallerName, v.Callback, v.Transcript, v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: insert voicemail %q: %w", v.ID, err)
	}
	return nil
}

// RecordMetric appends one client-scoped metric sample.
func (s *TenantStore) RecordMetric(ctx context.Context, metric string, value float64, recordedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_metrics (metric, value, recorded_at) VALUES (?, ?, ?)`,
		metric, value, recordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: record metric %q: %w", metric, err)
	}
	return nil
}

// StartSyncRun inserts a running calendar_sync_runs row and returns its ID.
func (s *TenantStore) StartSyncRun(ctx context.Context, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_sync_runs (started_at, status) VALUES (?, ?)`,
		startedAt.UTC().Format(time.RFC3339), string(SyncRunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("store: start sync run: %w", err)
	}
	return res.LastInsertId()
}

// FinishSyncRun marks a sync run as finished, recording its terminal status
// and an optional error/count detail string.
func (s *TenantStore) FinishSyncRun(ctx context.Context, id int64, status SyncRunStatus, detail string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calendar_sync_runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		string(status), detail, finishedAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("store: finish sync run %d: %w", id, err)
	}
	return nil
}

// RecentSyncFailureCount counts calendar_sync_runs rows with status 'failed'
// started at or after since. Used by the alert-checking CLI to flag a
// tenant whose calendar sync has been failing.
func (s *TenantStore) RecentSyncFailureCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_sync_runs WHERE status = ? AND started_at >= ?`,
		string(SyncRunFailed), since.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count recent sync failures: %w", err)
	}
	return n, nil
}

// CallOutcomeCounts returns the number of call_logs rows started at or
// after since, grouped by status. Used by the alert-checking CLI to
// compute a failure rate over a recent window.
func (s *TenantStore) CallOutcomeCounts(ctx context.Context, since time.Time) (map[CallStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM call_logs WHERE started_at >= ? GROUP BY status`,
		since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("store: count call outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[CallStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: scan call outcome row: %w", err)
		}
		counts[CallStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate call outcome rows: %w", err)
	}
	return counts, nil
}

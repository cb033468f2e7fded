package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists audit entries, safety events and rate-limit samples in
// SQLite. Writes never fail silently: every error is returned to the caller
// so that safety-relevant decisions can fail closed.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the audit database at basePath/audit.db.
// Pass ":memory:" for an ephemeral store in tests.
func NewStore(basePath string) (*Store, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
		dbPath = filepath.Join(basePath, "audit.db")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// A single connection serializes writers, which keeps entry ids strictly
	// increasing and also makes ":memory:" databases safe to share.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL DEFAULT '',
		agent_type TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		severity TEXT NOT NULL DEFAULT 'info',
		timestamp TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS safety_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT NOT NULL,
		task_id TEXT,
		timestamp TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rate_limits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_type TEXT NOT NULL,
		limit_type TEXT NOT NULL,
		limit_value INTEGER,
		current_value INTEGER,
		window_start TEXT,
		window_end TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_task ON audit_logs(task_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_time ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_safety_events_time ON safety_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one audit entry and returns its assigned id.
func (s *Store) Append(e Entry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	res, err := s.db.Exec(`
		INSERT INTO audit_logs (task_id, agent_type, action, details, severity, timestamp, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.AgentType, e.Action, e.Details, string(e.Severity),
		e.Timestamp.Format(time.RFC3339Nano), boolToInt(e.Success))
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("audit entry id: %w", err)
	}
	return id, nil
}

// LogSafetyEvent records a gatekeeper/limiter denial.
func (s *Store) LogSafetyEvent(eventType, details, taskID string) error {
	_, err := s.db.Exec(`
		INSERT INTO safety_events (event_type, details, task_id, timestamp)
		VALUES (?, ?, ?, ?)`,
		eventType, details, nullString(taskID), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// LogRateLimit records a counter snapshot for a tripped limit.
func (s *Store) LogRateLimit(sample RateLimitSample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO rate_limits (agent_type, limit_type, limit_value, current_value, window_start, window_end, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.AgentType, sample.LimitType, sample.LimitValue, sample.CurrentValue,
		nullTime(sample.WindowStart), nullTime(sample.WindowEnd),
		sample.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert rate limit sample: %w", err)
	}
	return nil
}

// TaskLog returns the audit entries for one task, most recent first.
func (s *Store) TaskLog(taskID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, agent_type, action, details, severity, timestamp, success
		FROM audit_logs
		WHERE task_id = ?
		ORDER BY id DESC
		LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("query task log: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// List returns audit entries matching the filter, most recent first.
func (s *Store) List(f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := `
		SELECT id, task_id, agent_type, action, details, severity, timestamp, success
		FROM audit_logs WHERE 1=1`
	args := []any{}
	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if f.AgentType != "" {
		query += " AND agent_type = ?"
		args = append(args, f.AgentType)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// RecentSafetyEvents returns safety events, most recent first. If resolved
// is non-nil the result is filtered to that resolution state.
func (s *Store) RecentSafetyEvents(limit int, resolved *bool) ([]SafetyEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, event_type, details, COALESCE(task_id, ''), timestamp, resolved
		FROM safety_events`
	args := []any{}
	if resolved != nil {
		query += " WHERE resolved = ?"
		args = append(args, boolToInt(*resolved))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query safety events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []SafetyEvent
	for rows.Next() {
		var ev SafetyEvent
		var ts string
		var res int
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Details, &ev.TaskID, &ts, &res); err != nil {
			return nil, fmt.Errorf("scan safety event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Resolved = res != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate safety events: %w", err)
	}
	return events, nil
}

// PurgeOlderThan irreversibly deletes entries older than the cutoff from all
// three tables. Callers schedule this externally.
func (s *Store) PurgeOlderThan(cutoff time.Time) error {
	ts := cutoff.UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`DELETE FROM audit_logs WHERE timestamp < ?`, ts); err != nil {
		return fmt.Errorf("purge audit logs: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM safety_events WHERE timestamp < ?`, ts); err != nil {
		return fmt.Errorf("purge safety events: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM rate_limits WHERE timestamp < ?`, ts); err != nil {
		return fmt.Errorf("purge rate limits: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts, sev string
		var success int
		if err := rows.Scan(&e.ID, &e.TaskID, &e.AgentType, &e.Action, &e.Details, &sev, &ts, &success); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Severity = Severity(sev)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Success = success != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Package sqlite persists the fleet's audit trail: lifecycle events,
// health reports, and gateway command results.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentfleet"
	"agentfleet/fleet"

	_ "modernc.org/sqlite"
)

// EventLog implements fleet.EventSink backed by SQLite.
type EventLog struct {
	db *sql.DB
}

var _ fleet.EventSink = (*EventLog)(nil)

func Open(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &EventLog{db: db}, nil
}

func (l *EventLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func ensureSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	container TEXT NOT NULL,
	op TEXT NOT NULL,
	action TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS health_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	checked_at TEXT NOT NULL,
	container TEXT NOT NULL,
	passed INTEGER NOT NULL,
	probes TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS command_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	container TEXT NOT NULL,
	command TEXT NOT NULL,
	matched_rule TEXT NOT NULL DEFAULT '',
	exit_code INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_container ON events(container, id);
CREATE INDEX IF NOT EXISTS idx_health_reports_container ON health_reports(container, id);
CREATE INDEX IF NOT EXISTS idx_command_log_container ON command_log(container, id);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("initialize event log schema: %w", err)
	}
	return nil
}

func (l *EventLog) RecordEvent(ctx context.Context, e fleet.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO events (at, container, op, action, error, detail)
VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), e.Container, e.Op, e.Action, e.Error, e.Detail)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (l *EventLog) RecordHealthReport(ctx context.Context, r agentfleet.HealthReport) error {
	probes, err := json.Marshal(r.Probes)
	if err != nil {
		return fmt.Errorf("encode probes: %w", err)
	}
	checkedAt := r.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	_, err = l.db.ExecContext(ctx, `
INSERT INTO health_reports (checked_at, container, passed, probes)
VALUES (?, ?, ?, ?)`,
		checkedAt.UTC().Format(time.RFC3339Nano), r.Container, boolToInt(r.Passed), string(probes))
	if err != nil {
		return fmt.Errorf("insert health report: %w", err)
	}
	return nil
}

func (l *EventLog) RecordCommand(ctx context.Context, r agentfleet.CommandResult) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO command_log (at, container, command, matched_rule, exit_code, succeeded, detail)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		r.Container, r.Command, r.MatchedRule, r.ExitCode, boolToInt(r.Succeeded), r.Detail)
	if err != nil {
		return fmt.Errorf("insert command log row: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events first, optionally filtered by
// container name. Limit caps the result; zero means 50.
func (l *EventLog) RecentEvents(ctx context.Context, container string, limit int) ([]fleet.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT at, container, op, action, error, detail
FROM events`
	args := []any{}
	if container != "" {
		query += ` WHERE container = ?`
		args = append(args, container)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]fleet.Event, 0, limit)
	for rows.Next() {
		var e fleet.Event
		var at string
		if err := rows.Scan(&at, &e.Container, &e.Op, &e.Action, &e.Error, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = parsed
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LatestHealthReport returns the most recent stored report for a container,
// or false when none exists.
func (l *EventLog) LatestHealthReport(ctx context.Context, container string) (agentfleet.HealthReport, bool, error) {
	var (
		checkedAt string
		passed    int
		probes    string
	)
	err := l.db.QueryRowContext(ctx, `
SELECT checked_at, passed, probes
FROM health_reports
WHERE container = ?
ORDER BY id DESC
LIMIT 1`, container).Scan(&checkedAt, &passed, &probes)
	if err == sql.ErrNoRows {
		return agentfleet.HealthReport{}, false, nil
	}
	if err != nil {
		return agentfleet.HealthReport{}, false, fmt.Errorf("query latest health report: %w", err)
	}

	report := agentfleet.HealthReport{
		Container: container,
		Passed:    passed != 0,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, checkedAt); err == nil {
		report.CheckedAt = parsed
	}
	if err := json.Unmarshal([]byte(probes), &report.Probes); err != nil {
		return agentfleet.HealthReport{}, false, fmt.Errorf("decode probes: %w", err)
	}
	return report, true, nil
}

// RecentCommands returns the newest command results first for a container.
func (l *EventLog) RecentCommands(ctx context.Context, container string, limit int) ([]agentfleet.CommandResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT container, command, matched_rule, exit_code, succeeded, detail
FROM command_log
WHERE container = ?
ORDER BY id DESC
LIMIT ?`, container, limit)
	if err != nil {
		return nil, fmt.Errorf("query command log: %w", err)
	}
	defer rows.Close()

	out := make([]agentfleet.CommandResult, 0, limit)
	for rows.Next() {
		var r agentfleet.CommandResult
		var succeeded int
		if err := rows.Scan(&r.Container, &r.Command, &r.MatchedRule, &r.ExitCode, &succeeded, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan command log row: %w", err)
		}
		r.Succeeded = succeeded != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command log: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Event classifies a journal entry.
type Event string

const (
	// EventDecision is a reuse decision taken before a stage runs.
	EventDecision Event = "decision"
	// EventRecorded is a manifest persisted after a successful stage.
	EventRecorded Event = "recorded"
	// EventFailed is a stage execution or commit that failed.
	EventFailed Event = "failed"
)

// DefaultLimit bounds Recent when the filter sets no limit.
const DefaultLimit = 50

// Entry is one row of stage cache history.
type Entry struct {
	ID            int64         `json:"id"`
	RecordedAt    time.Time     `json:"recorded_at"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Step          string        `json:"step"`
	SessionID     string        `json:"session_id,omitempty"`
	OutputDir     string        `json:"output_dir"`
	Event         Event         `json:"event"`
	Reason        string        `json:"reason,omitempty"`
	ConfigHash    string        `json:"config_hash,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns,omitempty"`
	Detail        string        `json:"detail,omitempty"`
}

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	Step      string
	OutputDir string
	Limit     int
}

// Journal appends and queries stage cache history backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or connects to the journal database at path and applies
// migrations.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: ensure directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path, now: time.Now}
	if err := j.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	return j, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores e and returns its row id. A zero RecordedAt is stamped with
// the current time.
func (j *Journal) Append(ctx context.Context, e Entry) (int64, error) {
	if strings.TrimSpace(e.Step) == "" {
		return 0, errors.New("journal: entry step is empty")
	}
	if e.Event == "" {
		return 0, errors.New("journal: entry event is empty")
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = j.now()
	}

	res, err := j.db.ExecContext(
		ctx,
		`INSERT INTO stage_events (
            recorded_at, correlation_id, step, session_id, output_dir,
            event, reason, config_hash, elapsed_ms, detail
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordedAt.UTC().Format(timeLayout),
		nullableString(e.CorrelationID),
		e.Step,
		nullableString(e.SessionID),
		e.OutputDir,
		string(e.Event),
		nullableString(e.Reason),
		nullableString(e.ConfigHash),
		e.Elapsed.Milliseconds(),
		nullableString(e.Detail),
	)
	if err != nil {
		return 0, fmt.Errorf("journal: insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: last insert id: %w", err)
	}
	return id, nil
}

// Recent returns matching entries, newest first.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if step := strings.TrimSpace(f.Step); step != "" {
		clauses = append(clauses, "step = ?")
		args = append(args, step)
	}
	if dir := strings.TrimSpace(f.OutputDir); dir != "" {
		clauses = append(clauses, "output_dir = ?")
		args = append(args, dir)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := "SELECT " + entryColumns + " FROM stage_events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate entries: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff and reports how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		"DELETE FROM stage_events WHERE recorded_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("journal: prune entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: rows affected: %w", err)
	}
	return removed, nil
}

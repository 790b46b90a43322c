// Package store provides the SQLite-backed durable state: scheduled tasks
// and per-tenant preferences. Everything else in the coordination layer is
// memory-only and rebuilt on restart.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	// Best-effort migration for databases created before context modes.
	_, _ = db.Exec(`ALTER TABLE scheduled_tasks ADD COLUMN context_mode TEXT NOT NULL DEFAULT 'isolated'`)

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new scheduled task.
func (s *Store) CreateTask(t *ScheduledTask) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO scheduled_tasks
		(id, tenant_folder, chat_id, prompt, schedule_type, schedule_value, context_mode, next_run, last_run, last_result, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantFolder, t.ChatID, t.Prompt, t.ScheduleType, t.ScheduleValue,
		t.ContextMode, nullTime(t.NextRun), nullTime(t.LastRun), t.LastResult, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(id string) (*ScheduledTask, error) {
	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	return scanTask(row)
}

// UpdateTask persists all mutable fields of a task.
func (s *Store) UpdateTask(t *ScheduledTask) error {
	res, err := s.db.Exec(`UPDATE scheduled_tasks
		SET prompt = ?, schedule_type = ?, schedule_value = ?, context_mode = ?,
		    next_run = ?, last_run = ?, last_result = ?, status = ?
		WHERE id = ?`,
		t.Prompt, t.ScheduleType, t.ScheduleValue, t.ContextMode,
		nullTime(t.NextRun), nullTime(t.LastRun), t.LastResult, t.Status, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns all tasks, or only a tenant's tasks when tenantFolder
// is non-empty. Ordered by creation time.
func (s *Store) ListTasks(tenantFolder string) ([]*ScheduledTask, error) {
	query := taskSelect + ` ORDER BY created_at`
	args := []any{}
	if tenantFolder != "" {
		query = taskSelect + ` WHERE tenant_folder = ? ORDER BY created_at`
		args = append(args, tenantFolder)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// DueTasks returns active tasks whose next run is at or before now.
func (s *Store) DueTasks(now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.Query(taskSelect+
		` WHERE status = ? AND next_run IS NOT NULL AND next_run <= ? ORDER BY next_run`,
		StatusActive, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetPreference returns a tenant preference value, or "" when unset.
func (s *Store) GetPreference(tenantFolder, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE tenant_folder = ? AND key = ?`,
		tenantFolder, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference: %w", err)
	}
	return value, nil
}

// RecordTaskResult writes only last_run/last_result for a task. Completion
// bookkeeping must not touch status or next_run: those may have been mutated
// while the session ran.
func (s *Store) RecordTaskResult(id string, lastRun time.Time, lastResult string) error {
	res, err := s.db.Exec(`UPDATE scheduled_tasks SET last_run = ?, last_result = ? WHERE id = ?`,
		lastRun.UTC(), lastResult, id)
	if err != nil {
		return fmt.Errorf("record task result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPreferences returns all preferences for a tenant, keyed by name.
func (s *Store) ListPreferences(tenantFolder string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM preferences WHERE tenant_folder = ? ORDER BY key`,
		tenantFolder)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}

// SetPreference upserts a tenant preference.
func (s *Store) SetPreference(tenantFolder, key, value string) error {
	_, err := s.db.Exec(`INSERT INTO preferences (tenant_folder, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_folder, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		tenantFolder, key, value)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

const taskSelect = `SELECT id, tenant_folder, chat_id, prompt, schedule_type, schedule_value,
	context_mode, next_run, last_run, last_result, status, created_at FROM scheduled_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var t ScheduledTask
	var nextRun, lastRun sql.NullTime
	err := row.Scan(&t.ID, &t.TenantFolder, &t.ChatID, &t.Prompt, &t.ScheduleType,
		&t.ScheduleValue, &t.ContextMode, &nextRun, &lastRun, &t.LastResult, &t.Status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if nextRun.Valid {
		nr := nextRun.Time
		t.NextRun = &nr
	}
	if lastRun.Valid {
		lr := lastRun.Time
		t.LastRun = &lr
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*ScheduledTask, error) {
	var out []*ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

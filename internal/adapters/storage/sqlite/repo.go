package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// ErrTaskLocked reports a task whose status may not change.
var ErrTaskLocked = errors.New("task is locked")

// Repository stores the sandbox task service state.
type Repository struct {
	db *sql.DB
}

// TaskSeed is one task inserted by Seed.
type TaskSeed struct {
	Task   domain.Task
	Locked bool
}

// StatusChange is one recorded status transition.
type StatusChange struct {
	ID        string
	TaskID    string
	From      string
	To        string
	RequestID string
	ChangedAt time.Time
}

// Open opens a file-backed repository.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory repository.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS statuses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			is_closed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			status_id TEXT NOT NULL,
			project_name TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT '',
			locked INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(status_id) REFERENCES statuses(id)
		);`,
		`CREATE TABLE IF NOT EXISTS status_changes (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			changed_at TEXT NOT NULL,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status_id);`,
		`CREATE INDEX IF NOT EXISTS idx_status_changes_task ON status_changes(task_id, changed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Seed inserts statuses and tasks that are not present yet.
func (r *Repository) Seed(ctx context.Context, statuses []app.StatusRecord, tasks []TaskSeed) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, status := range statuses {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO statuses(id, name, position, is_closed)
			VALUES(?, ?, ?, ?)
		`, status.ID, status.Name, status.Position, boolToInt(status.IsClosed)); err != nil {
			return fmt.Errorf("seed status %s: %w", status.ID, err)
		}
	}
	for _, seed := range tasks {
		t := seed.Task
		if _, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tasks(id, subject, status_id, project_name, priority, locked, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Subject, t.StatusID, t.ProjectName, t.PriorityLabel, boolToInt(seed.Locked), ts(t.UpdatedAt)); err != nil {
			return fmt.Errorf("seed task %s: %w", t.ID, err)
		}
	}
	err = tx.Commit()
	return err
}

// ListStatuses lists statuses in position order.
func (r *Repository) ListStatuses(ctx context.Context) ([]app.StatusRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, position, is_closed
		FROM statuses
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []app.StatusRecord{}
	for rows.Next() {
		var (
			status app.StatusRecord
			closed int
		)
		if err := rows.Scan(&status.ID, &status.Name, &status.Position, &closed); err != nil {
			return nil, err
		}
		status.IsClosed = closed != 0
		out = append(out, status)
	}
	return out, rows.Err()
}

// ListTasks lists tasks, keeping at most limit per status when limit is positive, and reports
// shown/total counts per status.
func (r *Repository) ListTasks(ctx context.Context, limit int) ([]domain.Task, map[string]app.StatusCounter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.subject, t.status_id, COALESCE(s.name, ''), t.project_name, t.priority, t.updated_at
		FROM tasks t
		LEFT JOIN statuses s ON s.id = t.status_id
		ORDER BY COALESCE(s.position, 0) ASC, t.updated_at DESC, t.id ASC
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	counters := map[string]app.StatusCounter{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, nil, err
		}
		counter := counters[task.StatusID]
		counter.Total++
		if limit <= 0 || counter.Shown < limit {
			counter.Shown++
			out = append(out, task)
		}
		counters[task.StatusID] = counter
	}
	return out, counters, rows.Err()
}

// GetTask returns one task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.subject, t.status_id, COALESCE(s.name, ''), t.project_name, t.priority, t.updated_at
		FROM tasks t
		LEFT JOIN statuses s ON s.id = t.status_id
		WHERE t.id = ?
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrUnknownTask, id)
	}
	return task, err
}

// SetTaskStatus changes one task's status and records the transition.
func (r *Repository) SetTaskStatus(ctx context.Context, taskID, statusID, requestID string, at time.Time) (_ domain.Task, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		current string
		locked  int
	)
	err = tx.QueryRowContext(ctx, `SELECT status_id, locked FROM tasks WHERE id = ?`, taskID).Scan(&current, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %s", domain.ErrUnknownTask, taskID)
		return domain.Task{}, err
	}
	if err != nil {
		return domain.Task{}, err
	}
	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM statuses WHERE id = ?`, statusID).Scan(&exists); err != nil {
		return domain.Task{}, err
	}
	if exists == 0 {
		err = fmt.Errorf("%w: %s", domain.ErrUnknownColumn, statusID)
		return domain.Task{}, err
	}
	if locked != 0 && current != statusID {
		err = ErrTaskLocked
		return domain.Task{}, err
	}
	if current != statusID {
		if _, err = tx.ExecContext(ctx, `UPDATE tasks SET status_id = ?, updated_at = ? WHERE id = ?`, statusID, ts(at), taskID); err != nil {
			return domain.Task{}, err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO status_changes(id, task_id, from_status, to_status, request_id, changed_at)
			VALUES(?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), taskID, current, statusID, requestID, ts(at)); err != nil {
			return domain.Task{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return r.GetTask(ctx, taskID)
}

// ListStatusChanges lists the most recent transitions of one task, newest first.
func (r *Repository) ListStatusChanges(ctx context.Context, taskID string, limit int) ([]StatusChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, from_status, to_status, request_id, changed_at
		FROM status_changes
		WHERE task_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StatusChange{}
	for rows.Next() {
		var (
			change     StatusChange
			changedRaw string
		)
		if err := rows.Scan(&change.ID, &change.TaskID, &change.From, &change.To, &change.RequestID, &changedRaw); err != nil {
			return nil, err
		}
		change.ChangedAt = parseTS(changedRaw)
		out = append(out, change)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row.
func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		updatedRaw string
	)
	if err := s.Scan(&t.ID, &t.Subject, &t.StatusID, &t.StatusName, &t.ProjectName, &t.PriorityLabel, &updatedRaw); err != nil {
		return domain.Task{}, err
	}
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

// boolToInt encodes a flag column.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ts formats a timestamp column.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a timestamp column.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/model"
)

//go:embed schema/schema.sql
var sqliteSchema string

// SQLite stores tasks and the today queue in a single database file.
type SQLite struct {
	db     *sql.DB
	logger *log.Logger
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLite opens (and migrates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultOptions())
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// SQLite works best with a single writer; ":memory:" also needs the one
	// connection to keep its data.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, logger: logger}
	if err := s.Migrate(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Migrate(ctx context.Context, schema string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLite) LoadAll() ([]model.Task, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, due_date, priority, raw, created_at, status, result, subtasks
		FROM tasks
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		var priority, status, createdAt, subtasks string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.DueDate, &priority, &t.Raw, &createdAt, &status, &t.Result, &subtasks); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Priority = model.Priority(priority)
		t.Status = model.Status(status)
		if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
			s.logger.Warn("skipping task with unreadable subtasks", "id", t.ID, "err", err)
			continue
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			s.logger.Warn("skipping task with unreadable created_at", "id", t.ID, "err", err)
			continue
		}
		t.Normalize()
		if err := validateTask(t); err != nil {
			s.logger.Warn("skipping invalid task row", "id", t.ID, "err", err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQLite) SaveAll(tasks []model.Task) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return saveTasks(ctx, tx, tasks)
	})
}

func (s *SQLite) Delete(id string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (s *SQLite) LoadToday() ([]model.TodayItem, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT task_id, subtask_index, subtask
		FROM today_items
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list today items: %w", err)
	}
	defer rows.Close()

	items := []model.TodayItem{}
	for rows.Next() {
		var it model.TodayItem
		if err := rows.Scan(&it.TaskID, &it.SubtaskIndex, &it.Subtask); err != nil {
			return nil, fmt.Errorf("failed to scan today item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list today items: %w", err)
	}
	return items, nil
}

func (s *SQLite) SaveToday(items []model.TodayItem) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return saveToday(ctx, tx, items)
	})
}

func (s *SQLite) Commit(tasks []model.Task, today []model.TodayItem) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if err := saveTasks(ctx, tx, tasks); err != nil {
			return err
		}
		return saveToday(ctx, tx, today)
	})
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) inTx(fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func saveTasks(ctx context.Context, exec executor, tasks []model.Task) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	query := `
		INSERT INTO tasks (id, position, name, description, due_date, priority, raw, created_at, status, result, subtasks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, t := range tasks {
		subtasks := t.Subtasks
		if subtasks == nil {
			subtasks = []string{}
		}
		encoded, err := json.Marshal(subtasks)
		if err != nil {
			return fmt.Errorf("failed to encode subtasks: %w", err)
		}
		_, err = exec.ExecContext(ctx, query,
			t.ID, i, t.Name, t.Description, t.DueDate, string(t.Priority), t.Raw,
			t.CreatedAt.Format(time.RFC3339Nano), string(t.Status), t.Result, string(encoded),
		)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

func saveToday(ctx context.Context, exec executor, items []model.TodayItem) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM today_items`); err != nil {
		return fmt.Errorf("failed to clear today items: %w", err)
	}
	for i, it := range items {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO today_items (position, task_id, subtask_index, subtask) VALUES (?, ?, ?, ?)`,
			i, it.TaskID, it.SubtaskIndex, it.Subtask,
		)
		if err != nil {
			return fmt.Errorf("failed to insert today item: %w", err)
		}
	}
	return nil
}

package tasks

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed task log. Agents append tasks as they
// discover work and mark them done; the loop only ever asks whether
// open tasks remain.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the task store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'open',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate task store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add appends an open task and returns its id.
func (s *Store) Add(title string) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, state, created_at, updated_at) VALUES (?, ?, 'open', ?, ?)`,
		id, title, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to add task: %w", err)
	}
	return id, nil
}

// MarkDone transitions a task to done.
func (s *Store) MarkDone(id string) error {
	res, err := s.db.Exec(
		`UPDATE tasks SET state = 'done', updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// OpenTasks returns the number of tasks still open.
func (s *Store) OpenTasks() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE state = 'open'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open tasks: %w", err)
	}
	return count, nil
}

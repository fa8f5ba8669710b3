// Package persistence provides the durable, crash-recoverable store for
// tasks and dependency edges. It is independent of any in-memory queue: on
// restart the executor reloads tasks from here and replays them into a fresh
// queue.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// StatusUpdate names the optional fields UpdateStatus can change alongside
// the status. Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	AssignedAgentID *string
	OutputData      map[string]any
	ErrorMessage    *string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	RetryCount      *int
}

// Store defines the persistence interface for tasks and dependency edges.
// Every call is a self-contained durable transaction; there is no cross-call
// transaction state.
type Store interface {
	// Task CRUD
	SaveTask(ctx context.Context, t *task.Task) error
	LoadTask(ctx context.Context, taskID string) (*task.Task, error)
	LoadAllTasks(ctx context.Context, status task.Status) ([]*task.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	UpdateStatus(ctx context.Context, taskID string, status task.Status, update *StatusUpdate) error

	// Dependency edge CRUD
	SaveDependency(ctx context.Context, dep task.Dependency) error
	LoadDependencies(ctx context.Context, taskID string) ([]string, error)
	LoadDependents(ctx context.Context, taskID string) ([]string, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path, creating
// parent directories if needed. WAL mode is required so multiple store
// instances can be open against the same file; each new pool connection gets
// its pragmas from the DSN.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		dbPath,
	)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. Each call gets its
// own uniquely named shared-cache database so the connection pool sees one
// database but separate stores stay isolated.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf(
		"file:mem-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)",
		uuid.New().String(),
	)
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Two connections: one for primary queries, one for subqueries.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

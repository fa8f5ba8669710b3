package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// SaveDependency persists a dependency edge. Inserting an edge that already
// exists is a documented no-op, not an error. Both endpoints must exist;
// an unknown endpoint returns NotFoundError rather than a raw constraint
// failure.
func (s *SQLiteStore) SaveDependency(ctx context.Context, dep task.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range []string{dep.TaskID, dep.DependsOnTaskID} {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE task_id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return &task.NotFoundError{TaskID: id}
		}
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_task_id)
		VALUES (?, ?)
	`, dep.TaskID, dep.DependsOnTaskID)
	if err != nil {
		return fmt.Errorf("failed to insert dependency %s -> %s: %w", dep.TaskID, dep.DependsOnTaskID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadDependencies returns the IDs the given task depends on.
func (s *SQLiteStore) LoadDependencies(ctx context.Context, taskID string) ([]string, error) {
	return s.edgeQuery(ctx,
		`SELECT depends_on_task_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_task_id`,
		taskID)
}

// LoadDependents returns the IDs of tasks that depend on the given task.
func (s *SQLiteStore) LoadDependents(ctx context.Context, taskID string) ([]string, error) {
	return s.edgeQuery(ctx,
		`SELECT task_id FROM task_dependencies WHERE depends_on_task_id = ? ORDER BY task_id`,
		taskID)
}

func (s *SQLiteStore) edgeQuery(ctx context.Context, query, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}

	return ids, nil
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

const taskColumns = `task_id, name, priority, status, assigned_agent_id,
	input_json, output_json, created_at, started_at, completed_at,
	timeout_seconds, retry_count, max_retries, error_message`

// SaveTask saves or updates a task by ID, overwriting all fields.
// The record is validated before it touches the database.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	inputJSON, err := encodeJSON(t.InputData)
	if err != nil {
		return fmt.Errorf("failed to serialize input_data: %w", err)
	}
	outputJSON, err := encodeJSON(t.OutputData)
	if err != nil {
		return fmt.Errorf("failed to serialize output_data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			name = excluded.name,
			priority = excluded.priority,
			status = excluded.status,
			assigned_agent_id = excluded.assigned_agent_id,
			input_json = excluded.input_json,
			output_json = excluded.output_json,
			created_at = excluded.created_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			timeout_seconds = excluded.timeout_seconds,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			error_message = excluded.error_message
	`,
		t.ID, t.Name, t.Priority, string(t.Status), nullString(t.AssignedAgentID),
		inputJSON, outputJSON, t.CreatedAt.UnixNano(), encodeTime(t.StartedAt), encodeTime(t.CompletedAt),
		nullInt(t.TimeoutSeconds), t.RetryCount, t.MaxRetries, nullString(t.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	return nil
}

// LoadTask retrieves a task by ID.
func (s *SQLiteStore) LoadTask(ctx context.Context, taskID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &task.NotFoundError{TaskID: taskID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

// LoadAllTasks returns all tasks ordered by creation time, optionally
// filtered to one status. The zero Status ("") means no filter.
func (s *SQLiteStore) LoadAllTasks(ctx context.Context, status task.Status) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at`
	args := []any{}
	if status != "" {
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// DeleteTask removes the task. Every dependency edge where it appears as
// either endpoint is removed by the ON DELETE CASCADE foreign keys.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &task.NotFoundError{TaskID: taskID}
	}

	return nil
}

// UpdateStatus changes the task's status plus any subset of other fields in
// one durable write. The combined record is validated before commit, so a
// caller cannot persist e.g. an error_message on a completed task.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, taskID string, status task.Status, update *StatusUpdate) error {
	// BEGIN IMMEDIATE so the read and the write are one atomic unit.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return &task.NotFoundError{TaskID: taskID}
	}
	if err != nil {
		return fmt.Errorf("failed to query task: %w", err)
	}

	t.Status = status
	if update != nil {
		if update.AssignedAgentID != nil {
			t.AssignedAgentID = *update.AssignedAgentID
		}
		if update.OutputData != nil {
			t.OutputData = update.OutputData
		}
		if update.ErrorMessage != nil {
			t.ErrorMessage = *update.ErrorMessage
		}
		if update.StartedAt != nil {
			t.StartedAt = update.StartedAt
		}
		if update.CompletedAt != nil {
			t.CompletedAt = update.CompletedAt
		}
		if update.RetryCount != nil {
			t.RetryCount = *update.RetryCount
		}
	}
	if err := t.Validate(); err != nil {
		return err
	}

	outputJSON, err := encodeJSON(t.OutputData)
	if err != nil {
		return fmt.Errorf("failed to serialize output_data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, assigned_agent_id = ?, output_json = ?, error_message = ?,
			started_at = ?, completed_at = ?, retry_count = ?
		WHERE task_id = ?
	`,
		string(t.Status), nullString(t.AssignedAgentID), outputJSON, nullString(t.ErrorMessage),
		encodeTime(t.StartedAt), encodeTime(t.CompletedAt), t.RetryCount, taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*task.Task, error) {
	var (
		t            task.Task
		status       string
		agentID      sql.NullString
		inputJSON    sql.NullString
		outputJSON   sql.NullString
		createdAt    int64
		startedAt    sql.NullInt64
		completedAt  sql.NullInt64
		timeout      sql.NullInt64
		errorMessage sql.NullString
	)

	err := sc.Scan(
		&t.ID, &t.Name, &t.Priority, &status, &agentID,
		&inputJSON, &outputJSON, &createdAt, &startedAt, &completedAt,
		&timeout, &t.RetryCount, &t.MaxRetries, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := task.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	t.Status = parsed
	t.AssignedAgentID = agentID.String
	t.ErrorMessage = errorMessage.String
	t.CreatedAt = time.Unix(0, createdAt)
	t.StartedAt = decodeTime(startedAt)
	t.CompletedAt = decodeTime(completedAt)
	t.TimeoutSeconds = int(timeout.Int64)

	if t.InputData, err = decodeJSON(inputJSON); err != nil {
		return nil, fmt.Errorf("failed to parse input_data: %w", err)
	}
	if t.InputData == nil {
		t.InputData = map[string]any{}
	}
	if t.OutputData, err = decodeJSON(outputJSON); err != nil {
		return nil, fmt.Errorf("failed to parse output_data: %w", err)
	}

	return &t, nil
}

func encodeJSON(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func decodeTime(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(0, ns.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

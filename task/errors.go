package task

import (
	"fmt"
	"strings"
)

// The error taxonomy for the scheduling core. Every queue and repository
// operation either succeeds or fails with exactly one of these types; callers
// match them with errors.As.

// NotFoundError is returned when a task or dependency ID is unknown.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// QueueFullError is returned when the pending count has reached the queue's
// configured capacity.
type QueueFullError struct {
	Queue   string
	MaxSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue %q is full (max size: %d)", e.Queue, e.MaxSize)
}

// CyclicDependencyError is returned when a proposed edge set would create a
// cycle in the task DAG.
type CyclicDependencyError struct {
	TaskID          string
	DependsOnTaskID string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.TaskID, e.DependsOnTaskID)
}

// InvalidStateError is returned when an operation is illegal for the task's
// current status, e.g. cancelling a running task.
type InvalidStateError struct {
	TaskID    string
	Status    Status
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s task %s with status %s", e.Operation, e.TaskID, e.Status)
}

// TimeoutError is returned by executors when a task runs past its
// timeout_seconds budget. The core only stores the budget; detection is the
// executor's job.
type TimeoutError struct {
	TaskID         string
	TimeoutSeconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s exceeded timeout of %d seconds", e.TaskID, e.TimeoutSeconds)
}

// DependencyNotMetError is returned when starting a task whose dependencies
// are not all completed.
type DependencyNotMetError struct {
	TaskID string
	Unmet  []string
}

func (e *DependencyNotMetError) Error() string {
	return fmt.Sprintf("task %s has unmet dependencies: %s", e.TaskID, strings.Join(e.Unmet, ", "))
}

// MaxRetriesError is returned by the retry protocol when a failed task has
// spent its whole retry budget.
type MaxRetriesError struct {
	TaskID     string
	MaxRetries int
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("task %s exceeded maximum retries (%d)", e.TaskID, e.MaxRetries)
}

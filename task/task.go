package task

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Status represents the execution state of a task.
// Stored in lowercase string form so persisted rows stay readable.
type Status string

const (
	StatusPending   Status = "pending"   // Waiting in queue
	StatusRunning   Status = "running"   // Currently executing
	StatusCompleted Status = "completed" // Finished successfully
	StatusFailed    Status = "failed"    // Finished with error
	StatusCancelled Status = "cancelled" // Cancelled before execution
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority bounds. 0 is the highest priority, 100 the lowest.
const (
	PriorityHigh    = 0
	PriorityDefault = 50
	PriorityLow     = 100
)

// MaxNameLength is the maximum rune length of a task name.
const MaxNameLength = 200

// MaxErrorMessageLength is the maximum rune length of a task error message.
const MaxErrorMessageLength = 2000

// Task is one unit of schedulable work. Fields are mutated only through the
// queue and repository operations; direct mutation bypasses invariant checks.
type Task struct {
	ID              string         `json:"task_id"`
	Name            string         `json:"name"`
	Priority        int            `json:"priority"`
	Status          Status         `json:"status"`
	AssignedAgentID string         `json:"assigned_agent_id,omitempty"`
	InputData       map[string]any `json:"input_data,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	TimeoutSeconds  int            `json:"timeout_seconds,omitempty"` // 0 = no timeout
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// Option configures a task at construction time.
type Option func(*Task)

// WithID sets a caller-supplied task ID instead of a generated UUID.
func WithID(id string) Option {
	return func(t *Task) { t.ID = id }
}

// WithPriority sets the task priority (0 = highest, 100 = lowest).
func WithPriority(p int) Option {
	return func(t *Task) { t.Priority = p }
}

// WithInput sets the input payload.
func WithInput(input map[string]any) Option {
	return func(t *Task) { t.InputData = input }
}

// WithTimeout sets the execution time budget in seconds.
func WithTimeout(seconds int) Option {
	return func(t *Task) { t.TimeoutSeconds = seconds }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(t *Task) { t.MaxRetries = n }
}

// New builds a pending task and validates every cross-field invariant in one
// place. Tasks start with a generated UUID unless WithID is given.
func New(name string, opts ...Option) (*Task, error) {
	t := &Task{
		Name:      name,
		Priority:  PriorityDefault,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.InputData == nil {
		t.InputData = map[string]any{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every invariant the record must satisfy. It runs at
// construction and again after every mutation applied by the queue or the
// repository's UpdateStatus.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if n := utf8.RuneCountInString(t.Name); n < 1 || n > MaxNameLength {
		return fmt.Errorf("task %s: name must be 1-%d characters, got %d", t.ID, MaxNameLength, n)
	}
	if t.Priority < PriorityHigh || t.Priority > PriorityLow {
		return fmt.Errorf("task %s: priority must be in [%d,%d], got %d", t.ID, PriorityHigh, PriorityLow, t.Priority)
	}
	if _, err := ParseStatus(string(t.Status)); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if t.Status == StatusRunning && t.AssignedAgentID == "" {
		return fmt.Errorf("task %s: assigned_agent_id is required when status=running", t.ID)
	}
	if t.OutputData != nil && t.Status != StatusCompleted {
		return fmt.Errorf("task %s: output_data is only valid when status=completed", t.ID)
	}
	if t.ErrorMessage != "" {
		if t.Status != StatusFailed {
			return fmt.Errorf("task %s: error_message is only valid when status=failed", t.ID)
		}
		if n := utf8.RuneCountInString(t.ErrorMessage); n > MaxErrorMessageLength {
			return fmt.Errorf("task %s: error_message exceeds %d characters", t.ID, MaxErrorMessageLength)
		}
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("task %s: created_at is required", t.ID)
	}
	if t.StartedAt != nil && t.StartedAt.Before(t.CreatedAt) {
		return fmt.Errorf("task %s: started_at must be >= created_at", t.ID)
	}
	if t.CompletedAt != nil {
		if t.StartedAt != nil && t.CompletedAt.Before(*t.StartedAt) {
			return fmt.Errorf("task %s: completed_at must be >= started_at", t.ID)
		}
		if t.CompletedAt.Before(t.CreatedAt) {
			return fmt.Errorf("task %s: completed_at must be >= created_at", t.ID)
		}
	}
	if t.TimeoutSeconds < 0 {
		return fmt.Errorf("task %s: timeout_seconds must be positive, got %d", t.ID, t.TimeoutSeconds)
	}
	if t.RetryCount < 0 || t.MaxRetries < 0 {
		return fmt.Errorf("task %s: retry counts must be non-negative", t.ID)
	}
	if t.RetryCount > t.MaxRetries {
		return fmt.Errorf("task %s: retry_count %d exceeds max_retries %d", t.ID, t.RetryCount, t.MaxRetries)
	}
	return nil
}

// Clone returns a copy the caller can read without racing queue mutations.
// Payload maps are copied one level deep.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.InputData != nil {
		cp.InputData = make(map[string]any, len(t.InputData))
		for k, v := range t.InputData {
			cp.InputData[k] = v
		}
	}
	if t.OutputData != nil {
		cp.OutputData = make(map[string]any, len(t.OutputData))
		for k, v := range t.OutputData {
			cp.OutputData[k] = v
		}
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

// Dependency is a directed edge in the task DAG: TaskID waits for
// DependsOnTaskID to complete.
type Dependency struct {
	TaskID          string `json:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id"`
}

// Validate rejects self-edges and empty endpoints.
func (d Dependency) Validate() error {
	if d.TaskID == "" || d.DependsOnTaskID == "" {
		return fmt.Errorf("dependency: both endpoints are required")
	}
	if d.TaskID == d.DependsOnTaskID {
		return fmt.Errorf("dependency: task %s cannot depend on itself", d.TaskID)
	}
	return nil
}

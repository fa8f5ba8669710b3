package events

import (
	"time"
)

// Event is the base interface for all scheduling events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicQueue = "queue"
)

// Event type constants
const (
	EventTypeTaskEnqueued  = "task.enqueued"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeQueueProgress = "queue.progress"
)

// TaskEnqueuedEvent is published when a task is added to the queue.
type TaskEnqueuedEvent struct {
	ID           string
	Name         string
	Priority     int
	Dependencies []string
	Timestamp    time.Time
}

func (e TaskEnqueuedEvent) EventType() string { return EventTypeTaskEnqueued }
func (e TaskEnqueuedEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task transitions to running.
type TaskStartedEvent struct {
	ID        string
	AgentID   string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
// NewlyReady lists the dependent tasks unblocked by this completion.
type TaskCompletedEvent struct {
	ID         string
	NewlyReady []string
	Timestamp  time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails. Dependents of a failed
// task stay blocked, so no ready list accompanies it.
type TaskFailedEvent struct {
	ID           string
	ErrorMessage string
	Timestamp    time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a pending task is cancelled.
type TaskCancelledEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// QueueProgressEvent is a counter snapshot published after queue mutations.
type QueueProgressEvent struct {
	Queue     string
	Pending   int
	Running   int
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e QueueProgressEvent) EventType() string { return EventTypeQueueProgress }
func (e QueueProgressEvent) TaskID() string    { return "" }

// Package queue implements the in-memory priority scheduler over task
// records. A Queue owns the dependency graph for one scheduling domain,
// computes the ready set on demand, and rejects edges that would create a
// cycle. All operations are synchronous; the queue has no internal
// goroutines and never blocks.
package queue

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/MiMinions-ai/MiMinions-sub000/events"
	"github.com/MiMinions-ai/MiMinions-sub000/metrics"
	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// DefaultMaxSize bounds pending tasks when no explicit capacity is given.
const DefaultMaxSize = 1000

// entry is a candidate in the ready heap. Entries can go stale when the task
// they point at changes status; Dequeue skips those lazily instead of
// rebuilding the heap on every state change.
type entry struct {
	priority int
	seq      int
	taskID   string
}

// readyHeap is a min-heap ordered by (priority, insertion sequence), so equal
// priorities resolve in FIFO order.
type readyHeap []entry

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(entry)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxSize sets the maximum number of pending tasks.
func WithMaxSize(n int) Option {
	return func(q *Queue) { q.maxSize = n }
}

// WithBus attaches an event bus; the queue publishes task lifecycle events
// and progress snapshots to it synchronously.
func WithBus(b *events.Bus) Option {
	return func(q *Queue) { q.bus = b }
}

// WithMetrics attaches Prometheus collectors updated on every mutation.
func WithMetrics(m *metrics.Queue) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a priority-ordered work queue whose items form a DAG of
// dependencies. Tasks are stored as private clones; callers only ever see
// copies, so the state machine cannot be bypassed by field mutation.
type Queue struct {
	mu      sync.RWMutex
	name    string
	maxSize int
	paused  bool
	nextSeq int

	tasks      map[string]*task.Task
	order      map[string]int                 // taskID -> insertion sequence
	deps       map[string]map[string]struct{} // taskID -> depends-on set
	dependents map[string]map[string]struct{} // taskID -> dependent set
	ready      readyHeap

	bus     *events.Bus
	metrics *metrics.Queue
}

// New creates an empty queue for one scheduling domain.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		name:       name,
		maxSize:    DefaultMaxSize,
		tasks:      make(map[string]*task.Task),
		order:      make(map[string]int),
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue's scheduling domain name.
func (q *Queue) Name() string { return q.name }

// MaxSize returns the configured pending-task capacity.
func (q *Queue) MaxSize() int { return q.maxSize }

// Enqueue adds t to the queue and records dependencies as edges t -> dep.
// The operation is atomic: on any error the queue and its edge set are left
// exactly as they were. Returns QueueFullError at capacity, NotFoundError
// for an unknown dependency ID, and CyclicDependencyError if the proposed
// edges would close a cycle. A task whose dependencies are already satisfied
// becomes immediately schedulable.
func (q *Queue) Enqueue(t *task.Task, dependencies ...string) error {
	if err := t.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pendingCountLocked() >= q.maxSize {
		return &task.QueueFullError{Queue: q.name, MaxSize: q.maxSize}
	}

	proposed := make(map[string]struct{}, len(dependencies))
	for _, depID := range dependencies {
		if depID == t.ID {
			return &task.CyclicDependencyError{TaskID: t.ID, DependsOnTaskID: depID}
		}
		if _, ok := q.tasks[depID]; !ok {
			return &task.NotFoundError{TaskID: depID}
		}
		proposed[depID] = struct{}{}
	}

	// Carry over edges recorded by a previous Enqueue of the same ID so the
	// cycle check sees the full resulting edge set.
	for depID := range q.deps[t.ID] {
		proposed[depID] = struct{}{}
	}

	if len(proposed) > 0 && q.wouldCycleLocked(t.ID, proposed) {
		if q.metrics != nil {
			q.metrics.CyclesRejected.Inc()
		}
		return &task.CyclicDependencyError{TaskID: t.ID, DependsOnTaskID: dependencies[0]}
	}

	q.tasks[t.ID] = t.Clone()
	q.nextSeq++
	q.order[t.ID] = q.nextSeq

	if len(proposed) > 0 {
		q.deps[t.ID] = proposed
		for depID := range proposed {
			if q.dependents[depID] == nil {
				q.dependents[depID] = make(map[string]struct{})
			}
			q.dependents[depID][t.ID] = struct{}{}
		}
	}

	if t.Status == task.StatusPending && q.isReadyLocked(t.ID) {
		heap.Push(&q.ready, entry{priority: t.Priority, seq: q.order[t.ID], taskID: t.ID})
	}

	if q.metrics != nil {
		q.metrics.TasksEnqueued.Inc()
	}
	if q.bus != nil {
		q.bus.Publish(events.TopicTask, events.TaskEnqueuedEvent{
			ID:           t.ID,
			Name:         t.Name,
			Priority:     t.Priority,
			Dependencies: dependencies,
			Timestamp:    time.Now(),
		})
	}
	q.publishProgressLocked()

	return nil
}

// Dequeue returns the single highest-priority pending task whose dependencies
// are all completed, or nil when the queue is empty, paused, or every pending
// task is blocked. This is a peek with best-effort cleanup: heap entries for
// tasks that left the pending state after being pushed are discarded here
// rather than eagerly on every state change.
func (q *Queue) Dequeue() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paused {
		return nil
	}

	for q.ready.Len() > 0 {
		e := heap.Pop(&q.ready).(entry)

		t, ok := q.tasks[e.taskID]
		if !ok {
			continue // task was removed
		}
		if t.Status != task.StatusPending {
			continue // already started or finished
		}
		if !q.isReadyLocked(e.taskID) {
			continue // dependencies changed since push
		}

		if q.metrics != nil {
			q.metrics.TasksDequeued.Inc()
		}
		return t.Clone()
	}

	return nil
}

// ReadyTasks returns every pending task with fully satisfied dependencies,
// sorted ascending by priority with insertion order breaking ties. Unlike
// Dequeue it consumes nothing and is safe to call repeatedly for monitoring.
func (q *Queue) ReadyTasks() []*task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ready := []*task.Task{}
	for id, t := range q.tasks {
		if t.Status == task.StatusPending && q.isReadyLocked(id) {
			ready = append(ready, t.Clone())
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return q.order[ready[i].ID] < q.order[ready[j].ID]
	})

	return ready
}

// MarkRunning transitions a pending, ready task to running and assigns it to
// agentID. Returns InvalidStateError if the task is not pending and
// DependencyNotMetError if any dependency is not completed.
func (q *Queue) MarkRunning(taskID, agentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return &task.NotFoundError{TaskID: taskID}
	}
	if t.Status != task.StatusPending {
		return &task.InvalidStateError{TaskID: taskID, Status: t.Status, Operation: "start"}
	}
	if unmet := q.unmetLocked(taskID); len(unmet) > 0 {
		return &task.DependencyNotMetError{TaskID: taskID, Unmet: unmet}
	}

	cp := t.Clone()
	now := time.Now()
	cp.Status = task.StatusRunning
	cp.AssignedAgentID = agentID
	cp.StartedAt = &now
	if err := cp.Validate(); err != nil {
		return err
	}
	q.tasks[taskID] = cp

	if q.bus != nil {
		q.bus.Publish(events.TopicTask, events.TaskStartedEvent{ID: taskID, AgentID: agentID, Timestamp: now})
	}
	q.publishProgressLocked()

	return nil
}

// MarkCompleted transitions a task to completed, stamps the completion time,
// and returns the IDs of dependent tasks that just became ready, in scheduling
// order. Those tasks are also re-pushed onto the ready heap.
func (q *Queue) MarkCompleted(taskID string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return nil, &task.NotFoundError{TaskID: taskID}
	}
	if t.Status.Terminal() {
		return nil, &task.InvalidStateError{TaskID: taskID, Status: t.Status, Operation: "complete"}
	}

	cp := t.Clone()
	now := time.Now()
	cp.Status = task.StatusCompleted
	cp.CompletedAt = &now
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	q.tasks[taskID] = cp

	newlyReady := []string{}
	for depID := range q.dependents[taskID] {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != task.StatusPending {
			continue
		}
		if q.isReadyLocked(depID) {
			heap.Push(&q.ready, entry{priority: dep.Priority, seq: q.order[depID], taskID: depID})
			newlyReady = append(newlyReady, depID)
		}
	}
	sort.Slice(newlyReady, func(i, j int) bool {
		a, b := q.tasks[newlyReady[i]], q.tasks[newlyReady[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return q.order[a.ID] < q.order[b.ID]
	})

	if q.metrics != nil {
		q.metrics.TasksCompleted.Inc()
	}
	if q.bus != nil {
		q.bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: taskID, NewlyReady: newlyReady, Timestamp: now})
	}
	q.publishProgressLocked()

	return newlyReady, nil
}

// MarkFailed transitions a task to failed with the given message and a
// completion timestamp. Dependents of a failed task are NOT unblocked: the
// readiness predicate requires every dependency to be completed, so they stay
// blocked until the caller cancels or re-routes them.
func (q *Queue) MarkFailed(taskID, errorMessage string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return &task.NotFoundError{TaskID: taskID}
	}
	if t.Status.Terminal() {
		return &task.InvalidStateError{TaskID: taskID, Status: t.Status, Operation: "fail"}
	}

	cp := t.Clone()
	now := time.Now()
	cp.Status = task.StatusFailed
	cp.ErrorMessage = errorMessage
	cp.CompletedAt = &now
	if err := cp.Validate(); err != nil {
		return err
	}
	q.tasks[taskID] = cp

	if q.metrics != nil {
		q.metrics.TasksFailed.Inc()
	}
	if q.bus != nil {
		q.bus.Publish(events.TopicTask, events.TaskFailedEvent{ID: taskID, ErrorMessage: errorMessage, Timestamp: now})
	}
	q.publishProgressLocked()

	return nil
}

// Cancel transitions a pending task to cancelled. Returns InvalidStateError
// for any other status; a running task cannot be cancelled through the queue.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return &task.NotFoundError{TaskID: taskID}
	}
	if t.Status != task.StatusPending {
		return &task.InvalidStateError{TaskID: taskID, Status: t.Status, Operation: "cancel"}
	}

	cp := t.Clone()
	cp.Status = task.StatusCancelled
	if err := cp.Validate(); err != nil {
		return err
	}
	q.tasks[taskID] = cp

	if q.metrics != nil {
		q.metrics.TasksCancelled.Inc()
	}
	if q.bus != nil {
		q.bus.Publish(events.TopicTask, events.TaskCancelledEvent{ID: taskID, Timestamp: time.Now()})
	}
	q.publishProgressLocked()

	return nil
}

// Get returns a copy of the task by ID.
func (q *Queue) Get(taskID string) (*task.Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return nil, &task.NotFoundError{TaskID: taskID}
	}
	return t.Clone(), nil
}

// Dependencies returns the sorted IDs the given task depends on.
func (q *Queue) Dependencies(taskID string) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if _, ok := q.tasks[taskID]; !ok {
		return nil, &task.NotFoundError{TaskID: taskID}
	}

	ids := make([]string, 0, len(q.deps[taskID]))
	for depID := range q.deps[taskID] {
		ids = append(ids, depID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Pause stops Dequeue from yielding tasks. Enqueue and ReadyTasks are
// unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume re-enables Dequeue.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
}

// Paused reports whether Dequeue is currently disabled.
func (q *Queue) Paused() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// PendingCount returns the number of tasks with status pending.
func (q *Queue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.pendingCountLocked()
}

// RunningCount returns the number of tasks with status running.
func (q *Queue) RunningCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.countLocked(task.StatusRunning)
}

// CompletedCount returns the number of tasks with status completed.
func (q *Queue) CompletedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.countLocked(task.StatusCompleted)
}

// FailedCount returns the number of tasks with status failed.
func (q *Queue) FailedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.countLocked(task.StatusFailed)
}

func (q *Queue) pendingCountLocked() int {
	return q.countLocked(task.StatusPending)
}

func (q *Queue) countLocked(s task.Status) int {
	n := 0
	for _, t := range q.tasks {
		if t.Status == s {
			n++
		}
	}
	return n
}

// isReadyLocked reports whether a task has zero dependencies or every
// dependency resolves to a task whose status is exactly completed. A failed
// or cancelled dependency never satisfies the predicate.
func (q *Queue) isReadyLocked(taskID string) bool {
	for depID := range q.deps[taskID] {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// unmetLocked returns the sorted dependency IDs that are not yet completed.
func (q *Queue) unmetLocked(taskID string) []string {
	var unmet []string
	for depID := range q.deps[taskID] {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != task.StatusCompleted {
			unmet = append(unmet, depID)
		}
	}
	sort.Strings(unmet)
	return unmet
}

func (q *Queue) publishProgressLocked() {
	pending := q.countLocked(task.StatusPending)
	running := q.countLocked(task.StatusRunning)
	completed := q.countLocked(task.StatusCompleted)
	failed := q.countLocked(task.StatusFailed)
	cancelled := q.countLocked(task.StatusCancelled)

	if q.metrics != nil {
		q.metrics.SetStatusCounts(pending, running, completed, failed, cancelled)
	}
	if q.bus != nil {
		q.bus.Publish(events.TopicQueue, events.QueueProgressEvent{
			Queue:     q.name,
			Pending:   pending,
			Running:   running,
			Completed: completed,
			Failed:    failed,
			Timestamp: time.Now(),
		})
	}
}

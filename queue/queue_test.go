package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// mustTask builds a pending task with a fixed ID or fails the test.
func mustTask(t *testing.T, id string, priority int) *task.Task {
	t.Helper()
	tk, err := task.New("task "+id, task.WithID(id), task.WithPriority(priority))
	if err != nil {
		t.Fatalf("failed to build task %s: %v", id, err)
	}
	return tk
}

// mustEnqueue enqueues or fails the test.
func mustEnqueue(t *testing.T, q *Queue, tk *task.Task, deps ...string) {
	t.Helper()
	if err := q.Enqueue(tk, deps...); err != nil {
		t.Fatalf("failed to enqueue %s: %v", tk.ID, err)
	}
}

func TestDequeuePriorityOrder(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "low", 90))
	mustEnqueue(t, q, mustTask(t, "high", 5))
	mustEnqueue(t, q, mustTask(t, "mid", 50))

	var got []string
	for {
		tk := q.Dequeue()
		if tk == nil {
			break
		}
		got = append(got, tk.ID)
	}

	want := []string{"high", "mid", "low"}
	if len(got) != len(want) {
		t.Fatalf("dequeued %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEqualPriorityFIFO(t *testing.T) {
	q := New("default")

	for i := 0; i < 5; i++ {
		mustEnqueue(t, q, mustTask(t, fmt.Sprintf("t%d", i), 50))
	}

	ready := q.ReadyTasks()
	for i, tk := range ready {
		want := fmt.Sprintf("t%d", i)
		if tk.ID != want {
			t.Errorf("ready[%d] = %s, want %s (insertion order must break ties)", i, tk.ID, want)
		}
	}

	for i := 0; i < 5; i++ {
		tk := q.Dequeue()
		want := fmt.Sprintf("t%d", i)
		if tk == nil || tk.ID != want {
			t.Errorf("dequeue %d: got %v, want %s", i, tk, want)
		}
	}
}

func TestQueueFull(t *testing.T) {
	q := New("small", WithMaxSize(2))

	mustEnqueue(t, q, mustTask(t, "a", 50))
	mustEnqueue(t, q, mustTask(t, "b", 50))

	err := q.Enqueue(mustTask(t, "c", 50))
	var full *task.QueueFullError
	if !errors.As(err, &full) {
		t.Fatalf("expected QueueFullError, got %v", err)
	}
	if full.MaxSize != 2 {
		t.Errorf("QueueFullError.MaxSize = %d, want 2", full.MaxSize)
	}

	// Transitioning a task to running frees exactly one slot.
	if err := q.MarkRunning("a", "agent-1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	mustEnqueue(t, q, mustTask(t, "c", 50))

	err = q.Enqueue(mustTask(t, "d", 50))
	if !errors.As(err, &full) {
		t.Fatalf("expected QueueFullError after refill, got %v", err)
	}
}

func TestEnqueueUnknownDependency(t *testing.T) {
	q := New("default")

	err := q.Enqueue(mustTask(t, "a", 50), "ghost")
	var notFound *task.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.TaskID != "ghost" {
		t.Errorf("NotFoundError.TaskID = %s, want ghost", notFound.TaskID)
	}

	// The rejected task must not have been added.
	if _, err := q.Get("a"); err == nil {
		t.Error("rejected task is present in the queue")
	}
}

func TestCycleRejectionIsAtomic(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "a", 50))
	mustEnqueue(t, q, mustTask(t, "b", 50), "a")
	mustEnqueue(t, q, mustTask(t, "c", 50), "b")

	// a -> c closes the cycle a -> c -> b -> a.
	err := q.Enqueue(mustTask(t, "a", 50), "c")
	var cyclic *task.CyclicDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}

	// No partial application: every involved edge set is unchanged.
	for id, want := range map[string][]string{"a": {}, "b": {"a"}, "c": {"b"}} {
		deps, err := q.Dependencies(id)
		if err != nil {
			t.Fatalf("Dependencies(%s) failed: %v", id, err)
		}
		if len(deps) != len(want) {
			t.Errorf("Dependencies(%s) = %v, want %v", id, deps, want)
			continue
		}
		for i := range want {
			if deps[i] != want[i] {
				t.Errorf("Dependencies(%s) = %v, want %v", id, deps, want)
			}
		}
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	q := New("default")
	mustEnqueue(t, q, mustTask(t, "a", 50))

	err := q.Enqueue(mustTask(t, "a", 50), "a")
	var cyclic *task.CyclicDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("expected CyclicDependencyError for self-edge, got %v", err)
	}
}

// TestDiamondScheduling follows the diamond DAG end to end:
// A(0), B(50, deps A), C(50, deps A), D(0, deps B+C).
func TestDiamondScheduling(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "A", 0))
	mustEnqueue(t, q, mustTask(t, "B", 50), "A")
	mustEnqueue(t, q, mustTask(t, "C", 50), "A")
	mustEnqueue(t, q, mustTask(t, "D", 0), "B", "C")

	assertReady(t, q, "A")

	newly, err := q.MarkCompleted("A")
	if err != nil {
		t.Fatalf("MarkCompleted(A) failed: %v", err)
	}
	if len(newly) != 2 || newly[0] != "B" || newly[1] != "C" {
		t.Errorf("newly ready after A = %v, want [B C]", newly)
	}
	assertReady(t, q, "B", "C")

	if _, err := q.MarkCompleted("B"); err != nil {
		t.Fatalf("MarkCompleted(B) failed: %v", err)
	}
	assertReady(t, q, "C")

	newly, err = q.MarkCompleted("C")
	if err != nil {
		t.Fatalf("MarkCompleted(C) failed: %v", err)
	}
	if len(newly) != 1 || newly[0] != "D" {
		t.Errorf("newly ready after C = %v, want [D]", newly)
	}
	assertReady(t, q, "D")
}

// TestDiamondWithFailure verifies dependents of a failed task stay blocked
// forever: readiness requires completed, not merely terminal, dependencies.
func TestDiamondWithFailure(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "A", 0))
	mustEnqueue(t, q, mustTask(t, "B", 50), "A")
	mustEnqueue(t, q, mustTask(t, "C", 50), "A")
	mustEnqueue(t, q, mustTask(t, "D", 0), "B", "C")

	if _, err := q.MarkCompleted("A"); err != nil {
		t.Fatalf("MarkCompleted(A) failed: %v", err)
	}
	if err := q.MarkFailed("B", "boom"); err != nil {
		t.Fatalf("MarkFailed(B) failed: %v", err)
	}
	assertReady(t, q, "C")

	if _, err := q.MarkCompleted("C"); err != nil {
		t.Fatalf("MarkCompleted(C) failed: %v", err)
	}

	// D depends on failed B and must never surface.
	assertReady(t, q)
	if tk := q.Dequeue(); tk != nil {
		t.Errorf("Dequeue returned blocked task %s", tk.ID)
	}

	b, err := q.Get("B")
	if err != nil {
		t.Fatalf("Get(B) failed: %v", err)
	}
	if b.Status != task.StatusFailed || b.ErrorMessage != "boom" {
		t.Errorf("B = %s/%q, want failed/boom", b.Status, b.ErrorMessage)
	}
	if b.CompletedAt == nil {
		t.Error("failed task missing completion timestamp")
	}
}

func TestDequeueSkipsStaleEntries(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "a", 10))
	mustEnqueue(t, q, mustTask(t, "b", 20))

	// Cancel a after it was pushed: its heap entry is now stale and must be
	// skipped lazily by Dequeue rather than surfacing a cancelled task.
	if err := q.Cancel("a"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	tk := q.Dequeue()
	if tk == nil || tk.ID != "b" {
		t.Fatalf("Dequeue = %v, want b", tk)
	}
}

func TestPauseResume(t *testing.T) {
	q := New("default")
	mustEnqueue(t, q, mustTask(t, "a", 50))

	q.Pause()
	if tk := q.Dequeue(); tk != nil {
		t.Errorf("Dequeue yielded %s while paused", tk.ID)
	}
	// Pause affects Dequeue only.
	if got := len(q.ReadyTasks()); got != 1 {
		t.Errorf("ReadyTasks while paused = %d tasks, want 1", got)
	}
	mustEnqueue(t, q, mustTask(t, "b", 50))

	q.Resume()
	if tk := q.Dequeue(); tk == nil || tk.ID != "a" {
		t.Errorf("Dequeue after resume = %v, want a", tk)
	}
}

func TestMarkRunningRequiresReadiness(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "a", 50))
	mustEnqueue(t, q, mustTask(t, "b", 50), "a")

	err := q.MarkRunning("b", "agent-1")
	var unmet *task.DependencyNotMetError
	if !errors.As(err, &unmet) {
		t.Fatalf("expected DependencyNotMetError, got %v", err)
	}
	if len(unmet.Unmet) != 1 || unmet.Unmet[0] != "a" {
		t.Errorf("Unmet = %v, want [a]", unmet.Unmet)
	}

	if err := q.MarkRunning("a", "agent-1"); err != nil {
		t.Fatalf("MarkRunning(a) failed: %v", err)
	}
	a, _ := q.Get("a")
	if a.Status != task.StatusRunning || a.AssignedAgentID != "agent-1" {
		t.Errorf("a = %s/%s, want running/agent-1", a.Status, a.AssignedAgentID)
	}
	if a.StartedAt == nil {
		t.Error("running task missing started_at")
	}

	// Starting a running task again is an invalid transition.
	err = q.MarkRunning("a", "agent-2")
	var invalid *task.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	q := New("default")
	mustEnqueue(t, q, mustTask(t, "a", 50))

	if err := q.MarkRunning("a", "agent-1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	err := q.Cancel("a")
	var invalid *task.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError cancelling running task, got %v", err)
	}
	if invalid.Operation != "cancel" {
		t.Errorf("Operation = %s, want cancel", invalid.Operation)
	}

	mustEnqueue(t, q, mustTask(t, "b", 50))
	if err := q.Cancel("b"); err != nil {
		t.Fatalf("Cancel(b) failed: %v", err)
	}
	b, _ := q.Get("b")
	if b.Status != task.StatusCancelled {
		t.Errorf("b status = %s, want cancelled", b.Status)
	}
}

func TestNoTransitionOutOfTerminal(t *testing.T) {
	q := New("default")
	mustEnqueue(t, q, mustTask(t, "a", 50))

	if _, err := q.MarkCompleted("a"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	var invalid *task.InvalidStateError
	if err := q.MarkFailed("a", "late"); !errors.As(err, &invalid) {
		t.Errorf("failing a completed task: got %v, want InvalidStateError", err)
	}
	if _, err := q.MarkCompleted("a"); !errors.As(err, &invalid) {
		t.Errorf("completing a completed task: got %v, want InvalidStateError", err)
	}
	if err := q.Cancel("a"); !errors.As(err, &invalid) {
		t.Errorf("cancelling a completed task: got %v, want InvalidStateError", err)
	}
}

func TestCounters(t *testing.T) {
	q := New("default")

	mustEnqueue(t, q, mustTask(t, "a", 50))
	mustEnqueue(t, q, mustTask(t, "b", 50))
	mustEnqueue(t, q, mustTask(t, "c", 50))
	mustEnqueue(t, q, mustTask(t, "d", 50))

	if err := q.MarkRunning("a", "agent-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.MarkCompleted("b"); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkFailed("c", "boom"); err != nil {
		t.Fatal(err)
	}

	if got := q.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1", got)
	}
	if got := q.RunningCount(); got != 1 {
		t.Errorf("RunningCount = %d, want 1", got)
	}
	if got := q.CompletedCount(); got != 1 {
		t.Errorf("CompletedCount = %d, want 1", got)
	}
	if got := q.FailedCount(); got != 1 {
		t.Errorf("FailedCount = %d, want 1", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	q := New("default")
	mustEnqueue(t, q, mustTask(t, "a", 50))

	got, err := q.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Status = task.StatusFailed

	again, _ := q.Get("a")
	if again.Status != task.StatusPending {
		t.Error("mutating a returned task leaked into queue state")
	}
}

func TestUnknownTaskOperations(t *testing.T) {
	q := New("default")

	var notFound *task.NotFoundError
	if _, err := q.Get("ghost"); !errors.As(err, &notFound) {
		t.Errorf("Get: got %v, want NotFoundError", err)
	}
	if _, err := q.Dependencies("ghost"); !errors.As(err, &notFound) {
		t.Errorf("Dependencies: got %v, want NotFoundError", err)
	}
	if _, err := q.MarkCompleted("ghost"); !errors.As(err, &notFound) {
		t.Errorf("MarkCompleted: got %v, want NotFoundError", err)
	}
	if err := q.MarkFailed("ghost", "x"); !errors.As(err, &notFound) {
		t.Errorf("MarkFailed: got %v, want NotFoundError", err)
	}
	if err := q.Cancel("ghost"); !errors.As(err, &notFound) {
		t.Errorf("Cancel: got %v, want NotFoundError", err)
	}
	if err := q.MarkRunning("ghost", "agent"); !errors.As(err, &notFound) {
		t.Errorf("MarkRunning: got %v, want NotFoundError", err)
	}
}

// assertReady checks the exact contents and order of the ready set.
func assertReady(t *testing.T, q *Queue, want ...string) {
	t.Helper()
	ready := q.ReadyTasks()
	if len(ready) != len(want) {
		ids := make([]string, len(ready))
		for i, tk := range ready {
			ids[i] = tk.ID
		}
		t.Fatalf("ready set = %v, want %v", ids, want)
	}
	for i, tk := range ready {
		if tk.ID != want[i] {
			t.Errorf("ready[%d] = %s, want %s", i, tk.ID, want[i])
		}
	}
}

// Package retry implements the executor-side retry protocol on top of the
// queue and the repository. Retry is never automatic queue behavior: a
// failed task is reset to pending, its error cleared and retry_count
// incremented, persisted, and re-enqueued — and once the budget is spent the
// runner surfaces MaxRetriesError instead of trying again.
package retry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/MiMinions-ai/MiMinions-sub000/metrics"
	"github.com/MiMinions-ai/MiMinions-sub000/persistence"
	"github.com/MiMinions-ai/MiMinions-sub000/queue"
	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// Policy configures exponential backoff between retry attempts.
type Policy struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (p Policy) backoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = p.MaxElapsedTime
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = p.RandomizationFactor
	return bo
}

// BreakerRegistry manages per-agent circuit breakers so one misbehaving
// executor cannot burn every task's retry budget.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given agent, creating it on first
// access.
func (r *BreakerRegistry) Get(agentID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentID,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count caller cancellation as agent failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[agentID] = cb
	return cb
}

// WorkFunc executes one attempt of a task and returns its output payload.
type WorkFunc func(ctx context.Context, t *task.Task) (map[string]any, error)

// Runner drives a task through run/fail/reset cycles, keeping the queue and
// the repository in step after every transition.
type Runner struct {
	queue    *queue.Queue
	store    persistence.Store
	policy   Policy
	breakers *BreakerRegistry
	metrics  *metrics.Queue
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records retried attempts on the given collectors.
func WithMetrics(m *metrics.Queue) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner over one queue and its backing store.
func NewRunner(q *queue.Queue, store persistence.Store, policy Policy, opts ...Option) *Runner {
	r := &Runner{
		queue:    q,
		store:    store,
		policy:   policy,
		breakers: NewBreakerRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs the task to completion under the retry protocol, executing each
// attempt as agentID via fn. It returns the task's output payload on success
// and MaxRetriesError once the retry budget is spent. An attempt that overruns
// the task's timeout_seconds budget counts as a failure with a TimeoutError
// message.
func (r *Runner) Do(ctx context.Context, taskID, agentID string, fn WorkFunc) (map[string]any, error) {
	cb := r.breakers.Get(agentID)

	var output map[string]any

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		t, err := r.queue.Get(taskID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := r.markRunning(ctx, taskID, agentID); err != nil {
			return backoff.Permanent(err)
		}

		out, attemptErr := r.attempt(ctx, cb, t, fn)
		if attemptErr == nil {
			if err := r.markCompleted(ctx, taskID, out); err != nil {
				return backoff.Permanent(err)
			}
			output = out
			return nil
		}

		if err := r.markFailed(ctx, taskID, attemptErr.Error()); err != nil {
			return backoff.Permanent(err)
		}

		// Circuit open: re-running would fail immediately, leave the task failed.
		if errors.Is(attemptErr, gobreaker.ErrOpenState) || errors.Is(attemptErr, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(attemptErr)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(attemptErr)
		}

		if t.RetryCount >= t.MaxRetries {
			return backoff.Permanent(&task.MaxRetriesError{TaskID: taskID, MaxRetries: t.MaxRetries})
		}

		if err := r.reset(ctx, taskID); err != nil {
			return backoff.Permanent(err)
		}
		return attemptErr
	}

	err := backoff.Retry(operation, backoff.WithContext(r.policy.backoff(), ctx))
	if err != nil {
		return nil, err
	}
	return output, nil
}

// attempt runs one execution through the circuit breaker, enforcing the
// task's timeout budget if it has one.
func (r *Runner) attempt(ctx context.Context, cb *gobreaker.CircuitBreaker, t *task.Task, fn WorkFunc) (map[string]any, error) {
	attemptCtx := ctx
	if t.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(t.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return fn(attemptCtx, t)
	})
	if err != nil {
		if t.TimeoutSeconds > 0 && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &task.TimeoutError{TaskID: t.ID, TimeoutSeconds: t.TimeoutSeconds}
		}
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(map[string]any), nil
}

func (r *Runner) markRunning(ctx context.Context, taskID, agentID string) error {
	if err := r.queue.MarkRunning(taskID, agentID); err != nil {
		return err
	}
	t, err := r.queue.Get(taskID)
	if err != nil {
		return err
	}
	return r.store.UpdateStatus(ctx, taskID, task.StatusRunning, &persistence.StatusUpdate{
		AssignedAgentID: &agentID,
		StartedAt:       t.StartedAt,
	})
}

func (r *Runner) markCompleted(ctx context.Context, taskID string, output map[string]any) error {
	if _, err := r.queue.MarkCompleted(taskID); err != nil {
		return err
	}
	t, err := r.queue.Get(taskID)
	if err != nil {
		return err
	}
	return r.store.UpdateStatus(ctx, taskID, task.StatusCompleted, &persistence.StatusUpdate{
		OutputData:  output,
		CompletedAt: t.CompletedAt,
	})
}

func (r *Runner) markFailed(ctx context.Context, taskID, message string) error {
	if err := r.queue.MarkFailed(taskID, message); err != nil {
		return err
	}
	t, err := r.queue.Get(taskID)
	if err != nil {
		return err
	}
	return r.store.UpdateStatus(ctx, taskID, task.StatusFailed, &persistence.StatusUpdate{
		ErrorMessage: &message,
		CompletedAt:  t.CompletedAt,
	})
}

// reset applies the retry protocol to a failed task: back to pending with the
// error cleared and retry_count incremented, persisted, then re-enqueued
// with its original dependency edges.
func (r *Runner) reset(ctx context.Context, taskID string) error {
	t, err := r.queue.Get(taskID)
	if err != nil {
		return err
	}
	deps, err := r.queue.Dependencies(taskID)
	if err != nil {
		return err
	}

	t.Status = task.StatusPending
	t.ErrorMessage = ""
	t.AssignedAgentID = ""
	t.OutputData = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	t.RetryCount++
	if err := t.Validate(); err != nil {
		return err
	}

	if err := r.store.SaveTask(ctx, t); err != nil {
		return err
	}
	if err := r.queue.Enqueue(t, deps...); err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.TasksRetried.Inc()
	}
	return nil
}

// Package recovery rebuilds an in-memory queue from the durable store after
// a restart. The repository only guarantees the data is retrievable; the
// replay into a fresh queue happens here.
package recovery

import (
	"context"
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/MiMinions-ai/MiMinions-sub000/persistence"
	"github.com/MiMinions-ai/MiMinions-sub000/queue"
	"github.com/MiMinions-ai/MiMinions-sub000/task"
)

// Rebuild loads every task and dependency edge from the store and replays
// them into a fresh queue. Tasks are enqueued in topological order so each
// dependency is known to the queue before its dependents arrive, and
// readiness is recomputed purely from the loaded graph: completed tasks are
// loaded too, otherwise their pending dependents could never become ready.
func Rebuild(ctx context.Context, store persistence.Store, name string, opts ...queue.Option) (*queue.Queue, error) {
	tasks, err := store.LoadAllTasks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	byID := make(map[string]*task.Task, len(tasks))
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids, err := store.LoadDependencies(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load dependencies for %s: %w", t.ID, err)
		}
		deps[t.ID] = ids
	}

	var edges []toposort.Edge
	for _, t := range tasks {
		if len(deps[t.ID]) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, depID := range deps[t.ID] {
			edges = append(edges, toposort.Edge{depID, t.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("stored dependency graph contains cycle: %w", err)
	}

	q := queue.New(name, opts...)
	for _, id := range sorted {
		if id == nil {
			continue
		}
		t := byID[id.(string)]
		if err := q.Enqueue(t, deps[t.ID]...); err != nil {
			return nil, fmt.Errorf("failed to re-enqueue task %s: %w", t.ID, err)
		}
	}

	return q, nil
}

package queue

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// wouldCycleLocked reports whether the union of the committed edge set and
// the proposed depends-on set for taskID contains a cycle. Standard DFS with
// a recursion stack: a back-edge into the stack signals a cycle. The existing
// graph is acyclic, so any new cycle must pass through taskID and a DFS
// rooted there is sufficient.
func (q *Queue) wouldCycleLocked(taskID string, proposed map[string]struct{}) bool {
	neighbors := func(id string) map[string]struct{} {
		if id == taskID {
			return proposed
		}
		return q.deps[id]
	}

	visited := make(map[string]struct{})
	onStack := make(map[string]struct{})

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = struct{}{}
		onStack[id] = struct{}{}

		for next := range neighbors(id) {
			if _, ok := onStack[next]; ok {
				return true // back edge
			}
			if _, ok := visited[next]; ok {
				continue
			}
			if visit(next) {
				return true
			}
		}

		delete(onStack, id)
		return false
	}

	return visit(taskID)
}

// TopologicalOrder returns every known task ID ordered so that dependencies
// come before their dependents. Useful for executors that want a full
// serial execution plan and for replaying tasks into a fresh queue.
func (q *Queue) TopologicalOrder() ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var edges []toposort.Edge
	for id := range q.tasks {
		if len(q.deps[id]) == 0 {
			// Edge from nil keeps isolated tasks in the sort result.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for depID := range q.deps[id] {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// Package metrics provides Prometheus collectors for the task scheduling core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue holds the collectors updated by a task queue. Register one per queue
// with a shared or private registry.
type Queue struct {
	TasksEnqueued  prometheus.Counter
	TasksDequeued  prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksCancelled prometheus.Counter
	TasksRetried   prometheus.Counter
	CyclesRejected prometheus.Counter
	TasksByStatus  *prometheus.GaugeVec
}

// NewQueue creates the queue collectors and registers them with reg.
// The queue name is carried as a constant label so several queues can share
// one registry.
func NewQueue(reg prometheus.Registerer, queueName string) *Queue {
	labels := prometheus.Labels{"queue": queueName}
	factory := promauto.With(reg)

	return &Queue{
		TasksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_enqueued_total",
			Help:        "Total number of tasks enqueued",
			ConstLabels: labels,
		}),
		TasksDequeued: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_dequeued_total",
			Help:        "Total number of tasks handed out by dequeue",
			ConstLabels: labels,
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_completed_total",
			Help:        "Total number of tasks completed successfully",
			ConstLabels: labels,
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_failed_total",
			Help:        "Total number of tasks that failed",
			ConstLabels: labels,
		}),
		TasksCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_cancelled_total",
			Help:        "Total number of tasks cancelled before execution",
			ConstLabels: labels,
		}),
		TasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_tasks_retried_total",
			Help:        "Total number of failed tasks re-enqueued by the retry protocol",
			ConstLabels: labels,
		}),
		CyclesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name:        "taskcore_cycles_rejected_total",
			Help:        "Total number of enqueues rejected for creating a dependency cycle",
			ConstLabels: labels,
		}),
		TasksByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "taskcore_tasks",
			Help:        "Current number of tasks known to the queue by status",
			ConstLabels: labels,
		}, []string{"status"}),
	}
}

// SetStatusCounts updates the per-status gauge from a counter snapshot.
func (q *Queue) SetStatusCounts(pending, running, completed, failed, cancelled int) {
	q.TasksByStatus.WithLabelValues("pending").Set(float64(pending))
	q.TasksByStatus.WithLabelValues("running").Set(float64(running))
	q.TasksByStatus.WithLabelValues("completed").Set(float64(completed))
	q.TasksByStatus.WithLabelValues("failed").Set(float64(failed))
	q.TasksByStatus.WithLabelValues("cancelled").Set(float64(cancelled))
}

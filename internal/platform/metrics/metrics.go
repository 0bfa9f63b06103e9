// Package metrics provides Prometheus collectors for the archival and
// dispatch pipelines plus a /metrics listener for the daemon binaries
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Archival counts archival task and batch outcomes
type Archival struct {
	TasksStarted     prometheus.Counter
	TasksCompleted   prometheus.Counter
	TasksFailed      prometheus.Counter
	TasksCancelled   prometheus.Counter
	BatchesCommitted prometheus.Counter
	RowsArchived     prometheus.Counter
	BatchSeconds     prometheus.Histogram
}

// Dispatch counts command queue outcomes
type Dispatch struct {
	Enqueued    prometheus.Counter
	Dispatched  prometheus.Counter
	Completed   prometheus.Counter
	Failed      prometheus.Counter
	TimedOut    prometheus.Counter
	Conflicts   prometheus.Counter
	ExecSeconds prometheus.Histogram
}

// NewArchival builds and registers the archival collector on reg
// (pass prometheus.DefaultRegisterer in main, a fresh registry in tests)
func NewArchival(reg prometheus.Registerer) *Archival {
	a := &Archival{
		TasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_tasks_started_total",
			Help: "Archive tasks transitioned to running",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_tasks_completed_total",
			Help: "Archive tasks completed successfully",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_tasks_failed_total",
			Help: "Archive tasks that ended in failure",
		}),
		TasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_tasks_cancelled_total",
			Help: "Archive tasks cancelled before completion",
		}),
		BatchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_batches_committed_total",
			Help: "Fully committed copy+delete batches",
		}),
		RowsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_archive_rows_total",
			Help: "Rows moved from hot to cold storage",
		}),
		BatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_archive_batch_seconds",
			Help:    "Wall time per committed batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		a.TasksStarted, a.TasksCompleted, a.TasksFailed, a.TasksCancelled,
		a.BatchesCommitted, a.RowsArchived, a.BatchSeconds,
	)
	return a
}

// NewDispatch builds and registers the dispatch collector on reg
func NewDispatch(reg prometheus.Registerer) *Dispatch {
	d := &Dispatch{
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_enqueued_total",
			Help: "Commands accepted into the queue",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_dispatched_total",
			Help: "Commands promoted to running",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_completed_total",
			Help: "Commands acknowledged as completed",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_failed_total",
			Help: "Commands that ended in failure (including timeouts)",
		}),
		TimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_timed_out_total",
			Help: "Running commands failed by the timeout sweep",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hangar_commands_conflicts_total",
			Help: "Enqueue attempts rejected by the conflict table",
		}),
		ExecSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_command_exec_seconds",
			Help:    "Device round-trip time per executed command",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		d.Enqueued, d.Dispatched, d.Completed, d.Failed,
		d.TimedOut, d.Conflicts, d.ExecSeconds,
	)
	return d
}

// Handler returns the scrape handler for the default registry
func Handler() http.Handler { return promhttp.Handler() }

// ListenAndServe exposes /metrics on addr; blocks like http.ListenAndServe
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus instruments. Registering against
// an injected registerer keeps tests free of duplicate-registration panics.
type Collector struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	tasksFinished *prometheus.CounterVec
	taskRetries   prometheus.Counter
	tokensUsed    prometheus.Counter
	costUSD       prometheus.Counter
}

// NewCollector creates and registers the engine's instruments. A nil
// registerer falls back to the default registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of workflow runs started",
		}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of workflow runs finished, by terminal status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of node tasks finished, by terminal status",
		}, []string{"status", "kind"}),
		taskRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task retry attempts",
		}),
		tokensUsed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total model tokens consumed across runs",
		}),
		costUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Total dollar cost accumulated across runs",
		}),
	}
}

// RunStarted counts a run entering the running state.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.runsStarted.Inc()
}

// RunFinished counts a run reaching a terminal status.
func (c *Collector) RunFinished(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.runsFinished.WithLabelValues(status).Inc()
	c.runDuration.Observe(elapsed.Seconds())
}

// TaskFinished counts a task reaching a terminal status.
func (c *Collector) TaskFinished(status, kind string) {
	if c == nil {
		return
	}
	c.tasksFinished.WithLabelValues(status, kind).Inc()
}

// TaskRetried counts one retry attempt.
func (c *Collector) TaskRetried() {
	if c == nil {
		return
	}
	c.taskRetries.Inc()
}

// SpendRecorded counts tokens and dollars booked to the ledger.
func (c *Collector) SpendRecorded(tokens int, costUSD float64) {
	if c == nil {
		return
	}
	c.tokensUsed.Add(float64(tokens))
	c.costUSD.Add(costUSD)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors, all registered against
// a caller-supplied registry rather than the global default — the engine is
// a library, not a server, so it never assumes ownership of /metrics.
type Metrics struct {
	// OpsTotal counts completed operations by kind (save, patch, pop, ...)
	// and outcome (the engine records ok, error, and timeout).
	OpsTotal *prometheus.CounterVec

	// OpDuration tracks wall-clock latency of committed transactions by
	// operation kind.
	OpDuration *prometheus.HistogramVec

	// RetriesTotal counts internal RetryableBusy retries by operation kind.
	RetriesTotal *prometheus.CounterVec

	// PurgedTotal counts rows removed, by reason. The engine records only
	// compaction, under the single reason "history" (history, archive, and
	// replication records together); TTL evictions are not counted.
	PurgedTotal *prometheus.CounterVec

	// WorkspacesOpen reports the number of workspace files currently held
	// open by the engine.
	WorkspacesOpen prometheus.Gauge
}

// New builds a Metrics bundle and registers it against reg. Pass a fresh
// *prometheus.Registry per engine instance in tests to avoid duplicate
// registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstash_ops_total",
			Help: "Total number of engine operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvstash_op_duration_seconds",
			Help:    "Duration of committed engine transactions by operation kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstash_retries_total",
			Help: "Total number of RetryableBusy retries by operation kind.",
		}, []string{"op"}),
		PurgedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstash_purged_total",
			Help: "Total number of rows purged by TTL sweep or compaction.",
		}, []string{"reason"}),
		WorkspacesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvstash_workspaces_open",
			Help: "Number of workspace files currently open.",
		}),
	}

	reg.MustRegister(
		m.OpsTotal,
		m.OpDuration,
		m.RetriesTotal,
		m.PurgedTotal,
		m.WorkspacesOpen,
	)
	return m
}

// Timer is a small helper for timing operations and observing the elapsed
// duration against a histogram once the operation completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vector with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

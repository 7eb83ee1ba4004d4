/*
Package metrics defines the engine's Prometheus instrumentation: operation
counts, transaction latency, retry counts, and purge counts. The engine only
registers metrics on an injectable registry; exposing them over HTTP is left
to the caller (see spec §1's scope boundary around server-mode networking).

# Usage

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	timer := metrics.NewTimer()
	// ... perform a save ...
	timer.ObserveDurationVec(m.OpDuration, "save")
	m.OpsTotal.WithLabelValues("save", "created").Inc()
*/
package metrics

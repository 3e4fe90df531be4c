// Package metrics exposes the Prometheus counters and histogram
// spec.md §5 names, grounded on the teacher's gateway/metrics
// collector.go (promauto package-level vars, a thin Collector facade
// over them).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invokeCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wasm_invoke_count_total",
		Help: "Total number of guest invocations.",
	})

	invokeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasm_invoke_errors_total",
		Help: "Total number of guest invocations that resulted in an error response.",
	}, []string{"function_id", "reason"})

	invokeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wasm_invoke_latency_seconds",
		Help:    "Guest invocation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function_id"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_runner_cache_hits",
		Help: "Artifact cache hits.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_runner_cache_misses",
		Help: "Artifact cache misses.",
	})
)

// Collector is a thin facade so callers don't reach into package
// globals directly, matching the teacher's Collector wrapper.
type Collector struct{}

// NewCollector returns a Collector bound to the package's registered
// metrics.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordInvocation increments the invocation counter and observes
// latency for functionID.
func (c *Collector) RecordInvocation(functionID string, seconds float64) {
	invokeCount.Inc()
	invokeLatency.WithLabelValues(functionID).Observe(seconds)
}

// RecordError increments the error counter for functionID, labelled
// by reason (timeout, guest_trap, pool_exhausted, ...).
func (c *Collector) RecordError(functionID, reason string) {
	invokeErrors.WithLabelValues(functionID, reason).Inc()
}

// RecordCacheHit increments the cache hit counter.
func (c *Collector) RecordCacheHit() { cacheHits.Inc() }

// RecordCacheMiss increments the cache miss counter.
func (c *Collector) RecordCacheMiss() { cacheMisses.Inc() }

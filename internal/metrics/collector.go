// Package metrics tracks per-cycle document counters and extraction
// latencies, exposing both an in-process snapshot and a Prometheus
// registry for the monitoring API.
package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/ledgerflow/ingestor/internal/model"
)

const (
	DocumentsProcessedTotal       = "documents_processed_total"
	DocumentsSuccessTotal         = "documents_success_total"
	DocumentsReviewTotal          = "documents_review_total"
	DocumentsFailedTotal          = "documents_failed_total"
	DocumentsDuplicateSkippedTotal = "documents_duplicate_skipped_total"
)

// Collector accumulates named counters and latency samples in memory.
// It is safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]int64
	latencies  []int64
	prometheus *promCollector
}

// NewCollector returns an empty Collector that mirrors its counters into
// prom's own registry; a nil prom disables the Prometheus mirror.
func NewCollector(prom *promCollector) *Collector {
	return &Collector{
		counters:   make(map[string]int64),
		prometheus: prom,
	}
}

// Increment adds value to the named counter.
func (c *Collector) Increment(name string, value int64) {
	c.mu.Lock()
	c.counters[name] += value
	c.mu.Unlock()

	if c.prometheus != nil {
		c.prometheus.increment(name, value)
	}
}

// ObserveLatency records one latency sample in milliseconds.
func (c *Collector) ObserveLatency(valueMs int64) {
	c.mu.Lock()
	c.latencies = append(c.latencies, valueMs)
	c.mu.Unlock()

	if c.prometheus != nil {
		c.prometheus.observeLatency(valueMs)
	}
}

// Snapshot returns the current counters and the p95 latency across every
// sample observed since the Collector was created.
func (c *Collector) Snapshot() model.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p95 int64
	if n := len(c.latencies); n > 0 {
		ordered := make([]int64, n)
		copy(ordered, c.latencies)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
		idx := int(0.95 * float64(n-1))
		p95 = ordered[idx]
	}

	return model.MetricsSnapshot{
		ThroughputTotal:     c.counters[DocumentsProcessedTotal],
		SuccessTotal:        c.counters[DocumentsSuccessTotal],
		ReviewTotal:         c.counters[DocumentsReviewTotal],
		FailureTotal:        c.counters[DocumentsFailedTotal],
		DuplicateSkipsTotal: c.counters[DocumentsDuplicateSkippedTotal],
		LatencyP95Ms:        p95,
	}
}

// Handler serves Prometheus text exposition for this Collector's registry,
// or a 404 handler if it was built without one.
func (c *Collector) Handler() http.Handler {
	if c.prometheus == nil {
		return http.NotFoundHandler()
	}
	return c.prometheus.Handler()
}

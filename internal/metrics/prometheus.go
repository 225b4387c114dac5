package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promCollector mirrors Collector's counters and latency samples into a
// dedicated Prometheus registry so /metrics can serve text exposition
// without polluting the global default registry.
type promCollector struct {
	registry  *prometheus.Registry
	counters  map[string]prometheus.Counter
	latency   prometheus.Histogram
}

// NewPrometheusCollector builds a fresh registry with one counter per known
// metric name plus a latency histogram, suitable for passing to
// NewCollector.
func NewPrometheusCollector() *promCollector {
	registry := prometheus.NewRegistry()

	names := []string{
		DocumentsProcessedTotal,
		DocumentsSuccessTotal,
		DocumentsReviewTotal,
		DocumentsFailedTotal,
		DocumentsDuplicateSkippedTotal,
	}

	counters := make(map[string]prometheus.Counter, len(names))
	for _, name := range names {
		counters[name] = promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ingestor_" + name,
			Help: "Cumulative count of " + name + ".",
		})
	}

	latency := promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestor_extraction_latency_milliseconds",
		Help:    "Extractor call latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(50, 2, 12),
	})

	return &promCollector{registry: registry, counters: counters, latency: latency}
}

func (p *promCollector) increment(name string, value int64) {
	if counter, ok := p.counters[name]; ok {
		counter.Add(float64(value))
	}
}

func (p *promCollector) observeLatency(valueMs int64) {
	p.latency.Observe(float64(valueMs))
}

// Handler returns an http.Handler serving Prometheus text exposition for
// this collector's registry.
func (p *promCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

package nvdb

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the prometheus.Registry the `metrics` augmentation exposes via
// DB.MetricsHandler, grounded on the teacher corpus's health/metrics
// endpoints generalized from HTTP-framework-specific handlers to a plain
// promhttp.Handler any caller can mount.
type Metrics struct {
	registry  *prometheus.Registry
	opsTotal  *prometheus.CounterVec
	opLatency *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nvdb_operations_total",
			Help: "Count of nvdb operations by name and outcome.",
		}, []string{"op", "outcome"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nvdb_operation_duration_seconds",
			Help:    "Latency of nvdb operations by name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.opsTotal, m.opLatency)
	return m
}

func (m *Metrics) observe(op string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opsTotal.WithLabelValues(op, outcome).Inc()
	m.opLatency.WithLabelValues(op).Observe(seconds)
}

// MetricsHandler returns an http.Handler serving this DB's Prometheus
// metrics, or nil when the `metrics` augmentation wasn't enabled.
func (db *DB) MetricsHandler() http.Handler {
	if db.metrics == nil {
		return nil
	}
	return promhttp.HandlerFor(db.metrics.registry, promhttp.HandlerOpts{})
}

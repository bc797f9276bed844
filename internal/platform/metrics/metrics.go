package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the transport-level Prometheus metrics. Module-level metrics
// live next to their module.
type Metrics struct {
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers the transport metrics.
func New() *Metrics {
	return &Metrics{
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "limscore_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, status).Observe(seconds)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the result lifecycle module.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	CriticalFlags     prometheus.Counter
	DeliveryFailures  prometheus.Counter
	LifecycleDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "limscore_result_transitions_total",
			Help: "Total lifecycle transitions by action and outcome",
		}, []string{"action", "outcome"}),
		CriticalFlags: promauto.NewCounter(prometheus.CounterOpts{
			Name: "limscore_result_critical_flags_total",
			Help: "Total results flagged critical at entry or edit",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "limscore_result_delivery_failures_total",
			Help: "Total post-release delivery attempts that failed",
		}),
		LifecycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "limscore_result_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action"}),
	}
}

// IncTransition records a transition attempt outcome.
func (m *Metrics) IncTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// IncCriticalFlag records a critical auto-flag.
func (m *Metrics) IncCriticalFlag() {
	if m == nil {
		return
	}
	m.CriticalFlags.Inc()
}

// IncDeliveryFailure records a failed post-release delivery.
func (m *Metrics) IncDeliveryFailure() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

// ObserveDuration records how long a lifecycle operation took.
func (m *Metrics) ObserveDuration(action string, start time.Time) {
	if m == nil {
		return
	}
	m.LifecycleDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	Enqueued     prometheus.Counter
	Dropped      prometheus.Counter
	BufferDepth  prometheus.Gauge
	Published    *prometheus.CounterVec
	SinkFailures *prometheus.CounterVec
}

// New creates a Metrics instance with audit metrics registered.
func New() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_audit_events_enqueued_total",
			Help: "Total number of audit events accepted into the buffer",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full",
		}),
		BufferDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perimeter_audit_buffer_depth",
			Help: "Current number of audit events waiting in the buffer",
		}),
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_audit_events_published_total",
			Help: "Total number of audit events delivered, by sink",
		}, []string{"sink"}),
		SinkFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_audit_sink_failures_total",
			Help: "Total number of failed sink deliveries, by sink",
		}, []string{"sink"}),
	}
}

// IncEnqueued increments the enqueued counter.
func (m *Metrics) IncEnqueued() {
	m.Enqueued.Inc()
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

// SetBufferDepth sets the buffer depth gauge.
func (m *Metrics) SetBufferDepth(n int) {
	m.BufferDepth.Set(float64(n))
}

// AddPublished adds to the published counter for a sink.
func (m *Metrics) AddPublished(sink string, n int) {
	m.Published.WithLabelValues(sink).Add(float64(n))
}

// IncSinkFailures increments the failure counter for a sink.
func (m *Metrics) IncSinkFailures(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

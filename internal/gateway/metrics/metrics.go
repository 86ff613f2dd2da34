package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_gateway_requests_total",
			Help: "Total number of requests by terminal pipeline state",
		}, []string{"state"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perimeter_gateway_request_duration_seconds",
			Help:    "End-to-end request latency through the gateway",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// RecordRequest counts a finished request under its terminal state.
func (m *Metrics) RecordRequest(state string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(state).Inc()
	m.RequestDuration.Observe(duration.Seconds())
}

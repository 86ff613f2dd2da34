package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsAllowed  prometheus.Counter
	RequestsExceeded *prometheus.CounterVec
	DegradedChecks   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RequestsAllowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_ratelimit_allowed_total",
			Help: "Total number of requests that passed every rate limit scope",
		}),
		RequestsExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_ratelimit_exceeded_total",
			Help: "Total number of requests rejected by a rate limit scope",
		}, []string{"scope"}),
		DegradedChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_ratelimit_degraded_total",
			Help: "Total number of checks decided by the store-outage policy instead of counters",
		}, []string{"policy"}),
	}
}

func (m *Metrics) IncAllowed() {
	m.RequestsAllowed.Inc()
}

func (m *Metrics) IncExceeded(scope string) {
	m.RequestsExceeded.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncDegraded(policy string) {
	m.DegradedChecks.WithLabelValues(policy).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	StoreErrors prometheus.Counter
	Degraded    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter, by endpoint class and key kind",
		}, []string{"class", "kind"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bgv_ratelimit_store_errors_total",
			Help: "Errors returned by the primary rate limit store",
		}),
		Degraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bgv_ratelimit_degraded",
			Help: "1 while the limiter is serving from the in-memory fallback",
		}),
	}
}

func (m *Metrics) IncrementRejected(class, kind string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class, kind).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

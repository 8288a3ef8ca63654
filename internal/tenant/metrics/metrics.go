package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenant registry.
type Metrics struct {
	TenantCreated     prometheus.Counter
	TenantStatusFlips *prometheus.CounterVec
	PausedSkipped     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TenantCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bgv_tenants_created_total",
			Help: "Total number of tenants registered",
		}),
		TenantStatusFlips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_tenant_status_changes_total",
			Help: "Tenant activations and deactivations",
		}, []string{"status"}),
		PausedSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bgv_tenant_sweep_skipped_total",
			Help: "Tenants with open cases skipped by the SLA sweep because they are inactive",
		}),
	}
}

func (m *Metrics) IncrementTenantCreated() {
	if m == nil {
		return
	}
	m.TenantCreated.Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	if m == nil {
		return
	}
	m.TenantStatusFlips.WithLabelValues(status).Inc()
}

func (m *Metrics) AddSkipped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.PausedSkipped.Add(float64(n))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification workflow: transitions,
// evidence validation, risk movement, SLA sweeps, timeline health and the
// hashing worker.
//
// All methods are safe on a nil *Metrics so callers can leave metrics unset.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	EvidenceValidations  *prometheus.CounterVec
	RiskLevelChanges     *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SweepCases           *prometheus.CounterVec
	TimelineAppendFailed prometheus.Counter
	TimelinePublished    *prometheus.CounterVec
	HashOutcomes         *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
}

// New registers the verification metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the verification metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_check_transitions_total",
			Help: "Check status transition requests by from, to and outcome",
		}, []string{"from", "to", "outcome"}),
		EvidenceValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_evidence_validations_total",
			Help: "Evidence validations by check type and whether required evidence was present",
		}, []string{"check_type", "sufficient"}),
		RiskLevelChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_risk_level_changes_total",
			Help: "Risk level band changes by new level",
		}, []string{"level"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgv_sla_sweep_duration_seconds",
			Help:    "Duration of SLA sweeps across all tenants",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		SweepCases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_sla_sweep_cases_total",
			Help: "Cases visited by the SLA sweep by result",
		}, []string{"result"}),
		TimelineAppendFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "bgv_timeline_append_failures_total",
			Help: "Timeline entries that could not be persisted",
		}),
		TimelinePublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_timeline_published_total",
			Help: "Timeline entries relayed to the event stream by result",
		}, []string{"result"}),
		HashOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_document_hash_total",
			Help: "Document hashing outcomes",
		}, []string{"status"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_notifications_total",
			Help: "Notifications by kind and result",
		}, []string{"kind", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgv_operation_duration_seconds",
			Help:    "Duration of verification service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, outcome).Inc()
}

func (m *Metrics) RecordEvidenceValidation(checkType string, sufficient bool) {
	if m == nil {
		return
	}
	m.EvidenceValidations.WithLabelValues(checkType, boolLabel(sufficient)).Inc()
}

func (m *Metrics) RecordRiskLevelChange(level string) {
	if m == nil {
		return
	}
	m.RiskLevelChanges.WithLabelValues(level).Inc()
}

// ObserveSweep records the duration of a sweep. Call with time.Now() at the
// start of the sweep.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordSweepCase(result string) {
	if m == nil {
		return
	}
	m.SweepCases.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTimelineAppendFailed() {
	if m == nil {
		return
	}
	m.TimelineAppendFailed.Inc()
}

func (m *Metrics) RecordTimelinePublished(ok bool) {
	if m == nil {
		return
	}
	m.TimelinePublished.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) RecordHash(status string) {
	if m == nil {
		return
	}
	m.HashOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(kind, resultLabel(ok)).Inc()
}

// ObserveOperation records how long a service operation took.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

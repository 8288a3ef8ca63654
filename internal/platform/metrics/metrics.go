package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process level Prometheus metrics shared by background jobs.
type Metrics struct {
	BuildInfo   *prometheus.GaugeVec
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// New creates and registers the process metrics.
func New() *Metrics {
	return &Metrics{
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bgv_build_info",
			Help: "Build information of the running binary",
		}, []string{"version"}),
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bgv_scheduler_job_runs_total",
			Help: "Scheduled job executions by job and result",
		}, []string{"job", "result"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgv_scheduler_job_duration_seconds",
			Help:    "Duration of scheduled job executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
}

// ObserveJob records one run of a scheduled job.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts jobs, items and suppressed failures. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	jobsTotal       *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	suppressedTotal *prometheus.CounterVec
	stageSeconds    *prometheus.HistogramVec
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_grader_jobs_total",
				Help: "Jobs that reached a terminal state",
			},
			[]string{"status"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_grader_items_total",
				Help: "Case-study pipelines that finished, by outcome",
			},
			[]string{"status"},
		),
		suppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_grader_suppressed_errors_total",
				Help: "Best-effort failures that were logged and skipped",
			},
			[]string{"stage"},
		),
		stageSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_grader_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(m.jobsTotal)
	reg.MustRegister(m.itemsTotal)
	reg.MustRegister(m.suppressedTotal)
	reg.MustRegister(m.stageSeconds)

	return m
}

func (m *Metrics) jobDone(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) itemDone(status string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) suppressed(stage string) {
	if m == nil {
		return
	}
	m.suppressedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

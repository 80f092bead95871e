package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Degraded      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_pipeline_runs_total",
			Help: "Pipeline runs by outcome and failing kind.",
		}, []string{"outcome", "kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meeting_pipeline_stage_duration_seconds",
			Help:    "Time spent reaching each pipeline stage.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_pipeline_degraded_total",
			Help: "Stages that continued with an empty value.",
		}, []string{"stage"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_pipeline_notifications_total",
			Help: "Host email notifications by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.StageDuration, m.Degraded, m.Notifications)
	}
	return m
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the collectors for pipeline and evaluation runs. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	StageDuration      *prometheus.HistogramVec
	RollupRows         *prometheus.CounterVec
	Evaluations        *prometheus.CounterVec
	EvaluationFailures *prometheus.CounterVec
	Cycles             *prometheus.CounterVec
	EpicsByRiskLevel   *prometheus.GaugeVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epicrisk_stage_duration_seconds",
				Help:    "Duration of a workspace stage (rollup, evaluate) in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "result"},
		),
		RollupRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epicrisk_rollup_rows_total",
				Help: "Daily rollup rows upserted",
			},
			[]string{"workspace"},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epicrisk_evaluations_total",
				Help: "Epic evaluations recorded, by resulting risk level",
			},
			[]string{"workspace", "risk_level"},
		),
		EvaluationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epicrisk_evaluation_failures_total",
				Help: "Epics skipped because their evaluation failed",
			},
			[]string{"workspace", "stage"},
		),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epicrisk_cycles_total",
				Help: "Scheduler cycles run, by result",
			},
			[]string{"result"},
		),
		EpicsByRiskLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "epicrisk_epics",
				Help: "Epics per risk level from the latest snapshots",
			},
			[]string{"workspace", "risk_level"},
		),
	}
	r.reg.MustRegister(
		r.StageDuration, r.RollupRows, r.Evaluations, r.EvaluationFailures, r.Cycles, r.EpicsByRiskLevel,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *Registry) ObserveStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage, resultLabel(err)).Observe(d.Seconds())
}

func (r *Registry) AddRollupRows(workspace string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.RollupRows.WithLabelValues(workspace).Add(float64(n))
}

func (r *Registry) IncEvaluation(workspace, riskLevel string) {
	if r == nil {
		return
	}
	r.Evaluations.WithLabelValues(workspace, riskLevel).Inc()
}

func (r *Registry) IncFailure(workspace, stage string) {
	if r == nil {
		return
	}
	r.EvaluationFailures.WithLabelValues(workspace, stage).Inc()
}

func (r *Registry) IncCycle(err error) {
	if r == nil {
		return
	}
	r.Cycles.WithLabelValues(resultLabel(err)).Inc()
}

// SetRiskLevels replaces the per-level gauges of one workspace.
func (r *Registry) SetRiskLevels(workspace string, counts map[string]int) {
	if r == nil {
		return
	}
	for _, level := range []string{"on_track", "at_risk", "off_track"} {
		r.EpicsByRiskLevel.WithLabelValues(workspace, level).Set(float64(counts[level]))
	}
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

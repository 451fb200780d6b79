// Package metrics exposes Prometheus metrics for the consultation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicedoc"

// Recorder holds the pipeline collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration      *prometheus.HistogramVec
	stageOutcomes      *prometheus.CounterVec
	consultations      *prometheus.CounterVec
	consultDuration    prometheus.Histogram
	consultationsInFly prometheus.Gauge
	synthesisTier      *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		stageOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_outcomes_total",
				Help:      "Pipeline stage outcomes",
			},
			[]string{"stage", "outcome"}, // outcome: ok or a failure kind
		),
		consultations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consultations_total",
				Help:      "Consultations processed, by final status",
			},
			[]string{"status"},
		),
		consultDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consultation_duration_seconds",
				Help:      "End-to-end consultation duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		consultationsInFly: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consultations_active",
				Help:      "Consultations currently in progress",
			},
		),
		synthesisTier: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_tier_total",
				Help:      "Synthesized diagnoses by provider tier",
			},
			[]string{"provider"}, // "none" when every tier failed
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.stageDuration,
		r.stageOutcomes,
		r.consultations,
		r.consultDuration,
		r.consultationsInFly,
		r.synthesisTier,
	)
	return r
}

// ObserveStage records a stage's duration and outcome.
func (r *Recorder) ObserveStage(stage, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	r.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// ConsultationStarted marks a consultation as in progress.
func (r *Recorder) ConsultationStarted() {
	if r == nil {
		return
	}
	r.consultationsInFly.Inc()
}

// ConsultationFinished records the final status and duration.
func (r *Recorder) ConsultationFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.consultationsInFly.Dec()
	r.consultations.WithLabelValues(status).Inc()
	r.consultDuration.Observe(d.Seconds())
}

// SynthesisTier records which provider spoke the diagnosis.
func (r *Recorder) SynthesisTier(provider string) {
	if r == nil {
		return
	}
	r.synthesisTier.WithLabelValues(provider).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Package metrics собирает метрики игрового движка в собственный реестр Prometheus.
package metrics

import (
	"net/http"
	"time"

	"chaos-stories/internal/game"
	"chaos-stories/internal/transition"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chaos_stories"

// Metrics implements service.ServiceMetrics.
type Metrics struct {
	registry *prometheus.Registry

	phaseTransitions    *prometheus.CounterVec
	rejectedTransitions *prometheus.CounterVec
	choices             *prometheus.CounterVec
	playthroughs        *prometheus.CounterVec
	preloads            *prometheus.CounterVec
	preloadFailures     prometheus.Counter
	preloadDuration     prometheus.Histogram
	ceilingHits         prometheus.Counter
	sessionsActive      prometheus.Gauge
}

// New registers all collectors in a fresh registry, together with the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Используем promauto.With(registry), чтобы не трогать глобальный DefaultRegistry
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		phaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of applied game phase transitions.",
		}, []string{"from", "to"}),
		rejectedTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_rejected_total",
			Help:      "Total number of rejected game phase transitions.",
		}, []string{"from", "to"}),
		choices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "choices_total",
			Help:      "Total number of choices made, by whether the choice was character specific.",
		}, []string{"character_specific"}),
		playthroughs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playthroughs_finished_total",
			Help:      "Total number of finished playthroughs by outcome and ending.",
		}, []string{"outcome", "ending_id"}),
		preloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_preloads_total",
			Help:      "Total number of asset preload requests by result.",
		}, []string{"result"}),
		preloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_failures_total",
			Help:      "Total number of asset preloads that failed.",
		}),
		preloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asset_preload_duration_seconds",
			Help:      "Duration of asset loads that reached the loader.",
			Buckets:   []float64{.01, .025, .05, .1, .2, .5, 1, 2},
		}),
		ceilingHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_ceiling_hits_total",
			Help:      "Total number of transitions that proceeded before their background image was ready.",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live game sessions.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PhaseChanged(from, to game.Phase) {
	m.phaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) TransitionRejected(from, to game.Phase) {
	m.rejectedTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) AssetLoaded(result transition.LoadResult, elapsed time.Duration) {
	m.preloads.WithLabelValues(string(result)).Inc()
	switch result {
	case transition.LoadFailed:
		m.preloadFailures.Inc()
		m.preloadDuration.Observe(elapsed.Seconds())
	case transition.LoadOK:
		m.preloadDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) PreloadCeilingHit() {
	m.ceilingHits.Inc()
}

func (m *Metrics) ChoiceMade(characterSpecific bool) {
	label := "false"
	if characterSpecific {
		label = "true"
	}
	m.choices.WithLabelValues(label).Inc()
}

func (m *Metrics) PlaythroughFinished(outcome, endingID string) {
	m.playthroughs.WithLabelValues(outcome, endingID).Inc()
}

func (m *Metrics) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

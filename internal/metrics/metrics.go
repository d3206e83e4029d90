// Package metrics exposes Prometheus collectors for the call pipeline.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "almcoach"

type Metrics struct {
	registry *prometheus.Registry

	TurnDuration     *prometheus.HistogramVec
	SuggestionsTotal *prometheus.CounterVec
	LLMRequests      *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	ObjectionsTotal  *prometheus.CounterVec
	RateLimitHits    *prometheus.CounterVec
	EventErrors      *prometheus.CounterVec
	ActiveCalls      prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Time to produce suggestions for one utterance",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		),
		SuggestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suggestions_served_total",
				Help:      "Suggestions returned to agents, by generator source",
			},
			[]string{"source"},
		),
		LLMRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Model calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		LLMDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Model call latency including retries",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ObjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objections_detected_total",
				Help:      "Objections detected in lead utterances",
			},
			[]string{"objection"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the per-call rate limiter",
			},
			[]string{"scope"},
		),
		EventErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_sink_errors_total",
				Help:      "Events an analytics sink failed to accept",
			},
			[]string{"sink"},
		),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls with a live session",
		}),
	}
	m.registry.MustRegister(
		m.TurnDuration,
		m.SuggestionsTotal,
		m.LLMRequests,
		m.LLMDuration,
		m.ObjectionsTotal,
		m.RateLimitHits,
		m.EventErrors,
		m.ActiveCalls,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveTurn(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SuggestionServed(source string) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) LLMCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(operation, outcome).Inc()
	m.LLMDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) Objection(objection string) {
	if m == nil {
		return
	}
	m.ObjectionsTotal.WithLabelValues(objection).Inc()
}

func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(scope).Inc()
}

func (m *Metrics) EventError(sink string) {
	if m == nil {
		return
	}
	m.EventErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

func (m *Metrics) CallEnded() {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
}

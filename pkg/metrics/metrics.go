// Package metrics exposes Prometheus metrics of the intake service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake"

// Metrics holds every collector on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	Turns                *prometheus.CounterVec
	TurnErrors           *prometheus.CounterVec
	TransitionsRewritten *prometheus.CounterVec
	ToolCalls            *prometheus.CounterVec
	LLMRequests          *prometheus.CounterVec
	LLMDuration          *prometheus.HistogramVec
	LLMTokens            *prometheus.CounterVec
	TelemetryDropped     prometheus.Counter
	TurnDuration         prometheus.Histogram
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed turns by resulting state and transition kind.",
		}, []string{"state", "kind"}),
		TurnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Failed turns by state.",
		}, []string{"state"}),
		TransitionsRewritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rewritten_total",
			Help:      "Requested transitions rewritten by the transition graph, by source state.",
		}, []string{"from"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Dispatched tool calls by tool and outcome.",
		}, []string{"tool", "status"}),
		LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM requests by model and status.",
		}, []string{"model", "status"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"model"}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model.",
		}, []string{"model"}),
		TelemetryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Turn records dropped because the telemetry queue was full.",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a processed turn, LLM calls included.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.Turns, m.TurnErrors, m.TransitionsRewritten, m.ToolCalls,
		m.LLMRequests, m.LLMDuration, m.LLMTokens, m.TelemetryDropped, m.TurnDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackActive registers the active_conversations gauge, read from fn at scrape time.
func (m *Metrics) TrackActive(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_conversations",
		Help:      "Conversations currently held in memory.",
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks feeding the conversation metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Record.ToState, string(e.Record.Kind)).Inc()
			if e.Record.Kind != domain.KindStart {
				m.TurnDuration.Observe(float64(e.Record.ProcessingMs) / 1000)
			}
		},
		OnRewrite: func(_ context.Context, e *domain.RewriteEvent) {
			m.TransitionsRewritten.WithLabelValues(e.From).Inc()
		},
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			m.ToolCalls.WithLabelValues(e.ToolName, status).Inc()
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			m.TurnErrors.WithLabelValues(e.State).Inc()
		},
	}
}

// ObserveLLMRequest records one LLM request. It satisfies llm.Observer.
func (m *Metrics) ObserveLLMRequest(model, status string, elapsed time.Duration, usage ports.Usage) {
	m.LLMRequests.WithLabelValues(model, status).Inc()
	m.LLMDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if usage.TotalTokens > 0 {
		m.LLMTokens.WithLabelValues(model).Add(float64(usage.TotalTokens))
	}
}

// RecordDropped counts a dropped telemetry record. It fits telemetry.WithDropHook.
func (m *Metrics) RecordDropped(domain.TurnRecord) {
	m.TelemetryDropped.Inc()
}

package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dialog collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	steps         *prometheus.CounterVec
	retries       *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	completions   *prometheus.CounterVec
	events        *prometheus.CounterVec
	turns         *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors. Go runtime and process
// collectors are included so /metrics is useful on its own.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddialog_steps_completed_total",
				Help: "Total number of successfully recognized steps",
			},
			[]string{"dialog", "step"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddialog_step_retries_total",
				Help: "Total number of failed recognitions that re-prompted a step",
			},
			[]string{"dialog", "step"},
		),
		confirmations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddialog_confirmations_total",
				Help: "Total number of answered training confirmations",
			},
			[]string{"dialog", "confirmed"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddialog_dialogs_completed_total",
				Help: "Total number of completed dialog runs",
			},
			[]string{"dialog"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddialog_telemetry_events_total",
				Help: "Total number of emitted custom telemetry events",
			},
			[]string{"event"},
		),
		turns: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ddialog_turn_duration_seconds",
				Help:    "Duration of turn processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.steps, m.retries, m.confirmations, m.completions, m.events, m.turns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the counters.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepComplete: func(_ context.Context, e *domain.StepEvent) {
			m.steps.WithLabelValues(e.Dialog, e.Step).Inc()
		},
		OnStepRetry: func(_ context.Context, e *domain.StepEvent) {
			m.retries.WithLabelValues(e.Dialog, e.Step).Inc()
		},
		OnConfirmation: func(_ context.Context, e *domain.StepEvent) {
			confirmed := e.Confirmed != nil && *e.Confirmed
			m.confirmations.WithLabelValues(e.Dialog, strconv.FormatBool(confirmed)).Inc()
		},
		OnDialogComplete: func(_ context.Context, e *domain.DialogEvent) {
			m.completions.WithLabelValues(e.Dialog).Inc()
		},
	}
}

// Track implements ports.TelemetrySink.
func (m *Metrics) Track(_ context.Context, event domain.TelemetryEvent) error {
	m.events.WithLabelValues(event.Name).Inc()
	return nil
}

// ObserveTurn records how long a turn took. outcome is "ok" or "error".
func (m *Metrics) ObserveTurn(d time.Duration, outcome string) {
	m.turns.WithLabelValues(outcome).Observe(d.Seconds())
}

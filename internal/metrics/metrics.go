// Package metrics exposes handler outcomes as Prometheus counters on a
// dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	messages    *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	completions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagingmanager",
				Name:      "messages_total",
				Help:      "Messages processed by handler and outcome.",
			},
			[]string{"queue", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagingmanager",
				Name:      "completion_attempts_total",
				Help:      "State update calls made to set a submission to complete, by result.",
			},
			[]string{"result"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagingmanager",
				Name:      "completions_total",
				Help:      "Completion sequences by outcome (completed or exhausted).",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.messages,
		m.attempts,
		m.completions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Message counts one handled message.
func (m *Metrics) Message(queue, outcome string) {
	m.messages.WithLabelValues(queue, outcome).Inc()
}

// CompletionAttempt counts one state update call.
func (m *Metrics) CompletionAttempt(result string) {
	m.attempts.WithLabelValues(result).Inc()
}

// Completion counts the end of one completion sequence.
func (m *Metrics) Completion(outcome string) {
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package observability holds the Prometheus instruments of the segment API.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "segmenter"

// Metrics is a set of instruments bound to a private registry, so several
// servers (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// audienceDuration measures one calculator pass.
	// Labels: source (inline, stored)
	audienceDuration *prometheus.HistogramVec

	// recordsEvaluated counts customer records matched by calculator passes.
	recordsEvaluated prometheus.Counter

	// recordsUnevaluable counts records excluded for incoercible values.
	recordsUnevaluable prometheus.Counter

	// edits counts tree editor operations.
	// Labels: op (addRule, addGroup, removeNode, updateRule, setCombinator), status (ok, invalid, conflict, error)
	edits *prometheus.CounterVec

	// translations counts natural-language generations.
	// Labels: source (translator name or "none"), status (ok, rejected, error)
	translations *prometheus.CounterVec

	// requests measures transport handlers.
	// Labels: transport (grpc, http), method, code
	requests *prometheus.HistogramVec
}

// NewMetrics registers every instrument, plus Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		audienceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audience",
			Name:      "duration_seconds",
			Help:      "Audience calculation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		recordsEvaluated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audience",
			Name:      "records_evaluated_total",
			Help:      "Customer records evaluated by audience calculations",
		}),
		recordsUnevaluable: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audience",
			Name:      "records_unevaluable_total",
			Help:      "Customer records excluded because a value could not be coerced",
		}),
		edits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "operations_total",
			Help:      "Rule tree edit operations by outcome",
		}, []string{"op", "status"}),
		translations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "translate",
			Name:      "requests_total",
			Help:      "Natural-language segment generations by translator",
		}, []string{"source", "status"}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Request latency by transport and method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "method", "code"}),
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAudience records one calculator pass.
func (m *Metrics) ObserveAudience(source string, elapsed time.Duration, evaluated, unevaluable int) {
	if m == nil {
		return
	}
	m.audienceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.recordsEvaluated.Add(float64(evaluated))
	m.recordsUnevaluable.Add(float64(unevaluable))
}

// ObserveEdit records one editor operation.
func (m *Metrics) ObserveEdit(op, status string) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(op, status).Inc()
}

// ObserveTranslation records one natural-language generation.
func (m *Metrics) ObserveTranslation(source, status string) {
	if m == nil {
		return
	}
	m.translations.WithLabelValues(source, status).Inc()
}

// ObserveRequest records one transport call.
func (m *Metrics) ObserveRequest(transport, method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, method, code).Observe(elapsed.Seconds())
}

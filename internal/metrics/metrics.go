// Package metrics holds the service's Prometheus collectors.  A Metrics
// value owns its registry so tests can create as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autoseers/carseer/internal/verify"
)

const namespace = "carseer"

// Metrics implements verify.Recorder, recall.Recorder and queue.Observer.
type Metrics struct {
	registry *prometheus.Registry

	verifications  *prometheus.CounterVec
	reconciles     *prometheus.CounterVec
	recallsWritten prometheus.Counter
	deliveries     *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New builds and registers every collector, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "outcomes_total",
			Help:      "Identity verification outcomes, labeled by tag and failure kind.",
		}, []string{"tag", "kind"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recall",
			Name:      "reconciliations_total",
			Help:      "Recall reconciliations, labeled by outcome (degraded, guarded, reconciled).",
		}, []string{"outcome"}),
		recallsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recall",
			Name:      "records_inserted_total",
			Help:      "Recall records inserted by reconciliation.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "deliveries_total",
			Help:      "Broker deliveries processed, labeled by queue and result.",
		}, []string{"queue", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"route", "method", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verifications,
		m.reconciles,
		m.recallsWritten,
		m.deliveries,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerification implements verify.Recorder.
func (m *Metrics) ObserveVerification(o verify.Outcome) {
	kind := ""
	if o.Tag() == verify.TagFailure {
		kind = o.Kind().String()
	}
	m.verifications.WithLabelValues(o.Tag().String(), kind).Inc()
}

// ObserveReconcile implements recall.Recorder.
func (m *Metrics) ObserveReconcile(outcome string, inserted int) {
	m.reconciles.WithLabelValues(outcome).Inc()
	if inserted > 0 {
		m.recallsWritten.Add(float64(inserted))
	}
}

// ObserveDelivery implements queue.Observer.
func (m *Metrics) ObserveDelivery(queue, result string) {
	m.deliveries.WithLabelValues(queue, result).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

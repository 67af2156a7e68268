// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "canteen"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	admissionsTotal   *prometheus.CounterVec
	admissionDuration prometheus.Histogram
	writeScopeWait    prometheus.Histogram
	notifyDropped     prometheus.Counter
	notifyFailed      prometheus.Counter
	directoryRefresh  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission decisions by status and reason.",
		}, []string{"status", "reason"}),
		admissionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "End-to-end admission latency including the write scope.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		writeScopeWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_scope_wait_seconds",
			Help:      "Time a write job waited for the serialized writer.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Post-commit notifications dropped because the queue was full.",
		}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Post-commit notifications that failed after retries.",
		}),
		directoryRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_refresh_total",
			Help:      "Directory cache refreshes by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.admissionsTotal,
		m.admissionDuration,
		m.writeScopeWait,
		m.notifyDropped,
		m.notifyFailed,
		m.directoryRefresh,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAdmission(status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(status, reason).Inc()
	m.admissionDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveWriteWait(d time.Duration) {
	if m == nil {
		return
	}
	m.writeScopeWait.Observe(d.Seconds())
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailed.Inc()
}

func (m *Metrics) DirectoryRefreshed(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.directoryRefresh.WithLabelValues(result).Inc()
}

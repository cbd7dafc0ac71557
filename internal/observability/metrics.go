package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors the service exports.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	admissions    *prometheus.CounterVec
}

// NewMetrics initializes and registers collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_errors_total",
			Help: "Request errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_notifications_total",
			Help: "Notification delivery outcomes by event type.",
		}, []string{"type", "outcome"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_admissions_total",
			Help: "Token admission outcomes by service type.",
		}, []string{"service", "outcome"}),
	}
	registry.MustRegister(m.requests, m.duration, m.errors, m.notifications, m.admissions)
	return m
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(path, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}

// RecordError counts a request that ended in a domain error.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordNotification counts a notification delivery outcome.
func (m *Metrics) RecordNotification(eventType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(eventType, outcome).Inc()
}

// RecordAdmission counts a token admission outcome.
func (m *Metrics) RecordAdmission(service, outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(service, outcome).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus instrumentation for the admin server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

const namespace = "service_admin"

// Registration outcomes
const (
	RegistrationAccepted = "accepted"
	RegistrationRejected = "rejected"
	RegistrationFailed   = "failed"
)

// Notification outcomes
const (
	NotificationSent     = "sent"
	NotificationFiltered = "filtered"
	NotificationIgnored  = "ignored"
	NotificationFailed   = "failed"
)

// Metrics holds the Prometheus collectors of the admin server
type Metrics struct {
	registry        *prometheus.Registry
	registrations   *prometheus.CounterVec
	deregistrations prometheus.Counter
	statusChecks    *prometheus.CounterVec
	statusDuration  prometheus.Histogram
	notifications   *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Number of instance registration requests by outcome",
		}, []string{"outcome"}),
		deregistrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deregistrations_total",
			Help:      "Number of instance deregistrations",
		}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_checks_total",
			Help:      "Number of health checks by resulting status",
		}, []string{"status"}),
		statusDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_check_duration_seconds",
			Help:      "Duration of instance health checks",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Number of instance events handled by the notifier by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.registrations, m.deregistrations, m.statusChecks, m.statusDuration, m.notifications)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDeregistration() {
	if m == nil {
		return
	}
	m.deregistrations.Inc()
}

// RecordStatusCheck records the outcome and duration of one health check
func (m *Metrics) RecordStatusCheck(status domain.Status, duration time.Duration) {
	if m == nil {
		return
	}
	m.statusChecks.WithLabelValues(status.String()).Inc()
	m.statusDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// Package metrics exposes portal counters in Prometheus format.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry so tests and multiple servers never collide on
// the global default.
type Metrics struct {
	Registry *prometheus.Registry

	GateDecisions          *prometheus.CounterVec
	AppointmentTransitions *prometheus.CounterVec
	PersistenceFailures    prometheus.Counter
	RemoteFailures         *prometheus.CounterVec
	RequestDuration        *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "gate_decisions_total",
			Help:      "Session gate outcomes by decision.",
		}, []string{"decision"}),
		AppointmentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "appointment_transitions_total",
			Help:      "Appointment operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "persistence_failures_total",
			Help:      "Durable writes that failed while in-memory state was kept.",
		}),
		RemoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "remote_failures_total",
			Help:      "Calls to external backends that failed.",
		}, []string{"service"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.GateDecisions,
		m.AppointmentTransitions,
		m.PersistenceFailures,
		m.RemoteFailures,
		m.RequestDuration,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// Middleware records request latency keyed by the matched route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.RequestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Transition counts one appointment operation outcome.
func (m *Metrics) Transition(op, outcome string) {
	m.AppointmentTransitions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) PersistenceFailed() { m.PersistenceFailures.Inc() }

// GateDecision counts one session gate outcome.
func (m *Metrics) GateDecision(decision string) {
	m.GateDecisions.WithLabelValues(decision).Inc()
}

// RemoteFailed counts a failed call to the named backend.
func (m *Metrics) RemoteFailed(service string) {
	m.RemoteFailures.WithLabelValues(service).Inc()
}

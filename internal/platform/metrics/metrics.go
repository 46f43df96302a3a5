// Package metrics exposes Prometheus collectors for the HTTP layer and the
// clinic workflows (prescriptions, bookings, repeats).
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infusion"

// Metrics holds all application collectors. A nil *Metrics is valid and
// records nothing, so services can be built without one in tests.
type Metrics struct {
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	HTTPInFlight       prometheus.Gauge
	Prescriptions      *prometheus.CounterVec
	ValidationFindings *prometheus.CounterVec
	Repeats            *prometheus.CounterVec
	Bookings           *prometheus.CounterVec
	StatusChanges      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served",
		}),
		Prescriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescriptions_total",
			Help:      "Prescriptions by outcome (created, rejected, substituted)",
		}, []string{"outcome"}),
		ValidationFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescription_validation_findings_total",
			Help:      "Validation findings by rule",
		}, []string{"rule"}),
		Repeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescription_repeats_total",
			Help:      "Repeat-last-prescription decisions by outcome",
		}, []string{"outcome"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_bookings_total",
			Help:      "Booking attempts by appointment type and outcome",
		}, []string{"type", "outcome"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_status_changes_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.HTTPInFlight,
		m.Prescriptions,
		m.ValidationFindings,
		m.Repeats,
		m.Bookings,
		m.StatusChanges,
	)
	return m
}

func (m *Metrics) PrescriptionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Prescriptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ValidationFinding(rule string) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "schema"
	}
	m.ValidationFindings.WithLabelValues(rule).Inc()
}

func (m *Metrics) RepeatOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Repeats.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Booking(apptType, outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(apptType, outcome).Inc()
}

func (m *Metrics) StatusChange(status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(status).Inc()
}

// Middleware records request count, latency and in-flight requests. The
// route label is the registered path pattern, not the raw URL.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.HTTPInFlight.Inc()
			start := time.Now()

			err := next(c)

			m.HTTPInFlight.Dec()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusOf(c, err))).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf reports the status the error handler will write when the
// response has not been committed yet.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the exposition format for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Package metrics exposes prometheus collectors for submissions, exports and
// HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe on a nil receiver so handlers can run without
// instrumentation.
type Metrics struct {
	gatherer          prometheus.Gatherer
	submissions       *prometheus.CounterVec
	duplicatesDropped prometheus.Counter
	exports           *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New registers the collectors in reg, which must also be a Gatherer for
// Handler to serve them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalsurvey_submissions_total",
				Help: "Questionnaire submissions by outcome.",
			},
			[]string{"status"},
		),
		duplicatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "evalsurvey_submission_duplicates_dropped_total",
			Help: "Answer entries superseded by a later entry for the same item.",
		}),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalsurvey_exports_total",
				Help: "Generated exports by format.",
			},
			[]string{"format"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalsurvey_http_requests_total",
				Help: "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evalsurvey_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) Submission(status string, duplicates int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
	if duplicates > 0 {
		m.duplicatesDropped.Add(float64(duplicates))
	}
}

func (m *Metrics) Export(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	g := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		g = m.gatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

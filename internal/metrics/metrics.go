// Package metrics exposes Prometheus collectors for the quiz engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	batches         *prometheus.CounterVec
	questionsServed prometheus.Counter
	grades          prometheus.Counter
	gradePercentage prometheus.Histogram
	ledgerWrites    *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_batches_total",
			Help: "Question batches requested, by outcome",
		}, []string{"outcome"}),
		questionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_questions_served_total",
			Help: "Questions served across all batches",
		}),
		grades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_grades_total",
			Help: "Graded submissions",
		}),
		gradePercentage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_grade_percentage",
			Help:    "Distribution of graded percentages",
			Buckets: []float64{10, 25, 50, 75, 90, 100},
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_ledger_writes_total",
			Help: "Progress ledger writes, by outcome",
		}, []string{"outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_session_events_total",
			Help: "Session lifecycle events",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.batches,
		m.questionsServed,
		m.grades,
		m.gradePercentage,
		m.ledgerWrites,
		m.sessions,
		m.requests,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchServed(questions int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues("served").Inc()
	m.questionsServed.Add(float64(questions))
}

func (m *Metrics) BatchFailed(outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Graded(percentage int) {
	if m == nil {
		return
	}
	m.grades.Inc()
	m.gradePercentage.Observe(float64(percentage))
}

func (m *Metrics) LedgerWrite(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ledgerWrites.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

func (m *Metrics) Request(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

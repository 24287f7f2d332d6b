// Package metrics holds the venue's prometheus instruments. Every method is
// safe on a nil *Metrics so components can run unobserved in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "venue"

// Metrics is the set of instruments registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	trades          prometheus.Counter
	tradedLots      prometheus.Counter

	journalBatches      prometheus.Counter
	journalErrors       prometheus.Counter
	journalBackpressure prometheus.Counter

	notifyDelivered *prometheus.CounterVec
	notifyErrors    *prometheus.CounterVec
	notifyDropped   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "core", Name: "commands_total",
			Help: "Commands executed, by command and result.",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "core", Name: "command_duration_seconds",
			Help:    "Time spent executing a command, lock wait included.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"command"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "core", Name: "matches_total",
			Help: "Matches produced; each match yields a maker and a taker trade.",
		}),
		tradedLots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "core", Name: "matched_lots_total",
			Help: "Lots matched.",
		}),
		journalBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "journal", Name: "batches_total",
			Help: "Batches written to the journal.",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "journal", Name: "errors_total",
			Help: "Journal batches that failed to write.",
		}),
		journalBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "journal", Name: "backpressure_total",
			Help: "Submissions that waited on a full journal queue.",
		}),
		notifyDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "delivered_total",
			Help: "Events delivered, by sink.",
		}, []string{"sink"}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "errors_total",
			Help: "Events a sink failed to deliver, by sink.",
		}, []string{"sink"}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "dropped_total",
			Help: "Events dropped because the notification queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests, by method and status.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.commands, m.commandDuration, m.trades, m.tradedLots,
		m.journalBatches, m.journalErrors, m.journalBackpressure,
		m.notifyDelivered, m.notifyErrors, m.notifyDropped,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(command string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// AddMatch records one match of lots.
func (m *Metrics) AddMatch(lots int64) {
	if m == nil {
		return
	}
	m.trades.Inc()
	m.tradedLots.Add(float64(lots))
}

// JournalBatch records a journal write.
func (m *Metrics) JournalBatch(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.journalErrors.Inc()
		return
	}
	m.journalBatches.Inc()
}

// JournalBackpressure records a submission that found the queue full.
func (m *Metrics) JournalBackpressure() {
	if m == nil {
		return
	}
	m.journalBackpressure.Inc()
}

// NotifyDelivered records a delivery attempt by a sink.
func (m *Metrics) NotifyDelivered(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifyErrors.WithLabelValues(sink).Inc()
		return
	}
	m.notifyDelivered.WithLabelValues(sink).Inc()
}

// NotifyDropped records an event dropped on a full queue.
func (m *Metrics) NotifyDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(took.Seconds())
}

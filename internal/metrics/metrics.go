// Package metrics exposes Prometheus instrumentation for the edge service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Request outcome labels.
const (
	OutcomePrerendered = "prerendered" // bot served rendered HTML
	OutcomeProxied     = "proxied"     // human passthrough
	OutcomeFallback    = "fallback"    // bot served via proxy after render failure
	OutcomeError       = "error"       // 4xx/502 terminal error
)

// Metrics is the Prometheus collector set for the edge service.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	renderDuration      *prometheus.HistogramVec
	renderFailuresTotal *prometheus.CounterVec

	telemetryFailuresTotal prometheus.Counter
	browserRelaunchesTotal prometheus.CounterFunc

	activeRequests prometheus.Gauge

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// New creates the collector set on the default registry. relaunches feeds
// the browser relaunch counter; it must be monotonic.
func New(namespace string, relaunches func() int64, logger *zap.Logger) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, relaunches, logger)
}

// NewWithRegistry creates the collector set on a custom registry.
func NewWithRegistry(namespace string, registerer prometheus.Registerer, relaunches func() int64, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "requests_total",
			Help:      "Total number of requests processed by outcome",
		},
		[]string{"domain", "outcome"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "request_duration_seconds",
			Help:      "Time taken to answer a request",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"domain", "outcome"},
	)

	m.renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "render_duration_seconds",
			Help:      "Time taken by the headless browser to render a page",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"domain"},
	)

	m.renderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "render_failures_total",
			Help:      "Total number of renders that fell back to the origin proxy",
		},
		[]string{"domain", "reason"},
	)

	m.telemetryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "telemetry_failures_total",
			Help:      "Total number of crawl events that could not be delivered",
		},
	)

	if relaunches == nil {
		relaunches = func() int64 { return 0 }
	}
	m.browserRelaunchesTotal = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "browser_relaunches_total",
			Help:      "Total number of times a dead browser process was replaced",
		},
		func() float64 { return float64(relaunches()) },
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "edge",
			Name:      "active_requests",
			Help:      "Number of requests currently in flight",
		},
	)

	registerer.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.renderDuration,
		m.renderFailuresTotal,
		m.telemetryFailuresTotal,
		m.browserRelaunchesTotal,
		m.activeRequests,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized")
	return m
}

// RecordRequest records a completed request with its outcome and timing.
func (m *Metrics) RecordRequest(domain, outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(domain, outcome).Inc()
	m.requestDuration.WithLabelValues(domain, outcome).Observe(duration.Seconds())
}

// RecordRenderDuration records a successful render's elapsed time.
func (m *Metrics) RecordRenderDuration(domain string, duration time.Duration) {
	m.renderDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordRenderFailure records a render that degraded to proxy fallback.
func (m *Metrics) RecordRenderFailure(domain, reason string) {
	m.renderFailuresTotal.WithLabelValues(domain, reason).Inc()
}

// RecordTelemetryFailure records a dropped crawl event.
func (m *Metrics) RecordTelemetryFailure() {
	m.telemetryFailuresTotal.Inc()
}

// IncActiveRequests increments the in-flight gauge.
func (m *Metrics) IncActiveRequests() {
	m.activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight gauge.
func (m *Metrics) DecActiveRequests() {
	m.activeRequests.Dec()
}

// ServeHTTP serves the Prometheus exposition endpoint.
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}

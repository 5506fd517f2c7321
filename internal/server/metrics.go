package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records HTTP and analysis metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	chainsTotal      *prometheus.CounterVec
	chainContracts   prometheus.Histogram
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	lastPCR          *prometheus.GaugeVec
}

// NewMetrics creates a Metrics with Go runtime collectors registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "method"},
		),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		chainsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_chains_total",
				Help: "Option chains received, by outcome",
			},
			[]string{"outcome"},
		),
		chainContracts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_chain_contracts",
			Help:    "Number of contracts per accepted chain",
			Buckets: prometheus.ExponentialBuckets(8, 2, 8),
		}),
		analysesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_ai_analyses_total",
				Help: "Backend analyses, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		analysisDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_ai_analysis_duration_seconds",
				Help:    "Backend analysis duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
			},
			[]string{"provider"},
		),
		lastPCR: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "analyzer_last_put_call_ratio",
				Help: "Put/call volume ratio of the last chain per symbol",
			},
			[]string{"symbol"},
		),
	}
}

// Registry returns the registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Response().Status)).Inc()
			m.requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordChain records an accepted chain.
func (m *Metrics) RecordChain(symbol string, contracts int, pcr float64) {
	if m == nil {
		return
	}
	m.chainsTotal.WithLabelValues("accepted").Inc()
	m.chainContracts.Observe(float64(contracts))
	m.lastPCR.WithLabelValues(symbol).Set(pcr)
}

// RecordRejectedChain records a chain that failed validation.
func (m *Metrics) RecordRejectedChain() {
	if m == nil {
		return
	}
	m.chainsTotal.WithLabelValues("rejected").Inc()
}

// RecordAnalysis records one backend analysis.
func (m *Metrics) RecordAnalysis(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.analysesTotal.WithLabelValues(provider, outcome).Inc()
	m.analysisDuration.WithLabelValues(provider).Observe(d.Seconds())
}

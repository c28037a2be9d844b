package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	executionsTotal    *prometheus.CounterVec
	gradingsTotal      *prometheus.CounterVec
	rateLimitDenials   *prometheus.CounterVec
	gradingDuration    *prometheus.HistogramVec
	executionsInFlight prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_executions_total",
			Help: "Total number of single executions, by language and status.",
		}, []string{"language", "status"})

		gradingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_gradings_total",
			Help: "Total number of graded submissions, by terminal status.",
		}, []string{"status"})

		rateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_rate_limit_denials_total",
			Help: "Total number of admission checks denied, by window.",
		}, []string{"window"})

		gradingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_grading_duration_seconds",
			Help:    "Wall time spent grading one submission.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"language"})

		executionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_executions_in_flight",
			Help: "Executions currently running.",
		})

		httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "Total number of HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"})

		httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		prometheus.MustRegister(executionsTotal, gradingsTotal, rateLimitDenials, gradingDuration, executionsInFlight, httpRequests, httpLatency)
	})
}

// Executions exposes the per-execution counter.
func Executions() *prometheus.CounterVec {
	RegisterMetrics()
	return executionsTotal
}

// Gradings exposes the per-submission counter.
func Gradings() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingsTotal
}

// RateLimitDenials exposes the denial counter.
func RateLimitDenials() *prometheus.CounterVec {
	RegisterMetrics()
	return rateLimitDenials
}

// GradingDuration exposes the grading latency histogram.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDuration
}

// ExecutionsInFlight exposes the in-flight gauge.
func ExecutionsInFlight() prometheus.Gauge {
	RegisterMetrics()
	return executionsInFlight
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequests
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatency
}

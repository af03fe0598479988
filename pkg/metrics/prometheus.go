package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_pulse_ingest_runs_total",
			Help: "Total number of ingest runs",
		},
		[]string{"status"}, // status: success|error|skipped
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_pulse_ingest_duration_seconds",
			Help:    "Ingest run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	IngestRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_pulse_ingest_rows_total",
			Help: "Total rows upserted by ingest runs",
		},
		[]string{"table"},
	)

	IngestSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_pulse_ingest_skipped_total",
			Help: "Total records skipped by ingest runs",
		},
		[]string{"kind"}, // kind: post|stock
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_pulse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "market_pulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"route"},
	)

	// Upstream metrics
	UpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_pulse_upstream_calls_total",
			Help: "Total number of upstream API calls",
		},
		[]string{"provider", "status"}, // status: success|error
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IngestRuns)
		prometheus.MustRegister(IngestDuration)
		prometheus.MustRegister(IngestRows)
		prometheus.MustRegister(IngestSkipped)

		prometheus.MustRegister(HTTPRequests)
		prometheus.MustRegister(HTTPDuration)

		prometheus.MustRegister(UpstreamCalls)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngestRun records a finished ingest run
func RecordIngestRun(status string, duration time.Duration) {
	IngestRuns.WithLabelValues(status).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordUpstreamCall records an upstream API call
func RecordUpstreamCall(provider string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamCalls.WithLabelValues(provider, status).Inc()
}

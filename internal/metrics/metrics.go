package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's collectors. The default global registry
	// is not used so tests can read values without interference.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imbroke",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imbroke",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imbroke",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imbroke",
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Transfers attempted, by outcome.",
		},
		[]string{"outcome"},
	)

	transferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imbroke",
			Subsystem: "ledger",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of transfer transactions including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	transferRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imbroke",
			Subsystem: "ledger",
			Name:      "transfer_retries_total",
			Help:      "Transfer attempts retried after a lock conflict.",
		},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imbroke",
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox messages relayed to Kafka, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transfers,
		transferDuration,
		transferRetries,
		outboxPublished,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled by chi route pattern to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordTransfer counts one finished transfer call. outcome is "success" or
// the error kind that ended it.
func RecordTransfer(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	transfers.WithLabelValues(outcome).Inc()
	transferDuration.Observe(duration.Seconds())
}

func RecordTransferRetry() {
	transferRetries.Inc()
}

func RecordOutboxPublish(success bool) {
	result := "sent"
	if !success {
		result = "failed"
	}
	outboxPublished.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

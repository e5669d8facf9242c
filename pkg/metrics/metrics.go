// Package metrics provides a self-contained Prometheus registry with
// HTTP middleware and engine-level counters, so the gateway can expose
// /metrics without touching the default global registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and all gateway collectors.
type Metrics struct {
	reg      *prometheus.Registry
	inflight prometheus.Gauge
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	denials     prometheus.Counter
	credentials *prometheus.CounterVec
	uploads     *prometheus.CounterVec
}

// New creates a Metrics instance with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3gate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of inflight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3gate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed, partitioned by status code and method.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "s3gate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3gate",
			Subsystem: "engine",
			Name:      "access_denied_total",
			Help:      "Total requests rejected by the access gate.",
		}),
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3gate",
			Subsystem: "engine",
			Name:      "credentials_issued_total",
			Help:      "Total credentials issued, partitioned by kind.",
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3gate",
			Subsystem: "engine",
			Name:      "multipart_uploads_total",
			Help:      "Total multipart uploads finished, partitioned by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.inflight, m.requests, m.latency, m.denials, m.credentials, m.uploads)
	return m
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// AccessDenied counts a gate rejection.
func (m *Metrics) AccessDenied() {
	m.denials.Inc()
}

// CredentialIssued counts an issued credential; kind is "session" or
// "access_key".
func (m *Metrics) CredentialIssued(kind string) {
	m.credentials.WithLabelValues(kind).Inc()
}

// UploadFinished counts a finished multipart upload; result is
// "completed" or "aborted".
func (m *Metrics) UploadFinished(result string) {
	m.uploads.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments a handler with the inflight gauge, request
// counter and latency histogram.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.requests.WithLabelValues(code, r.Method).Inc()
		m.latency.WithLabelValues(code, r.Method).Observe(time.Since(start).Seconds())
	})
}

package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Auth core metrics.
var (
	authResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_resolutions_total",
			Help: "Credential resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	authHandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_handshakes_total",
			Help: "Hybrid handshake attempts by result.",
		},
		[]string{"result"},
	)

	authSignInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signins_total",
			Help: "Sign-in attempts by result.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authResolutionsTotal, authHandshakesTotal, authSignInsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthResolution records one resolver outcome
// (none, app, user, downgraded, rejected, error).
func AuthResolution(outcome string) {
	authResolutionsTotal.WithLabelValues(outcome).Inc()
}

// Handshake records one handshake attempt (ok, invalid).
func Handshake(result string) {
	authHandshakesTotal.WithLabelValues(result).Inc()
}

// SignIn records one sign-in attempt (ok, not_found, blocked, mismatch).
func SignIn(result string) {
	authSignInsTotal.WithLabelValues(result).Inc()
}

// CanonicalPath collapses identifier segments so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	if len(parts) == 4 && parts[1] == "v1" && parts[2] == "accounts" && parts[3] != "" {
		return "/v1/accounts/:id"
	}
	return path
}

// Instrument wraps next with RPS/latency/in-flight accounting.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

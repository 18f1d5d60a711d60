package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	authzDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Access decisions by resource kind, action and outcome.",
		},
		[]string{"kind", "action", "outcome"},
	)

	authzScopeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_scope_resolve_seconds",
			Help:    "Time spent resolving a user's accessible id set.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"result"},
	)

	initOnce sync.Once
)

// Init registers the service metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			authzDecisionsTotal,
			authzScopeDuration,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one access decision. outcome is "allow", a deny reason or "error".
func ObserveDecision(kind, action, outcome string) {
	authzDecisionsTotal.WithLabelValues(kind, action, outcome).Inc()
}

// ObserveScopeResolve records how long a scope resolution took.
func ObserveScopeResolve(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	authzScopeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Instrument measures throughput, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses numeric path segments to ":id" so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if seg != "" && isNumeric(seg) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

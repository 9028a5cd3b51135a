// Package metrics holds Prometheus instruments that are used across the
// API.  All collectors are registered with the global registry, so
// internal/server only has to mount promhttp at METRICS_PATH to expose them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

var (
	AppInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mindmap_app_info",
			Help: "Constant 1, labelled with the running version and environment.",
		}, []string{"version", "environment"})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmap_http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindmap_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindmap_rate_limit_rejections_total",
			Help: "Cumulative number of requests answered with 429.",
		})
)

func init() {
	prometheus.MustRegister(
		AppInfo,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimitRejectionsTotal,
	)
}

// SetAppInfo publishes the build identity from s.
func SetAppInfo(s *config.Settings) {
	AppInfo.Reset()
	AppInfo.WithLabelValues(s.Version, string(s.Environment)).Set(1)
}

// statusRecorder captures the response code for labelling.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Instrument records count and latency per route.  Unmatched requests are
// labelled "unmatched" so probing clients cannot inflate cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

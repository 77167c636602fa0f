/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
// Websocket handshakes dominate, so the buckets are finer than for a general purpose API.
var DefaultHTTPRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HTTPRequestMetricsCollector represents collector of metrics for incoming HTTP requests.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a new metrics collector.
func NewHTTPRequestMetricsCollector(namespace string) *HTTPRequestMetricsCollector {
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "A histogram of the HTTP request durations (for websockets, up to the handshake end).",
				Buckets:   DefaultHTTPRequestDurationBuckets,
			},
			[]string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelStatusCode},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being served.",
			},
			[]string{httpRequestMetricsLabelMethod},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.InFlight)
	prometheus.Unregister(c.Durations)
}

type httpRequestMetricsHandler struct {
	next      http.Handler
	collector *HTTPRequestMetricsCollector
}

// HTTPRequestMetrics is a middleware that collects metrics for incoming HTTP requests using Prometheus data types.
// It must be mounted inside a chi router, route patterns are taken from chi's routing context.
func HTTPRequestMetrics(collector *HTTPRequestMetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next: next, collector: collector}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := GetRequestStartTimeFromContext(r.Context())
	if startTime.IsZero() {
		startTime = time.Now()
		r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
	}

	inFlightGauge := h.collector.InFlight.WithLabelValues(r.Method)
	inFlightGauge.Inc()
	defer inFlightGauge.Dec()

	wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
	defer func() {
		status := responseStatus(wrw.Status(), r)
		if p := recover(); p != nil {
			if p != http.ErrAbortHandler {
				h.trackRequestEnd(r, http.StatusInternalServerError, startTime)
			}
			panic(p)
		}
		h.trackRequestEnd(r, status, startTime)
	}()

	h.next.ServeHTTP(wrw, r)
}

func (h *httpRequestMetricsHandler) trackRequestEnd(r *http.Request, status int, startTime time.Time) {
	h.collector.Durations.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(status)).
		Observe(time.Since(startTime).Seconds())
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unknownLabel = "unknown"

// dashboardViewpoints bounds the viewpoint label. Anything else a client
// puts in the path is counted as "other".
var dashboardViewpoints = map[string]struct{}{
	"admin":    {},
	"seller":   {},
	"supplier": {},
}

// Metrics collects the Prometheus metrics served by the API.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	inFlight          prometheus.Gauge
	dashboardRequests *prometheus.CounterVec
}

// NewMetrics initialises a private registry with the HTTP collectors plus
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropship_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dropship_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
	dashboard := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_dashboard_requests_total",
		Help: "Dashboard requests by viewpoint and status class.",
	}, []string{"viewpoint", "class"})
	registry.MustRegister(
		requests,
		duration,
		inFlight,
		dashboard,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		inFlight:          inFlight,
		dashboardRequests: dashboard,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request against its chi route pattern.
// Requests routed through a {viewpoint} parameter are also counted per
// dashboard viewpoint.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if viewpoint, ok := dashboardViewpoint(r); ok {
			m.dashboardRequests.WithLabelValues(viewpoint, statusClass(recorder.status)).Inc()
		}
	})
}

// Registerer exposes the registry so other packages can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unknownLabel
}

func dashboardViewpoint(r *http.Request) (string, bool) {
	routeCtx := chi.RouteContext(r.Context())
	if routeCtx == nil {
		return "", false
	}
	raw := routeCtx.URLParam("viewpoint")
	if raw == "" {
		return "", false
	}
	if _, ok := dashboardViewpoints[raw]; ok {
		return raw, true
	}
	return "other", true
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return unknownLabel
	}
	return strconv.Itoa(status/100) + "xx"
}

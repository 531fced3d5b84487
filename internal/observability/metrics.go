package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ordersCreated        prometheus.Counter
	ordersCancelled      prometheus.Counter
	insufficiencyRejects prometheus.Counter
	compensationRetries  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabrica_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabrica_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabrica_orders_created_total",
		Help: "Orders committed through the fulfillment path.",
	})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabrica_orders_cancelled_total",
		Help: "Orders transitioned to cancelled.",
	})
	insufficiencyRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabrica_orders_insufficiency_rejections_total",
		Help: "Order submissions rejected by the sufficiency gate.",
	})
	compensationRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabrica_compensation_retries_total",
		Help: "Compensation attempts handed to the retry queue.",
	})
	registry.MustRegister(requests, duration, ordersCreated, ordersCancelled, insufficiencyRejects, compensationRetries)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		ordersCreated:        ordersCreated,
		ordersCancelled:      ordersCancelled,
		insufficiencyRejects: insufficiencyRejects,
		compensationRetries:  compensationRetries,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// OrderCreated increments the created-orders counter.
func (m *Metrics) OrderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

// OrderCancelled increments the cancelled-orders counter.
func (m *Metrics) OrderCancelled() {
	if m != nil {
		m.ordersCancelled.Inc()
	}
}

// InsufficiencyRejected increments the gate-rejection counter.
func (m *Metrics) InsufficiencyRejected() {
	if m != nil {
		m.insufficiencyRejects.Inc()
	}
}

// CompensationRetried increments the retry counter.
func (m *Metrics) CompensationRetried() {
	if m != nil {
		m.compensationRetries.Inc()
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

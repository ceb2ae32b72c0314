package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one service instance
type Metrics struct {
	serviceName string
	gatherer    prometheus.Gatherer

	requestCounter      *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	statusCategoryCount *prometheus.CounterVec

	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeBackend     *prometheus.GaugeVec
}

// New creates and registers collectors. A nil registry uses the default one.
func New(serviceName string, reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}

	m := &Metrics{
		serviceName: serviceName,
		gatherer:    gatherer,
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		statusCategoryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_status_category_total",
				Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
			},
			[]string{"service", "category"},
		),
		statementCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_statements_total",
				Help: "Statements executed against the active backend",
			},
			[]string{"backend", "kind", "outcome"},
		),
		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_statement_duration_seconds",
				Help:    "Duration of backend statements in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "kind"},
		),
		activeBackend: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "storefront_active_backend",
				Help: "1 for the backend selected at startup",
			},
			[]string{"backend"},
		),
	}

	registerer.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.statusCategoryCount,
		m.statementCounter,
		m.statementDuration,
		m.activeBackend,
	)
	return m
}

// ObserveStatement records one backend statement
func (m *Metrics) ObserveStatement(backend, kind string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.statementCounter.WithLabelValues(backend, kind, outcome).Inc()
	m.statementDuration.WithLabelValues(backend, kind).Observe(elapsed.Seconds())
}

// SetActiveBackend marks which backend the selector chose
func (m *Metrics) SetActiveBackend(backend string) {
	m.activeBackend.Reset()
	m.activeBackend.WithLabelValues(backend).Set(1)
}

func statusCategory(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request metrics, labelling by route template when available
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		m.requestCounter.WithLabelValues(m.serviceName, r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(m.serviceName, r.Method, path).Observe(time.Since(start).Seconds())
		m.statusCategoryCount.WithLabelValues(m.serviceName, statusCategory(rec.status)).Inc()
	})
}

// Handler exposes the registered collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus metrics for the API at GET /metrics.
//
// All collectors live in a private registry (not the global default one), so
// tests can create as many Metrics values as they like without
// "duplicate metrics collector registration" panics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing"

// Metrics holds every collector the application updates.
//
// Methods are safe to call on a nil *Metrics, so services built without
// metrics (tests, the maintenance CLI) need no special casing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	paymentsMarked    prometheus.Counter
	customersAdded    prometheus.Counter
	customersImported prometheus.Counter
	monthResets       prometheus.Counter
	reportsGenerated  prometheus.Counter
}

// New creates the registry and registers all collectors, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route pattern and status code.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route pattern.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		paymentsMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_marked_total",
			Help:      "Customers marked as paid.",
		}),
		customersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customers_added_total",
			Help:      "Customers created through the API, excluding imports.",
		}),
		customersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customers_imported_total",
			Help:      "Customers created from spreadsheet imports.",
		}),
		monthResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "month_resets_total",
			Help:      "Month rollovers (bulk reset to unpaid).",
		}),
		reportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Monthly reports generated or refreshed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.paymentsMarked,
		m.customersAdded,
		m.customersImported,
		m.monthResets,
		m.reportsGenerated,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request. route is the router
// pattern ("/api/customers/{id}"), never the raw path, to keep label
// cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) PaymentMarked() {
	if m == nil {
		return
	}
	m.paymentsMarked.Inc()
}

func (m *Metrics) CustomerAdded() {
	if m == nil {
		return
	}
	m.customersAdded.Inc()
}

func (m *Metrics) CustomersImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.customersImported.Add(float64(n))
}

func (m *Metrics) MonthReset() {
	if m == nil {
		return
	}
	m.monthResets.Inc()
}

func (m *Metrics) ReportGenerated() {
	if m == nil {
		return
	}
	m.reportsGenerated.Inc()
}

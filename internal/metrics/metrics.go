// Package metrics defines the Prometheus metrics recorded for outgoing API
// calls. Metrics are registered on an explicit registry so several clients
// (and tests) can coexist in one process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "product_console"

// Client holds the per-request API metrics.
type Client struct {
	// RequestsTotal counts completed requests.
	// Labels:
	//   - method: HTTP method
	//   - route: request path without query (e.g. "/products/search")
	//   - code: HTTP status, or "error" on transport failure
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures round-trip latency.
	RequestDuration *prometheus.HistogramVec

	// InFlight tracks requests that have been sent but not answered.
	InFlight prometheus.Gauge
}

// NewClient registers the API metrics on reg.
func NewClient(reg prometheus.Registerer) *Client {
	f := promauto.With(reg)
	return &Client{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of requests sent to the product API.",
			},
			[]string{"method", "route", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Latency of requests sent to the product API.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_requests_in_flight",
			Help:      "Number of product API requests currently in flight.",
		}),
	}
}

// Observe records one finished request. code <= 0 means the transport failed.
func (m *Client) Observe(method, route string, code int, d time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RequestsTotal.WithLabelValues(method, route, label).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

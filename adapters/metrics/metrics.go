// Package metrics provides Prometheus metrics collection for flowgate.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/flowgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowgate"

// Collector holds all Prometheus metrics for flowgate.
type Collector struct {
	// Protocol request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec

	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Violations       *prometheus.CounterVec

	// Catalog metrics
	CatalogReloads    *prometheus.CounterVec
	CatalogLastReload prometheus.Gauge
	CatalogFlows      prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of protocol messages handled",
			},
			[]string{"protocol", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Protocol message handling duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"protocol"},
		),
		RequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of protocol messages currently being handled",
			},
			[]string{"protocol"},
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of flow dispatches by outcome",
			},
			[]string{"flow_type", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Resolve and execute duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"flow_type"},
		),
		Violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_violations_total",
				Help:      "Total number of failed type rules",
			},
			[]string{"stage"},
		),

		CatalogReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_reloads_total",
				Help:      "Total number of catalog publish attempts",
			},
			[]string{"result"},
		),
		CatalogLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_last_reload_timestamp",
				Help:      "Unix timestamp of the last successful catalog publish",
			},
		),
		CatalogFlows: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_flows",
				Help:      "Number of flows in the serving catalog",
			},
		),
	}
}

// NewRegistry creates a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler that exposes reg for scraping.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordDispatch implements ports.DispatchRecorder.
func (c *Collector) RecordDispatch(flowType, outcome string, d time.Duration) {
	if flowType == "" {
		flowType = "none"
	}
	c.DispatchTotal.WithLabelValues(flowType, outcome).Inc()
	c.DispatchDuration.WithLabelValues(flowType).Observe(d.Seconds())
}

// RecordViolations implements ports.DispatchRecorder.
func (c *Collector) RecordViolations(stage string, n int) {
	c.Violations.WithLabelValues(stage).Add(float64(n))
}

// RecordCatalogReload implements ports.DispatchRecorder.
func (c *Collector) RecordCatalogReload(ok bool, at time.Time, flows int) {
	if !ok {
		c.CatalogReloads.WithLabelValues("error").Inc()
		return
	}
	c.CatalogReloads.WithLabelValues("success").Inc()
	c.CatalogLastReload.Set(float64(at.Unix()))
	c.CatalogFlows.Set(float64(flows))
}

// RecordRequest records one handled protocol message.
func (c *Collector) RecordRequest(protocol string, status int, d time.Duration) {
	c.RequestsTotal.WithLabelValues(protocol, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

// StatusClass reduces a status code to its class ("2xx", "4xx", ...).
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

var _ ports.DispatchRecorder = (*Collector)(nil)

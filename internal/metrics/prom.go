package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter mirrors run observations into Prometheus collectors so that a
// long run can be watched from an existing scrape setup.
type PromExporter struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rates      *prometheus.CounterVec
	checks     *prometheus.CounterVec
	iterations *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	vus        *prometheus.GaugeVec
}

// NewPromExporter registers the checkoutrace collectors on a private registry.
func NewPromExporter() *PromExporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromExporter{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkoutrace_http_requests_total",
				Help: "Checkout requests issued, by scenario and status code.",
			},
			[]string{"scenario", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkoutrace_http_request_duration_seconds",
				Help:    "Checkout request duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"scenario"},
		),
		rates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkoutrace_rate_samples_total",
				Help: "Samples added to boolean rate metrics.",
			},
			[]string{"scenario", "metric", "value"},
		),
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkoutrace_checks_total",
				Help: "Check evaluations, by check name and result.",
			},
			[]string{"scenario", "check", "result"},
		),
		iterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkoutrace_iterations_total",
				Help: "Completed iterations, by result.",
			},
			[]string{"scenario", "result"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkoutrace_dropped_iterations_total",
				Help: "Arrivals skipped because every virtual user was busy.",
			},
			[]string{"scenario"},
		),
		vus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkoutrace_vus",
				Help: "Virtual users currently allocated.",
			},
			[]string{"scenario"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (p *PromExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PromExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PromExporter) RecordRequest(latency time.Duration, _ error, meta *RequestMetadata) {
	scenario := ""
	status := 0
	if meta != nil {
		scenario = meta.Scenario
		status = meta.StatusCode
	}
	p.requests.WithLabelValues(scenario, statusLabel(status)).Inc()
	p.duration.WithLabelValues(scenario).Observe(latency.Seconds())
}

func (p *PromExporter) AddRate(scenario, name string, value bool) {
	p.rates.WithLabelValues(scenario, name, strconv.FormatBool(value)).Inc()
}

func (p *PromExporter) RecordCheck(scenario, name string, pass bool) {
	result := "fail"
	if pass {
		result = "pass"
	}
	p.checks.WithLabelValues(scenario, name, result).Inc()
}

func (p *PromExporter) RecordIteration(scenario string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.iterations.WithLabelValues(scenario, result).Inc()
}

func (p *PromExporter) RecordDroppedIteration(scenario string) {
	p.dropped.WithLabelValues(scenario).Inc()
}

func (p *PromExporter) SetActiveVUs(scenario string, active int) {
	p.vus.WithLabelValues(scenario).Set(float64(active))
}

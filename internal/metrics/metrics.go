// internal/metrics/metrics.go
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stone-hmi-service/internal/driver/stone"
)

// NewRegistry creates a Prometheus registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus exposition handler
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DisplayMetrics holds protocol metrics and implements stone.Observer
type DisplayMetrics struct {
	RequestsTotal   *prometheus.CounterVec   // labels: command
	ResponsesTotal  *prometheus.CounterVec   // labels: command, result
	ResponseLatency *prometheus.HistogramVec // labels: command
	EventsTotal     *prometheus.CounterVec   // labels: command, result
	Connected       prometheus.Gauge
	HTTPRateLimited prometheus.Counter
}

var _ stone.Observer = (*DisplayMetrics)(nil)

// NewDisplayMetrics registers and returns the display metrics
func NewDisplayMetrics(reg prometheus.Registerer, namespace string) *DisplayMetrics {
	m := &DisplayMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Command frames sent to the display.",
		}, []string{"command"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Completed exchanges by outcome.",
		}, []string{"command", "result"}),
		ResponseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_seconds",
			Help:      "Time from request to validated response.",
			Buckets:   []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Unsolicited frames received from the display.",
		}, []string{"command", "result"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the display link is open.",
		}),
		HTTPRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "API requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.ResponsesTotal, m.ResponseLatency, m.EventsTotal, m.Connected, m.HTTPRateLimited)
	return m
}

func (m *DisplayMetrics) ObserveRequest(cmd byte) {
	m.RequestsTotal.WithLabelValues(stone.CommandName(cmd)).Inc()
}

func (m *DisplayMetrics) ObserveResponse(cmd byte, latency time.Duration, err error) {
	name := stone.CommandName(cmd)
	m.ResponsesTotal.WithLabelValues(name, Result(err)).Inc()
	if err == nil {
		m.ResponseLatency.WithLabelValues(name).Observe(latency.Seconds())
	}
}

func (m *DisplayMetrics) ObserveEvent(cmd byte, err error) {
	m.EventsTotal.WithLabelValues(stone.CommandName(cmd), Result(err)).Inc()
}

// SetConnected records the link state
func (m *DisplayMetrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// Result classifies an exchange error into a metric label
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, stone.ErrTimeout):
		return "timeout"
	case errors.Is(err, stone.ErrFrameMismatch):
		return "mismatch"
	case errors.Is(err, stone.ErrNotReady):
		return "not_ready"
	default:
		return "error"
	}
}

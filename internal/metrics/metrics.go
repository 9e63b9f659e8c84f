// Package metrics exports poll and register telemetry for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	available     *prometheus.GaugeVec
	quantity      *prometheus.GaugeVec
	writes        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idmbridge_poll_duration_seconds",
			Help:    "Duration of one full register poll.",
			Buckets: prometheus.DefBuckets,
		}, []string{"device"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idmbridge_poll_errors_total",
			Help: "Failed poll cycles.",
		}, []string{"device"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idmbridge_device_available",
			Help: "1 while the device answers polls.",
		}, []string{"device"}),
		quantity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idmbridge_register_value",
			Help: "Last decoded numeric register value.",
		}, []string{"device", "quantity", "unit"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idmbridge_register_writes_total",
			Help: "Command writes issued to the device.",
		}, []string{"device"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		m.fetchDuration, m.fetchErrors, m.available, m.quantity, m.writes,
	)
	return m
}

// Handler serves the registry for the HTTP controller's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(device string, d time.Duration, err error) {
	m.fetchDuration.WithLabelValues(device).Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) SetAvailable(device string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	m.available.WithLabelValues(device).Set(v)
}

func (m *Metrics) SetQuantity(device, quantity, unit string, v float64) {
	m.quantity.WithLabelValues(device, quantity, unit).Set(v)
}

func (m *Metrics) CountWrite(device string) {
	m.writes.WithLabelValues(device).Inc()
}

package gateway

import (
	"net/http"
	"time"

	"github.com/gregLibert/usim-gateway/pkg/usim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "usim_gateway"

// metrics lives in its own registry so that several servers can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	syncFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Card operations by device and outcome (ok or failure kind).",
			},
			[]string{"op", "device", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent on a card operation, lock wait included.",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op", "device"},
		),
		syncFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_failures_total",
				Help:      "AUTHENTICATE answers reporting a sequence number out of range.",
			},
			[]string{"device"},
		),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.syncFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observe(op, device string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = usim.KindOf(err).String()
	}
	m.operations.WithLabelValues(op, device, result).Inc()
	m.duration.WithLabelValues(op, device).Observe(elapsed.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package circlefs

import (
	"net/http"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
)

// Metrics exports filesystem activity to Prometheus. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	sockets    prometheus.Gauge
	evictions  prometheus.Counter
}

// NewMetrics creates the collectors on a private registry so that several
// filesystems in one process do not collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circlefs",
			Name:      "operations_total",
			Help:      "Filesystem operations by name and result errno.",
		}, []string{"op", "result"}),
		sockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "circlefs",
			Name:      "sockets",
			Help:      "Socket entries currently registered.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "circlefs",
			Name:      "evictions_total",
			Help:      "Socket entries evicted because their process exited.",
		}),
	}
	m.registry.MustRegister(m.operations, m.sockets, m.evictions)
	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = unix.ErrnoName(syscall.Errno(Errno(err)))
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) setSockets(n int) {
	if m == nil {
		return
	}
	m.sockets.Set(float64(n))
}

func (m *Metrics) evicted(n int) {
	if m == nil {
		return
	}
	m.evictions.Add(float64(n))
}

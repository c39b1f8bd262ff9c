package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus metrics exported by the storage engine.
type Registry struct {
	// Engine operation counters
	OpsTotal     *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	FlushTotal   prometheus.Counter
	CompactTotal prometheus.Counter

	// I/O accounting
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
	ReadOps      prometheus.Counter
	WriteOps     prometheus.Counter

	// Tree shape
	LevelCount     prometheus.Gauge
	LevelRunCount  *prometheus.GaugeVec
	LevelKeyCount  *prometheus.GaugeVec
	BufferElements prometheus.Gauge
	BufferBytes    prometheus.Gauge

	// System
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with every engine metric initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initStorageMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

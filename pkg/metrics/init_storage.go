package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.OpsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsmtree_ops_total",
			Help: "Total number of engine operations",
		},
		[]string{"op", "status"},
	)

	r.OpDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsmtree_op_duration_seconds",
			Help:    "Engine operation latency in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"op"},
	)

	r.FlushTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_flush_total",
			Help: "Total number of buffer flushes to level 1",
		},
	)

	r.CompactTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_compaction_total",
			Help: "Total number of level compactions performed",
		},
	)

	r.BytesRead = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_bytes_read_total",
			Help: "Cumulative bytes read from run files",
		},
	)

	r.BytesWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_bytes_written_total",
			Help: "Cumulative bytes written to run files",
		},
	)

	r.ReadOps = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_read_io_ops_total",
			Help: "Number of read I/O operations against run files",
		},
	)

	r.WriteOps = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmtree_write_io_ops_total",
			Help: "Number of write I/O operations against run files",
		},
	)

	r.LevelCount = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmtree_level_count",
			Help: "Current number of levels in the tree",
		},
	)

	r.LevelRunCount = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lsmtree_level_run_count",
			Help: "Number of runs held by each level",
		},
		[]string{"level"},
	)

	r.LevelKeyCount = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lsmtree_level_key_count",
			Help: "Number of pairs stored in each level's runs, including superseded pairs and tombstones",
		},
		[]string{"level"},
	)

	r.BufferElements = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmtree_buffer_elements",
			Help: "Number of entries currently held by the write buffer",
		},
	)

	r.BufferBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmtree_buffer_bytes",
			Help: "Estimated byte size of the write buffer",
		},
	)
}

package metrics

import (
	"strconv"
	"time"
)

// RecordOp records a single engine operation (put/get/range/remove/...) with its latency.
func (r *Registry) RecordOp(op, status string, duration time.Duration) {
	r.OpsTotal.WithLabelValues(op, status).Inc()
	r.OpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordFlush records one buffer-to-level-1 flush.
func (r *Registry) RecordFlush() {
	r.FlushTotal.Inc()
}

// RecordCompaction records one completed level compaction.
func (r *Registry) RecordCompaction() {
	r.CompactTotal.Inc()
}

// RecordIO accounts for a read or write against a run file.
func (r *Registry) RecordIO(isWrite bool, bytes int) {
	if isWrite {
		r.WriteOps.Inc()
		r.BytesWritten.Add(float64(bytes))
		return
	}
	r.ReadOps.Inc()
	r.BytesRead.Add(float64(bytes))
}

// UpdateShape refreshes the tree-shape gauges from a point-in-time snapshot.
func (r *Registry) UpdateShape(levelRuns, levelKeys []int, bufferElements, bufferBytes int) {
	r.LevelCount.Set(float64(len(levelRuns)))
	for i, runs := range levelRuns {
		label := strconv.Itoa(i + 1)
		r.LevelRunCount.WithLabelValues(label).Set(float64(runs))
		r.LevelKeyCount.WithLabelValues(label).Set(float64(levelKeys[i]))
	}
	r.BufferElements.Set(float64(bufferElements))
	r.BufferBytes.Set(float64(bufferBytes))
}

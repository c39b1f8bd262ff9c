package lsm

import (
	"fmt"
	"io"
	"time"
)

// Stats is a point-in-time snapshot of the engine's shape and I/O
// accounting, exposed for diagnostics and monitoring per §4.9.
type Stats struct {
	InstanceID string

	TotalPairCount int64
	BufferElements int
	BufferBytes    int64

	LevelRunCounts []int
	LevelKeyCounts []int64

	ReadOps        int64
	WriteOps       int64
	ReadBytes      int64
	WriteBytes     int64
	ReadOpCount    int64
	WriteOpCount   int64
	AvgReadLatency time.Duration
	AvgWriteLatency time.Duration

	BufferSample []int64
	RunSamples   map[string][]Pair
}

// Stats gathers the current snapshot under the engine lock.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		InstanceID:     e.instanceID,
		BufferElements: e.buffer.ElementCount(),
		BufferBytes:    e.buffer.ByteCount(),
		BufferSample:   e.buffer.SampleKeys(10),
		RunSamples:     make(map[string][]Pair),
	}
	s.TotalPairCount = int64(s.BufferElements)

	for _, level := range e.levels {
		s.LevelRunCounts = append(s.LevelRunCounts, level.RunCount())
		s.LevelKeyCounts = append(s.LevelKeyCounts, level.KeyCount())
		s.TotalPairCount += level.KeyCount()

		for _, r := range level.Runs {
			sample, err := r.SamplePairs(5)
			if err == nil {
				s.RunSamples[r.DataPath()] = sample
			}
		}
	}

	s.ReadOpCount = e.readCount.Load()
	s.WriteOpCount = e.writeCount.Load()
	if s.ReadOpCount > 0 {
		s.AvgReadLatency = time.Duration(e.readLatency.Load() / s.ReadOpCount)
	}
	if s.WriteOpCount > 0 {
		s.AvgWriteLatency = time.Duration(e.writeLatency.Load() / s.WriteOpCount)
	}
	s.ReadOps = e.readOps.Load()
	s.WriteOps = e.writeOps.Load()
	s.ReadBytes = e.readBytes.Load()
	s.WriteBytes = e.writeBytes.Load()

	e.metrics.UpdateShape(intSliceToInt(s.LevelRunCounts), int64SliceToInt(s.LevelKeyCounts), s.BufferElements, int(s.BufferBytes))

	return s
}

func intSliceToInt(in []int) []int { return in }

func int64SliceToInt(in []int64) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

// WriteReport writes a multi-line human-readable report to w, the
// `stats(writer)` operation named in §6.
func (e *Engine) WriteReport(w io.Writer) error {
	s := e.Stats()

	fmt.Fprintf(w, "instance_id: %s\n", s.InstanceID)
	fmt.Fprintf(w, "total_pairs: %d\n", s.TotalPairCount)
	fmt.Fprintf(w, "buffer: elements=%d bytes=%d\n", s.BufferElements, s.BufferBytes)
	for i := range s.LevelRunCounts {
		fmt.Fprintf(w, "level %d: runs=%d keys=%d\n", i+1, s.LevelRunCounts[i], s.LevelKeyCounts[i])
	}
	fmt.Fprintf(w, "read_ops=%d write_ops=%d read_bytes=%d write_bytes=%d\n",
		s.ReadOps, s.WriteOps, s.ReadBytes, s.WriteBytes)
	fmt.Fprintf(w, "avg_read_latency=%s avg_write_latency=%s\n", s.AvgReadLatency, s.AvgWriteLatency)
	fmt.Fprintf(w, "buffer_sample=%v\n", s.BufferSample)
	return nil
}

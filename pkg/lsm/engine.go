package lsm

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/lsmtree/pkg/logging"
	"github.com/dd0wney/lsmtree/pkg/metrics"
	"github.com/dd0wney/lsmtree/pkg/validation"
)

// EngineConfig is the engine's runtime-adjustable tunable set.
type EngineConfig = validation.EngineConfig

// DefaultEngineConfig returns the tunables named in the spec's tuning
// table.
func DefaultEngineConfig() EngineConfig {
	return validation.DefaultEngineConfig()
}

// Path and Error are thin local aliases for the logging package's field
// constructors, used throughout pkg/lsm's log call sites.
func Path(p string) logging.Field   { return logging.Path(p) }
func Error(err error) logging.Field { return logging.Error(err) }

// Engine is the storage engine's only exposed interface: a buffer backed
// by a skip list, a chain of levels, and the compaction machinery tying
// them together. A single top-level mutex protects the buffer handle,
// the levels slice, max_level, buffer_capacity_bytes, and
// compaction_enabled; I/O counters and latency accumulators live outside
// the lock as atomics.
type Engine struct {
	mu sync.Mutex

	buffer              *Buffer
	levels              []*Level
	maxLevel            int
	bufferCapacityBytes int64
	compactionEnabled   bool

	sizeRatio int
	totalFPR  float64
	dataDir   string

	readOps      atomic.Int64
	writeOps     atomic.Int64
	readBytes    atomic.Int64
	writeBytes   atomic.Int64
	readLatency  atomic.Int64 // nanoseconds, cumulative
	writeLatency atomic.Int64
	readCount    atomic.Int64
	writeCount   atomic.Int64

	instanceID string
	logger     logging.Logger
	metrics    *metrics.Registry

	workers *workerPool
}

// runFileRE matches the canonical run data filename pattern used during
// directory recovery: any file not matching is ignored, per §6.
var runFileRE = regexp.MustCompile(`^run_(\d+)_(\d+)\.data$`)

// NewEngine creates an empty engine rooted at dataDir using cfg's
// tunables. dataDir is created if it does not exist.
func NewEngine(dataDir string, cfg EngineConfig, logger logging.Logger, reg *metrics.Registry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &ErrIO{Op: "mkdir", Path: dataDir, Err: err}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	e := &Engine{
		buffer:              NewBuffer(),
		maxLevel:            cfg.InitialMaxLevel,
		bufferCapacityBytes: cfg.BufferCapacityBytes,
		compactionEnabled:   cfg.CompactionEnabled,
		sizeRatio:           cfg.SizeRatio,
		totalFPR:            cfg.TotalFPR,
		dataDir:             dataDir,
		instanceID:          uuid.NewString(),
		logger:              logger,
		metrics:             reg,
	}
	for i := 1; i <= cfg.InitialMaxLevel; i++ {
		e.levels = append(e.levels, NewLevel(i))
	}
	return e, nil
}

// Recover rebuilds an engine's level structure by scanning dataDir for
// files matching the run naming convention. Individual run load
// failures are logged and skipped; other runs continue to load.
func (e *Engine) Recover() error {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return &ErrIO{Op: "readdir", Path: e.dataDir, Err: err}
	}

	type found struct {
		level, id int
		path      string
	}
	var runs []found
	for _, entry := range entries {
		m := runFileRE.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		level, _ := strconv.Atoi(m[1])
		id, _ := strconv.Atoi(m[2])
		runs = append(runs, found{level: level, id: id, path: filepath.Join(e.dataDir, entry.Name())})
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].level != runs[j].level {
			return runs[i].level < runs[j].level
		}
		return runs[i].id < runs[j].id
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range runs {
		for f.level > e.maxLevel {
			e.maxLevel++
			e.levels = append(e.levels, NewLevel(e.maxLevel))
		}
		run, err := OpenRun(f.path, f.level, f.id)
		if err != nil {
			e.logger.Warn("skipping unrecoverable run", e.logFields(Path(f.path), Error(err))...)
			continue
		}
		e.levels[f.level-1].AppendRun(e.adopt(run))
	}
	return nil
}

func (e *Engine) logFields(fields ...logging.Field) []logging.Field {
	return append([]logging.Field{logging.String("instance_id", e.instanceID)}, fields...)
}

// Put stores value for key, updating in place on re-put of the same key.
// Clients must never pass the tombstone sentinel as value.
func (e *Engine) Put(key, value int64) error {
	if value == Tombstone {
		return &ErrInvalidArgument{Name: "value", Reason: "clients may not write the tombstone sentinel"}
	}
	return e.put(key, value, "put")
}

func (e *Engine) put(key, value int64, op string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer.Insert(key, value)
	if e.buffer.IsFull(e.bufferCapacityBytes) {
		if err := e.flushBuffer(); err != nil {
			e.metrics.RecordOp(op, "error", time.Since(start))
			return err
		}
	}

	e.metrics.RecordOp(op, "ok", time.Since(start))
	e.recordWriteLatency(time.Since(start))
	return nil
}

// Remove writes a tombstone for key; always reports success.
func (e *Engine) Remove(key int64) (bool, error) {
	if err := e.put(key, Tombstone, "remove"); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the live value for key, or !ok if absent or tombstoned.
func (e *Engine) Get(key int64) (int64, bool, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.buffer.Get(key); ok {
		e.recordReadLatency(time.Since(start))
		if v == Tombstone {
			return 0, false, nil
		}
		return v, true, nil
	}

	for _, level := range e.levels {
		for i := len(level.Runs) - 1; i >= 0; i-- {
			run := level.Runs[i]
			v, ok, err := run.Get(key)
			if err != nil {
				return 0, false, err
			}
			if ok {
				e.recordReadLatency(time.Since(start))
				if v == Tombstone {
					return 0, false, nil
				}
				return v, true, nil
			}
		}
	}

	e.recordReadLatency(time.Since(start))
	return 0, false, nil
}

// Range returns ascending pairs with start <= k < end, a point-in-time
// snapshot of the merged state as of lock acquisition.
func (e *Engine) Range(start, end int64) ([]Pair, error) {
	if start >= end {
		return nil, nil
	}

	opStart := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	all := e.buffer.Range(start, end)
	for _, level := range e.levels {
		for i := len(level.Runs) - 1; i >= 0; i-- {
			pairs, err := level.Runs[i].Range(start, end)
			if err != nil {
				return nil, err
			}
			all = append(all, pairs...)
		}
	}

	sortPairs(all)
	out := make([]Pair, 0, len(all))
	for i := 0; i < len(all); i++ {
		if i > 0 && all[i].Key == all[i-1].Key {
			continue
		}
		if all[i].Value == Tombstone {
			continue
		}
		out = append(out, all[i])
	}

	e.recordReadLatency(time.Since(opStart))
	return out, nil
}

// LoadFile reads a run-data-layout file of (key, value) pairs and puts
// each one through the normal write path.
func (e *Engine) LoadFile(path string) error {
	pairs, err := readPairsFile(path)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := e.put(p.Key, p.Value, "load_file"); err != nil {
			return err
		}
	}
	return nil
}

func readPairsFile(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrIO{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ErrIO{Op: "stat", Path: path, Err: err}
	}
	if info.Size()%pairSize != 0 {
		return nil, &ErrInvalidFile{Path: path, Size: info.Size()}
	}

	count := info.Size() / pairSize
	pairs := make([]Pair, count)
	buf := make([]byte, pairSize)
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, &ErrIO{Op: "read", Path: path, Err: err}
		}
		pairs[i] = decodePair(buf)
	}
	return pairs, nil
}

// Compact manually invokes the compaction scan.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compact()
}

// Flush manually flushes the buffer to level 1.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushBuffer()
}

// RebuildFilters rebuilds every run's Bloom filter at its current
// per-level Monkey-allocated FPR.
func (e *Engine) RebuildFilters() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, level := range e.levels {
		fpr := e.fprForLevel(level.Number)
		for _, r := range level.Runs {
			if err := r.RebuildBloomFilter(fpr); err != nil {
				return err
			}
		}
	}
	return nil
}

// BufferCapacityBytes returns the current buffer capacity threshold.
func (e *Engine) BufferCapacityBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufferCapacityBytes
}

// SetBufferCapacityBytes updates the buffer capacity threshold.
func (e *Engine) SetBufferCapacityBytes(bytes int64) error {
	if err := validation.ValidateBufferCapacity(bytes); err != nil {
		return &ErrInvalidArgument{Name: "buffer_capacity_bytes", Reason: err.Error()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bufferCapacityBytes = bytes
	return nil
}

// CompactionEnabled reports whether compaction is enabled. While it is
// false no compaction runs at all: not the cascade after a flush, not
// Compact, and not the background worker.
func (e *Engine) CompactionEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compactionEnabled
}

// SetCompactionEnabled turns all compaction on or off.
func (e *Engine) SetCompactionEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compactionEnabled = enabled
}

// StartBackgroundWorkers launches goroutines that run flush and
// compaction off the request path when signaled, for callers (the
// server, long-running batch jobs) that want maintenance decoupled from
// a client's put latency. The synchronous straightforward path in Put
// does not depend on this; it is an optional addition.
func (e *Engine) StartBackgroundWorkers() {
	if e.workers != nil {
		return
	}
	e.workers = newWorkerPool(e)
	e.workers.Start()
}

// StopBackgroundWorkers shuts down the background workers started by
// StartBackgroundWorkers, if any.
func (e *Engine) StopBackgroundWorkers() {
	if e.workers == nil {
		return
	}
	e.workers.Stop()
	e.workers = nil
}

// SignalBackgroundCompaction requests an async compaction pass on the
// background worker, if started; a no-op otherwise.
func (e *Engine) SignalBackgroundCompaction() {
	if e.workers != nil {
		e.workers.SignalCompact()
	}
}

// accountIO is the engine's single accounting point for all run-file I/O,
// per §4.9: every read or write against a run's data file passes through
// here before anywhere else observes byte/op counts.
func (e *Engine) accountIO(isWrite bool, n int) {
	if isWrite {
		e.writeOps.Add(1)
		e.writeBytes.Add(int64(n))
	} else {
		e.readOps.Add(1)
		e.readBytes.Add(int64(n))
	}
	e.metrics.RecordIO(isWrite, n)
}

// adopt installs this engine's I/O hook on a freshly opened run (no new
// write occurred) so its future reads flow through accountIO.
func (e *Engine) adopt(r *Run) *Run {
	r.SetIOHook(e.accountIO)
	return r
}

// adoptWritten installs the I/O hook and accounts for the write that
// just produced the run's .data file.
func (e *Engine) adoptWritten(r *Run) *Run {
	e.accountIO(true, int(r.ByteSize()))
	return e.adopt(r)
}

func (e *Engine) recordReadLatency(d time.Duration) {
	e.readCount.Add(1)
	e.readLatency.Add(d.Nanoseconds())
}

func (e *Engine) recordWriteLatency(d time.Duration) {
	e.writeCount.Add(1)
	e.writeLatency.Add(d.Nanoseconds())
}

func decodePair(buf []byte) Pair {
	return Pair{
		Key:   int64(le64(buf[0:8])),
		Value: int64(le64(buf[8:16])),
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

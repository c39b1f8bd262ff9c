package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/lsmtree/pkg/pools"
)

// Run is an immutable sorted sequence of pairs on disk, identified by
// (level, id), plus its Bloom and fence sidecars.
type Run struct {
	Level int
	ID    int

	dataPath string
	reader   *mmap.ReaderAt
	numPairs int64

	bloom *BloomFilter   // nil if the sidecar is missing: degrades to no filtering
	fence *FencePointers // nil if the sidecar is missing: degrades to full scan

	ioHook func(isWrite bool, n int) // single engine-wide I/O accounting point, set by the engine
}

// SetIOHook installs the engine's single I/O accounting callback, called
// on every read against the run's data file.
func (r *Run) SetIOHook(hook func(isWrite bool, n int)) {
	r.ioHook = hook
}

// runFileNames returns the canonical (data, bloom, fence) paths for a run.
func runFileNames(dir string, level, id int) (string, string, string) {
	data := filepath.Join(dir, fmt.Sprintf("run_%d_%d.data", level, id))
	return data, bloomPath(data), fencePath(data)
}

// NewRunFromPairs constructs a run from a sorted, deduplicated slice of
// pairs, writing the .data file and building+saving both sidecars at the
// given target FPR.
func NewRunFromPairs(dir string, level, id int, pairs []Pair, targetFPR float64) (*Run, error) {
	dataPath, bloomFilePath, fenceFilePath := runFileNames(dir, level, id)

	if err := writePairsFile(dataPath, pairs); err != nil {
		return nil, err
	}

	bf := NewBloomFilter(targetFPR, uint64(len(pairs)))
	for _, p := range pairs {
		bf.Insert(p.Key)
	}
	if err := bf.Save(bloomFilePath); err != nil {
		return nil, err
	}

	fp := BuildFencePointers(filepath.Base(dataPath), pairs)
	if err := fp.Save(fenceFilePath); err != nil {
		return nil, err
	}

	return OpenRun(dataPath, level, id)
}

func writePairsFile(path string, pairs []Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return &ErrIO{Op: "create", Path: path, Err: err}
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, PageSize)
	for _, p := range pairs {
		if err := binary.Write(w, binary.LittleEndian, p.Key); err != nil {
			return &ErrIO{Op: "write", Path: path, Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, p.Value); err != nil {
			return &ErrIO{Op: "write", Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &ErrIO{Op: "flush", Path: path, Err: err}
	}
	return nil
}

// OpenRun opens an existing run's .data file (on recovery) and attempts to
// load its sidecars. A missing sidecar degrades the run rather than
// failing construction; a corrupt or empty .data file does fail.
func OpenRun(dataPath string, level, id int) (*Run, error) {
	info, err := os.Stat(dataPath)
	if err != nil {
		return nil, &ErrIO{Op: "stat", Path: dataPath, Err: err}
	}
	if info.Size() == 0 || info.Size()%pairSize != 0 {
		return nil, &ErrInvalidFile{Path: dataPath, Size: info.Size()}
	}

	reader, err := mmap.Open(dataPath)
	if err != nil {
		return nil, &ErrIO{Op: "mmap", Path: dataPath, Err: err}
	}

	run := &Run{
		Level:    level,
		ID:       id,
		dataPath: dataPath,
		reader:   reader,
		numPairs: info.Size() / pairSize,
	}

	if bf, err := LoadBloomFilter(bloomPath(dataPath)); err == nil {
		run.bloom = bf
	}
	if fp, err := LoadFencePointers(fencePath(dataPath)); err == nil {
		run.fence = fp
	}

	return run, nil
}

func (r *Run) readPairAt(offset int64) (Pair, error) {
	buf := pools.GetBytesSized(pairSize)
	defer pools.PutBytes(buf)

	n, err := r.reader.ReadAt(buf, offset)
	if err != nil {
		return Pair{}, &ErrIO{Op: "read", Path: r.dataPath, Err: err}
	}
	if r.ioHook != nil {
		r.ioHook(false, n)
	}
	return Pair{
		Key:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Value: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// Get returns the value stored for key, or !ok if absent.
func (r *Run) Get(key int64) (int64, bool, error) {
	if r.bloom != nil && !r.bloom.MightContain(key) {
		return 0, false, nil
	}

	startOffset := int64(0)
	if r.fence != nil {
		startOffset = int64(r.fence.FindOffset(key))
	}

	for offset := startOffset; offset < r.numPairs*pairSize; offset += pairSize {
		pair, err := r.readPairAt(offset)
		if err != nil {
			return 0, false, err
		}
		if pair.Key == key {
			return pair.Value, true, nil
		}
		if pair.Key > key {
			break
		}
	}
	return 0, false, nil
}

// Range returns pairs with start <= key < end.
func (r *Run) Range(start, end int64) ([]Pair, error) {
	if start >= end {
		return nil, nil
	}

	startOffset := int64(0)
	endOffset := r.numPairs * pairSize
	bounded := false
	if r.fence != nil {
		s, e, b := r.fence.FindRangeOffsets(start, end)
		startOffset = int64(s)
		bounded = b
		if bounded {
			endOffset = int64(e)
		}
	}

	var out []Pair
	for offset := startOffset; offset < r.numPairs*pairSize; offset += pairSize {
		pair, err := r.readPairAt(offset)
		if err != nil {
			return nil, err
		}
		if pair.Key >= end {
			break
		}
		if bounded && offset > endOffset {
			break
		}
		if pair.Key >= start {
			out = append(out, pair)
		}
	}
	return out, nil
}

// AllPairs reads every pair in the run, in file order (ascending by key).
func (r *Run) AllPairs() ([]Pair, error) {
	pairs := make([]Pair, 0, r.numPairs)
	for offset := int64(0); offset < r.numPairs*pairSize; offset += pairSize {
		pair, err := r.readPairAt(offset)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// SamplePairs returns the first up-to-n pairs, for diagnostics.
func (r *Run) SamplePairs(n int) ([]Pair, error) {
	limit := int64(n) * pairSize
	if limit > r.numPairs*pairSize {
		limit = r.numPairs * pairSize
	}
	var out []Pair
	for offset := int64(0); offset < limit; offset += pairSize {
		pair, err := r.readPairAt(offset)
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

// RebuildBloomFilter reconstructs the filter at a new target FPR and
// overwrites the sidecar.
func (r *Run) RebuildBloomFilter(newFPR float64) error {
	pairs, err := r.AllPairs()
	if err != nil {
		return err
	}

	bf := NewBloomFilter(newFPR, uint64(len(pairs)))
	for _, p := range pairs {
		bf.Insert(p.Key)
	}
	if err := bf.Save(bloomPath(r.dataPath)); err != nil {
		return err
	}
	r.bloom = bf
	return nil
}

// NumPairs returns the number of pairs stored in the run.
func (r *Run) NumPairs() int64 { return r.numPairs }

// ByteSize returns the size in bytes of the run's .data file.
func (r *Run) ByteSize() int64 { return r.numPairs * pairSize }

// DataPath returns the run's data file path.
func (r *Run) DataPath() string { return r.dataPath }

// Close releases the run's mmap handle without deleting any files.
func (r *Run) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// DeleteFilesFromDisk unlinks the run's three files, logging and
// continuing past individual unlink failures.
func (r *Run) DeleteFilesFromDisk(logger func(path string, err error)) {
	_ = r.Close()

	for _, path := range []string{r.dataPath, bloomPath(r.dataPath), fencePath(r.dataPath)} {
		if err := os.Remove(path); err != nil && logger != nil {
			logger(path, err)
		}
	}
}

// sortAndDeduplicate stable-sorts pairs by key and, for runs of equal
// keys, keeps the later-appended value — the newest one, per the
// newest-last run ordering convention. Surviving pairs equal to the
// tombstone sentinel are dropped.
func sortAndDeduplicate(pairs []Pair) []Pair {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Key < pairs[j].Key
	})

	out := make([]Pair, 0, len(pairs))
	for i := 0; i < len(pairs); i++ {
		if i+1 < len(pairs) && pairs[i+1].Key == pairs[i].Key {
			continue
		}
		if pairs[i].Value == Tombstone {
			continue
		}
		out = append(out, pairs[i])
	}
	return out
}

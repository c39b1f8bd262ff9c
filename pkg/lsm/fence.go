package lsm

import (
	"bufio"
	"encoding/binary"
	"os"
	"sort"
)

// fenceEntry marks the first key of a newly entered page.
type fenceEntry struct {
	Key    int64
	Offset uint64
}

// FencePointers is a sparse key->offset index built once per PAGE_SIZE
// bytes of a run's data file.
type FencePointers struct {
	fileName string
	entries  []fenceEntry
}

// BuildFencePointers emits one entry per page boundary crossed while
// scanning pairs (sorted by key) in file order.
func BuildFencePointers(fileName string, pairs []Pair) *FencePointers {
	fp := &FencePointers{fileName: fileName}

	var lastPageIndex int64 = -1
	for i, p := range pairs {
		offset := uint64(i) * pairSize
		pageIndex := int64(offset / PageSize)
		if pageIndex != lastPageIndex {
			fp.entries = append(fp.entries, fenceEntry{Key: p.Key, Offset: offset})
			lastPageIndex = pageIndex
		}
	}
	return fp
}

// FindOffset returns the offset to begin scanning for key: the offset of
// the largest indexed entry with entry.Key <= key, 0 if key is below every
// indexed key, or the last entry's offset if key exceeds every indexed key.
func (fp *FencePointers) FindOffset(key int64) uint64 {
	if len(fp.entries) == 0 {
		return 0
	}

	idx := sort.Search(len(fp.entries), func(i int) bool {
		return fp.entries[i].Key > key
	})
	if idx == 0 {
		return 0
	}
	return fp.entries[idx-1].Offset
}

// FindRangeOffsets returns (startOffset, endOffset, bounded) for a
// half-open scan [start, end). bounded is false when end falls within the
// last index entry's range, meaning the scan must run to EOF.
func (fp *FencePointers) FindRangeOffsets(start, end int64) (uint64, uint64, bool) {
	startOffset := fp.FindOffset(start)
	if len(fp.entries) == 0 {
		return 0, 0, false
	}

	idx := sort.Search(len(fp.entries), func(i int) bool {
		return fp.entries[i].Key > end
	})
	if idx >= len(fp.entries) {
		return startOffset, 0, false
	}
	return startOffset, fp.entries[idx].Offset, true
}

// Save writes a length-prefixed file name, an entry count, then the entries.
func (fp *FencePointers) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &ErrIO{Op: "create", Path: path, Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	nameBytes := []byte(fp.fileName)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(nameBytes))); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if _, err := w.Write(nameBytes); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(fp.entries))); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	for _, e := range fp.entries {
		if err := binary.Write(w, binary.LittleEndian, e.Key); err != nil {
			return &ErrIO{Op: "write", Path: path, Err: err}
		}
		if err := binary.Write(w, binary.LittleEndian, e.Offset); err != nil {
			return &ErrIO{Op: "write", Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &ErrIO{Op: "flush", Path: path, Err: err}
	}
	return nil
}

// LoadFencePointers reads a sidecar written by Save. A missing or
// truncated file is reported via ErrSidecarMissing.
func LoadFencePointers(path string) (*FencePointers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var nameLen uint64
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	nameBytes := make([]byte, nameLen)
	if _, err := readFull(r, nameBytes); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}

	fp := &FencePointers{fileName: string(nameBytes), entries: make([]fenceEntry, count)}
	for i := range fp.entries {
		if err := binary.Read(r, binary.LittleEndian, &fp.entries[i].Key); err != nil {
			return nil, &ErrSidecarMissing{Path: path, Err: err}
		}
		if err := binary.Read(r, binary.LittleEndian, &fp.entries[i].Offset); err != nil {
			return nil, &ErrSidecarMissing{Path: path, Err: err}
		}
	}
	return fp, nil
}

func fencePath(dataPath string) string {
	return dataPath + ".fence"
}

package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	fnvOffsetBasis uint64 = 14695981039346656037
	fnvPrime       uint64 = 1099511628211
)

// BloomFilter is a probabilistic membership test for one run's keys.
// Hashing uses FNV-1a twice per key: once on the key's bytes, once on the
// bitwise-complemented key's bytes, combined by double hashing.
type BloomFilter struct {
	fpr       float64
	expectedN uint64
	k         uint64
	bitCount  uint64
	bits      []byte
}

// NewBloomFilter derives m and k from the target false-positive rate p and
// the expected element count n, per the standard Bloom filter sizing formulas.
func NewBloomFilter(fpr float64, expectedN uint64) *BloomFilter {
	if expectedN == 0 {
		expectedN = 1
	}
	n := float64(expectedN)
	m := math.Ceil(-n * math.Log(fpr) / (math.Ln2 * math.Ln2))
	if m < 1 {
		m = 1
	}
	k := math.Ceil((m / n) * math.Ln2)
	if k < 1 {
		k = 1
	}

	bitCount := uint64(m)
	return &BloomFilter{
		fpr:       fpr,
		expectedN: expectedN,
		k:         uint64(k),
		bitCount:  bitCount,
		bits:      make([]byte, (bitCount+7)/8),
	}
}

func fnv1a(b []byte) uint64 {
	h := fnvOffsetBasis
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

func keyHashes(key int64) (h1, h2 uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))

	var comp [8]byte
	for i, b := range buf {
		comp[i] = ^b
	}

	return fnv1a(buf[:]), fnv1a(comp[:])
}

func (bf *BloomFilter) indexFor(key int64, i uint64) uint64 {
	h1, h2 := keyHashes(key)
	return (h1 + i*h2) % bf.bitCount
}

func (bf *BloomFilter) setBit(pos uint64) {
	bf.bits[pos/8] |= 1 << (pos % 8)
}

func (bf *BloomFilter) getBit(pos uint64) bool {
	return bf.bits[pos/8]&(1<<(pos%8)) != 0
}

// Insert records key as present.
func (bf *BloomFilter) Insert(key int64) {
	for i := uint64(0); i < bf.k; i++ {
		bf.setBit(bf.indexFor(key, i))
	}
}

// MightContain returns false only if key was never inserted.
func (bf *BloomFilter) MightContain(key int64) bool {
	for i := uint64(0); i < bf.k; i++ {
		if !bf.getBit(bf.indexFor(key, i)) {
			return false
		}
	}
	return true
}

// FPR returns the target false-positive rate this filter was sized for.
func (bf *BloomFilter) FPR() float64 { return bf.fpr }

// Save writes fpr, expected_n, k, bit_count, then the packed bit array.
func (bf *BloomFilter) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &ErrIO{Op: "create", Path: path, Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, bf.fpr); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if err := binary.Write(w, binary.LittleEndian, bf.expectedN); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if err := binary.Write(w, binary.LittleEndian, bf.k); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if err := binary.Write(w, binary.LittleEndian, bf.bitCount); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if _, err := w.Write(bf.bits); err != nil {
		return &ErrIO{Op: "write", Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &ErrIO{Op: "flush", Path: path, Err: err}
	}
	return nil
}

// LoadBloomFilter reads a sidecar written by Save. A missing or truncated
// file is reported via ErrSidecarMissing, non-fatal to the caller.
func LoadBloomFilter(path string) (*BloomFilter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	bf := &BloomFilter{}
	if err := binary.Read(r, binary.LittleEndian, &bf.fpr); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &bf.expectedN); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &bf.k); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &bf.bitCount); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	bf.bits = make([]byte, (bf.bitCount+7)/8)
	if _, err := io.ReadFull(r, bf.bits); err != nil {
		return nil, &ErrSidecarMissing{Path: path, Err: err}
	}
	return bf, nil
}

func bloomPath(dataPath string) string {
	return fmt.Sprintf("%s.bloom", dataPath)
}

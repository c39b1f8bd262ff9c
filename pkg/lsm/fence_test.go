package lsm

import (
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortedPairs(n int) []Pair {
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{Key: int64(i), Value: int64(i)}
	}
	return pairs
}

func TestFencePointers_Empty(t *testing.T) {
	fp := BuildFencePointers("run_1_0.data", nil)
	assert.Equal(t, uint64(0), fp.FindOffset(42))
}

func TestFencePointers_FindOffset(t *testing.T) {
	pairsPerPage := PageSize / pairSize
	pairs := sortedPairs(pairsPerPage * 5)
	fp := BuildFencePointers("run_1_0.data", pairs)

	assert.Equal(t, uint64(0), fp.FindOffset(-100))
	assert.Equal(t, uint64(0), fp.FindOffset(0))

	lastOffset := fp.entries[len(fp.entries)-1].Offset
	assert.Equal(t, lastOffset, fp.FindOffset(int64(len(pairs)+1000)))
}

func TestFencePointers_FindRangeOffsets(t *testing.T) {
	pairsPerPage := PageSize / pairSize
	pairs := sortedPairs(pairsPerPage * 5)
	fp := BuildFencePointers("run_1_0.data", pairs)

	start, end, bounded := fp.FindRangeOffsets(0, int64(pairsPerPage))
	assert.Equal(t, uint64(0), start)
	assert.True(t, bounded)
	assert.Greater(t, end, start)
}

func TestFencePointers_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_1_0.data.fence")

	pairs := sortedPairs(1000)
	fp := BuildFencePointers("run_1_0.data", pairs)
	require.NoError(t, fp.Save(path))

	loaded, err := LoadFencePointers(path)
	require.NoError(t, err)

	for _, k := range []int64{0, 10, 500, 999, 2000} {
		assert.Equal(t, fp.FindOffset(k), loaded.FindOffset(k))
	}
}

func TestLoadFencePointers_Missing(t *testing.T) {
	_, err := LoadFencePointers(filepath.Join(t.TempDir(), "nonexistent.fence"))
	require.Error(t, err)
}

func TestFencePointers_SaveLoadPreservesOffsetForAnyKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_1_0.data.fence")

	pairs := sortedPairs(3000)
	fp := BuildFencePointers("run_1_0.data", pairs)
	require.NoError(t, fp.Save(path))

	loaded, err := LoadFencePointers(path)
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("find_offset agrees before and after round trip", prop.ForAll(
		func(key int64) bool {
			return fp.FindOffset(key) == loaded.FindOffset(key)
		},
		gen.Int64Range(-10000, 10000),
	))

	properties.TestingRun(t)
}

package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLevelRuns_KeepsNewestAndDropsTombstones(t *testing.T) {
	dir := t.TempDir()
	older := makeRun(t, dir, 2, 0, []Pair{{Key: 1, Value: 10}, {Key: 2, Value: 20}})
	newer := makeRun(t, dir, 2, 1, []Pair{{Key: 1, Value: 11}, {Key: 3, Value: Tombstone}})

	merged := mergeLevelRuns([]*Run{older, newer})
	assert.Equal(t, []Pair{{Key: 1, Value: 11}, {Key: 2, Value: 20}}, merged)
}

func TestEngine_TieringCascadesToLazyLeveling(t *testing.T) {
	e := newTestEngine(t)
	e.SetCompactionEnabled(true)

	for batch := int64(0); batch < TieringThreshold; batch++ {
		for i := int64(0); i < 5; i++ {
			k := batch*5 + i
			require.NoError(t, e.Put(k, k))
		}
		require.NoError(t, e.Flush())
	}

	assert.Less(t, e.levels[0].RunCount(), TieringThreshold)
	assert.GreaterOrEqual(t, e.levels[1].RunCount(), 1)

	for k := int64(0); k < TieringThreshold*5; k++ {
		v, ok, err := e.Get(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestEngine_ExtendLevelsOnMaxLevelFill(t *testing.T) {
	e := newTestEngine(t)
	e.maxLevel = 1
	e.levels = []*Level{NewLevel(1)}
	e.levels[0].Strategy = Leveling

	dir := e.dataDir
	r1 := makeRun(t, dir, 1, 0, []Pair{{Key: 1, Value: 1}})
	r2 := makeRun(t, dir, 1, 1, []Pair{{Key: 2, Value: 2}})
	e.levels[0].AppendRun(e.adopt(r1))
	e.levels[0].AppendRun(e.adopt(r2))

	require.NoError(t, e.performCompaction(0))

	assert.Equal(t, 2, e.maxLevel)
}

func TestDistributeBulkLoad_AllPairsAccountedFor(t *testing.T) {
	pairs := sortedPairs(10000)
	allocations := distributeBulkLoad(pairs, 4, 4)

	total := 0
	for _, slice := range allocations {
		total += len(slice)
	}
	assert.Equal(t, len(pairs), total)
}

// TestDistributeBulkLoad_ExceedsLevelOneCapacity exercises the backward
// byte-to-pair-count distribution across more than one level: the input
// is large enough that level 1's 4 MiB capacity is exhausted and levels 2
// and 3 each receive a whole multiple of their parent's capacity.
func TestDistributeBulkLoad_ExceedsLevelOneCapacity(t *testing.T) {
	pairs := sortedPairs(2000000)
	allocations := distributeBulkLoad(pairs, 4, 4)

	assert.Len(t, allocations[3], 1048576)
	assert.Len(t, allocations[2], 786432)
	assert.Len(t, allocations[1], 164992)
	assert.NotContains(t, allocations, 4)

	total := 0
	offset := 0
	for level := 3; level >= 1; level-- {
		slice := allocations[level]
		for _, p := range slice {
			assert.Equal(t, int64(offset), p.Key)
			offset++
		}
		total += len(slice)
	}
	assert.Equal(t, len(pairs), total)
}

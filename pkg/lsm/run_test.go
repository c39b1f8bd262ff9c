package lsm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRun(t *testing.T, dir string, level, id int, pairs []Pair) *Run {
	t.Helper()
	run, err := NewRunFromPairs(dir, level, id, pairs, 0.01)
	require.NoError(t, err)
	t.Cleanup(func() { _ = run.Close() })
	return run
}

func TestRun_GetHitAndMiss(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(500)
	run := makeRun(t, dir, 1, 0, pairs)

	v, ok, err := run.Get(250)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(250), v)

	_, ok, err = run.Get(999999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_Range(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(1000)
	run := makeRun(t, dir, 1, 0, pairs)

	got, err := run.Range(100, 110)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	for i, p := range got {
		assert.Equal(t, int64(100+i), p.Key)
	}
}

func TestRun_Invariants(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(300)
	run := makeRun(t, dir, 2, 5, pairs)

	assert.Equal(t, int64(300), run.NumPairs())
	assert.Equal(t, int64(300*pairSize), run.ByteSize())

	info, err := os.Stat(run.DataPath())
	require.NoError(t, err)
	assert.Equal(t, run.ByteSize(), info.Size())
}

func TestOpenRun_RejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_1_0.data")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := OpenRun(path, 1, 0)
	require.Error(t, err)
	var invalid *ErrInvalidFile
	assert.ErrorAs(t, err, &invalid)
}

func TestOpenRun_DegradesWithoutSidecars(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(200)
	run := makeRun(t, dir, 1, 0, pairs)
	dataPath := run.DataPath()
	require.NoError(t, run.Close())

	require.NoError(t, os.Remove(bloomPath(dataPath)))
	require.NoError(t, os.Remove(fencePath(dataPath)))

	reopened, err := OpenRun(dataPath, 1, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Nil(t, reopened.bloom)
	assert.Nil(t, reopened.fence)

	v, ok, err := reopened.Get(100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), v)
}

func TestRun_RebuildBloomFilter(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(400)
	run := makeRun(t, dir, 1, 0, pairs)

	require.NoError(t, run.RebuildBloomFilter(0.001))
	for i := int64(0); i < 400; i++ {
		assert.True(t, run.bloom.MightContain(i))
	}
}

func TestRun_DeleteFilesFromDisk(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(50)
	run := makeRun(t, dir, 1, 0, pairs)
	dataPath := run.DataPath()

	run.DeleteFilesFromDisk(nil)

	_, err := os.Stat(dataPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(bloomPath(dataPath))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fencePath(dataPath))
	assert.True(t, os.IsNotExist(err))
}

func TestSortAndDeduplicate_KeepsNewestAndDropsTombstones(t *testing.T) {
	pairs := []Pair{
		{Key: 1, Value: 10},
		{Key: 2, Value: 20},
		{Key: 1, Value: 11},
		{Key: 3, Value: Tombstone},
	}

	out := sortAndDeduplicate(pairs)
	assert.Equal(t, []Pair{{Key: 1, Value: 11}, {Key: 2, Value: 20}}, out)
}

func TestRun_GetAgreesWithAllPairsForAnyKey(t *testing.T) {
	dir := t.TempDir()
	pairs := sortedPairs(2000)
	run := makeRun(t, dir, 1, 0, pairs)

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("get matches linear scan of all stored pairs", prop.ForAll(
		func(key int64) bool {
			want, wantOk := int64(0), false
			if key >= 0 && key < int64(len(pairs)) {
				want, wantOk = key, true
			}
			got, gotOk, err := run.Get(key)
			if err != nil {
				return false
			}
			return gotOk == wantOk && got == want
		},
		gen.Int64Range(-100, 2100),
	))

	properties.TestingRun(t)
}

package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_StatsReflectsBufferAndLevels(t *testing.T) {
	e := newTestEngine(t)
	for i := int64(0); i < 30; i++ {
		require.NoError(t, e.Put(i, i))
	}

	s := e.Stats()
	assert.Equal(t, 30, s.BufferElements)
	assert.Equal(t, int64(30), s.TotalPairCount)
	assert.Len(t, s.BufferSample, 10)

	require.NoError(t, e.Flush())
	s = e.Stats()
	assert.Equal(t, 0, s.BufferElements)
	assert.Equal(t, int64(30), s.TotalPairCount)
	assert.Equal(t, 1, s.LevelRunCounts[0])
}

func TestEngine_StatsCountsReadWriteOps(t *testing.T) {
	e := newTestEngine(t)
	for i := int64(0); i < 50; i++ {
		require.NoError(t, e.Put(i, i))
	}
	require.NoError(t, e.Flush())

	for i := int64(0); i < 50; i++ {
		_, _, err := e.Get(i)
		require.NoError(t, err)
	}

	s := e.Stats()
	assert.Greater(t, s.ReadOps, int64(0))
	assert.Greater(t, s.WriteOps, int64(0))
}

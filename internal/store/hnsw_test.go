package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ricerrors "github.com/havenops/ric/internal/errors"
)

func newTestHNSW(t *testing.T, dims int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	idx := newTestHNSW(t, 3)
	ctx := context.Background()

	// Given three orthogonal-ish vectors
	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		}))

	// When searching near the first vector
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)

	// Then the closest two come back in order, scored in [0, 1]
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "c", hits[1].ChunkID)
	for _, h := range hits {
		assert.GreaterOrEqual(t, float64(h.Score), 0.0)
		assert.LessOrEqual(t, float64(h.Score), 1.0)
	}
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := newTestHNSW(t, 4)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	assert.Equal(t, ricerrors.KindDimensionMismatch, ricerrors.KindOf(err))

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.Equal(t, ricerrors.KindDimensionMismatch, ricerrors.KindOf(err))
}

func TestHNSWIndex_ReplaceExistingID(t *testing.T) {
	idx := newTestHNSW(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, idx.Count())

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
}

func TestHNSWIndex_Delete(t *testing.T) {
	idx := newTestHNSW(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0, 1}}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	assert.Equal(t, 1, idx.Count())
	assert.False(t, idx.Contains("a"))
	assert.True(t, idx.Contains("b"))

	// Lazy-deleted vectors never surface in search results.
	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestHNSWIndex_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := newTestHNSW(t, 3)
	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Save(path))

	// A fresh index loads the graph plus ID mappings.
	loaded, err := NewHNSWIndex(DefaultVectorIndexConfig(3))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	hits, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ChunkID)

	// The sidecar exposes the persisted dimension for migrate-indexes.
	dims, err := ReadHNSWIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)
}

func TestReadHNSWIndexDimensions_MissingSidecar(t *testing.T) {
	dims, err := ReadHNSWIndexDimensions(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx := newTestHNSW(t, 2)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

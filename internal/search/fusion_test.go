package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/ric/internal/store"
)

func ranked(ids ...string) []*store.SearchResult {
	results := make([]*store.SearchResult, len(ids))
	for i, id := range ids {
		results[i] = &store.SearchResult{ChunkID: id, Content: "content " + id}
	}
	return results
}

func TestFuse_ReciprocalRankScores(t *testing.T) {
	// Semantic ranks [B, C, A], lexical ranks [A, B, C], k=60.
	semantic := ranked("B", "C", "A")
	lexical := ranked("A", "B", "C")

	fused := fuse([][]*store.SearchResult{semantic, lexical}, 60)
	require.Len(t, fused, 3)

	assert.Equal(t, "B", fused[0].ChunkID)
	assert.Equal(t, "A", fused[1].ChunkID)
	assert.Equal(t, "C", fused[2].ChunkID)

	assert.InDelta(t, 1.0/60+1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/60, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/62, fused[2].Score, 1e-12)
}

func TestFuse_SharedChunkSumsContributions(t *testing.T) {
	// c at rank 1 in one list and rank 2 in the other.
	fused := fuse([][]*store.SearchResult{
		ranked("x", "c"),
		ranked("y", "z", "c"),
	}, 60)

	byID := make(map[string]float64)
	for _, r := range fused {
		byID[r.ChunkID] = r.Score
	}
	assert.InDelta(t, 1.0/61+1.0/62, byID["c"], 1e-12)
}

func TestFuse_SingleListPreservesOrder(t *testing.T) {
	fused := fuse([][]*store.SearchResult{ranked("a", "b", "c")}, 60)
	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "b", fused[1].ChunkID)
	assert.Equal(t, "c", fused[2].ChunkID)
}

func TestFuse_TieBreaksOnBestRankThenID(t *testing.T) {
	// p and q have identical fused scores and identical best ranks, so
	// the chunk ID decides.
	fused := fuse([][]*store.SearchResult{
		ranked("p", "q"),
		ranked("q", "p"),
	}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "p", fused[0].ChunkID)
	assert.Equal(t, "q", fused[1].ChunkID)
}

func TestFuse_EmptyListContributesNothing(t *testing.T) {
	fused := fuse([][]*store.SearchResult{
		ranked("a", "b"),
		nil,
	}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "b", fused[1].ChunkID)
	assert.InDelta(t, 1.0/60, fused[0].Score, 1e-12)
}

func TestFuse_ZeroKUsesDefault(t *testing.T) {
	fused := fuse([][]*store.SearchResult{ranked("a")}, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/DefaultRRFK, fused[0].Score, 1e-12)
}

func TestFuse_DoesNotMutateInputs(t *testing.T) {
	list := ranked("a")
	list[0].Score = 0.93
	_ = fuse([][]*store.SearchResult{list}, 60)
	assert.Equal(t, 0.93, list[0].Score)
}

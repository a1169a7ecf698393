// Package integration exercises the full ingest and search path with the
// real store, vector index, and pipeline wired together.
package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/ric/internal/access"
	"github.com/havenops/ric/internal/config"
	"github.com/havenops/ric/internal/embed"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/search"
	"github.com/havenops/ric/internal/store"
)

const dims = 32

type fixture struct {
	store    *store.SQLiteStore
	vectors  *store.HNSWIndex
	embedder embed.Embedder
	pipeline *ingest.Pipeline
	engine   *search.Engine
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultMatchCount:   10,
		MaxMatchCount:       50,
		RRFK:                60,
		OverFetch:           3,
		RerankOverFetch:     3,
		PerSubCallTimeoutMS: 2000,
		RequestDeadlineMS:   5000,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore("", store.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder, err := embed.NewStaticEmbedder(dims)
	require.NoError(t, err)

	pipeline := ingest.NewPipeline(s, vectors, nil, embedder, nil, ingest.Config{}, nil)
	engine := search.NewEngine(
		search.NewSemanticSearcher(embedder, vectors, s),
		search.NewLexicalSearcher(s, nil),
		nil, nil, searchConfig(), nil)

	return &fixture{store: s, vectors: vectors, embedder: embedder, pipeline: pipeline, engine: engine}
}

func (f *fixture) ingest(t *testing.T, content ingest.ScrapedContent) *ingest.Result {
	t.Helper()
	res, err := f.pipeline.Ingest(context.Background(), content)
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

func article(owner, source, content string) ingest.ScrapedContent {
	return ingest.ScrapedContent{
		Content:    content,
		Title:      "T",
		Source:     source,
		SourceType: store.SourceArticle,
		OwnerID:    owner,
	}
}

func TestIngestThenSkipDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ingest(t, article("u1", "a://1", "alpha beta gamma"))
	assert.NotEmpty(t, first.DocumentID)
	assert.GreaterOrEqual(t, first.ChunksCreated, 1)
	assert.False(t, first.Skipped)

	again := article("u1", "a://1", "alpha beta gamma")
	again.Options.SkipDuplicates = true
	second, err := f.pipeline.Ingest(ctx, again)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Zero(t, second.ChunksCreated)

	counts, err := f.store.Counts(ctx, access.Compile(access.Principal{IsAdmin: true}))
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Documents)
}

func TestReingestWithoutOptionsCreatesSecondDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ingest(t, article("u1", "a://dup", "tidal pools shelter anemones"))

	// No skip_duplicates, no force_reindex: the caller gets another copy.
	second := f.ingest(t, article("u1", "a://dup", "tidal pools shelter anemones"))
	assert.NotEqual(t, first.DocumentID, second.DocumentID)
	assert.False(t, second.Skipped)

	counts, err := f.store.Counts(ctx, access.Compile(access.Principal{IsAdmin: true}))
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Documents)
	assert.Equal(t, 1, counts.DistinctSources)

	// Both copies are searchable.
	resp, err := f.engine.Search(ctx, "anemones", access.Principal{UserID: "u1"},
		search.Options{Type: search.TypeLexical})
	require.NoError(t, err)
	docIDs := make(map[string]bool, resp.Count)
	for _, r := range resp.Results {
		docIDs[r.DocumentID] = true
	}
	assert.True(t, docIDs[first.DocumentID])
	assert.True(t, docIDs[second.DocumentID])

	// force_reindex still targets the canonical copy, not the duplicate.
	replacement := article("u1", "a://dup", "fresh survey of the pools")
	replacement.Options.ForceReindex = true
	third := f.ingest(t, replacement)
	assert.NotEqual(t, first.DocumentID, third.DocumentID)
	_, err = f.store.GetDocumentByID(ctx, first.DocumentID)
	assert.Equal(t, ricerrors.KindNotFound, ricerrors.KindOf(err))
	_, err = f.store.GetDocumentByID(ctx, second.DocumentID)
	assert.NoError(t, err)
}

func TestForceReindexReplacesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ingest(t, article("u1", "a://1", "alpha beta gamma"))

	replacement := article("u1", "a://1", "delta")
	replacement.Options.ForceReindex = true
	second := f.ingest(t, replacement)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)

	// The replaced document leaves no chunks behind, anywhere.
	orphans, err := f.store.GetChunksByDocument(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
	for _, id := range f.vectors.AllIDs() {
		hydrated, _, err := f.store.HydrateChunks(ctx, []string{id}, access.Filter{All: true})
		require.NoError(t, err)
		for _, c := range hydrated {
			assert.NotEqual(t, first.DocumentID, c.DocumentID)
		}
	}

	// The old content is no longer findable by keyword.
	resp, err := f.engine.Search(ctx, "alpha", access.Principal{UserID: "u1"},
		search.Options{Type: search.TypeLexical})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)

	resp, err = f.engine.Search(ctx, "delta", access.Principal{UserID: "u1"},
		search.Options{Type: search.TypeLexical})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, second.DocumentID, resp.Results[0].DocumentID)
}

func TestChunkRowsAreCompleteAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 120)
	res := f.ingest(t, article("u1", "a://long", body))
	require.Greater(t, res.ChunksCreated, 1)

	chunks, err := f.store.GetChunksByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, res.ChunksCreated)

	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Seq, 0)
		assert.Less(t, c.Seq, res.ChunksCreated)
		assert.False(t, seen[c.Seq], "duplicate seq %d", c.Seq)
		seen[c.Seq] = true
		assert.Len(t, c.Embedding, dims)
		assert.True(t, f.vectors.Contains(c.ID))
	}
}

func TestAccessFilterMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	private := article("u1", "a://private", "heron migration routes")
	d1 := f.ingest(t, private)

	grouped := article("u9", "a://grouped", "heron nesting grounds")
	grouped.GroupIDs = []string{"G"}
	d2 := f.ingest(t, grouped)

	public := article("u9", "a://public", "heron feeding habits")
	public.IsPublic = true
	d3 := f.ingest(t, public)

	docsFor := func(p access.Principal) map[string]bool {
		resp, err := f.engine.Search(ctx, "heron", p, search.Options{Type: search.TypeLexical})
		require.NoError(t, err)
		got := make(map[string]bool, resp.Count)
		for _, r := range resp.Results {
			got[r.DocumentID] = true
		}
		return got
	}

	assert.Equal(t, map[string]bool{d1.DocumentID: true, d3.DocumentID: true},
		docsFor(access.Principal{UserID: "u1"}))
	assert.Equal(t, map[string]bool{d2.DocumentID: true, d3.DocumentID: true},
		docsFor(access.Principal{UserID: "u2", Groups: []string{"G"}}))
	assert.Equal(t, map[string]bool{d1.DocumentID: true, d2.DocumentID: true, d3.DocumentID: true},
		docsFor(access.Principal{UserID: "root", IsAdmin: true}))

	// Hybrid search honors the same boundary: dense retrieval never leaks
	// a document the principal cannot read.
	resp, err := f.engine.Search(ctx, "heron migration", access.Principal{UserID: "u2", Groups: []string{"G"}},
		search.Options{Type: search.TypeHybrid})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, d1.DocumentID, r.DocumentID)
	}
}

func TestPartialSearcherFailureReturnsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.ingest(t, article("u1", "a://1", "osprey dives feet first into water"))

	engine := search.NewEngine(
		search.NewSemanticSearcher(f.embedder, f.vectors, f.store),
		failingSearcher{},
		nil, nil, searchConfig(), nil)

	resp, err := engine.Search(ctx, "osprey", access.Principal{UserID: "u1"},
		search.Options{Type: search.TypeHybrid})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, res.DocumentID, resp.Results[0].DocumentID)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "lexical", resp.Warnings[0].Searcher)
}

type failingSearcher struct{}

func (failingSearcher) Name() string { return "lexical" }

func (failingSearcher) Search(context.Context, search.Query) ([]*store.SearchResult, error) {
	return nil, ricerrors.Unavailable(nil, "index offline")
}

// rankedSearcher returns a fixed ranked list, standing in for one
// retrieval branch so fused scores can be asserted literally.
type rankedSearcher struct {
	name string
	ids  []string
}

func (s rankedSearcher) Name() string { return s.name }

func (s rankedSearcher) Search(context.Context, search.Query) ([]*store.SearchResult, error) {
	out := make([]*store.SearchResult, len(s.ids))
	for i, id := range s.ids {
		out[i] = &store.SearchResult{ChunkID: id, DocumentID: "d", Score: float64(len(s.ids) - i)}
	}
	return out, nil
}

func TestHybridFusionScoresAreReciprocalRanks(t *testing.T) {
	engine := search.NewEngine(
		rankedSearcher{name: "semantic", ids: []string{"B", "C", "A"}},
		rankedSearcher{name: "lexical", ids: []string{"A", "B", "C"}},
		nil, nil, searchConfig(), nil)

	resp, err := engine.Search(context.Background(), "q", access.Principal{UserID: "u1"},
		search.Options{Type: search.TypeHybrid, RRFK: 60})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)

	assert.Equal(t, "B", resp.Results[0].ChunkID)
	assert.Equal(t, "A", resp.Results[1].ChunkID)
	assert.Equal(t, "C", resp.Results[2].ChunkID)

	assert.InDelta(t, 1.0/60+1.0/61, resp.Results[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/60, resp.Results[1].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/62, resp.Results[2].Score, 1e-12)
}

func TestDimensionMismatchRefusesIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wide, err := embed.NewStaticEmbedder(dims * 2)
	require.NoError(t, err)
	pipeline := ingest.NewPipeline(f.store, f.vectors, nil, wide, nil, ingest.Config{}, nil)

	_, err = pipeline.Ingest(ctx, article("u1", "a://1", "alpha beta gamma"))
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindDimensionMismatch, ricerrors.KindOf(err))

	counts, err := f.store.Counts(ctx, access.Compile(access.Principal{IsAdmin: true}))
	require.NoError(t, err)
	assert.Zero(t, counts.Documents)
	assert.Zero(t, f.vectors.Count())
}

func TestSemanticSearchFindsIngestedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.ingest(t, article("u1", "a://1", "kestrels hover while hunting voles"))
	f.ingest(t, article("u1", "a://2", "container images layer filesystems"))

	// The static embedder is deterministic, so the query embedding for the
	// exact chunk text is identical to the stored one.
	resp, err := f.engine.Search(ctx, "kestrels hover while hunting voles",
		access.Principal{UserID: "u1"}, search.Options{Type: search.TypeSemantic, MatchCount: 1})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, res.DocumentID, resp.Results[0].DocumentID)
}

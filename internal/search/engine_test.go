package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/ric/internal/access"
	"github.com/havenops/ric/internal/config"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// stubSearcher returns canned results, a canned error, or blocks until
// cancellation when waitForCtx is set.
type stubSearcher struct {
	name       string
	results    []*store.SearchResult
	err        error
	waitForCtx bool
}

func (s *stubSearcher) Name() string { return s.name }

func (s *stubSearcher) Search(ctx context.Context, _ Query) ([]*store.SearchResult, error) {
	if s.waitForCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// stubReranker reverses the pool, or fails.
type stubReranker struct {
	err error
}

func (r *stubReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	if topK > len(documents) {
		topK = len(documents)
	}
	results := make([]RerankResult, 0, topK)
	for i := len(documents) - 1; i >= 0 && len(results) < topK; i-- {
		results = append(results, RerankResult{Index: i, Score: float64(i + 1)})
	}
	return results, nil
}

func (r *stubReranker) Available(context.Context) bool { return r.err == nil }
func (r *stubReranker) Close() error                   { return nil }

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultMatchCount:   10,
		MaxMatchCount:       50,
		RRFK:                60,
		OverFetch:           3,
		RerankOverFetch:     3,
		PerSubCallTimeoutMS: 1000,
		RequestDeadlineMS:   5000,
	}
}

func anyPrincipal() access.Principal {
	return access.Principal{UserID: "u1"}
}

func TestEngine_HybridFusesBothLists(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", results: ranked("B", "C", "A")}
	lexical := &stubSearcher{name: "lexical", results: ranked("A", "B", "C")}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{Type: TypeHybrid})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "B", resp.Results[0].ChunkID)
	assert.Equal(t, "A", resp.Results[1].ChunkID)
	assert.Equal(t, "C", resp.Results[2].ChunkID)
	assert.Empty(t, resp.Warnings)
}

func TestEngine_SingleTypeKeepsNativeScores(t *testing.T) {
	results := ranked("x", "y")
	results[0].Score = 0.91
	results[1].Score = 0.42
	semantic := &stubSearcher{name: "semantic", results: results}
	lexical := &stubSearcher{name: "lexical", err: errors.New("must not run")}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{Type: TypeSemantic})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, 0.91, resp.Results[0].Score)
	assert.Equal(t, 0.42, resp.Results[1].Score)
	assert.Empty(t, resp.Warnings)
}

func TestEngine_HybridWithOneEmptySourceKeepsOrder(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", results: ranked("c2", "c1", "c3")}
	lexical := &stubSearcher{name: "lexical"}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "c2", resp.Results[0].ChunkID)
	assert.Equal(t, "c1", resp.Results[1].ChunkID)
	assert.Equal(t, "c3", resp.Results[2].ChunkID)
}

func TestEngine_PartialFailureReturnsResultsAndWarning(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", results: ranked("a", "b")}
	lexical := &stubSearcher{name: "lexical", err: ricerrors.Unavailable(nil, "index offline")}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "lexical", resp.Warnings[0].Searcher)
	assert.Contains(t, resp.Warnings[0].Message, "index offline")
}

func TestEngine_AllSearchersFailing(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", err: errors.New("embedder down")}
	lexical := &stubSearcher{name: "lexical", err: errors.New("index down")}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	_, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindUnavailable, ricerrors.KindOf(err))
}

func TestEngine_CancelledContext(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", waitForCtx: true}
	lexical := &stubSearcher{name: "lexical", waitForCtx: true}
	engine := NewEngine(semantic, lexical, nil, nil, testSearchConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Search(ctx, "query", anyPrincipal(), Options{})
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindCancelled, ricerrors.KindOf(err))
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := NewEngine(&stubSearcher{name: "semantic"}, &stubSearcher{name: "lexical"}, nil, nil, testSearchConfig(), nil)

	_, err := engine.Search(context.Background(), "   ", anyPrincipal(), Options{})
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))
}

func TestEngine_MatchCountClamped(t *testing.T) {
	many := make([]*store.SearchResult, 0, 60)
	for _, r := range ranked(manyIDs(60)...) {
		many = append(many, r)
	}
	semantic := &stubSearcher{name: "semantic", results: many}
	engine := NewEngine(semantic, &stubSearcher{name: "lexical"}, nil, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{MatchCount: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Count)

	resp, err = engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Count)
}

func TestEngine_GraphJoinsHybridWhenEnabled(t *testing.T) {
	cfg := testSearchConfig()
	cfg.EnableGraph = true
	semantic := &stubSearcher{name: "semantic", results: ranked("a")}
	lexical := &stubSearcher{name: "lexical", results: ranked("b")}
	graph := &stubSearcher{name: "graph", results: ranked("g", "a")}
	engine := NewEngine(semantic, lexical, graph, nil, cfg, nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.NoError(t, err)

	// a appears in two lists at rank 0 and 1, so it outranks the rest.
	assert.Equal(t, "a", resp.Results[0].ChunkID)
	ids := make([]string, 0, resp.Count)
	for _, r := range resp.Results {
		ids = append(ids, r.ChunkID)
	}
	assert.Contains(t, ids, "g")
}

func TestEngine_GraphSkippedWhenDisabled(t *testing.T) {
	graph := &stubSearcher{name: "graph", results: ranked("g")}
	engine := NewEngine(&stubSearcher{name: "semantic", results: ranked("a")},
		&stubSearcher{name: "lexical"}, graph, nil, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, "g", r.ChunkID)
	}
}

func TestEngine_RerankPermutesResults(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", results: ranked("a", "b", "c")}
	engine := NewEngine(semantic, &stubSearcher{name: "lexical"}, nil, &stubReranker{}, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{UseRerank: true, MatchCount: 3})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "c", resp.Results[0].ChunkID)
	assert.Equal(t, "b", resp.Results[1].ChunkID)
	assert.Equal(t, "a", resp.Results[2].ChunkID)
}

func TestEngine_RerankFailureKeepsFusedOrder(t *testing.T) {
	semantic := &stubSearcher{name: "semantic", results: ranked("a", "b")}
	reranker := &stubReranker{err: errors.New("rerank server down")}
	engine := NewEngine(semantic, &stubSearcher{name: "lexical"}, nil, reranker, testSearchConfig(), nil)

	resp, err := engine.Search(context.Background(), "query", anyPrincipal(), Options{UseRerank: true})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Results[0].ChunkID)
	require.NotEmpty(t, resp.Warnings)
	assert.Equal(t, "reranker", resp.Warnings[len(resp.Warnings)-1].Searcher)
}

func TestParseType(t *testing.T) {
	for input, want := range map[string]Type{
		"":         TypeHybrid,
		"hybrid":   TypeHybrid,
		"semantic": TypeSemantic,
		"lexical":  TypeLexical,
	} {
		got, err := ParseType(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseType("vector")
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))
}

func manyIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	return ids
}

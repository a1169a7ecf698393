package search

import (
	"context"

	"github.com/havenops/ric/internal/store"
)

// LexicalSearcher runs keyword retrieval. With a standalone index (bleve)
// it queries that and hydrates the hits; without one it uses the document
// store's FTS5 backend, which applies the access filter in the same query.
type LexicalSearcher struct {
	docs  store.DocumentStore
	index store.LexicalIndex
}

// NewLexicalSearcher returns a keyword searcher. index may be nil, in which
// case the store's built-in FTS5 index serves the queries.
func NewLexicalSearcher(docs store.DocumentStore, index store.LexicalIndex) *LexicalSearcher {
	return &LexicalSearcher{docs: docs, index: index}
}

func (s *LexicalSearcher) Name() string { return "lexical" }

// Search returns results carrying the index's relevance score. Scores are
// monotonic within a query but not calibrated across queries.
func (s *LexicalSearcher) Search(ctx context.Context, q Query) ([]*store.SearchResult, error) {
	var hits []*store.LexicalHit
	var err error
	if s.index != nil {
		hits, err = s.index.Search(ctx, q.Text, q.Limit)
	} else {
		hits, err = s.docs.SearchLexical(ctx, q.Text, q.Limit, q.Access)
	}
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		scores[h.ChunkID] = h.Score
	}
	return hydrate(ctx, s.docs, ids, scores, q)
}

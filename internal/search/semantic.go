package search

import (
	"context"

	"github.com/havenops/ric/internal/embed"
	"github.com/havenops/ric/internal/store"
)

// SemanticSearcher embeds the query once and asks the vector index for the
// nearest chunks by cosine similarity.
type SemanticSearcher struct {
	embedder embed.Embedder
	vectors  store.VectorIndex
	docs     store.DocumentStore
}

// NewSemanticSearcher returns a dense retrieval searcher.
func NewSemanticSearcher(embedder embed.Embedder, vectors store.VectorIndex, docs store.DocumentStore) *SemanticSearcher {
	return &SemanticSearcher{embedder: embedder, vectors: vectors, docs: docs}
}

func (s *SemanticSearcher) Name() string { return "semantic" }

// Search returns results scored by cosine similarity in [0, 1].
func (s *SemanticSearcher) Search(ctx context.Context, q Query) ([]*store.SearchResult, error) {
	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.Search(ctx, vector, q.Limit)
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
		scores[h.ChunkID] = float64(h.Score)
	}
	return hydrate(ctx, s.docs, ids, scores, q)
}

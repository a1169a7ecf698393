package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/havenops/ric/internal/episode"
	"github.com/havenops/ric/internal/store"
)

// FactFinder looks up stored facts whose subject or object matches any of
// the given terms. The episode sink implements it.
type FactFinder interface {
	FindFacts(ctx context.Context, terms []string, limit int) ([]episode.Fact, error)
}

// GraphSearcher retrieves chunks through the fact graph: query terms match
// fact entities, and each fact votes for its provenance chunk with its
// co-occurrence weight.
type GraphSearcher struct {
	facts FactFinder
	docs  store.DocumentStore
}

// NewGraphSearcher returns a fact-graph searcher.
func NewGraphSearcher(facts FactFinder, docs store.DocumentStore) *GraphSearcher {
	return &GraphSearcher{facts: facts, docs: docs}
}

func (s *GraphSearcher) Name() string { return "graph" }

// Search returns results scored by accumulated fact weight.
func (s *GraphSearcher) Search(ctx context.Context, q Query) ([]*store.SearchResult, error) {
	terms := queryTerms(q.Text)
	if len(terms) == 0 {
		return nil, nil
	}

	facts, err := s.facts.FindFacts(ctx, terms, q.Limit)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, f := range facts {
		if f.ChunkID == "" {
			continue
		}
		scores[f.ChunkID] += f.Weight
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}

	return hydrate(ctx, s.docs, ids, scores, q)
}

// queryTerms splits the query into lookup terms, dropping words too short
// to match meaningful entities.
func queryTerms(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 4 {
			terms = append(terms, f)
		}
	}
	return terms
}

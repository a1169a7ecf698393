// Package search runs retrieval over the document corpus: dense vectors,
// keyword matching, and an optional fact graph, fanned out concurrently and
// fused by reciprocal rank.
//
// Every searcher applies the caller's access filter inside the store query,
// so inaccessible chunks never reach this package. Individual searcher
// failures degrade to an empty contribution plus a warning; only a total
// loss fails the request.
package search

import (
	"context"
	"strconv"

	"github.com/havenops/ric/internal/access"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// Type selects which searchers run.
type Type string

const (
	TypeSemantic Type = "semantic"
	TypeLexical  Type = "lexical"
	TypeHybrid   Type = "hybrid"
)

// ParseType validates a search type string. Empty means hybrid.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeSemantic, TypeLexical, TypeHybrid:
		return Type(s), nil
	case "":
		return TypeHybrid, nil
	default:
		return "", ricerrors.BadInput("unknown search_type %q (want semantic, lexical, or hybrid)", s)
	}
}

// Filter narrows results beyond access control. Zero fields are ignored;
// set fields combine with AND.
type Filter struct {
	// SourceType keeps only chunks whose document has this source type.
	SourceType store.SourceType `json:"source_type,omitempty"`

	// DocumentID keeps only chunks of one document.
	DocumentID string `json:"document_id,omitempty"`

	// MetadataKey keeps only chunks whose document carries this metadata
	// key. When MetadataValue is set the value must match too.
	MetadataKey   string `json:"metadata_key,omitempty"`
	MetadataValue string `json:"metadata_value,omitempty"`
}

// IsZero reports whether the filter excludes nothing.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

func (f Filter) matches(c *store.Chunk, d *store.Document) bool {
	if f.SourceType != "" && d.SourceType != f.SourceType {
		return false
	}
	if f.DocumentID != "" && c.DocumentID != f.DocumentID {
		return false
	}
	if f.MetadataKey != "" {
		v, ok := d.Metadata[f.MetadataKey]
		if !ok {
			return false
		}
		if f.MetadataValue != "" && v != f.MetadataValue {
			return false
		}
	}
	return true
}

// Query is the request one searcher receives. Limit is already overfetched
// so fusion and result filtering have candidates to discard.
type Query struct {
	Text   string
	Limit  int
	Access access.Filter
	Filter Filter
}

// Searcher is one retrieval source. Implementations return hydrated,
// access-filtered results ordered best first, scored in their native scale.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]*store.SearchResult, error)
}

// Warning reports a degraded searcher on an otherwise successful response.
type Warning struct {
	Searcher string `json:"searcher"`
	Message  string `json:"message"`
}

// Response is a completed search.
type Response struct {
	Results  []*store.SearchResult `json:"results"`
	Count    int                   `json:"count"`
	Warnings []Warning             `json:"warnings,omitempty"`
}

// hydrate resolves ranked chunk IDs into results. scores carries the
// searcher's native score per chunk ID; ids preserves the ranking.
// Chunks dropped by the access filter or the result filter vanish here.
func hydrate(ctx context.Context, docs store.DocumentStore, ids []string, scores map[string]float64, q Query) ([]*store.SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	chunks, parents, err := docs.HydrateChunks(ctx, ids, q.Access)
	if err != nil {
		return nil, err
	}
	results := make([]*store.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		doc := parents[c.DocumentID]
		if doc == nil {
			continue
		}
		if !q.Filter.matches(c, doc) {
			continue
		}
		results = append(results, &store.SearchResult{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			Content:        c.Content,
			Score:          scores[c.ID],
			Metadata:       resultMetadata(c, doc),
			DocumentTitle:  doc.Title,
			DocumentSource: doc.SourceURL,
		})
	}
	return results, nil
}

// resultMetadata merges the chunk's positional fields into a copy of the
// document metadata, so chapter and timestamp context survive into results.
// The document's map is shared across results and must not be mutated.
func resultMetadata(c *store.Chunk, doc *store.Document) map[string]string {
	if c.ChapterTitle == "" && c.StartTime == 0 && c.EndTime == 0 && c.SectionPath == "" {
		return doc.Metadata
	}
	merged := make(map[string]string, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		merged[k] = v
	}
	if c.ChapterTitle != "" {
		merged["chapter_title"] = c.ChapterTitle
	}
	if c.StartTime != 0 || c.EndTime != 0 {
		merged["start_time"] = strconv.FormatFloat(c.StartTime, 'f', -1, 64)
		merged["end_time"] = strconv.FormatFloat(c.EndTime, 'f', -1, 64)
	}
	if c.SectionPath != "" {
		merged["section_path"] = c.SectionPath
	}
	return merged
}

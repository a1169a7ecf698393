// Package store persists documents and chunks and serves the dense and
// lexical indexes over them. SQLite (with FTS5) is the system of record;
// vector indexes are rebuildable projections of the embeddings stored on
// chunk rows. Every read path accepts an access filter and applies it
// inside the store, so callers never see rows they cannot access.
package store

import (
	"context"
	"time"

	"github.com/havenops/ric/internal/access"
	ricerrors "github.com/havenops/ric/internal/errors"
)

// SourceType classifies where ingested content came from.
type SourceType string

const (
	SourceWeb     SourceType = "web"
	SourceYouTube SourceType = "youtube"
	SourceArticle SourceType = "article"
	SourceFile    SourceType = "file"
	SourceOther   SourceType = "other"
)

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceWeb, SourceYouTube, SourceArticle, SourceFile, SourceOther:
		return SourceType(s), nil
	default:
		return "", ricerrors.BadInput("unknown source_type %q (want web, youtube, article, file, or other)", s)
	}
}

// String returns the string form of the source type.
func (s SourceType) String() string {
	return string(s)
}

// State keys persisted in the state table. Index bookkeeping lives here so
// migrate-indexes can detect dimension and analyzer drift.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyLexicalAnalyzer stores the analyzer the lexical index was built with.
	StateKeyLexicalAnalyzer = "lexical_analyzer"
	// StateKeyVectorBackend stores which vector backend last built the index.
	StateKeyVectorBackend = "vector_backend"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Document represents one ingested source: a web page, a video transcript,
// an uploaded file, or an article.
type Document struct {
	ID         string
	OwnerID    string
	OwnerEmail string
	SourceType SourceType
	// SourceKey is the canonical dedupe key. Two ingestions with the same
	// (owner_id, source_type, source_key) refer to the same document.
	SourceKey string
	// KeyInstance distinguishes explicit duplicates of the same key.
	// Instance 0 is the canonical document; re-ingesting without
	// skip_duplicates or force_reindex allocates the next instance.
	KeyInstance int
	SourceURL   string
	Title       string
	// Content is the canonical normalized text the document was ingested
	// from. Chunks are a derived projection of it.
	Content string
	IsPublic   bool
	SharedWith []string
	GroupIDs   []string
	Metadata   map[string]string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ACL returns the access-relevant slice of the document.
func (d *Document) ACL() access.DocumentACL {
	return access.DocumentACL{
		OwnerID:    d.OwnerID,
		OwnerEmail: d.OwnerEmail,
		IsPublic:   d.IsPublic,
		SharedWith: d.SharedWith,
		GroupIDs:   d.GroupIDs,
	}
}

// Chunk represents a retrievable unit of content split from a document.
type Chunk struct {
	ID         string
	DocumentID string
	// Seq is the chunk's position within its document, starting at 0.
	Seq        int
	Content    string
	StartChar  int
	EndChar    int
	TokenCount int

	// Chapter metadata (transcripts split by chapter).
	ChapterTitle string
	StartTime    float64
	EndTime      float64

	// Structural metadata (markdown-aware splitting).
	SectionPath string
	HasCode     bool

	// Embedding is persisted beside the content so vector indexes can be
	// rebuilt without re-embedding.
	Embedding []float32

	CreatedAt time.Time
}

// DocumentCounts summarizes the corpus visible to a caller.
type DocumentCounts struct {
	Documents int
	Chunks    int
	// DistinctSources counts distinct source keys, so explicit duplicates
	// of one source count once.
	DistinctSources int
	BySource        map[SourceType]int
}

// VectorHit is a single dense-index match.
type VectorHit struct {
	ChunkID string
	// Distance is the raw metric distance (lower is closer).
	Distance float32
	// Score is the normalized similarity in [0, 1].
	Score float32
}

// LexicalHit is a single keyword-index match.
type LexicalHit struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// SearchResult is one retrieval hit as returned to callers: a chunk plus
// the parent document fields worth surfacing. Score semantics depend on the
// stage that produced it (cosine similarity, BM25, RRF, or reranker score).
type SearchResult struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	DocumentTitle  string `json:"document_title,omitempty"`
	DocumentSource string `json:"document_source,omitempty"`
}

// LexicalEntry is a unit of content handed to a standalone lexical index.
type LexicalEntry struct {
	ChunkID string
	Content string
}

// LexicalStats provides statistics about a lexical index.
type LexicalStats struct {
	ChunkCount int
}

// DocumentStore persists documents and chunks in SQLite and serves the
// FTS5 lexical index over them.
type DocumentStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	// GetDocumentByID fetches a document regardless of visibility. Callers
	// enforce access before exposing anything from it.
	GetDocumentByID(ctx context.Context, id string) (*Document, error)
	// FindBySourceKey looks up the dedupe identity, returning the canonical
	// (lowest-instance) document. Returns (nil, nil) when no document matches.
	FindBySourceKey(ctx context.Context, ownerID string, st SourceType, key string) (*Document, error)
	// NextKeyInstance returns the next free key instance for the identity,
	// 0 when no document holds the key yet.
	NextKeyInstance(ctx context.Context, ownerID string, st SourceType, key string) (int, error)
	// DeleteDocument removes a document and its chunks, returning the
	// deleted chunk IDs so callers can purge secondary indexes.
	DeleteDocument(ctx context.Context, id string) ([]string, error)

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	// HydrateChunks resolves chunk IDs to full rows, joined against their
	// documents with the access filter applied in SQL. Inaccessible and
	// missing IDs are silently dropped; order follows the input.
	HydrateChunks(ctx context.Context, ids []string, f access.Filter) ([]*Chunk, map[string]*Document, error)

	// SearchLexical runs an FTS5 match with the access filter applied in
	// the same query. Scores are BM25, higher is better.
	SearchLexical(ctx context.Context, query string, limit int, f access.Filter) ([]*LexicalHit, error)

	// Counts reports corpus totals visible through the filter.
	Counts(ctx context.Context, f access.Filter) (*DocumentCounts, error)

	// Embedding operations (for vector index rebuilds)
	AllEmbeddings(ctx context.Context) (map[string][]float32, error)
	AllChunkIDs(ctx context.Context) ([]string, error)

	// State operations (key-value store for index bookkeeping)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// VectorIndex provides approximate nearest-neighbor search over chunk
// embeddings. Implementations return candidate IDs only; hydration and
// access filtering happen in the document store.
type VectorIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the index (for consistency checks).
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Dimensions returns the vector width the index was built with.
	Dimensions() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// LexicalIndex provides keyword search as a standalone index. The FTS5
// backend lives inside DocumentStore instead; this interface covers
// out-of-database backends such as bleve.
type LexicalIndex interface {
	// Index adds entries to the index, replacing existing IDs.
	Index(ctx context.Context, entries []*LexicalEntry) error

	// Search returns entries matching the query, best first.
	Search(ctx context.Context, query string, limit int) ([]*LexicalHit, error)

	// Delete removes entries by chunk ID.
	Delete(ctx context.Context, chunkIDs []string) error

	// AllIDs returns all chunk IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	// Lifecycle
	Close() error
}

// VectorIndexConfig configures a vector index.
type VectorIndexConfig struct {
	// Dimensions is the vector width. Vectors of any other width are rejected.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for a vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// LexicalConfig configures a lexical index.
type LexicalConfig struct {
	// Analyzer selects tokenization: "porter" (stemming) or "unicode".
	Analyzer string

	// FuzzyDistance is the maximum edit distance for term matching.
	// Zero means exact matching. Only the bleve backend honors it.
	FuzzyDistance int
}

// DefaultLexicalConfig returns sensible defaults for a lexical index.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		Analyzer:      "porter",
		FuzzyDistance: 0,
	}
}

// SQLiteConfig configures the document store.
type SQLiteConfig struct {
	// Analyzer selects FTS5 tokenization: "porter" or "unicode".
	Analyzer string

	// CacheMB is the SQLite page cache size in MB.
	CacheMB int
}

// DefaultSQLiteConfig returns sensible defaults for the document store.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Analyzer: "porter",
		CacheMB:  64,
	}
}

// Package episode records temporal episodes and derived facts for ingested
// documents. Episodes anchor a document (or its chapters) at a point in
// time; facts are entity co-occurrence triples that back the optional graph
// searcher. The sink is fed a self-contained locator and never reads the
// document store.
package episode

import (
	"context"
	"fmt"
	"time"

	"github.com/havenops/ric/internal/chunk"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// Type selects which episodes Record emits.
type Type string

const (
	// TypeOverview emits a single document-level episode.
	TypeOverview Type = "overview"

	// TypeChapter emits one episode per chapter.
	TypeChapter Type = "chapter"

	// TypeBoth emits the overview plus chapter episodes.
	TypeBoth Type = "both"
)

// ParseType validates an episode type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeOverview, TypeChapter, TypeBoth:
		return Type(s), nil
	default:
		return "", ricerrors.BadInput("unknown episode type %q (want overview, chapter, or both)", s)
	}
}

// DefaultExcerptChars bounds the episode description length.
const DefaultExcerptChars = 500

// Config configures the episode sink.
type Config struct {
	// Enabled turns the sink on. When false the pipeline wires a NoopSink.
	Enabled bool

	// ExcerptChars bounds episode descriptions.
	ExcerptChars int
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() Config {
	return Config{ExcerptChars: DefaultExcerptChars}
}

// Episode is one temporal anchor for a document or chapter.
type Episode struct {
	// Key is the stable identity: "{source_type}:{source_key}:overview" or
	// "{source_type}:{source_key}:chapter:{title}". Repeated emits upsert.
	Key string

	Name        string
	Description string
	DocumentID  string
	SourceType  store.SourceType
	SourceKey   string

	// ReferenceTime anchors the episode; chapter episodes are offset by
	// the chapter start.
	ReferenceTime time.Time

	CreatedAt time.Time
}

// Fact is a derived entity triple backing the graph searcher.
type Fact struct {
	Subject  string
	Relation string
	Object   string

	// Weight is the co-occurrence frequency across the document.
	Weight float64

	// Provenance.
	DocumentID string
	ChunkID    string
}

// DocumentLocator carries everything the sink needs about a document.
type DocumentLocator struct {
	DocumentID string
	Title      string
	Source     string
	SourceType store.SourceType
	SourceKey  string

	// ReferenceTime is the document's anchor. Nil means now.
	ReferenceTime *time.Time

	Chapters []chunk.Chapter
	Chunks   []store.Chunk
}

// Request is one Record call.
type Request struct {
	Locator      DocumentLocator
	Type         Type
	ExtractFacts bool
}

// Sink records episodes for ingested documents.
type Sink interface {
	Record(ctx context.Context, req Request) error
}

// Extractor derives facts from chunk content. Implementations must be safe
// for concurrent use.
type Extractor interface {
	Extract(content string) ([]Fact, error)
}

// OverviewKey returns the identity of a document-level episode.
func OverviewKey(st store.SourceType, sourceKey string) string {
	return fmt.Sprintf("%s:%s:overview", st, sourceKey)
}

// ChapterKey returns the identity of a chapter episode.
func ChapterKey(st store.SourceType, sourceKey, title string) string {
	return fmt.Sprintf("%s:%s:chapter:%s", st, sourceKey, title)
}

// NoopSink discards every request.
type NoopSink struct{}

// Record does nothing.
func (NoopSink) Record(context.Context, Request) error { return nil }

var _ Sink = NoopSink{}

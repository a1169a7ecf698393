// Package ingest turns scraped content into persisted, indexed documents.
//
// The pipeline validates, canonicalizes the dedupe key, serializes per key,
// chunks, embeds, persists, indexes, and finally emits a temporal episode.
// Everything up to persistence is side-effect free; any failure after the
// document insert rolls back by deleting the document.
package ingest

import (
	"time"

	"github.com/havenops/ric/internal/chunk"
	"github.com/havenops/ric/internal/episode"
	"github.com/havenops/ric/internal/store"
)

// Options control one ingestion call. The zero value is the common path:
// plain body chunking, no episode, duplicates rejected by the store.
type Options struct {
	// UseStructuralParser enables the markdown section pass.
	UseStructuralParser bool `json:"use_structural_parser,omitempty"`

	// ExtractCodeExamples marks chunks containing fenced code.
	ExtractCodeExamples bool `json:"extract_code_examples,omitempty"`

	// ChunkByChapters chunks per chapter instead of the body walk.
	ChunkByChapters bool `json:"chunk_by_chapters,omitempty"`

	// CreateTemporalEpisode emits an episode after indexing (best effort).
	CreateTemporalEpisode bool `json:"create_temporal_episode,omitempty"`

	// EpisodeType selects overview, chapter, or both episodes.
	// Empty defaults to overview.
	EpisodeType episode.Type `json:"episode_type,omitempty"`

	// ExtractFacts derives entity facts during episode emission.
	ExtractFacts bool `json:"extract_facts,omitempty"`

	// SkipDuplicates returns the existing document instead of re-ingesting.
	SkipDuplicates bool `json:"skip_duplicates,omitempty"`

	// ForceReindex deletes an existing document with the same key first.
	ForceReindex bool `json:"force_reindex,omitempty"`
}

// ScrapedContent is the transient input to Ingest. Callers own scraping;
// the pipeline never fetches anything.
type ScrapedContent struct {
	Content    string            `json:"content"`
	Title      string            `json:"title,omitempty"`
	Source     string            `json:"source"`
	SourceType store.SourceType  `json:"source_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// ReferenceTime anchors temporal episodes, like a video publish date.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`

	Chapters []chunk.Chapter `json:"chapters,omitempty"`

	OwnerID    string `json:"owner_id,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`

	// Sharing set at ingest time.
	IsPublic   bool     `json:"is_public,omitempty"`
	SharedWith []string `json:"shared_with,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty"`

	Options Options `json:"options,omitempty"`
}

// Result reports one ingestion call.
type Result struct {
	Success        bool
	DocumentID     string
	ChunksCreated  int
	ProcessingTime time.Duration

	// Errors collects non-fatal problems, like a failed episode emit.
	Errors []string

	Skipped    bool
	SkipReason string
}

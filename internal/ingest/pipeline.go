package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/havenops/ric/internal/chunk"
	"github.com/havenops/ric/internal/embed"
	"github.com/havenops/ric/internal/episode"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// Config tunes the pipeline. Zero fields pick defaults.
type Config struct {
	// Chunking defaults applied to every call.
	ChunkSize    int
	ChunkOverlap int
	MaxChunkSize int
	MaxTokens    int

	// EmbedBatchSize is the number of chunk contents per embedding request.
	EmbedBatchSize int

	// MaxConcurrentEmbedBatches bounds parallel embedding requests.
	MaxConcurrentEmbedBatches int

	// MaxConcurrency bounds concurrent Ingest calls.
	MaxConcurrency int64

	// EpisodeTimeout bounds the best-effort episode emit.
	EpisodeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = embed.DefaultBatchSize
	}
	if c.MaxConcurrentEmbedBatches <= 0 {
		c.MaxConcurrentEmbedBatches = 2
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.EpisodeTimeout <= 0 {
		c.EpisodeTimeout = 5 * time.Second
	}
	return c
}

// Pipeline ingests scraped content: validate, dedupe, chunk, embed,
// persist, index, episode. Safe for concurrent use.
type Pipeline struct {
	store    store.DocumentStore
	vectors  store.VectorIndex
	lexical  store.LexicalIndex // nil when FTS handles lexical indexing
	embedder embed.Embedder
	sink     episode.Sink
	config   Config

	keyLocks *keyedMutex
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewPipeline wires the pipeline. lexical may be nil when the document
// store's FTS index covers keyword search; sink may be nil to disable
// episodes entirely.
func NewPipeline(
	docStore store.DocumentStore,
	vectors store.VectorIndex,
	lexical store.LexicalIndex,
	embedder embed.Embedder,
	sink episode.Sink,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = episode.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    docStore,
		vectors:  vectors,
		lexical:  lexical,
		embedder: embedder,
		sink:     sink,
		config:   cfg,
		keyLocks: newKeyedMutex(),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrency),
		logger:   logger,
	}
}

// Ingest runs the full pipeline for one piece of content.
func (p *Pipeline) Ingest(ctx context.Context, content ScrapedContent) (*Result, error) {
	start := time.Now()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, ricerrors.FromContext(err)
	}
	defer p.sem.Release(1)

	if err := validate(content); err != nil {
		return nil, err
	}

	sourceKey := CanonicalKey(content.SourceType, content.Source)

	// Serialize per dedupe identity. The store's UNIQUE index backstops
	// races across processes.
	unlock := p.keyLocks.Lock(lockKey(content.OwnerID, content.SourceType, sourceKey))
	defer unlock()

	existing, err := p.store.FindBySourceKey(ctx, content.OwnerID, content.SourceType, sourceKey)
	if err != nil {
		return nil, err
	}
	keyInstance := 0
	if existing != nil {
		switch {
		case content.Options.ForceReindex:
			if err := p.purgeDocument(ctx, existing.ID); err != nil {
				return nil, err
			}
			p.logger.Info("force reindex replaced document",
				"document_id", existing.ID, "source_key", sourceKey)
		case content.Options.SkipDuplicates:
			return &Result{
				Success:        true,
				DocumentID:     existing.ID,
				Skipped:        true,
				SkipReason:     fmt.Sprintf("document already ingested as %s", existing.ID),
				ProcessingTime: time.Since(start),
			}, nil
		default:
			// Neither flag: the caller wants another copy. Allocate the
			// next instance of the key; the UNIQUE index still backstops
			// races on the same instance across processes.
			keyInstance, err = p.store.NextKeyInstance(ctx, content.OwnerID, content.SourceType, sourceKey)
			if err != nil {
				return nil, err
			}
			p.logger.Info("ingesting explicit duplicate",
				"source_key", sourceKey, "key_instance", keyInstance)
		}
	}

	chunks := chunk.Split(chunk.Input{
		Text:     content.Content,
		Chapters: content.Chapters,
	}, p.chunkOptions(content.Options))
	if len(chunks) == 0 {
		return nil, ricerrors.BadInput("content produced no chunks")
	}

	// Refuse before any write when the embedder cannot feed this index.
	if got := p.embedder.Dimensions(); got != p.vectors.Dimensions() {
		return nil, ricerrors.DimensionMismatch(p.vectors.Dimensions(), got)
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	doc := p.buildDocument(content, sourceKey, keyInstance)
	rows := buildChunkRows(doc.ID, chunks, vectors)

	if err := p.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.persistAndIndex(ctx, doc.ID, rows); err != nil {
		return nil, err
	}

	result := &Result{
		Success:       true,
		DocumentID:    doc.ID,
		ChunksCreated: len(rows),
	}

	if content.Options.CreateTemporalEpisode {
		if err := p.emitEpisode(ctx, content, doc, rows); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("episode: %v", err))
		}
	}

	result.ProcessingTime = time.Since(start)
	p.logger.Info("ingested document",
		"document_id", doc.ID,
		"source_type", string(content.SourceType),
		"chunks", len(rows),
		"duration", result.ProcessingTime)
	return result, nil
}

func validate(content ScrapedContent) error {
	hasChapterContent := false
	for _, ch := range content.Chapters {
		if strings.TrimSpace(ch.Content) != "" {
			hasChapterContent = true
			break
		}
	}
	if strings.TrimSpace(content.Content) == "" && !hasChapterContent {
		return ricerrors.BadInput("content must not be empty")
	}
	if strings.TrimSpace(content.Source) == "" {
		return ricerrors.BadInput("source must not be empty")
	}
	if _, err := store.ParseSourceType(string(content.SourceType)); err != nil {
		return err
	}
	if content.Options.EpisodeType != "" {
		if _, err := episode.ParseType(string(content.Options.EpisodeType)); err != nil {
			return err
		}
	}
	return nil
}

func lockKey(ownerID string, st store.SourceType, key string) string {
	return ownerID + "\x00" + string(st) + "\x00" + key
}

func (p *Pipeline) chunkOptions(opts Options) chunk.Options {
	return chunk.Options{
		ChunkSize:           p.config.ChunkSize,
		ChunkOverlap:        p.config.ChunkOverlap,
		MaxChunkSize:        p.config.MaxChunkSize,
		MaxTokens:           p.config.MaxTokens,
		ByChapters:          opts.ChunkByChapters,
		StructuralParser:    opts.UseStructuralParser,
		ExtractCodeExamples: opts.ExtractCodeExamples,
	}
}

// embedChunks embeds chunk contents in bounded parallel batches, mapping
// results back by offset.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentEmbedBatches)

	for offset := 0; offset < len(texts); offset += p.config.EmbedBatchSize {
		end := min(offset+p.config.EmbedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := p.embedder.EmbedBatch(gctx, texts[offset:end])
			if err != nil {
				return err
			}
			copy(vectors[offset:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) buildDocument(content ScrapedContent, sourceKey string, keyInstance int) *store.Document {
	metadata := make(map[string]string, len(content.Metadata)+3)
	for k, v := range content.Metadata {
		metadata[k] = v
	}
	metadata["ingested_at"] = time.Now().UTC().Format(time.RFC3339)
	metadata["source"] = content.Source
	metadata["source_type"] = string(content.SourceType)

	return &store.Document{
		ID:          uuid.NewString(),
		OwnerID:     content.OwnerID,
		OwnerEmail:  content.OwnerEmail,
		SourceType:  content.SourceType,
		SourceKey:   sourceKey,
		KeyInstance: keyInstance,
		SourceURL:   content.Source,
		Title:       content.Title,
		Content:     canonicalText(content),
		IsPublic:    content.IsPublic,
		SharedWith:  content.SharedWith,
		GroupIDs:    content.GroupIDs,
		Metadata:    metadata,
	}
}

// canonicalText is the normalized full text the document was ingested
// from: the body when present, otherwise the chapter contents joined.
func canonicalText(content ScrapedContent) string {
	if body := strings.TrimSpace(content.Content); body != "" {
		return body
	}
	parts := make([]string, 0, len(content.Chapters))
	for _, ch := range content.Chapters {
		if text := strings.TrimSpace(ch.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func buildChunkRows(docID string, chunks []chunk.Chunk, vectors [][]float32) []*store.Chunk {
	rows := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &store.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   docID,
			Seq:          c.Index,
			Content:      c.Content,
			StartChar:    c.StartChar,
			EndChar:      c.EndChar,
			TokenCount:   c.TokenCount,
			ChapterTitle: c.ChapterTitle,
			StartTime:    c.StartTime,
			EndTime:      c.EndTime,
			SectionPath:  c.SectionPath,
			HasCode:      c.HasCode,
			Embedding:    vectors[i],
		}
	}
	return rows
}

// persistAndIndex writes chunk rows and updates the secondary indexes.
// The document row is already in; any failure here deletes it (and with it
// the chunks) so no half-indexed document survives.
func (p *Pipeline) persistAndIndex(ctx context.Context, docID string, rows []*store.Chunk) error {
	fail := func(err error) error {
		if _, delErr := p.store.DeleteDocument(ctx, docID); delErr != nil {
			p.logger.Error("rollback delete failed", "document_id", docID, "error", delErr)
		}
		ids := chunkIDs(rows)
		_ = p.vectors.Delete(ctx, ids)
		if p.lexical != nil {
			_ = p.lexical.Delete(ctx, ids)
		}
		return err
	}

	if err := p.store.SaveChunks(ctx, rows); err != nil {
		return fail(err)
	}

	ids := chunkIDs(rows)
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		vectors[i] = r.Embedding
	}
	if err := p.vectors.Add(ctx, ids, vectors); err != nil {
		return fail(err)
	}

	if p.lexical != nil {
		entries := make([]*store.LexicalEntry, len(rows))
		for i, r := range rows {
			entries[i] = &store.LexicalEntry{ChunkID: r.ID, Content: r.Content}
		}
		if err := p.lexical.Index(ctx, entries); err != nil {
			return fail(err)
		}
	}
	return nil
}

// Delete removes a document and its chunks from the store and every
// secondary index. Callers enforce access before invoking it.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	return p.purgeDocument(ctx, documentID)
}

// purgeDocument removes a document and its traces from every index.
func (p *Pipeline) purgeDocument(ctx context.Context, docID string) error {
	chunkIDs, err := p.store.DeleteDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := p.vectors.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	if p.lexical != nil {
		if err := p.lexical.Delete(ctx, chunkIDs); err != nil {
			return err
		}
	}
	return nil
}

// emitEpisode records the temporal episode under its own timeout. Failures
// surface as result warnings, never as ingest failures.
func (p *Pipeline) emitEpisode(ctx context.Context, content ScrapedContent, doc *store.Document, rows []*store.Chunk) error {
	episodeType := content.Options.EpisodeType
	if episodeType == "" {
		episodeType = episode.TypeOverview
	}

	chunks := make([]store.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = *r
	}

	epCtx, cancel := context.WithTimeout(ctx, p.config.EpisodeTimeout)
	defer cancel()

	return p.sink.Record(epCtx, episode.Request{
		Type:         episodeType,
		ExtractFacts: content.Options.ExtractFacts,
		Locator: episode.DocumentLocator{
			DocumentID:    doc.ID,
			Title:         doc.Title,
			Source:        content.Source,
			SourceType:    content.SourceType,
			SourceKey:     doc.SourceKey,
			ReferenceTime: content.ReferenceTime,
			Chapters:      content.Chapters,
			Chunks:        chunks,
		},
	})
}

func chunkIDs(rows []*store.Chunk) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

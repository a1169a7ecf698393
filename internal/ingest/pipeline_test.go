package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/ric/internal/access"
	"github.com/havenops/ric/internal/chunk"
	"github.com/havenops/ric/internal/embed"
	"github.com/havenops/ric/internal/episode"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

const testDims = 32

func storeAdminFilter() access.Filter {
	return access.Compile(access.Principal{IsAdmin: true})
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    store.DocumentStore
	vectors  store.VectorIndex
	sink     *captureSink
}

// captureSink records episode requests and optionally fails.
type captureSink struct {
	mu       sync.Mutex
	requests []episode.Request
	fail     error
}

func (c *captureSink) Record(_ context.Context, req episode.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.requests = append(c.requests, req)
	return nil
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	docStore, err := store.NewSQLiteStore("", store.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder, err := embed.NewStaticEmbedder(testDims)
	require.NoError(t, err)

	sink := &captureSink{}
	pipeline := NewPipeline(docStore, vectors, nil, embedder, sink, Config{
		ChunkSize:    300,
		ChunkOverlap: 50,
		MaxChunkSize: 600,
	}, nil)

	return &pipelineFixture{pipeline: pipeline, store: docStore, vectors: vectors, sink: sink}
}

func webContent(source string) ScrapedContent {
	return ScrapedContent{
		Content:    strings.TrimSpace(strings.Repeat("Retrieval quality depends on chunking. ", 30)),
		Title:      "Chunking Notes",
		Source:     source,
		SourceType: store.SourceWeb,
		OwnerID:    "user-1",
	}
}

func TestPipeline_IngestPersistsAndIndexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.Ingest(ctx, webContent("https://example.com/chunking"))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.NotEmpty(t, result.DocumentID)
	assert.Greater(t, result.ChunksCreated, 1)
	assert.Empty(t, result.Errors)

	doc, err := f.store.GetDocumentByID(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/chunking", doc.SourceKey)
	assert.Equal(t, "user-1", doc.OwnerID)
	assert.Equal(t, result.ChunksCreated, doc.ChunkCount)
	assert.Equal(t, strings.TrimSpace(strings.Repeat("Retrieval quality depends on chunking. ", 30)), doc.Content)
	assert.Contains(t, doc.Metadata, "ingested_at")
	assert.Equal(t, "web", doc.Metadata["source_type"])

	chunks, err := f.store.GetChunksByDocument(ctx, result.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, result.ChunksCreated)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.True(t, f.vectors.Contains(c.ID))
	}
	assert.Equal(t, result.ChunksCreated, f.vectors.Count())
}

func TestPipeline_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, ScrapedContent{
		Source: "https://example.com", SourceType: store.SourceWeb,
	})
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))

	_, err = f.pipeline.Ingest(ctx, ScrapedContent{
		Content: "body", SourceType: store.SourceWeb,
	})
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))

	_, err = f.pipeline.Ingest(ctx, ScrapedContent{
		Content: "body", Source: "x", SourceType: "ftp",
	})
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))

	_, err = f.pipeline.Ingest(ctx, ScrapedContent{
		Content: "body", Source: "x", SourceType: store.SourceOther,
		Options: Options{EpisodeType: "daily"},
	})
	assert.Equal(t, ricerrors.KindBadInput, ricerrors.KindOf(err))
}

func TestPipeline_SkipDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := webContent("https://example.com/once")
	first, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)

	content.Options.SkipDuplicates = true
	second, err := f.pipeline.Ingest(ctx, content)

	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.NotEmpty(t, second.SkipReason)
	assert.Zero(t, second.ChunksCreated)
}

func TestPipeline_DuplicateWithoutFlagsCreatesAnotherDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := webContent("https://example.com/twice")
	first, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)

	second, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.False(t, second.Skipped)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)

	// Both copies landed; the canonical lookup still resolves to the first.
	counts, err := f.store.Counts(ctx, storeAdminFilter())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Documents)

	canonical, err := f.store.FindBySourceKey(ctx, "user-1", store.SourceWeb,
		"https://example.com/twice")
	require.NoError(t, err)
	require.NotNil(t, canonical)
	assert.Equal(t, first.DocumentID, canonical.ID)

	// skip_duplicates keeps targeting the canonical copy.
	content.Options.SkipDuplicates = true
	third, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)
	assert.True(t, third.Skipped)
	assert.Equal(t, first.DocumentID, third.DocumentID)
}

func TestPipeline_ForceReindexReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := webContent("https://example.com/again")
	first, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)

	content.Options.ForceReindex = true
	second, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)

	assert.NotEqual(t, first.DocumentID, second.DocumentID)
	_, err = f.store.GetDocumentByID(ctx, first.DocumentID)
	assert.Equal(t, ricerrors.KindNotFound, ricerrors.KindOf(err))

	// The vector index holds exactly the replacement's chunks.
	assert.Equal(t, second.ChunksCreated, f.vectors.Count())
}

func TestPipeline_SameKeyDifferentOwnersCoexist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := webContent("https://example.com/shared")
	a.OwnerID = "user-a"
	b := webContent("https://example.com/shared")
	b.OwnerID = "user-b"

	ra, err := f.pipeline.Ingest(ctx, a)
	require.NoError(t, err)
	rb, err := f.pipeline.Ingest(ctx, b)
	require.NoError(t, err)

	assert.NotEqual(t, ra.DocumentID, rb.DocumentID)
}

func TestPipeline_DimensionMismatchWritesNothing(t *testing.T) {
	docStore, err := store.NewSQLiteStore("", store.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	// Embedder width disagrees with the index.
	embedder, err := embed.NewStaticEmbedder(testDims)
	require.NoError(t, err)

	pipeline := NewPipeline(docStore, vectors, nil, embedder, nil, Config{}, nil)
	ctx := context.Background()

	_, err = pipeline.Ingest(ctx, webContent("https://example.com/x"))

	assert.Equal(t, ricerrors.KindDimensionMismatch, ricerrors.KindOf(err))
	counts, countErr := docStore.Counts(ctx, storeAdminFilter())
	require.NoError(t, countErr)
	assert.Zero(t, counts.Documents)
}

func TestPipeline_ChapterIngestCarriesMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := ScrapedContent{
		Title:      "Talk",
		Source:     "https://youtu.be/dQw4w9WgXcQ",
		SourceType: store.SourceYouTube,
		OwnerID:    "user-1",
		Chapters: []chunk.Chapter{
			{Title: "Intro", Content: "Welcome to the session.", StartTime: 0, EndTime: 60},
			{Title: "Main", Content: "The core material follows.", StartTime: 60, EndTime: 600},
		},
		Options: Options{ChunkByChapters: true},
	}

	result, err := f.pipeline.Ingest(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksCreated)

	doc, err := f.store.GetDocumentByID(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", doc.SourceKey)
	// Chapter-only input still yields canonical document text.
	assert.Contains(t, doc.Content, "Welcome to the session.")
	assert.Contains(t, doc.Content, "The core material follows.")

	chunks, err := f.store.GetChunksByDocument(ctx, result.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Intro", chunks[0].ChapterTitle)
	assert.Equal(t, 60.0, chunks[1].StartTime)
}

func TestPipeline_EpisodeEmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := webContent("https://example.com/ep")
	content.Options.CreateTemporalEpisode = true
	content.Options.EpisodeType = episode.TypeOverview

	result, err := f.pipeline.Ingest(ctx, content)

	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, f.sink.requests, 1)
	req := f.sink.requests[0]
	assert.Equal(t, episode.TypeOverview, req.Type)
	assert.Equal(t, result.DocumentID, req.Locator.DocumentID)
	assert.Equal(t, result.ChunksCreated, len(req.Locator.Chunks))
}

func TestPipeline_EpisodeFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.sink.fail = ricerrors.Unavailable(nil, "sink down")
	ctx := context.Background()

	content := webContent("https://example.com/ep-fail")
	content.Options.CreateTemporalEpisode = true

	result, err := f.pipeline.Ingest(ctx, content)

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "episode")

	// The document itself landed.
	_, err = f.store.GetDocumentByID(ctx, result.DocumentID)
	assert.NoError(t, err)
}

func TestPipeline_ConcurrentSameKeySingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	content := webContent("https://example.com/race")
	content.Options.SkipDuplicates = true

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			result, err := f.pipeline.Ingest(ctx, content)
			if err == nil {
				ids[slot] = result.DocumentID
			}
		}(i)
	}
	wg.Wait()

	// Every caller resolved to the same document.
	first := ids[0]
	require.NotEmpty(t, first)
	for _, id := range ids {
		assert.Equal(t, first, id)
	}

	counts, err := f.store.Counts(ctx, storeAdminFilter())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Documents)
}

// failingVectorIndex rejects Add to exercise rollback.
type failingVectorIndex struct {
	store.VectorIndex
}

func (f *failingVectorIndex) Add(context.Context, []string, [][]float32) error {
	return ricerrors.Unavailable(nil, "vector index full")
}

func TestPipeline_IndexFailureRollsBack(t *testing.T) {
	docStore, err := store.NewSQLiteStore("", store.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })

	inner, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	embedder, err := embed.NewStaticEmbedder(testDims)
	require.NoError(t, err)

	pipeline := NewPipeline(docStore, &failingVectorIndex{inner}, nil, embedder, nil, Config{}, nil)
	ctx := context.Background()

	_, err = pipeline.Ingest(ctx, webContent("https://example.com/rollback"))

	require.Error(t, err)
	counts, countErr := docStore.Counts(ctx, storeAdminFilter())
	require.NoError(t, countErr)
	assert.Zero(t, counts.Documents)
	assert.Zero(t, counts.Chunks)
}

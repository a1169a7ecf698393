package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/ric/internal/config"
	"github.com/havenops/ric/internal/embed"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/search"
	"github.com/havenops/ric/internal/store"
)

const testDims = 32

type serverFixture struct {
	server *Server
	docs   store.DocumentStore
}

func newFixture(t *testing.T) *serverFixture {
	t.Helper()

	docs, err := store.NewSQLiteStore("", store.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder, err := embed.NewStaticEmbedder(testDims)
	require.NoError(t, err)

	pipeline := ingest.NewPipeline(docs, vectors, nil, embedder, nil, ingest.Config{}, nil)

	engine := search.NewEngine(
		search.NewSemanticSearcher(embedder, vectors, docs),
		search.NewLexicalSearcher(docs, nil),
		nil, nil,
		config.SearchConfig{
			DefaultMatchCount:   10,
			MaxMatchCount:       50,
			RRFK:                60,
			OverFetch:           3,
			RerankOverFetch:     3,
			PerSubCallTimeoutMS: 2000,
			RequestDeadlineMS:   10000,
		}, nil)

	srv, err := NewServer(pipeline, engine, docs, nil)
	require.NoError(t, err)

	return &serverFixture{server: srv, docs: docs}
}

func ingestInput(source, owner string) IngestInput {
	return IngestInput{
		Content:    "Postgres replication uses write ahead logging to stream changes to replicas.",
		Title:      "Replication Notes",
		Source:     source,
		SourceType: "web",
		OwnerID:    owner,
		OwnerEmail: owner + "@example.com",
	}
}

func TestIngestTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, out, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.DocumentID)
	assert.GreaterOrEqual(t, out.ChunksCreated, 1)
	assert.False(t, out.Skipped)
}

func TestIngestTool_SkipDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)

	input := ingestInput("https://example.com/wal", "u1")
	input.Options.SkipDuplicates = true
	_, second, err := f.server.handleIngest(ctx, nil, input)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Zero(t, second.ChunksCreated)
}

func TestIngestTool_InvalidSourceType(t *testing.T) {
	f := newFixture(t)

	input := ingestInput("https://example.com/wal", "u1")
	input.SourceType = "podcast"
	_, _, err := f.server.handleIngest(context.Background(), nil, input)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestSearchTool_ScopedByPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, out, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)

	owner := SearchInput{
		Query:     "replication write ahead logging",
		Principal: PrincipalInput{ID: "u1", Email: "u1@example.com"},
	}
	_, results, err := f.server.handleSearch(ctx, nil, owner)
	require.NoError(t, err)
	require.NotZero(t, results.Count)
	assert.Equal(t, out.DocumentID, results.Results[0].DocumentID)
	assert.Equal(t, "Replication Notes", results.Results[0].DocumentTitle)

	// A stranger sees nothing: the document is private to u1.
	stranger := SearchInput{
		Query:     "replication write ahead logging",
		Principal: PrincipalInput{ID: "u2"},
	}
	_, results, err = f.server.handleSearch(ctx, nil, stranger)
	require.NoError(t, err)
	assert.Zero(t, results.Count)
	assert.NotNil(t, results.Results)
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.server.handleSearch(context.Background(), nil, SearchInput{
		Query:     "   ",
		Principal: PrincipalInput{ID: "u1"},
	})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestSearchTool_InvalidType(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.server.handleSearch(context.Background(), nil, SearchInput{
		Query:      "anything",
		SearchType: "vector",
		Principal:  PrincipalInput{ID: "u1"},
	})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestDeleteTool_OwnerDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, out, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)

	_, deleted, err := f.server.handleDelete(ctx, nil, DeleteInput{
		DocumentID: out.DocumentID,
		Principal:  PrincipalInput{ID: "u1", Email: "u1@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	_, err = f.docs.GetDocumentByID(ctx, out.DocumentID)
	require.Error(t, err)
	assert.Equal(t, ricerrors.KindNotFound, ricerrors.KindOf(err))
}

func TestDeleteTool_StrangerDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, out, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)

	_, _, err = f.server.handleDelete(ctx, nil, DeleteInput{
		DocumentID: out.DocumentID,
		Principal:  PrincipalInput{ID: "u2"},
	})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeAccessDenied, rpcErr.Code)

	// Document is still there.
	_, err = f.docs.GetDocumentByID(ctx, out.DocumentID)
	require.NoError(t, err)
}

func TestDeleteTool_MissingDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Non-admins cannot distinguish missing from forbidden.
	_, _, err := f.server.handleDelete(ctx, nil, DeleteInput{
		DocumentID: "no-such-doc",
		Principal:  PrincipalInput{ID: "u2"},
	})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeAccessDenied, rpcErr.Code)

	// Admins get the truthful answer.
	_, _, err = f.server.handleDelete(ctx, nil, DeleteInput{
		DocumentID: "no-such-doc",
		Principal:  PrincipalInput{ID: "root", IsAdmin: true},
	})
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeNotFound, rpcErr.Code)
}

func TestDeleteTool_AdminDeletesAnyDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, out, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/wal", "u1"))
	require.NoError(t, err)

	_, deleted, err := f.server.handleDelete(ctx, nil, DeleteInput{
		DocumentID: out.DocumentID,
		Principal:  PrincipalInput{ID: "root", IsAdmin: true},
	})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
}

func TestCountsTool_ScopedByPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.server.handleIngest(ctx, nil, ingestInput("https://example.com/a", "u1"))
	require.NoError(t, err)

	public := ingestInput("https://example.com/b", "u9")
	public.IsPublic = true
	_, _, err = f.server.handleIngest(ctx, nil, public)
	require.NoError(t, err)

	// A second copy of u1's source keeps the distinct-source count at one.
	_, _, err = f.server.handleIngest(ctx, nil, ingestInput("https://example.com/a", "u1"))
	require.NoError(t, err)

	_, counts, err := f.server.handleCounts(ctx, nil, CountsInput{
		Principal: PrincipalInput{ID: "u1", Email: "u1@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Documents)
	assert.Equal(t, 2, counts.DistinctSources)

	_, counts, err = f.server.handleCounts(ctx, nil, CountsInput{
		Principal: PrincipalInput{ID: "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Documents)
	assert.Equal(t, 1, counts.DistinctSources)
	assert.Equal(t, 1, counts.Sources["web"])

	_, counts, err = f.server.handleCounts(ctx, nil, CountsInput{
		Principal: PrincipalInput{ID: "root", IsAdmin: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Documents)
	assert.Equal(t, 2, counts.DistinctSources)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ricerrors.BadInput("bad"), ErrCodeInvalidParams},
		{ricerrors.AccessDenied("no"), ErrCodeAccessDenied},
		{ricerrors.NotFound("gone"), ErrCodeNotFound},
		{ricerrors.Conflict("raced"), ErrCodeConflict},
		{ricerrors.Unavailable(nil, "down"), ErrCodeUnavailable},
		{ricerrors.DimensionMismatch(768, 1024), ErrCodeDimensionMismatch},
		{ricerrors.New(ricerrors.KindTimeout, "slow"), ErrCodeTimeout},
		{ricerrors.New(ricerrors.KindCancelled, "stopped"), ErrCodeTimeout},
		{ricerrors.Internal(nil, "boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		rpcErr := MapError(tt.err)
		require.NotNil(t, rpcErr)
		assert.Equal(t, tt.code, rpcErr.Code, "kind %s", ricerrors.KindOf(tt.err))
	}

	assert.Nil(t, MapError(nil))
}

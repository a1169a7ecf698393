package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/search"
	"github.com/havenops/ric/internal/store"
	"github.com/havenops/ric/pkg/version"
)

// Server bridges MCP clients to the ingestion pipeline and the retrieval
// engine. Stdout carries the protocol; all diagnostics go to the logger.
type Server struct {
	mcp      *mcp.Server
	pipeline *ingest.Pipeline
	engine   *search.Engine
	docs     store.DocumentStore
	logger   *slog.Logger
}

// NewServer wires the tool surface. All dependencies are required.
func NewServer(pipeline *ingest.Pipeline, engine *search.Engine, docs store.DocumentStore, logger *slog.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("ingest pipeline is required")
	}
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		pipeline: pipeline,
		engine:   engine,
		docs:     docs,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ric",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the protocol loop on stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped", "error", err)
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ingest_content",
		Description: "Ingest scraped content into the retrieval corpus: chunk, embed, " +
			"persist, and index it. Dedupes by (owner, source_type, canonical key); " +
			"use skip_duplicates or force_reindex to control re-ingestion.",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Search the corpus as a principal. Hybrid by default: dense vectors " +
			"and keyword matching fused by reciprocal rank, optionally reranked. " +
			"Only documents the principal can read are ever returned.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "delete_document",
		Description: "Delete a document and all its chunks from the store and indexes. " +
			"Only the owner or an admin may delete.",
	}, s.handleDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_document_counts",
		Description: "Count the documents, chunks, and sources visible to a principal.",
	}, s.handleCounts)

	s.logger.Info("mcp tools registered", "count", 4)
}

// requestID creates a short unique ID for log correlation.
func requestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package server

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/havenops/ric/internal/access"
	"github.com/havenops/ric/internal/chunk"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/search"
	"github.com/havenops/ric/internal/store"
)

// PrincipalInput is the acting identity attached to a tool call.
type PrincipalInput struct {
	ID      string   `json:"id" jsonschema:"stable user identifier"`
	Email   string   `json:"email,omitempty" jsonschema:"user email, matched against document sharing lists"`
	Groups  []string `json:"groups,omitempty" jsonschema:"group memberships"`
	IsAdmin bool     `json:"is_admin,omitempty" jsonschema:"admins bypass access filtering"`
}

func (p PrincipalInput) principal() access.Principal {
	return access.Principal{
		UserID:  p.ID,
		Email:   p.Email,
		Groups:  p.Groups,
		IsAdmin: p.IsAdmin,
	}
}

// IngestInput is the ingest_content request.
type IngestInput struct {
	Content       string            `json:"content" jsonschema:"normalized text content to ingest"`
	Title         string            `json:"title,omitempty" jsonschema:"document title"`
	Source        string            `json:"source" jsonschema:"origin URL, file path, or free-form identifier"`
	SourceType    string            `json:"source_type" jsonschema:"web, youtube, article, file, or other"`
	Metadata      map[string]string `json:"metadata,omitempty" jsonschema:"caller metadata stored with the document"`
	ReferenceTime *time.Time        `json:"reference_time,omitempty" jsonschema:"temporal anchor, like a publish date"`
	Chapters      []chunk.Chapter   `json:"chapters,omitempty" jsonschema:"titled, optionally timestamped content spans"`
	OwnerID       string            `json:"owner_id" jsonschema:"owning user id"`
	OwnerEmail    string            `json:"owner_email,omitempty" jsonschema:"owning user email"`
	IsPublic      bool              `json:"is_public,omitempty" jsonschema:"readable by everyone"`
	SharedWith    []string          `json:"shared_with,omitempty" jsonschema:"emails granted read access"`
	GroupIDs      []string          `json:"group_ids,omitempty" jsonschema:"groups granted read access"`
	Options       ingest.Options    `json:"options,omitempty" jsonschema:"per-call ingestion options"`
}

// IngestOutput is the ingest_content response.
type IngestOutput struct {
	Success          bool     `json:"success"`
	DocumentID       string   `json:"document_id,omitempty"`
	ChunksCreated    int      `json:"chunks_created"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Skipped          bool     `json:"skipped,omitempty"`
	SkipReason       string   `json:"skip_reason,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	id := requestID()
	s.logger.Info("ingest_content started",
		"request_id", id,
		"source", input.Source,
		"source_type", input.SourceType,
		"owner_id", input.OwnerID)

	sourceType, err := store.ParseSourceType(input.SourceType)
	if err != nil {
		return nil, IngestOutput{}, MapError(err)
	}

	result, err := s.pipeline.Ingest(ctx, ingest.ScrapedContent{
		Content:       input.Content,
		Title:         input.Title,
		Source:        input.Source,
		SourceType:    sourceType,
		Metadata:      input.Metadata,
		ReferenceTime: input.ReferenceTime,
		Chapters:      input.Chapters,
		OwnerID:       input.OwnerID,
		OwnerEmail:    input.OwnerEmail,
		IsPublic:      input.IsPublic,
		SharedWith:    input.SharedWith,
		GroupIDs:      input.GroupIDs,
		Options:       input.Options,
	})
	if err != nil {
		s.logger.Error("ingest_content failed", "request_id", id, "error", err)
		return nil, IngestOutput{}, MapError(err)
	}

	s.logger.Info("ingest_content completed",
		"request_id", id,
		"document_id", result.DocumentID,
		"chunks_created", result.ChunksCreated,
		"skipped", result.Skipped,
		"duration", result.ProcessingTime)

	return nil, IngestOutput{
		Success:          result.Success,
		DocumentID:       result.DocumentID,
		ChunksCreated:    result.ChunksCreated,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
		Skipped:          result.Skipped,
		SkipReason:       result.SkipReason,
		Errors:           result.Errors,
	}, nil
}

// SearchInput is the search request.
type SearchInput struct {
	Query      string         `json:"query" jsonschema:"the search query"`
	Principal  PrincipalInput `json:"principal" jsonschema:"acting identity; scopes every result"`
	MatchCount int            `json:"match_count,omitempty" jsonschema:"desired result count, clamped to the configured maximum"`
	SearchType string         `json:"search_type,omitempty" jsonschema:"semantic, lexical, or hybrid (default)"`
	Filter     *search.Filter `json:"filter,omitempty" jsonschema:"extra chunk-level predicate"`
	UseRerank  bool           `json:"use_rerank,omitempty" jsonschema:"rerank the fused pool when a reranker is configured"`
}

// SearchOutput is the search response.
type SearchOutput struct {
	Results  []*store.SearchResult `json:"results"`
	Count    int                   `json:"count"`
	Warnings []search.Warning      `json:"warnings,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	id := requestID()
	start := time.Now()

	searchType, err := search.ParseType(input.SearchType)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	opts := search.Options{
		MatchCount: input.MatchCount,
		Type:       searchType,
		UseRerank:  input.UseRerank,
	}
	if input.Filter != nil {
		opts.Filter = *input.Filter
	}

	s.logger.Info("search started",
		"request_id", id,
		"search_type", searchType,
		"user_id", input.Principal.ID)

	resp, err := s.engine.Search(ctx, input.Query, input.Principal.principal(), opts)
	if err != nil {
		s.logger.Error("search failed",
			"request_id", id,
			"duration", time.Since(start),
			"error", err)
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		"request_id", id,
		"duration", time.Since(start),
		"result_count", resp.Count,
		"warnings", len(resp.Warnings))

	results := resp.Results
	if results == nil {
		results = []*store.SearchResult{}
	}
	return nil, SearchOutput{
		Results:  results,
		Count:    resp.Count,
		Warnings: resp.Warnings,
	}, nil
}

// DeleteInput is the delete_document request.
type DeleteInput struct {
	DocumentID string         `json:"document_id" jsonschema:"document to delete"`
	Principal  PrincipalInput `json:"principal" jsonschema:"acting identity; must own the document or be admin"`
}

// DeleteOutput is the delete_document response.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInput) (
	*mcp.CallToolResult,
	DeleteOutput,
	error,
) {
	id := requestID()
	if input.DocumentID == "" {
		return nil, DeleteOutput{}, NewInvalidParamsError("document_id is required")
	}
	principal := input.Principal.principal()

	doc, err := s.docs.GetDocumentByID(ctx, input.DocumentID)
	if err != nil && ricerrors.KindOf(err) != ricerrors.KindNotFound {
		return nil, DeleteOutput{}, MapError(err)
	}
	if doc == nil {
		// Only admins learn that a document does not exist; everyone
		// else gets the same answer as for a forbidden document.
		if principal.IsAdmin {
			return nil, DeleteOutput{}, MapError(
				ricerrors.NotFound("document %s not found", input.DocumentID))
		}
		return nil, DeleteOutput{}, MapError(
			ricerrors.AccessDenied("not allowed to delete document %s", input.DocumentID))
	}

	if !access.CanWrite(principal, doc.ACL()) {
		return nil, DeleteOutput{}, MapError(
			ricerrors.AccessDenied("not allowed to delete document %s", input.DocumentID))
	}

	if err := s.pipeline.Delete(ctx, input.DocumentID); err != nil {
		s.logger.Error("delete_document failed",
			"request_id", id,
			"document_id", input.DocumentID,
			"error", err)
		return nil, DeleteOutput{}, MapError(err)
	}

	s.logger.Info("delete_document completed",
		"request_id", id,
		"document_id", input.DocumentID,
		"user_id", principal.UserID)
	return nil, DeleteOutput{Deleted: true}, nil
}

// CountsInput is the get_document_counts request.
type CountsInput struct {
	Principal PrincipalInput `json:"principal" jsonschema:"acting identity; counts cover only visible documents"`
}

// CountsOutput is the get_document_counts response.
type CountsOutput struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	// DistinctSources counts unique source keys; explicit duplicates of
	// one source count once.
	DistinctSources int            `json:"distinct_sources"`
	Sources         map[string]int `json:"sources"`
}

func (s *Server) handleCounts(ctx context.Context, _ *mcp.CallToolRequest, input CountsInput) (
	*mcp.CallToolResult,
	CountsOutput,
	error,
) {
	counts, err := s.docs.Counts(ctx, access.Compile(input.Principal.principal()))
	if err != nil {
		return nil, CountsOutput{}, MapError(err)
	}

	sources := make(map[string]int, len(counts.BySource))
	for st, n := range counts.BySource {
		sources[string(st)] = n
	}
	return nil, CountsOutput{
		Documents:       counts.Documents,
		Chunks:          counts.Chunks,
		DistinctSources: counts.DistinctSources,
		Sources:         sources,
	}, nil
}

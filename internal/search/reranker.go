package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// Reranker reorders a candidate pool with a cross-encoder style scorer.
type Reranker interface {
	// Rerank scores documents against the query and returns the top K in
	// score order. Index refers into the input slice.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// RerankResult is one reranked document.
type RerankResult struct {
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
	Document string  `json:"-"`
}

// NoopReranker keeps the input order with positional scores. Used when no
// rerank endpoint is configured.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	if topK > len(documents) {
		topK = len(documents)
	}
	results := make([]RerankResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)/float64(len(documents)+1),
			Document: documents[i],
		}
	}
	return results, nil
}

func (NoopReranker) Available(context.Context) bool { return true }
func (NoopReranker) Close() error                   { return nil }

const (
	rerankTimeout     = 10 * time.Second
	rerankMaxFailures = 3
	rerankResetAfter  = 30 * time.Second
)

// HTTPReranker calls a rerank server speaking the common
// {query, documents, top_k} JSON protocol. A circuit breaker stops
// hammering a dead endpoint; callers treat errors as a degrade signal.
type HTTPReranker struct {
	endpoint string
	client   *http.Client
	breaker  *ricerrors.CircuitBreaker
}

// NewHTTPReranker returns a reranker for the given base URL.
func NewHTTPReranker(endpoint string) (*HTTPReranker, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, ricerrors.BadInput("rerank endpoint is required")
	}
	return &HTTPReranker{
		endpoint: endpoint,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: ricerrors.NewCircuitBreaker("reranker",
			ricerrors.WithMaxFailures(rerankMaxFailures),
			ricerrors.WithResetTimeout(rerankResetAfter)),
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(documents) {
		topK = len(documents)
	}
	if !r.breaker.Allow() {
		return nil, ricerrors.Unavailable(nil, "rerank circuit open")
	}

	results, err := r.call(ctx, query, documents, topK)
	if err != nil {
		r.breaker.RecordFailure()
		return nil, err
	}
	r.breaker.RecordSuccess()
	return results, nil
}

func (r *HTTPReranker) call(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, TopK: topK})
	if err != nil {
		return nil, ricerrors.Internal(err, "encode rerank request")
	}

	ctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, ricerrors.Internal(err, "build rerank request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctxErr := ricerrors.FromContext(ctx.Err()); ctx.Err() != nil {
			return nil, ctxErr
		}
		return nil, ricerrors.Unavailable(err, "rerank server unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ricerrors.Unavailable(err, "read rerank response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ricerrors.Unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(payload), 200)),
			"rerank server error")
	}

	var decoded rerankResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, ricerrors.Internal(err, "decode rerank response")
	}

	results := make([]RerankResult, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		if item.Index < 0 || item.Index >= len(documents) {
			return nil, ricerrors.Internal(nil, "rerank index %d out of range for %d documents", item.Index, len(documents))
		}
		results = append(results, RerankResult{
			Index:    item.Index,
			Score:    item.Score,
			Document: documents[item.Index],
		})
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Available probes the endpoint's health route.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *HTTPReranker) Close() error {
	if t, ok := r.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

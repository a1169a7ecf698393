package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// HTTPEmbedder generates embeddings through an Ollama-compatible HTTP API
// (POST /api/embed). Transient failures are retried with jittered
// exponential backoff; permanent failures (4xx) fail immediately.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    Config

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*HTTPEmbedder)(nil)

// embedRequest is the wire request for /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	// Input is a single string or an array of strings.
	Input any `json:"input"`
}

// embedResponse is the wire response from /api/embed.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewHTTPEmbedder creates an HTTP embedder. No health check is performed;
// callers probe readiness through Available.
func NewHTTPEmbedder(cfg Config) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, ricerrors.BadInput("embedder endpoint must not be empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, ricerrors.BadInput("embedder dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = DefaultRetryBudget
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	// No http.Client.Timeout: per-request context.WithTimeout governs
	// each call so the caller's deadline stays in charge.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     30 * time.Second,
	}

	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input
// order. Empty texts embed to the zero vector without a provider call.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ricerrors.New(ricerrors.KindInternal, "embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Empty inputs get zero vectors; only real content hits the API.
	type indexedText struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var nonEmpty []indexedText
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.config.Dimensions)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, ricerrors.FromContext(err)
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vectors, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}

		for i, vec := range vectors {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// embedWithRetry runs one provider request under the retry budget.
// Permanent errors short-circuit through errors.IsRetryable.
func (e *HTTPEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := ricerrors.RetryConfig{
		MaxRetries:   e.config.RetryBudget,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return ricerrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

// doEmbed performs a single embedding request.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, ricerrors.Internal(err, "failed to marshal embed request")
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, ricerrors.Internal(err, "failed to build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ricerrors.FromContext(ctxErr)
		}
		// Connection failures and per-request timeouts are transient.
		return nil, ricerrors.Unavailable(err, "embedding request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, ricerrors.BadInput("embedding rejected with status %d: %s", resp.StatusCode, msg)
		}
		return nil, ricerrors.Unavailable(nil, "embedding failed with status %d: %s", resp.StatusCode, msg)
	}

	var apiResult embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, ricerrors.Unavailable(err, "failed to decode embed response")
	}

	if len(apiResult.Embeddings) != len(texts) {
		return nil, ricerrors.New(ricerrors.KindInternal,
			"embed response count mismatch: sent %d texts, got %d embeddings",
			len(texts), len(apiResult.Embeddings))
	}

	vectors := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		if len(emb) != e.config.Dimensions {
			return nil, ricerrors.DimensionMismatch(e.config.Dimensions, len(emb))
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vectors[i] = normalizeVector(vec)
	}

	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the embedding server with a one-token request.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close releases idle connections. Idempotent.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}

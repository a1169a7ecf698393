// Package embed converts text into dense vectors for semantic retrieval.
//
// Two providers exist: an HTTP embedder for Ollama-compatible embedding
// servers, and a deterministic static embedder for tests and offline use.
// CachedEmbedder wraps either with an LRU keyed by content hash.
package embed

import (
	"context"
	"math"
	"time"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// Provider selects an embedding implementation. The set is closed; the
// factory switches over it exhaustively.
type Provider string

const (
	// ProviderHTTP embeds through an Ollama-compatible /api/embed endpoint.
	ProviderHTTP Provider = "http"

	// ProviderStatic embeds with deterministic hash vectors, no network.
	ProviderStatic Provider = "static"
)

// ParseProvider validates a provider string.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderHTTP, ProviderStatic:
		return Provider(s), nil
	default:
		return "", ricerrors.BadInput("unknown embedder provider %q (want http or static)", s)
	}
}

// Defaults applied by the factory when config fields are zero.
const (
	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request to prevent memory exhaustion.
	MaxBatchSize = 256

	// DefaultTimeout bounds one embedding HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryBudget is the retry count for transient provider failures.
	DefaultRetryBudget = 3

	// DefaultDimensions matches nomic-embed-text, the default model.
	DefaultDimensions = 768
)

// Embedder generates vector embeddings for text.
// Implementations are safe for concurrent use.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Output order
	// matches input order; callers may assume index alignment.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Config configures the embedder factory.
type Config struct {
	// Provider selects the implementation.
	Provider Provider

	// Endpoint is the embedding server base URL (http provider).
	Endpoint string

	// Model is the embedding model name sent with each request.
	Model string

	// Dimensions is the expected embedding width. The http provider
	// rejects responses of any other width; the static provider
	// generates vectors of exactly this width.
	Dimensions int

	// BatchSize is the number of texts per provider request.
	BatchSize int

	// RetryBudget is the retry count for transient failures.
	RetryBudget int

	// CacheSize is the LRU capacity in entries; zero disables caching.
	CacheSize int

	// Timeout bounds a single provider request.
	Timeout time.Duration
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

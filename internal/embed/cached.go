package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by model and
// content hash. Re-ingesting unchanged content skips the provider entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		return nil, ricerrors.BadInput("cache size must be positive, got %d", size)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, ricerrors.Internal(err, "failed to create embedding cache")
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector when present, otherwise delegates.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the
// provider, preserving input order in the result.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		keys[i] = e.cacheKey(text)
		if vec, ok := e.cache.Get(keys[i]); ok {
			results[i] = vec
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, vec := range vectors {
		idx := missIdx[i]
		results[idx] = vec
		e.cache.Add(keys[idx], vec)
	}
	return results, nil
}

// Dimensions delegates to the wrapped embedder.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelName delegates to the wrapped embedder.
func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}

// Available delegates to the wrapped embedder.
func (e *CachedEmbedder) Available(ctx context.Context) bool {
	return e.inner.Available(ctx)
}

// Close purges the cache and closes the wrapped embedder.
func (e *CachedEmbedder) Close() error {
	e.cache.Purge()
	return e.inner.Close()
}

// cacheKey hashes model plus content. Including the model keeps stale
// vectors from surviving a model switch.
func (e *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(e.inner.ModelName()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// StaticEmbedder generates deterministic embeddings from content hashes.
// No network, no model. Identical text always yields the identical vector,
// which makes it the embedder of choice for tests and air-gapped setups.
// Vectors capture coarse lexical similarity only.
type StaticEmbedder struct {
	dimensions int
	model      string
}

var _ Embedder = (*StaticEmbedder)(nil)

// Feature weights. Token hashes dominate; character trigrams add a small
// amount of robustness to morphological variation.
const (
	tokenWeight   = 0.7
	trigramWeight = 0.3
)

// NewStaticEmbedder creates a static embedder producing vectors of the
// given width.
func NewStaticEmbedder(dimensions int) (*StaticEmbedder, error) {
	if dimensions <= 0 {
		return nil, ricerrors.BadInput("embedder dimensions must be positive, got %d", dimensions)
	}
	return &StaticEmbedder{
		dimensions: dimensions,
		model:      "static-hash",
	}, nil
}

// Embed generates a deterministic embedding for the text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.hashVector(text), nil
}

// EmbedBatch generates embeddings for multiple texts in input order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, ricerrors.FromContext(err)
		}
		vectors[i] = e.hashVector(text)
	}
	return vectors, nil
}

// Dimensions returns the configured vector width.
func (e *StaticEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns "static-hash".
func (e *StaticEmbedder) ModelName() string {
	return e.model
}

// Available always reports true; there is nothing to be down.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (e *StaticEmbedder) Close() error {
	return nil
}

// hashVector spreads token and trigram hashes across the vector, then
// normalizes to unit length. Empty text maps to the zero vector.
func (e *StaticEmbedder) hashVector(text string) []float32 {
	vec := make([]float32, e.dimensions)

	tokens := splitTokens(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimensions))
		// Sign from a high bit keeps the accumulated vector from
		// collapsing toward all-positive.
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[idx] += sign * tokenWeight
	}

	for _, token := range tokens {
		runes := []rune(token)
		for i := 0; i+3 <= len(runes); i++ {
			h := fnv.New64a()
			_, _ = h.Write([]byte(string(runes[i : i+3])))
			sum := h.Sum64()

			idx := int(sum % uint64(e.dimensions))
			sign := float32(1)
			if sum&(1<<63) != 0 {
				sign = -1
			}
			vec[idx] += sign * trigramWeight
		}
	}

	return normalizeVector(vec)
}

// splitTokens lowercases and splits on non-letter, non-digit runes.
func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

package embed

import (
	ricerrors "github.com/havenops/ric/internal/errors"
)

// New constructs an Embedder from config. When CacheSize is positive the
// provider is wrapped with an LRU cache.
func New(cfg Config) (Embedder, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	var inner Embedder
	switch provider {
	case ProviderHTTP:
		inner, err = NewHTTPEmbedder(cfg)
	case ProviderStatic:
		inner, err = NewStaticEmbedder(cfg.Dimensions)
	default:
		return nil, ricerrors.BadInput("unknown embedder provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize)
	}
	return inner, nil
}

package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StaticProvider(t *testing.T) {
	e, err := New(Config{Provider: ProviderStatic, Dimensions: 128})

	require.NoError(t, err)
	defer e.Close()
	assert.IsType(t, (*StaticEmbedder)(nil), e)
	assert.Equal(t, 128, e.Dimensions())
}

func TestNew_HTTPProvider(t *testing.T) {
	e, err := New(Config{
		Provider:   ProviderHTTP,
		Endpoint:   "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
	})

	require.NoError(t, err)
	defer e.Close()
	assert.IsType(t, (*HTTPEmbedder)(nil), e)
}

func TestNew_WrapsWithCache(t *testing.T) {
	e, err := New(Config{Provider: ProviderStatic, Dimensions: 64, CacheSize: 100})

	require.NoError(t, err)
	defer e.Close()
	assert.IsType(t, (*CachedEmbedder)(nil), e)
}

func TestNew_DefaultDimensions(t *testing.T) {
	e, err := New(Config{Provider: ProviderStatic})

	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "mlx"})
	assert.Error(t, err)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("http")
	require.NoError(t, err)
	assert.Equal(t, ProviderHTTP, p)

	p, err = ParseProvider("static")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatic, p)

	_, err = ParseProvider("")
	assert.Error(t, err)
}

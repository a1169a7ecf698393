// Package config loads and validates server configuration.
// Precedence, lowest to highest: hardcoded defaults, user config
// (~/.config/ric/config.yaml), explicit config file, RIC_* environment
// variables. The merged result is validated before use; invalid values
// fail startup rather than being silently clamped.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	// DataDir holds the chunk database, vector index, lock file, and spool.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Log      LogConfig      `yaml:"log" json:"log"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Chunker  ChunkerConfig  `yaml:"chunker" json:"chunker"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Ingest   IngestConfig   `yaml:"ingest" json:"ingest"`
	Spool    SpoolConfig    `yaml:"spool" json:"spool"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// Format selects the handler encoding ("json" or "text").
	Format string `yaml:"format" json:"format"`
	// File is the log file path. Empty derives <data_dir>/logs/server.log.
	File string `yaml:"file" json:"file"`
}

// StoreConfig selects index backends and tuning for the chunk store.
type StoreConfig struct {
	// LexicalBackend selects the keyword index: "fts" (SQLite FTS5,
	// concurrent access) or "bleve" (fuzzy matching support).
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// VectorBackend selects the dense index: "hnsw" (in-process graph,
	// persisted beside the database) or "sqlite-vec" (vec0 virtual table).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// Analyzer selects lexical tokenization: "porter" (stemming) or
	// "unicode" (exact tokens).
	Analyzer string `yaml:"analyzer" json:"analyzer"`

	// FuzzyDistance is the maximum edit distance for lexical term matching.
	// Only honored by the bleve backend. Range 0-2.
	FuzzyDistance int `yaml:"fuzzy_distance" json:"fuzzy_distance"`

	// SQLiteCacheMB is the SQLite page cache size in MB.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider selects the embedder: "http" (external embedding server)
	// or "static" (deterministic hash embeddings, no network).
	Provider string `yaml:"provider" json:"provider"`
	// Endpoint is the embedding server base URL (http provider).
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Model is the embedding model name sent with each request.
	Model string `yaml:"model" json:"model"`
	// VectorDimension is the expected embedding width. Vectors of any
	// other width are rejected.
	VectorDimension int `yaml:"vector_dimension" json:"vector_dimension"`
	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// EmbedRetryBudget is the retry count for transient embedder failures.
	EmbedRetryBudget int `yaml:"embed_retry_budget" json:"embed_retry_budget"`
	// CacheSize is the embedding LRU cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// TimeoutMS is the per-request timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
}

// ChunkerConfig configures text splitting.
type ChunkerConfig struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// MaxChunkSize is the hard per-chunk ceiling in characters.
	MaxChunkSize int `yaml:"max_chunk_size" json:"max_chunk_size"`
	// MaxTokens is the per-chunk token ceiling (estimated at 4 chars/token).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// SearchConfig configures retrieval and fusion.
type SearchConfig struct {
	// DefaultMatchCount is the result count when the caller does not specify one.
	DefaultMatchCount int `yaml:"default_match_count" json:"default_match_count"`
	// MaxMatchCount is the upper clamp on requested result counts.
	MaxMatchCount int `yaml:"max_match_count" json:"max_match_count"`
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
	// OverFetch multiplies match_count for each searcher so fusion has
	// enough candidates after access filtering.
	OverFetch int `yaml:"over_fetch" json:"over_fetch"`
	// RerankOverFetch multiplies match_count for the rerank candidate pool.
	RerankOverFetch int `yaml:"rerank_over_fetch" json:"rerank_over_fetch"`
	// UseRerank enables the reranking stage when a reranker is configured.
	UseRerank bool `yaml:"use_rerank" json:"use_rerank"`
	// RerankEndpoint is the reranking server base URL.
	RerankEndpoint string `yaml:"rerank_endpoint" json:"rerank_endpoint"`
	// EnableGraph adds the graph searcher to the fan-out.
	EnableGraph bool `yaml:"enable_graph" json:"enable_graph"`
	// PerSubCallTimeoutMS bounds each searcher branch in milliseconds.
	PerSubCallTimeoutMS int `yaml:"per_sub_call_timeout_ms" json:"per_sub_call_timeout_ms"`
	// RequestDeadlineMS bounds the whole search request in milliseconds.
	RequestDeadlineMS int `yaml:"request_deadline_ms" json:"request_deadline_ms"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// MaxConcurrency bounds concurrent ingestion requests.
	MaxConcurrency int `yaml:"ingest_max_concurrency" json:"ingest_max_concurrency"`
	// MaxConcurrentEmbedBatches bounds parallel embedding batches per request.
	MaxConcurrentEmbedBatches int `yaml:"max_concurrent_embed_batches" json:"max_concurrent_embed_batches"`

	Episode EpisodeConfig `yaml:"episode" json:"episode"`
}

// EpisodeConfig configures best-effort episode emission after ingestion.
type EpisodeConfig struct {
	// Enabled turns episode emission on. Episode failures never fail ingestion.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ExcerptChars is the maximum episode body excerpt length.
	ExcerptChars int `yaml:"excerpt_chars" json:"excerpt_chars"`
}

// SpoolConfig configures the drop-directory ingestion consumer.
type SpoolConfig struct {
	// Enabled starts the spool watcher alongside the server.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir is the watched directory. Empty derives <data_dir>/spool.
	Dir string `yaml:"dir" json:"dir"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
		Store: StoreConfig{
			LexicalBackend: "fts",
			VectorBackend:  "hnsw",
			Analyzer:       "porter",
			FuzzyDistance:  0,
			SQLiteCacheMB:  64,
		},
		Embedder: EmbedderConfig{
			Provider:         "http",
			Endpoint:         "http://localhost:11434",
			Model:            "nomic-embed-text",
			VectorDimension:  768,
			BatchSize:        32,
			EmbedRetryBudget: 3,
			CacheSize:        4096,
			TimeoutMS:        30000,
		},
		Chunker: ChunkerConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			MaxChunkSize: 2000,
			MaxTokens:    512,
		},
		Search: SearchConfig{
			DefaultMatchCount:   10,
			MaxMatchCount:       50,
			RRFK:                60,
			OverFetch:           3,
			RerankOverFetch:     3,
			UseRerank:           false,
			RerankEndpoint:      "",
			EnableGraph:         false,
			PerSubCallTimeoutMS: 5000,
			RequestDeadlineMS:   15000,
		},
		Ingest: IngestConfig{
			MaxConcurrency:            4,
			MaxConcurrentEmbedBatches: 2,
			Episode: EpisodeConfig{
				Enabled:      true,
				ExcerptChars: 500,
			},
		},
		Spool: SpoolConfig{
			Enabled: false,
			Dir:     "",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.ric).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ric")
	}
	return filepath.Join(home, ".ric")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ric/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ric/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ric", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ric", "config.yaml")
	}
	return filepath.Join(home, ".config", "ric", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error when the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/ric/config.yaml)
//  3. Explicit config file (empty path skips this layer)
//  4. Environment variables (RIC_*)
//
// The merged configuration is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if path != "" {
		if !fileExists(path) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}

	// Store
	if other.Store.LexicalBackend != "" {
		c.Store.LexicalBackend = other.Store.LexicalBackend
	}
	if other.Store.VectorBackend != "" {
		c.Store.VectorBackend = other.Store.VectorBackend
	}
	if other.Store.Analyzer != "" {
		c.Store.Analyzer = other.Store.Analyzer
	}
	if other.Store.FuzzyDistance != 0 {
		c.Store.FuzzyDistance = other.Store.FuzzyDistance
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}

	// Embedder
	if other.Embedder.Provider != "" {
		c.Embedder.Provider = other.Embedder.Provider
	}
	if other.Embedder.Endpoint != "" {
		c.Embedder.Endpoint = other.Embedder.Endpoint
	}
	if other.Embedder.Model != "" {
		c.Embedder.Model = other.Embedder.Model
	}
	if other.Embedder.VectorDimension != 0 {
		c.Embedder.VectorDimension = other.Embedder.VectorDimension
	}
	if other.Embedder.BatchSize != 0 {
		c.Embedder.BatchSize = other.Embedder.BatchSize
	}
	if other.Embedder.EmbedRetryBudget != 0 {
		c.Embedder.EmbedRetryBudget = other.Embedder.EmbedRetryBudget
	}
	if other.Embedder.CacheSize != 0 {
		c.Embedder.CacheSize = other.Embedder.CacheSize
	}
	if other.Embedder.TimeoutMS != 0 {
		c.Embedder.TimeoutMS = other.Embedder.TimeoutMS
	}

	// Chunker
	if other.Chunker.ChunkSize != 0 {
		c.Chunker.ChunkSize = other.Chunker.ChunkSize
	}
	if other.Chunker.ChunkOverlap != 0 {
		c.Chunker.ChunkOverlap = other.Chunker.ChunkOverlap
	}
	if other.Chunker.MaxChunkSize != 0 {
		c.Chunker.MaxChunkSize = other.Chunker.MaxChunkSize
	}
	if other.Chunker.MaxTokens != 0 {
		c.Chunker.MaxTokens = other.Chunker.MaxTokens
	}

	// Search
	if other.Search.DefaultMatchCount != 0 {
		c.Search.DefaultMatchCount = other.Search.DefaultMatchCount
	}
	if other.Search.MaxMatchCount != 0 {
		c.Search.MaxMatchCount = other.Search.MaxMatchCount
	}
	if other.Search.RRFK != 0 {
		c.Search.RRFK = other.Search.RRFK
	}
	if other.Search.OverFetch != 0 {
		c.Search.OverFetch = other.Search.OverFetch
	}
	if other.Search.RerankOverFetch != 0 {
		c.Search.RerankOverFetch = other.Search.RerankOverFetch
	}
	if other.Search.UseRerank {
		c.Search.UseRerank = true
	}
	if other.Search.RerankEndpoint != "" {
		c.Search.RerankEndpoint = other.Search.RerankEndpoint
	}
	if other.Search.EnableGraph {
		c.Search.EnableGraph = true
	}
	if other.Search.PerSubCallTimeoutMS != 0 {
		c.Search.PerSubCallTimeoutMS = other.Search.PerSubCallTimeoutMS
	}
	if other.Search.RequestDeadlineMS != 0 {
		c.Search.RequestDeadlineMS = other.Search.RequestDeadlineMS
	}

	// Ingest
	if other.Ingest.MaxConcurrency != 0 {
		c.Ingest.MaxConcurrency = other.Ingest.MaxConcurrency
	}
	if other.Ingest.MaxConcurrentEmbedBatches != 0 {
		c.Ingest.MaxConcurrentEmbedBatches = other.Ingest.MaxConcurrentEmbedBatches
	}
	// Enabled defaults to true; a bare false in YAML is indistinguishable
	// from unset, so it only merges when another episode key is present.
	if other.Ingest.Episode.ExcerptChars != 0 {
		c.Ingest.Episode.Enabled = other.Ingest.Episode.Enabled
		c.Ingest.Episode.ExcerptChars = other.Ingest.Episode.ExcerptChars
	}

	// Spool
	if other.Spool.Enabled {
		c.Spool.Enabled = true
	}
	if other.Spool.Dir != "" {
		c.Spool.Dir = other.Spool.Dir
	}
}

// applyEnvOverrides applies RIC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RIC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RIC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RIC_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("RIC_LEXICAL_BACKEND"); v != "" {
		c.Store.LexicalBackend = v
	}
	if v := os.Getenv("RIC_VECTOR_BACKEND"); v != "" {
		c.Store.VectorBackend = v
	}
	if v := os.Getenv("RIC_EMBEDDER_PROVIDER"); v != "" {
		c.Embedder.Provider = v
	}
	if v := os.Getenv("RIC_EMBEDDER_ENDPOINT"); v != "" {
		c.Embedder.Endpoint = v
	}
	if v := os.Getenv("RIC_EMBEDDER_MODEL"); v != "" {
		c.Embedder.Model = v
	}
	if v := os.Getenv("RIC_VECTOR_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embedder.VectorDimension = d
		}
	}
	if v := os.Getenv("RIC_EMBED_RETRY_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Embedder.EmbedRetryBudget = n
		}
	}
	if v := os.Getenv("RIC_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFK = k
		}
	}
	if v := os.Getenv("RIC_USE_RERANK"); v != "" {
		c.Search.UseRerank = parseBool(v)
	}
	if v := os.Getenv("RIC_RERANK_ENDPOINT"); v != "" {
		c.Search.RerankEndpoint = v
	}
	if v := os.Getenv("RIC_ENABLE_GRAPH"); v != "" {
		c.Search.EnableGraph = parseBool(v)
	}
	if v := os.Getenv("RIC_INGEST_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.MaxConcurrency = n
		}
	}
	if v := os.Getenv("RIC_SPOOL_ENABLED"); v != "" {
		c.Spool.Enabled = parseBool(v)
	}
	if v := os.Getenv("RIC_SPOOL_DIR"); v != "" {
		c.Spool.Dir = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("log.format must be 'json' or 'text', got %s", c.Log.Format)
	}

	validLexical := map[string]bool{"fts": true, "bleve": true}
	if !validLexical[strings.ToLower(c.Store.LexicalBackend)] {
		return fmt.Errorf("store.lexical_backend must be 'fts' or 'bleve', got %s", c.Store.LexicalBackend)
	}
	validVector := map[string]bool{"hnsw": true, "sqlite-vec": true}
	if !validVector[strings.ToLower(c.Store.VectorBackend)] {
		return fmt.Errorf("store.vector_backend must be 'hnsw' or 'sqlite-vec', got %s", c.Store.VectorBackend)
	}
	validAnalyzers := map[string]bool{"porter": true, "unicode": true}
	if !validAnalyzers[strings.ToLower(c.Store.Analyzer)] {
		return fmt.Errorf("store.analyzer must be 'porter' or 'unicode', got %s", c.Store.Analyzer)
	}
	if c.Store.FuzzyDistance < 0 || c.Store.FuzzyDistance > 2 {
		return fmt.Errorf("store.fuzzy_distance must be between 0 and 2, got %d", c.Store.FuzzyDistance)
	}

	validProviders := map[string]bool{"http": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedder.Provider)] {
		return fmt.Errorf("embedder.provider must be 'http' or 'static', got %s", c.Embedder.Provider)
	}
	if c.Embedder.VectorDimension <= 0 {
		return fmt.Errorf("embedder.vector_dimension must be positive, got %d", c.Embedder.VectorDimension)
	}
	if c.Embedder.BatchSize <= 0 {
		return fmt.Errorf("embedder.batch_size must be positive, got %d", c.Embedder.BatchSize)
	}
	if c.Embedder.EmbedRetryBudget < 0 {
		return fmt.Errorf("embedder.embed_retry_budget must be non-negative, got %d", c.Embedder.EmbedRetryBudget)
	}
	if c.Embedder.TimeoutMS <= 0 {
		return fmt.Errorf("embedder.timeout_ms must be positive, got %d", c.Embedder.TimeoutMS)
	}

	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("chunker.chunk_overlap must be non-negative, got %d", c.Chunker.ChunkOverlap)
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Chunker.MaxChunkSize < c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.max_chunk_size (%d) must be at least chunk_size (%d)",
			c.Chunker.MaxChunkSize, c.Chunker.ChunkSize)
	}
	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("chunker.max_tokens must be positive, got %d", c.Chunker.MaxTokens)
	}

	if c.Search.DefaultMatchCount <= 0 {
		return fmt.Errorf("search.default_match_count must be positive, got %d", c.Search.DefaultMatchCount)
	}
	if c.Search.MaxMatchCount < c.Search.DefaultMatchCount {
		return fmt.Errorf("search.max_match_count (%d) must be at least default_match_count (%d)",
			c.Search.MaxMatchCount, c.Search.DefaultMatchCount)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Search.OverFetch <= 0 {
		return fmt.Errorf("search.over_fetch must be positive, got %d", c.Search.OverFetch)
	}
	if c.Search.RerankOverFetch <= 0 {
		return fmt.Errorf("search.rerank_over_fetch must be positive, got %d", c.Search.RerankOverFetch)
	}
	if c.Search.UseRerank && c.Search.RerankEndpoint == "" {
		return fmt.Errorf("search.rerank_endpoint must be set when use_rerank is true")
	}
	if c.Search.PerSubCallTimeoutMS <= 0 {
		return fmt.Errorf("search.per_sub_call_timeout_ms must be positive, got %d", c.Search.PerSubCallTimeoutMS)
	}
	if c.Search.RequestDeadlineMS <= 0 {
		return fmt.Errorf("search.request_deadline_ms must be positive, got %d", c.Search.RequestDeadlineMS)
	}

	if c.Ingest.MaxConcurrency <= 0 {
		return fmt.Errorf("ingest.ingest_max_concurrency must be positive, got %d", c.Ingest.MaxConcurrency)
	}
	if c.Ingest.MaxConcurrentEmbedBatches <= 0 {
		return fmt.Errorf("ingest.max_concurrent_embed_batches must be positive, got %d", c.Ingest.MaxConcurrentEmbedBatches)
	}
	if c.Ingest.Episode.Enabled && c.Ingest.Episode.ExcerptChars <= 0 {
		return fmt.Errorf("ingest.episode.excerpt_chars must be positive, got %d", c.Ingest.Episode.ExcerptChars)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

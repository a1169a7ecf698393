package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/havenops/ric/internal/config"
	"github.com/havenops/ric/internal/embed"
	"github.com/havenops/ric/internal/episode"
	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/search"
	"github.com/havenops/ric/internal/server"
	"github.com/havenops/ric/internal/store"
)

// Data directory layout. Everything the server owns lives under data_dir.
const (
	dbFileName    = "ric.db"
	hnswFileName  = "vectors.hnsw"
	vecDBFileName = "vectors.db"
	bleveDirName  = "lexical.bleve"
	lockFileName  = "ric.lock"
	spoolDirName  = "spool"
	logsDirName   = "logs"
	serverLogName = "server.log"
)

func dbPath(cfg *config.Config) string   { return filepath.Join(cfg.DataDir, dbFileName) }
func hnswPath(cfg *config.Config) string { return filepath.Join(cfg.DataDir, hnswFileName) }
func lockPath(cfg *config.Config) string { return filepath.Join(cfg.DataDir, lockFileName) }

func logPath(cfg *config.Config) string {
	if cfg.Log.File != "" {
		return cfg.Log.File
	}
	return filepath.Join(cfg.DataDir, logsDirName, serverLogName)
}

func spoolDir(cfg *config.Config) string {
	if cfg.Spool.Dir != "" {
		return cfg.Spool.Dir
	}
	return filepath.Join(cfg.DataDir, spoolDirName)
}

// container holds every wired component for one server process.
type container struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.SQLiteStore
	vectors  store.VectorIndex
	lexical  store.LexicalIndex // nil when FTS serves lexical search
	embedder embed.Embedder
	sink     *episode.SQLiteSink // nil when episodes are disabled
	reranker search.Reranker     // nil when no endpoint is configured
	pipeline *ingest.Pipeline
	engine   *search.Engine
	server   *server.Server
}

// buildContainer constructs and wires all components. Errors from the
// store layer are store-unreachable; everything later is wiring.
func buildContainer(cfg *config.Config, logger *slog.Logger) (*container, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, exitf(ExitStoreUnreachable, "create data dir %s: %v", cfg.DataDir, err)
	}

	docStore, err := store.NewSQLiteStore(dbPath(cfg), store.SQLiteConfig{
		Analyzer: cfg.Store.Analyzer,
		CacheMB:  cfg.Store.SQLiteCacheMB,
	})
	if err != nil {
		return nil, exitf(ExitStoreUnreachable, "open document store: %v", err)
	}

	c := &container{cfg: cfg, logger: logger, store: docStore}
	if err := c.buildIndexes(); err != nil {
		_ = docStore.Close()
		return nil, err
	}
	if err := c.buildServices(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *container) buildIndexes() error {
	cfg := c.cfg
	dims := cfg.Embedder.VectorDimension

	switch cfg.Store.VectorBackend {
	case "sqlite-vec":
		vectors, err := store.NewSQLiteVecIndex(filepath.Join(cfg.DataDir, vecDBFileName),
			store.DefaultVectorIndexConfig(dims))
		if err != nil {
			return exitf(ExitStoreUnreachable, "open sqlite-vec index: %v", err)
		}
		c.vectors = vectors
	default:
		vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(dims))
		if err != nil {
			return exitf(ExitStoreUnreachable, "create vector index: %v", err)
		}
		if _, statErr := os.Stat(hnswPath(cfg)); statErr == nil {
			if err := vectors.Load(hnswPath(cfg)); err != nil {
				_ = vectors.Close()
				return exitf(ExitIndexMismatch, "load vector index: %v", err)
			}
			if vectors.Dimensions() != dims {
				got := vectors.Dimensions()
				_ = vectors.Close()
				return exitf(ExitIndexMismatch,
					"vector index built with dimension %d, config wants %d (run migrate-indexes)",
					got, dims)
			}
		}
		c.vectors = vectors
	}

	if cfg.Store.LexicalBackend == "bleve" {
		lexical, err := store.NewBleveIndex(filepath.Join(cfg.DataDir, bleveDirName),
			store.LexicalConfig{
				Analyzer:      cfg.Store.Analyzer,
				FuzzyDistance: cfg.Store.FuzzyDistance,
			})
		if err != nil {
			return exitf(ExitStoreUnreachable, "open lexical index: %v", err)
		}
		c.lexical = lexical
	}
	return nil
}

func (c *container) buildServices() error {
	cfg := c.cfg

	embedder, err := embed.New(embed.Config{
		Provider:    embed.Provider(cfg.Embedder.Provider),
		Endpoint:    cfg.Embedder.Endpoint,
		Model:       cfg.Embedder.Model,
		Dimensions:  cfg.Embedder.VectorDimension,
		BatchSize:   cfg.Embedder.BatchSize,
		RetryBudget: cfg.Embedder.EmbedRetryBudget,
		CacheSize:   cfg.Embedder.CacheSize,
		Timeout:     time.Duration(cfg.Embedder.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	c.embedder = embedder

	if embedder.Dimensions() != cfg.Embedder.VectorDimension {
		return exitf(ExitIndexMismatch,
			"embedder produces dimension %d, config wants %d",
			embedder.Dimensions(), cfg.Embedder.VectorDimension)
	}

	var sink episode.Sink
	if cfg.Ingest.Episode.Enabled {
		sqliteSink, err := episode.NewSQLiteSink(c.store.DB(), episode.NewHeuristicExtractor(),
			episode.Config{
				Enabled:      true,
				ExcerptChars: cfg.Ingest.Episode.ExcerptChars,
			})
		if err != nil {
			return exitf(ExitStoreUnreachable, "open episode sink: %v", err)
		}
		c.sink = sqliteSink
		sink = sqliteSink
	}

	c.pipeline = ingest.NewPipeline(c.store, c.vectors, c.lexical, embedder, sink, ingest.Config{
		ChunkSize:                 cfg.Chunker.ChunkSize,
		ChunkOverlap:              cfg.Chunker.ChunkOverlap,
		MaxChunkSize:              cfg.Chunker.MaxChunkSize,
		MaxTokens:                 cfg.Chunker.MaxTokens,
		EmbedBatchSize:            cfg.Embedder.BatchSize,
		MaxConcurrentEmbedBatches: cfg.Ingest.MaxConcurrentEmbedBatches,
		MaxConcurrency:            int64(cfg.Ingest.MaxConcurrency),
	}, c.logger)

	if cfg.Search.UseRerank && cfg.Search.RerankEndpoint != "" {
		reranker, err := search.NewHTTPReranker(cfg.Search.RerankEndpoint)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		c.reranker = reranker
	}

	var graph search.Searcher
	if cfg.Search.EnableGraph && c.sink != nil {
		graph = search.NewGraphSearcher(c.sink, c.store)
	}
	c.engine = search.NewEngine(
		search.NewSemanticSearcher(embedder, c.vectors, c.store),
		search.NewLexicalSearcher(c.store, c.lexical),
		graph,
		c.reranker,
		cfg.Search,
		c.logger,
	)

	srv, err := server.NewServer(c.pipeline, c.engine, c.store, c.logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	c.server = srv
	return nil
}

// saveVectors persists the in-process vector index. The sqlite-vec backend
// persists on write, so only HNSW needs an explicit save.
func (c *container) saveVectors() error {
	if c.cfg.Store.VectorBackend == "sqlite-vec" {
		return nil
	}
	return c.vectors.Save(hnswPath(c.cfg))
}

// Close releases components in reverse dependency order.
func (c *container) Close() {
	if c.reranker != nil {
		_ = c.reranker.Close()
	}
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if c.lexical != nil {
		_ = c.lexical.Close()
	}
	if c.vectors != nil {
		_ = c.vectors.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

// describeBackends returns a short human summary for startup status lines.
func describeBackends(cfg *config.Config) string {
	return fmt.Sprintf("store=sqlite lexical=%s vectors=%s embedder=%s dim=%d",
		cfg.Store.LexicalBackend, cfg.Store.VectorBackend,
		cfg.Embedder.Provider, cfg.Embedder.VectorDimension)
}

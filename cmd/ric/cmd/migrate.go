package cmd

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/havenops/ric/internal/config"
	"github.com/havenops/ric/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "migrate-indexes",
		Short: "Check index metadata against the configuration and rebuild secondary indexes",
		Long: `Migrate-indexes verifies that the persisted indexes match the configured
embedding dimension and backends. A dimension change requires re-ingesting
the corpus; this command refuses to serve over a mismatched index instead
of returning silently wrong distances.

With --rebuild, a missing vector index is reconstructed from the embeddings
stored in the document database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return exitWith(ExitConfigError, err)
			}
			return runMigrate(cmd, cfg, rebuild)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild a missing vector index from stored embeddings")
	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *config.Config, rebuild bool) error {
	ctx := cmd.Context()
	out := cmd.ErrOrStderr()
	wantDims := cfg.Embedder.VectorDimension

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return exitf(ExitStoreUnreachable, "create data dir %s: %v", cfg.DataDir, err)
	}
	lock := flock.New(lockPath(cfg))
	locked, err := lock.TryLock()
	if err != nil {
		return exitf(ExitStoreUnreachable, "acquire lock %s: %v", lockPath(cfg), err)
	}
	if !locked {
		return exitf(ExitStoreUnreachable,
			"another instance is using the data dir %s", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	docStore, err := store.NewSQLiteStore(dbPath(cfg), store.SQLiteConfig{
		Analyzer: cfg.Store.Analyzer,
		CacheMB:  cfg.Store.SQLiteCacheMB,
	})
	if err != nil {
		return exitf(ExitStoreUnreachable, "open document store: %v", err)
	}
	defer func() { _ = docStore.Close() }()

	if err := checkDimensionState(ctx, docStore, wantDims); err != nil {
		return err
	}
	status(out, "store dimension metadata: %d", wantDims)

	if cfg.Store.VectorBackend == "hnsw" {
		if err := checkHNSWFile(ctx, out, cfg, docStore, rebuild); err != nil {
			return err
		}
	}

	for key, value := range map[string]string{
		store.StateKeyIndexModel:      cfg.Embedder.Model,
		store.StateKeyLexicalAnalyzer: cfg.Store.Analyzer,
		store.StateKeyVectorBackend:   cfg.Store.VectorBackend,
	} {
		if err := docStore.SetState(ctx, key, value); err != nil {
			return exitf(ExitStoreUnreachable, "record index metadata: %v", err)
		}
	}

	statusOK(out, "indexes consistent with configuration")
	return nil
}

// checkDimensionState compares the recorded embedding dimension with the
// configured one, recording it on first run.
func checkDimensionState(ctx context.Context, docStore *store.SQLiteStore, wantDims int) error {
	recorded, err := docStore.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil {
		return exitf(ExitStoreUnreachable, "read index metadata: %v", err)
	}
	if recorded == "" {
		return setDimensionState(ctx, docStore, wantDims)
	}

	dims, err := strconv.Atoi(recorded)
	if err != nil {
		return exitf(ExitIndexMismatch, "corrupt dimension metadata %q", recorded)
	}
	if dims != wantDims {
		return exitf(ExitIndexMismatch,
			"index was built with dimension %d but config wants %d; re-ingest the corpus to change models",
			dims, wantDims)
	}
	return nil
}

func setDimensionState(ctx context.Context, docStore *store.SQLiteStore, dims int) error {
	if err := docStore.SetState(ctx, store.StateKeyIndexDimension, strconv.Itoa(dims)); err != nil {
		return exitf(ExitStoreUnreachable, "record index metadata: %v", err)
	}
	return nil
}

// checkHNSWFile validates the on-disk vector index, optionally rebuilding
// it from stored embeddings when it is missing.
func checkHNSWFile(ctx context.Context, out io.Writer,
	cfg *config.Config, docStore *store.SQLiteStore, rebuild bool) error {
	path := hnswPath(cfg)
	wantDims := cfg.Embedder.VectorDimension

	if _, err := os.Stat(path); err == nil {
		dims, err := store.ReadHNSWIndexDimensions(path)
		if err != nil {
			return exitf(ExitIndexMismatch, "read vector index %s: %v", path, err)
		}
		if dims != wantDims {
			return exitf(ExitIndexMismatch,
				"vector index %s has dimension %d but config wants %d",
				path, dims, wantDims)
		}
		status(out, "vector index: dimension %d", dims)
		return nil
	}

	if !rebuild {
		status(out, "vector index missing at %s (pass --rebuild to reconstruct)", path)
		return nil
	}

	embeddings, err := docStore.AllEmbeddings(ctx)
	if err != nil {
		return exitf(ExitStoreUnreachable, "load stored embeddings: %v", err)
	}
	index, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(wantDims))
	if err != nil {
		return exitf(ExitStoreUnreachable, "create vector index: %v", err)
	}
	defer func() { _ = index.Close() }()

	ids := make([]string, 0, len(embeddings))
	vectors := make([][]float32, 0, len(embeddings))
	for chunkID, vec := range embeddings {
		if len(vec) != wantDims {
			return exitf(ExitIndexMismatch,
				"stored embedding for chunk %s has dimension %d, want %d",
				chunkID, len(vec), wantDims)
		}
		ids = append(ids, chunkID)
		vectors = append(vectors, vec)
	}
	if err := index.Add(ctx, ids, vectors); err != nil {
		return exitf(ExitStoreUnreachable, "index stored embeddings: %v", err)
	}
	if err := index.Save(path); err != nil {
		return exitf(ExitStoreUnreachable, "persist vector index: %v", err)
	}
	status(out, "rebuilt vector index with %d embeddings", len(embeddings))
	return nil
}

package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/havenops/ric/internal/config"
	"github.com/havenops/ric/internal/ingest"
	"github.com/havenops/ric/internal/logging"
	"github.com/havenops/ric/pkg/version"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve runs the retrieval server, speaking MCP JSON-RPC on stdout.
All logs go to a file so the protocol stream stays clean. A lock file
under the data directory prevents two instances from sharing one store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return exitWith(ExitConfigError, err)
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return exitf(ExitStoreUnreachable, "create data dir %s: %v", cfg.DataDir, err)
	}

	// Stdout carries the protocol; logs go to a file only.
	cleanup, err := logging.SetupServeMode(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		FilePath:  logPath(cfg),
		MaxSizeMB: 10,
		MaxFiles:  5,
	})
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	defer cleanup()
	logger := slog.Default()

	lock := flock.New(lockPath(cfg))
	locked, err := lock.TryLock()
	if err != nil {
		return exitf(ExitStoreUnreachable, "acquire lock %s: %v", lockPath(cfg), err)
	}
	if !locked {
		return exitf(ExitStoreUnreachable,
			"another instance is already serving from %s", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	c, err := buildContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Spool.Enabled {
		dir := spoolDir(cfg)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exitf(ExitStoreUnreachable, "create spool dir %s: %v", dir, err)
		}
		spool, err := ingest.NewSpool(c.pipeline, dir, logger)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		go func() {
			if err := spool.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("spool stopped", "error", err)
			}
		}()
		logger.Info("spool watching", "dir", dir)
	}

	status(cmd.ErrOrStderr(), "ric %s serving on stdio (%s)",
		version.Version, describeBackends(cfg))
	logger.Info("server starting",
		"version", version.Version,
		"data_dir", cfg.DataDir,
		"lexical_backend", cfg.Store.LexicalBackend,
		"vector_backend", cfg.Store.VectorBackend,
		"dimensions", cfg.Embedder.VectorDimension)

	serveErr := c.server.Serve(ctx)

	if err := c.saveVectors(); err != nil {
		logger.Error("persist vector index", "error", err)
	} else {
		logger.Info("vector index persisted", "path", hnswPath(cfg))
	}

	if serveErr != nil && ctx.Err() == nil {
		return exitWith(ExitConfigError, serveErr)
	}
	statusOK(cmd.ErrOrStderr(), "shutdown complete")
	return nil
}

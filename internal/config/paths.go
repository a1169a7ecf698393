package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExpandedDataDir returns DataDir with a leading ~ expanded.
func (c *Config) ExpandedDataDir() string {
	return expandHome(c.DataDir)
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ExpandedDataDir(), "ric.db")
}

// VectorIndexPath returns the persisted vector index directory.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.ExpandedDataDir(), "vectors")
}

// BleveIndexPath returns the bleve lexical index directory.
func (c *Config) BleveIndexPath() string {
	return filepath.Join(c.ExpandedDataDir(), "lexical.bleve")
}

// LockPath returns the data-directory lock file path. A single process
// owns the data directory at a time.
func (c *Config) LockPath() string {
	return filepath.Join(c.ExpandedDataDir(), "ric.lock")
}

// LogFilePath returns the configured log file, deriving
// <data_dir>/logs/server.log when unset.
func (c *Config) LogFilePath() string {
	if c.Log.File != "" {
		return expandHome(c.Log.File)
	}
	return filepath.Join(c.ExpandedDataDir(), "logs", "server.log")
}

// SpoolDir returns the configured spool directory, deriving
// <data_dir>/spool when unset.
func (c *Config) SpoolDir() string {
	if c.Spool.Dir != "" {
		return expandHome(c.Spool.Dir)
	}
	return filepath.Join(c.ExpandedDataDir(), "spool")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.ExpandedDataDir(), 0o755)
}

// EmbedTimeout returns the per-request embedder timeout as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutMS) * time.Millisecond
}

// PerSubCallTimeout returns the per-searcher timeout as a duration.
func (c *Config) PerSubCallTimeout() time.Duration {
	return time.Duration(c.Search.PerSubCallTimeoutMS) * time.Millisecond
}

// RequestDeadline returns the whole-request search deadline as a duration.
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.Search.RequestDeadlineMS) * time.Millisecond
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

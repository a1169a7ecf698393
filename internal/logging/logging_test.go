package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp log file
	logPath := filepath.Join(t.TempDir(), "server.log")
	cfg := Config{
		Level:         "info",
		Format:        "json",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	// When: logging a structured record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("document ingested", slog.String("document_id", "d1"), slog.Int("chunks", 4))
	cleanup()

	// Then: the file contains a parseable JSON line
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var record map[string]any
	line := strings.TrimSpace(string(data))
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "document ingested", record["msg"])
	assert.Equal(t, "d1", record["document_id"])
	assert.Equal(t, float64(4), record["chunks"])
}

func TestSetup_TextFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	cfg := Config{Level: "info", Format: "text", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("hello")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestSetup_LevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	cfg := Config{Level: "warn", Format: "json", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestSetup_NoFilePath(t *testing.T) {
	cfg := Config{Level: "info", WriteToStderr: false}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	// Should not panic; output is discarded.
	logger.Info("goes nowhere")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("info"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warn"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("WARNING"))
	assert.Equal(t, slog.LevelError, LevelFromString("error"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("bogus"))
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// Force the threshold low so a couple of writes trigger rotation.
	w.maxSize = 64

	payload := []byte(strings.Repeat("x", 48) + "\n")
	_, err = w.Write(payload)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)

	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err, "rotated file should exist")

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size(), "current log holds only the latest write")
}

func TestRotatingWriter_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.maxSize = 16

	payload := []byte(strings.Repeat("y", 12) + "\n")
	for i := 0; i < 5; i++ {
		_, err = w.Write(payload)
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2, "at most maxFiles rotated files kept")
}

func TestRotatingWriter_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "logs", "server.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = os.Stat(filepath.Dir(logPath))
	assert.NoError(t, err)
}

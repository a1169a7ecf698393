package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpoolPayload(t *testing.T, dir, name string, content ScrapedContent) string {
	t.Helper()
	data, err := json.Marshal(content)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSpool_SweepIngestsExistingFiles(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	writeSpoolPayload(t, dir, "payload.json", webContent("https://example.com/spooled"))

	spool, err := NewSpool(f.pipeline, dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- spool.Run(ctx) }()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(dir, "done"))
		return err == nil && len(entries) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	counts, err := f.store.Counts(context.Background(), storeAdminFilter())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Documents)
}

func TestSpool_WatchPicksUpNewFiles(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	spool, err := NewSpool(f.pipeline, dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- spool.Run(ctx) }()

	// Let the watcher attach before dropping the file.
	time.Sleep(100 * time.Millisecond)
	writeSpoolPayload(t, dir, "late.json", webContent("https://example.com/late"))

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(dir, "done"))
		return err == nil && len(entries) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSpool_BadPayloadGoesToFailed(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	spool, err := NewSpool(f.pipeline, dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- spool.Run(ctx) }()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(dir, "failed"))
		return err == nil && len(entries) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSpool_IgnoresNonJSONFiles(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	spool, err := NewSpool(f.pipeline, dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, spool.Run(ctx))

	// The stray file is untouched.
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestNewSpool_RequiresDir(t *testing.T) {
	f := newFixture(t)

	_, err := NewSpool(f.pipeline, "", nil)
	assert.Error(t, err)
}

package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// spoolDebounce is how long a file must sit unmodified before it is read.
// Scrapers write then rename or close; the delay avoids half-written JSON.
const spoolDebounce = 250 * time.Millisecond

// Spool ingests ScrapedContent payloads dropped as *.json files into a
// watched directory. Processed files move to done/, failures to failed/.
// Re-drops are harmless thanks to ingest dedupe.
type Spool struct {
	pipeline *Pipeline
	dir      string
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSpool creates a spool consumer rooted at dir.
func NewSpool(pipeline *Pipeline, dir string, logger *slog.Logger) (*Spool, error) {
	if dir == "" {
		return nil, ricerrors.BadInput("spool directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{dir, filepath.Join(dir, "done"), filepath.Join(dir, "failed")} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to create spool directory %s", sub)
		}
	}
	return &Spool{
		pipeline: pipeline,
		dir:      dir,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run sweeps existing files, then watches for new ones until ctx ends.
func (s *Spool) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to create spool watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to watch spool directory %s", s.dir)
	}

	// Files dropped before startup never produce events.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.cancelTimers()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isSpoolPayload(event.Name) {
				continue
			}
			s.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", "error", err)
		}
	}
}

// sweep processes payloads already sitting in the directory.
func (s *Spool) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("spool sweep failed", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isSpoolPayload(entry.Name()) {
			continue
		}
		s.process(ctx, filepath.Join(s.dir, entry.Name()))
	}
}

// schedule (re)arms the debounce timer for a path. Each write pushes the
// deadline out, so the file is only read once it has settled.
func (s *Spool) schedule(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[path]; ok {
		timer.Reset(spoolDebounce)
		return
	}
	s.timers[path] = time.AfterFunc(spoolDebounce, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.process(ctx, path)
	})
}

func (s *Spool) cancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, timer := range s.timers {
		timer.Stop()
		delete(s.timers, path)
	}
}

// process ingests one payload file and files it under done/ or failed/.
func (s *Spool) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return // already moved by an earlier event
		}
		s.logger.Warn("spool read failed", "path", path, "error", err)
		return
	}

	var content ScrapedContent
	if err := json.Unmarshal(data, &content); err != nil {
		s.logger.Warn("spool payload is not valid JSON", "path", path, "error", err)
		s.file(path, "failed")
		return
	}

	result, err := s.pipeline.Ingest(ctx, content)
	if err != nil {
		s.logger.Warn("spool ingest failed", "path", path, "error", err)
		s.file(path, "failed")
		return
	}

	s.logger.Info("spool ingested payload",
		"path", path,
		"document_id", result.DocumentID,
		"chunks", result.ChunksCreated,
		"skipped", result.Skipped)
	s.file(path, "done")
}

// file moves a processed payload into the given subdirectory, suffixing
// the name when a previous run already parked one there.
func (s *Spool) file(path, sub string) {
	target := filepath.Join(s.dir, sub, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(s.dir, sub,
			time.Now().UTC().Format("20060102T150405")+"-"+filepath.Base(path))
	}
	if err := os.Rename(path, target); err != nil {
		s.logger.Warn("spool move failed", "path", path, "target", target, "error", err)
	}
}

func isSpoolPayload(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

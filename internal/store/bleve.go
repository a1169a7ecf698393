package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// BleveIndex implements LexicalIndex on bleve v2. Unlike the FTS5 path
// inside the document store, bleve supports fuzzy term matching, so this
// backend is selected when queries must tolerate typos.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config LexicalConfig
	closed bool
}

// Verify interface implementation
var _ LexicalIndex = (*BleveIndex)(nil)

// bleveEntry is the document shape bleve indexes.
type bleveEntry struct {
	Content string `json:"content"`
}

// validateBleveIntegrity checks a bleve index directory before opening.
// A derived index can always be rebuilt from the document store, so
// corruption is cleared rather than reported.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruption checks if an error indicates index corruption.
func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex opens or creates a bleve lexical index at path.
// If path is empty, an in-memory index is created for testing.
func NewBleveIndex(path string, config LexicalConfig) (*BleveIndex, error) {
	if config.Analyzer == "" {
		config.Analyzer = "porter"
	}

	indexMapping, err := createBleveMapping(config.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruption(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createBleveMapping builds the index mapping for the configured analyzer.
// "porter" uses the English analyzer (stemming, stop words); "unicode"
// uses the simple analyzer (letter tokens, lowercase, no stemming).
func createBleveMapping(analyzer string) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	switch strings.ToLower(analyzer) {
	case "porter":
		indexMapping.DefaultAnalyzer = en.AnalyzerName
	case "unicode":
		indexMapping.DefaultAnalyzer = simple.Name
	default:
		return nil, fmt.Errorf("unknown analyzer %q (want porter or unicode)", analyzer)
	}

	return indexMapping, nil
}

// Index adds entries, replacing existing chunk IDs.
func (b *BleveIndex) Index(ctx context.Context, entries []*LexicalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ChunkID, bleveEntry{Content: e.Content}); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", e.ChunkID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns entries matching the query, best first. Fuzziness from
// the config is applied to the match query; edit distance 0 means exact.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")
	if b.config.FuzzyDistance > 0 {
		matchQuery.SetFuzziness(b.config.FuzzyDistance)
	}

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // For matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]*LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, &LexicalHit{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}

	return hits, nil
}

// Delete removes entries by chunk ID.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}

	return nil
}

// AllIDs returns all chunk IDs in the index for consistency checks.
func (b *BleveIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docCount, _ := b.index.DocCount()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{} // Only need IDs, not content

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}

	return ids, nil
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() *LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &LexicalStats{}
	}

	docCount, _ := b.index.DocCount()
	return &LexicalStats{ChunkCount: int(docCount)}
}

// Close closes the index. Disk-based indexes persist automatically.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// matchedTerms extracts the distinct matched terms from a search hit.
func matchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go graph.
// Chunk IDs are strings; the graph keys on uint64, so the index keeps a
// bidirectional mapping that persists in a gob sidecar next to the graph.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	nextKey uint64

	closed bool
}

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorIndexConfig
}

// Verify interface implementation
var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates a new HNSW-based vector index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, ricerrors.BadInput("vector index dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}, nil
}

// Add inserts vectors with their IDs. Existing IDs are replaced.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ricerrors.DimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		// Replacements use lazy deletion: orphan the old key instead of
		// removing the node, which coder/hnsw handles poorly for the
		// last node in the graph.
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors to the query vector.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ricerrors.DimensionMismatch(s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	// Over-search to compensate for lazy-deleted orphans in the graph.
	orphans := s.graph.Len() - len(s.idMap)
	if orphans < 0 {
		orphans = 0
	}
	nodes := s.graph.Search(normalizedQuery, k+orphans)

	results := make([]*VectorHit, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazy-deleted node
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorHit{
			ChunkID:  id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Delete removes vectors by ID using lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			// The node stays in the graph but never appears in results.
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	return nil
}

// AllIDs returns all chunk IDs in the index.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains checks if an ID exists.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.idMap)
}

// Dimensions returns the vector width the index was built with.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the graph and ID mappings atomically (temp file + rename).
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// saveMetadata saves ID mappings to a gob sidecar.
func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load reads the graph and ID mappings from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	return nil
}

// loadMetadata loads ID mappings from the gob sidecar.
func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string)
	s.nextKey = meta.NextKey
	s.config = meta.Config

	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.graph = nil

	return nil
}

// ReadHNSWIndexDimensions reads the dimensions from a persisted index's
// metadata sidecar. Returns 0 if the sidecar doesn't exist (fresh start).
func ReadHNSWIndexDimensions(indexPath string) (int, error) {
	metaPath := indexPath + ".meta"

	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open hnsw metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode hnsw metadata: %w", err)
	}

	return meta.Config.Dimensions, nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// Cosine distance ranges 0-2; L2 ranges 0 to infinity.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		return 1.0 - distance/2.0
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // CGO driver required by sqlite-vec

	ricerrors "github.com/havenops/ric/internal/errors"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVecIndex implements VectorIndex on a vec0 virtual table. It keeps
// its own database file separate from the document store because it rides
// the CGO sqlite3 driver while the document store uses the pure Go one.
type SQLiteVecIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	config VectorIndexConfig
	closed bool
}

// Verify interface implementation
var _ VectorIndex = (*SQLiteVecIndex)(nil)

// NewSQLiteVecIndex opens or creates a vec0-backed vector index at path.
// If path is empty, an in-memory index is created for testing.
func NewSQLiteVecIndex(path string, cfg VectorIndexConfig) (*SQLiteVecIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, ricerrors.BadInput("vector index dimensions must be positive, got %d", cfg.Dimensions)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &SQLiteVecIndex{
		db:     db,
		path:   path,
		config: cfg,
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return idx, nil
}

func (s *SQLiteVecIndex) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
		chunk_id TEXT PRIMARY KEY,
		embedding float[%d] distance_metric=cosine
	);

	CREATE TABLE IF NOT EXISTS vec_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`, s.config.Dimensions)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize vec0 schema: %w", err)
	}

	// Reject reopening with a different width than the table was built with.
	var stored string
	err := s.db.QueryRow(`SELECT value FROM vec_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO vec_meta(key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(s.config.Dimensions))
		if err != nil {
			return fmt.Errorf("failed to record dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read vec metadata: %w", err)
	default:
		dims, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return fmt.Errorf("corrupt vec metadata: %w", convErr)
		}
		if dims != s.config.Dimensions {
			return ricerrors.DimensionMismatch(dims, s.config.Dimensions)
		}
	}

	return nil
}

// Add inserts vectors with their IDs. Existing IDs are replaced.
func (s *SQLiteVecIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 virtual tables reject INSERT OR REPLACE on text keys, so
	// replacement is delete + insert.
	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM vec_chunks WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer delStmt.Close()

	insStmt, err := tx.PrepareContext(ctx, `INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insStmt.Close()

	for i, id := range ids {
		if _, err := delStmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to replace vector %s: %w", id, err)
		}
		if _, err := insStmt.ExecContext(ctx, id, serializeFloat32(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Search finds the k nearest neighbors using the vec0 KNN operator.
func (s *SQLiteVecIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ricerrors.DimensionMismatch(s.config.Dimensions, len(query))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, distance
		FROM vec_chunks
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`,
		serializeFloat32(query), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []*VectorHit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		// Cosine distance ranges 0-2; fold into a 0-1 similarity.
		hits = append(hits, &VectorHit{
			ChunkID:  id,
			Distance: float32(distance),
			Score:    float32(1.0 - distance/2.0),
		})
	}
	return hits, rows.Err()
}

// Delete removes vectors by ID.
func (s *SQLiteVecIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM vec_chunks WHERE chunk_id IN (%s)`,
		repeatPlaceholders(len(ids)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// AllIDs returns all chunk IDs in the index.
func (s *SQLiteVecIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	rows, err := s.db.Query(`SELECT chunk_id FROM vec_chunks`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

// Contains checks if an ID exists.
func (s *SQLiteVecIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vec_chunks WHERE chunk_id = ?`, id).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// Count returns the number of vectors.
func (s *SQLiteVecIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vec_chunks`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Dimensions returns the vector width the index was built with.
func (s *SQLiteVecIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save checkpoints the WAL. The database persists continuously, so the
// path argument is ignored.
func (s *SQLiteVecIndex) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Load reopens the index from disk at path.
func (s *SQLiteVecIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && !s.closed {
		_ = s.db.Close()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open vector database: %w", err)
	}

	s.db = db
	s.path = path
	s.closed = false

	return s.initSchema()
}

// Close checkpoints and closes the database. Idempotent.
func (s *SQLiteVecIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

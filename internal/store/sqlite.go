package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/havenops/ric/internal/access"
	ricerrors "github.com/havenops/ric/internal/errors"
)

// SQLiteStore implements DocumentStore using SQLite with FTS5.
// WAL mode allows concurrent readers while a single writer holds the pool.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	config SQLiteConfig
	closed bool
}

// Verify interface implementation at compile time
var _ DocumentStore = (*SQLiteStore)(nil)

// timeLayout is the canonical timestamp encoding in the database.
const timeLayout = time.RFC3339Nano

// ValidateIntegrity checks the database before opening. Unlike derived
// indexes, the document store is the system of record, so corruption is
// reported rather than auto-cleared.
func ValidateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewSQLiteStore opens or creates the document store at path.
// If path is empty, an in-memory store is created for testing.
func NewSQLiteStore(path string, config SQLiteConfig) (*SQLiteStore, error) {
	if config.Analyzer == "" {
		config.Analyzer = "porter"
	}
	if config.CacheMB <= 0 {
		config.CacheMB = 64
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if err := ValidateIntegrity(path); err != nil {
			return nil, ricerrors.Wrap(ricerrors.KindUnavailable, err, "document store at %s is not usable", path)
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention; WAL still allows readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas must be set via statements for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", config.CacheMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		config: config,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the document, chunk, FTS5, and state tables.
func (s *SQLiteStore) initSchema() error {
	tokenize := "porter unicode61"
	if strings.EqualFold(s.config.Analyzer, "unicode") {
		tokenize = "unicode61"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL DEFAULT '',
		owner_email  TEXT NOT NULL DEFAULT '',
		source_type  TEXT NOT NULL,
		source_key   TEXT NOT NULL,
		key_instance INTEGER NOT NULL DEFAULT 0,
		source_url   TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		is_public    INTEGER NOT NULL DEFAULT 0,
		shared_with  TEXT NOT NULL DEFAULT '[]',
		group_ids    TEXT NOT NULL DEFAULT '[]',
		metadata     TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	-- Dedupe identity. Instance 0 is the canonical document per key;
	-- explicit duplicates take higher instances. The ingest pipeline
	-- serializes per key, and this constraint backstops races across
	-- processes.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_source
		ON documents(owner_id, source_type, source_key, key_instance);

	-- rid is the stable integer rowid required by the external-content
	-- FTS table; chunk ids remain opaque strings for callers.
	CREATE TABLE IF NOT EXISTS chunks (
		rid           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		content       TEXT NOT NULL,
		start_char    INTEGER NOT NULL DEFAULT 0,
		end_char      INTEGER NOT NULL DEFAULT 0,
		token_count   INTEGER NOT NULL DEFAULT 0,
		chapter_title TEXT NOT NULL DEFAULT '',
		start_time    REAL NOT NULL DEFAULT 0,
		end_time      REAL NOT NULL DEFAULT 0,
		section_path  TEXT NOT NULL DEFAULT '',
		has_code      INTEGER NOT NULL DEFAULT 0,
		embedding     BLOB,
		created_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		content,
		content='chunks',
		content_rowid='rid',
		tokenize='%s'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO fts_chunks(rowid, content) VALUES (new.rid, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO fts_chunks(fts_chunks, rowid, content) VALUES ('delete', old.rid, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE OF content ON chunks BEGIN
		INSERT INTO fts_chunks(fts_chunks, rowid, content) VALUES ('delete', old.rid, old.content);
		INSERT INTO fts_chunks(rowid, content) VALUES (new.rid, new.content);
	END;

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (%d);
	`, tokenize, CurrentSchemaVersion)

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Record the analyzer the FTS table was built with so migrate-indexes
	// can detect drift when the config later changes.
	analyzer := strings.ToLower(s.config.Analyzer)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO state(key, value) VALUES (?, ?)`,
		StateKeyLexicalAnalyzer, analyzer)
	return err
}

// DB exposes the underlying handle so sibling features that live in the
// same database file (episodes, facts) can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveDocument inserts a document row. A violation of the dedupe identity
// surfaces as a Conflict error.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	sharedWith, err := marshalStringSlice(doc.SharedWith)
	if err != nil {
		return fmt.Errorf("failed to encode shared_with: %w", err)
	}
	groupIDs, err := marshalStringSlice(doc.GroupIDs)
	if err != nil {
		return fmt.Errorf("failed to encode group_ids: %w", err)
	}
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, owner_id, owner_email, source_type, source_key, key_instance,
			source_url, title, content, is_public, shared_with, group_ids,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.OwnerEmail, string(doc.SourceType), doc.SourceKey,
		doc.KeyInstance, doc.SourceURL, doc.Title, doc.Content,
		boolToInt(doc.IsPublic), sharedWith, groupIDs, metadata,
		doc.CreatedAt.Format(timeLayout), doc.UpdatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return ricerrors.Conflict("document already exists for %s/%s", doc.SourceType, doc.SourceKey).
				WithDetail("source_type", string(doc.SourceType)).
				WithDetail("source_key", doc.SourceKey)
		}
		return fmt.Errorf("failed to save document: %w", err)
	}

	return nil
}

// docColumns is the shared document projection. The chunk count subquery
// keeps counts consistent without a denormalized column.
const docColumns = `
	d.id, d.owner_id, d.owner_email, d.source_type, d.source_key, d.key_instance,
	d.source_url, d.title, d.content, d.is_public, d.shared_with, d.group_ids,
	d.metadata, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM chunks c2 WHERE c2.document_id = d.id)`

// GetDocumentByID fetches a document regardless of visibility.
func (s *SQLiteStore) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents d WHERE d.id = ?`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ricerrors.NotFound("document %s not found", id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// FindBySourceKey looks up the dedupe identity for an owner, returning
// the canonical (lowest-instance) document when duplicates exist.
func (s *SQLiteStore) FindBySourceKey(ctx context.Context, ownerID string, st SourceType, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents d
		 WHERE d.owner_id = ? AND d.source_type = ? AND d.source_key = ?
		 ORDER BY d.key_instance LIMIT 1`,
		ownerID, string(st), key)

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return doc, nil
}

// NextKeyInstance returns the next free key instance for the identity.
func (s *SQLiteStore) NextKeyInstance(ctx context.Context, ownerID string, st SourceType, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(key_instance) + 1, 0) FROM documents
		 WHERE owner_id = ? AND source_type = ? AND source_key = ?`,
		ownerID, string(st), key).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute key instance: %w", err)
	}
	return next, nil
}

// DeleteDocument removes a document and its chunks in one transaction,
// returning the deleted chunk IDs so secondary indexes can be purged.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	var chunkIDs []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan chunk id: %w", err)
			}
			chunkIDs = append(chunkIDs, cid)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		// Explicit chunk delete keeps the FTS triggers on the hot path
		// instead of relying on cascade ordering.
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ricerrors.NotFound("document %s not found", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunkIDs, nil
}

// SaveChunks inserts chunk rows; the FTS index stays in sync via triggers.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (
				id, document_id, seq, content, start_char, end_char, token_count,
				chapter_title, start_time, end_time, section_path, has_code,
				embedding, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, c := range chunks {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			var blob []byte
			if len(c.Embedding) > 0 {
				blob = serializeFloat32(c.Embedding)
			}
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.DocumentID, c.Seq, c.Content, c.StartChar, c.EndChar,
				c.TokenCount, c.ChapterTitle, c.StartTime, c.EndTime,
				c.SectionPath, boolToInt(c.HasCode), blob,
				c.CreatedAt.Format(timeLayout)); err != nil {
				return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// chunkColumns is the shared chunk projection (embedding excluded).
const chunkColumns = `
	c.id, c.document_id, c.seq, c.content, c.start_char, c.end_char,
	c.token_count, c.chapter_title, c.start_time, c.end_time,
	c.section_path, c.has_code, c.created_at`

// GetChunksByDocument returns a document's chunks in sequence order.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.document_id = ? ORDER BY c.seq`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// HydrateChunks resolves candidate IDs against the access filter in SQL.
// Inaccessible and unknown IDs are dropped; output follows input order.
func (s *SQLiteStore) HydrateChunks(ctx context.Context, ids []string, f access.Filter) ([]*Chunk, map[string]*Document, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	pred, predArgs := accessPredicate(f)

	args := make([]any, 0, len(ids)+len(predArgs))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, predArgs...)

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id IN (%s) AND %s`,
		chunkColumns, docColumns, repeatPlaceholders(len(ids)), pred)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hydrate chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	docs := make(map[string]*Document)
	for rows.Next() {
		chunk, doc, err := scanChunkWithDocument(rows)
		if err != nil {
			return nil, nil, err
		}
		byID[chunk.ID] = chunk
		if _, ok := docs[doc.ID]; !ok {
			docs[doc.ID] = doc
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	ordered := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, docs, nil
}

// SearchLexical runs an FTS5 match with the access predicate in the same
// query, so filtering happens before ranking leaves the store.
func (s *SQLiteStore) SearchLexical(ctx context.Context, query string, limit int, f access.Filter) ([]*LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return []*LexicalHit{}, nil
	}
	matchExpr := BuildMatchQuery(terms)

	pred, predArgs := accessPredicate(f)
	args := append([]any{matchExpr}, predArgs...)
	args = append(args, limit)

	// bm25() returns negative scores where lower is better; negate so
	// higher is better like every other searcher.
	sqlQuery := fmt.Sprintf(`
		SELECT c.id, bm25(fts_chunks) AS score
		FROM fts_chunks
		JOIN chunks c ON c.rid = fts_chunks.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE fts_chunks MATCH ? AND %s
		ORDER BY score
		LIMIT ?`, pred)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		// FTS5 reports malformed match expressions as errors; treat them
		// as no results, matching the empty-query behavior.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*LexicalHit{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var hits []*LexicalHit
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, &LexicalHit{
			ChunkID:      id,
			Score:        -score,
			MatchedTerms: terms,
		})
	}
	return hits, rows.Err()
}

// Counts reports corpus totals visible through the filter.
func (s *SQLiteStore) Counts(ctx context.Context, f access.Filter) (*DocumentCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	pred, predArgs := accessPredicate(f)
	counts := &DocumentCounts{BySource: make(map[SourceType]int)}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM documents d WHERE %s`, pred),
		predArgs...).Scan(&counts.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE %s`, pred),
		predArgs...).Scan(&counts.Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(DISTINCT d.source_type || '/' || d.source_key) FROM documents d WHERE %s`, pred),
		predArgs...).Scan(&counts.DistinctSources)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT d.source_type, COUNT(*) FROM documents d WHERE %s GROUP BY d.source_type`, pred),
		predArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts.BySource[SourceType(st)] = n
	}
	return counts, rows.Err()
}

// AllEmbeddings returns every stored embedding keyed by chunk ID.
// Used to rebuild vector indexes without re-embedding.
func (s *SQLiteStore) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := deserializeFloat32(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// AllChunkIDs returns every chunk ID for consistency checks.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetState returns the value for a state key, or empty string when unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state key-value pair.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ricerrors.New(ricerrors.KindInternal, "store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
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

// accessPredicate translates an access filter into a SQL predicate over
// the documents alias d. It mirrors access.Filter.Matches exactly.
func accessPredicate(f access.Filter) (string, []any) {
	if f.All {
		return "1=1", nil
	}

	clauses := []string{"d.is_public = 1"}
	var args []any

	if f.UserID != "" {
		clauses = append(clauses, "d.owner_id = ?")
		args = append(args, f.UserID)
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM json_each(d.shared_with) WHERE json_each.value = ?)")
		args = append(args, f.UserID)
	}
	if f.Email != "" {
		clauses = append(clauses, "d.owner_email = ?")
		args = append(args, f.Email)
	}
	if len(f.Groups) > 0 {
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(d.group_ids) WHERE json_each.value IN (%s))",
			repeatPlaceholders(len(f.Groups))))
		for _, g := range f.Groups {
			args = append(args, g)
		}
	}

	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// repeatPlaceholders returns "?, ?, ..." with n placeholders.
func repeatPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc                        Document
		sourceType                 string
		isPublic                   int
		sharedWith, groupIDs, meta string
		createdAt, updatedAt       string
	)
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.OwnerEmail, &sourceType,
		&doc.SourceKey, &doc.KeyInstance, &doc.SourceURL, &doc.Title,
		&doc.Content, &isPublic, &sharedWith, &groupIDs, &meta,
		&createdAt, &updatedAt, &doc.ChunkCount)
	if err != nil {
		return nil, err
	}

	doc.SourceType = SourceType(sourceType)
	doc.IsPublic = isPublic != 0
	if doc.SharedWith, err = unmarshalStringSlice(sharedWith); err != nil {
		return nil, fmt.Errorf("failed to decode shared_with: %w", err)
	}
	if doc.GroupIDs, err = unmarshalStringSlice(groupIDs); err != nil {
		return nil, fmt.Errorf("failed to decode group_ids: %w", err)
	}
	if doc.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &doc, nil
}

func scanChunk(row scanner) (*Chunk, error) {
	var (
		chunk     Chunk
		hasCode   int
		createdAt string
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Seq, &chunk.Content,
		&chunk.StartChar, &chunk.EndChar, &chunk.TokenCount, &chunk.ChapterTitle,
		&chunk.StartTime, &chunk.EndTime, &chunk.SectionPath, &hasCode, &createdAt)
	if err != nil {
		return nil, err
	}

	chunk.HasCode = hasCode != 0
	if chunk.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse chunk created_at: %w", err)
	}
	return &chunk, nil
}

func scanChunkWithDocument(row scanner) (*Chunk, *Document, error) {
	var (
		chunk                      Chunk
		hasCode                    int
		chunkCreatedAt             string
		doc                        Document
		sourceType                 string
		isPublic                   int
		sharedWith, groupIDs, meta string
		createdAt, updatedAt       string
	)
	err := row.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Seq, &chunk.Content,
		&chunk.StartChar, &chunk.EndChar, &chunk.TokenCount, &chunk.ChapterTitle,
		&chunk.StartTime, &chunk.EndTime, &chunk.SectionPath, &hasCode, &chunkCreatedAt,
		&doc.ID, &doc.OwnerID, &doc.OwnerEmail, &sourceType, &doc.SourceKey,
		&doc.KeyInstance, &doc.SourceURL, &doc.Title, &doc.Content,
		&isPublic, &sharedWith, &groupIDs, &meta,
		&createdAt, &updatedAt, &doc.ChunkCount)
	if err != nil {
		return nil, nil, err
	}

	chunk.HasCode = hasCode != 0
	if chunk.CreatedAt, err = time.Parse(timeLayout, chunkCreatedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to parse chunk created_at: %w", err)
	}

	doc.SourceType = SourceType(sourceType)
	doc.IsPublic = isPublic != 0
	if doc.SharedWith, err = unmarshalStringSlice(sharedWith); err != nil {
		return nil, nil, fmt.Errorf("failed to decode shared_with: %w", err)
	}
	if doc.GroupIDs, err = unmarshalStringSlice(groupIDs); err != nil {
		return nil, nil, fmt.Errorf("failed to decode group_ids: %w", err)
	}
	if doc.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &chunk, &doc, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStringSlice(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	data, err := json.Marshal(s)
	return string(data), err
}

func unmarshalStringSlice(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	return string(data), err
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// serializeFloat32 encodes a vector as little-endian float32 bytes.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 decodes a little-endian float32 byte blob.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob: %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

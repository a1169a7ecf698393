package episode

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// SQLiteSink persists episodes and facts in the document database. It runs
// on the store's handle so document deletion cascades to both tables.
type SQLiteSink struct {
	db           *sql.DB
	extractor    Extractor
	excerptChars int
}

var _ Sink = (*SQLiteSink)(nil)

const timeLayout = time.RFC3339Nano

// NewSQLiteSink creates the episode tables on db if missing. extractor may
// be nil when fact extraction is never requested.
func NewSQLiteSink(db *sql.DB, extractor Extractor, cfg Config) (*SQLiteSink, error) {
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = DefaultExcerptChars
	}

	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		key            TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL,
		document_id    TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		source_type    TEXT NOT NULL,
		source_key     TEXT NOT NULL,
		reference_time TEXT NOT NULL,
		created_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_document ON episodes(document_id);

	CREATE TABLE IF NOT EXISTS facts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		subject     TEXT NOT NULL,
		relation    TEXT NOT NULL,
		object      TEXT NOT NULL,
		weight      REAL NOT NULL,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_id    TEXT NOT NULL,
		UNIQUE(document_id, subject, relation, object)
	);

	CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject);
	CREATE INDEX IF NOT EXISTS idx_facts_object ON facts(object);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to create episode schema")
	}

	return &SQLiteSink{
		db:           db,
		extractor:    extractor,
		excerptChars: cfg.ExcerptChars,
	}, nil
}

// Record upserts the requested episodes and, when asked, replaces the
// document's facts. Fact extraction failures are isolated per chunk.
func (s *SQLiteSink) Record(ctx context.Context, req Request) error {
	loc := req.Locator
	if loc.DocumentID == "" {
		return ricerrors.BadInput("episode locator missing document id")
	}
	if _, err := ParseType(string(req.Type)); err != nil {
		return err
	}

	refTime := time.Now().UTC()
	if loc.ReferenceTime != nil {
		refTime = loc.ReferenceTime.UTC()
	}

	if req.Type == TypeOverview || req.Type == TypeBoth {
		if err := s.upsertEpisode(ctx, Episode{
			Key:           OverviewKey(loc.SourceType, loc.SourceKey),
			Name:          episodeName(loc),
			Description:   s.excerpt(chunkText(loc)),
			DocumentID:    loc.DocumentID,
			SourceType:    loc.SourceType,
			SourceKey:     loc.SourceKey,
			ReferenceTime: refTime,
		}); err != nil {
			return err
		}
	}

	if (req.Type == TypeChapter || req.Type == TypeBoth) && len(loc.Chapters) > 0 {
		for _, chapter := range loc.Chapters {
			if strings.TrimSpace(chapter.Title) == "" {
				continue
			}
			anchor := refTime.Add(time.Duration(chapter.StartTime * float64(time.Second)))
			if err := s.upsertEpisode(ctx, Episode{
				Key:           ChapterKey(loc.SourceType, loc.SourceKey, chapter.Title),
				Name:          chapter.Title,
				Description:   s.excerpt(chapter.Content),
				DocumentID:    loc.DocumentID,
				SourceType:    loc.SourceType,
				SourceKey:     loc.SourceKey,
				ReferenceTime: anchor,
			}); err != nil {
				return err
			}
		}
	}

	if req.ExtractFacts && s.extractor != nil {
		if err := s.replaceFacts(ctx, loc); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteSink) upsertEpisode(ctx context.Context, ep Episode) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (key, name, description, document_id, source_type, source_key, reference_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			document_id = excluded.document_id,
			reference_time = excluded.reference_time`,
		ep.Key, ep.Name, ep.Description, ep.DocumentID,
		string(ep.SourceType), ep.SourceKey,
		ep.ReferenceTime.Format(timeLayout), now)
	if err != nil {
		return ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to upsert episode %s", ep.Key)
	}
	return nil
}

// replaceFacts rebuilds the document's fact rows from its chunks. Weights
// for the same triple accumulate across chunks; provenance keeps the first
// chunk the triple appeared in.
func (s *SQLiteSink) replaceFacts(ctx context.Context, loc DocumentLocator) error {
	type key struct{ subject, relation, object string }
	weights := make(map[key]float64)
	provenance := make(map[key]string)

	for _, c := range loc.Chunks {
		facts, err := s.extractor.Extract(c.Content)
		if err != nil {
			continue
		}
		for _, f := range facts {
			k := key{f.Subject, f.Relation, f.Object}
			weights[k] += f.Weight
			if _, seen := provenance[k]; !seen {
				provenance[k] = c.ID
			}
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM facts WHERE document_id = ?`, loc.DocumentID); err != nil {
		return ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to clear facts for %s", loc.DocumentID)
	}

	keys := make([]key, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subject != keys[j].subject {
			return keys[i].subject < keys[j].subject
		}
		return keys[i].object < keys[j].object
	})

	for _, k := range keys {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO facts (subject, relation, object, weight, document_id, chunk_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, subject, relation, object) DO UPDATE SET
				weight = excluded.weight,
				chunk_id = excluded.chunk_id`,
			k.subject, k.relation, k.object, weights[k], loc.DocumentID, provenance[k])
		if err != nil {
			return ricerrors.Wrap(ricerrors.KindUnavailable, err, "failed to insert fact")
		}
	}
	return nil
}

// FindFacts matches query terms against fact subjects and objects,
// best-weighted first. Terms shorter than four characters are skipped.
func (s *SQLiteSink) FindFacts(ctx context.Context, terms []string, limit int) ([]Fact, error) {
	var clauses []string
	var args []any
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if len(term) < 4 {
			continue
		}
		pattern := "%" + term + "%"
		clauses = append(clauses, "(lower(subject) LIKE ? OR lower(object) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT subject, relation, object, weight, document_id, chunk_id
		FROM facts
		WHERE %s
		ORDER BY weight DESC, subject ASC
		LIMIT ?`, strings.Join(clauses, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ricerrors.Wrap(ricerrors.KindUnavailable, err, "fact search failed")
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.Subject, &f.Relation, &f.Object, &f.Weight, &f.DocumentID, &f.ChunkID); err != nil {
			return nil, ricerrors.Internal(err, "failed to scan fact row")
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Episodes returns the episodes recorded for a document, oldest anchor
// first. Used by tests and the counts surface.
func (s *SQLiteSink) Episodes(ctx context.Context, documentID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, description, document_id, source_type, source_key, reference_time, created_at
		FROM episodes
		WHERE document_id = ?
		ORDER BY reference_time ASC, key ASC`, documentID)
	if err != nil {
		return nil, ricerrors.Wrap(ricerrors.KindUnavailable, err, "episode lookup failed")
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var st, refTime, createdAt string
		if err := rows.Scan(&ep.Key, &ep.Name, &ep.Description, &ep.DocumentID, &st, &ep.SourceKey, &refTime, &createdAt); err != nil {
			return nil, ricerrors.Internal(err, "failed to scan episode row")
		}
		ep.SourceType = store.SourceType(st)
		ep.ReferenceTime, _ = time.Parse(timeLayout, refTime)
		ep.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// episodeName prefers the title, then the source, then the document id.
func episodeName(loc DocumentLocator) string {
	if strings.TrimSpace(loc.Title) != "" {
		return loc.Title
	}
	if strings.TrimSpace(loc.Source) != "" {
		return loc.Source
	}
	return loc.DocumentID
}

// chunkText joins chunk contents in sequence order for the overview excerpt.
func chunkText(loc DocumentLocator) string {
	parts := make([]string, 0, len(loc.Chunks))
	for _, c := range loc.Chunks {
		if c.Content != "" {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// excerpt bounds text to the configured length, cutting back to a word
// boundary when one is near.
func (s *SQLiteSink) excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= s.excerptChars {
		return text
	}
	cut := s.excerptChars
	if i := strings.LastIndexByte(text[:cut], ' '); i > cut/2 {
		cut = i
	}
	return strings.TrimSpace(text[:cut])
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"duskmire/pkg/memory"
)

// KnowledgeBaseImpl is the world knowledge base backed by the world_kb table,
// with GIN full-text search and optional pgvector similarity.
//
// Obtain one via [Store.KB] rather than constructing directly.
// All methods are safe for concurrent use.
type KnowledgeBaseImpl struct {
	pool          *pgxpool.Pool
	vectorEnabled bool
	embedText     func(ctx context.Context, text string) ([]float32, error)
}

// Upsert implements [memory.WorldKnowledgeBase]. When vectors are enabled and
// the entry carries no embedding, one is derived from the summary (or the raw
// value when the summary is empty); a failed derivation is logged and the
// entry is stored without one.
func (s *KnowledgeBaseImpl) Upsert(ctx context.Context, entry memory.KbEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("knowledge base: upsert: empty key")
	}
	if len(entry.Value) == 0 {
		entry.Value = json.RawMessage("null")
	}
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	if entry.Visibility == "" {
		entry.Visibility = memory.VisibilityPublic
		if len(entry.NpcIDs) > 0 {
			entry.Visibility = memory.VisibilityNPC
		}
	}

	if s.vectorEnabled && s.embedText != nil && len(entry.Embedding) == 0 {
		text := entry.Summary
		if text == "" {
			text = string(entry.Value)
		}
		vec, err := s.embedText(ctx, text)
		if err != nil {
			slog.Warn("knowledge base: auto-embed failed, storing without embedding",
				"key", entry.Key, "error", err)
		} else {
			entry.Embedding = vec
		}
	}

	args := []any{
		entry.Key,
		[]byte(entry.Value),
		tags,
		string(entry.Visibility),
		entry.NpcIDs,
		entry.Summary,
	}

	q := `
		INSERT INTO world_kb (key, value, tags, visibility, npc_ids, summary, updated_at`
	values := `
		VALUES ($1, $2, $3, $4, $5, $6, now()`
	update := `
		ON CONFLICT (key) DO UPDATE SET
		    value      = EXCLUDED.value,
		    tags       = EXCLUDED.tags,
		    visibility = EXCLUDED.visibility,
		    npc_ids    = EXCLUDED.npc_ids,
		    summary    = EXCLUDED.summary,
		    updated_at = now()`
	if s.vectorEnabled {
		var vec any
		if len(entry.Embedding) > 0 {
			vec = pgvector.NewVector(entry.Embedding)
		}
		args = append(args, vec)
		q += ", embedding"
		values += ", $7"
		update += ",\n		    embedding  = EXCLUDED.embedding"
	}
	sql := q + ")" + values + ")" + update

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("knowledge base: upsert: %w", err)
	}
	return nil
}

// Get implements [memory.WorldKnowledgeBase]. It retrieves an entry by key
// regardless of visibility. Returns (nil, nil) when the key does not exist.
func (s *KnowledgeBaseImpl) Get(ctx context.Context, key string) (*memory.KbEntry, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM   world_kb
		WHERE  key = $1`, s.columns())

	rows, err := s.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: get: %w", err)
	}
	entries, err := s.collect(rows)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: get: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// SearchByTags implements [memory.WorldKnowledgeBase]. It returns entries
// whose tag set overlaps tags, newest first, with no visibility scoping.
func (s *KnowledgeBaseImpl) SearchByTags(ctx context.Context, tags []string, limit int) ([]memory.KbEntry, error) {
	if limit <= 0 {
		limit = memory.MaxTopK
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM   world_kb
		WHERE  tags && $1::text[]
		ORDER  BY updated_at DESC
		LIMIT  $2`, s.columns())

	rows, err := s.pool.Query(ctx, sql, tags, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: search by tags: %w", err)
	}
	entries, err := s.collect(rows)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: search by tags: %w", err)
	}
	return entries, nil
}

// Search implements [memory.WorldKnowledgeBase]. Entries are scoped to the
// caller: a nil npc_ids set is common knowledge, a non-nil set requires
// membership, and system entries are never returned. Ranking is by vector
// distance when a query embedding is supplied and vectors are enabled, by
// full-text relevance when query text is supplied, and by recency otherwise.
func (s *KnowledgeBaseImpl) Search(ctx context.Context, q memory.KbQuery) ([]memory.KbEntry, error) {
	topK := memory.ClampTopK(q.TopK)
	if topK == 0 {
		return []memory.KbEntry{}, nil
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"visibility <> '" + string(memory.VisibilitySystem) + "'",
	}
	if q.NpcID != "" {
		conditions = append(conditions,
			"(npc_ids IS NULL OR "+next(q.NpcID)+" = ANY(npc_ids))")
	} else {
		conditions = append(conditions, "npc_ids IS NULL")
	}
	if len(q.Tags) > 0 {
		conditions = append(conditions, "tags && "+next(q.Tags)+"::text[]")
	}

	cols := s.columns()
	order := "updated_at DESC"
	switch {
	case s.vectorEnabled && len(q.Embedding) > 0:
		order = "embedding <=> " + next(pgvector.NewVector(q.Embedding))
	case q.Text != "":
		textArg := next(q.Text)
		conditions = append(conditions,
			"to_tsvector('english', summary || ' ' || value::text) @@ plainto_tsquery('english', "+textArg+")")
		order = "ts_rank(to_tsvector('english', summary || ' ' || value::text), plainto_tsquery('english', " + textArg + ")) DESC"
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM   world_kb
		WHERE  %s
		ORDER  BY %s
		LIMIT  %s`,
		cols,
		strings.Join(conditions, "\n  AND  "),
		order,
		next(topK),
	)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: search: %w", err)
	}
	entries, err := s.collect(rows)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: search: %w", err)
	}
	return entries, nil
}

// Delete implements [memory.WorldKnowledgeBase]. Deleting a missing key is
// not an error.
func (s *KnowledgeBaseImpl) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM world_kb WHERE key = $1`, key); err != nil {
		return fmt.Errorf("knowledge base: delete: %w", err)
	}
	return nil
}

// columns returns the select list, including the embedding column only when
// vector support is active.
func (s *KnowledgeBaseImpl) columns() string {
	cols := "key, value, tags, visibility, npc_ids, summary, updated_at"
	if s.vectorEnabled {
		cols += ", embedding"
	}
	return cols
}

// collect scans pgx rows into a slice of KbEntry values.
func (s *KnowledgeBaseImpl) collect(rows pgx.Rows) ([]memory.KbEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.KbEntry, error) {
		var (
			e          memory.KbEntry
			value      []byte
			visibility string
			vec        *pgvector.Vector
		)
		dest := []any{
			&e.Key,
			&value,
			&e.Tags,
			&visibility,
			&e.NpcIDs,
			&e.Summary,
			&e.UpdatedAt,
		}
		if s.vectorEnabled {
			dest = append(dest, &vec)
		}
		if err := row.Scan(dest...); err != nil {
			return memory.KbEntry{}, err
		}
		e.Value = json.RawMessage(value)
		e.Visibility = memory.Visibility(visibility)
		if vec != nil {
			e.Embedding = vec.Slice()
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.KbEntry{}
	}
	return entries, nil
}

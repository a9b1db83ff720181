package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"duskmire/pkg/memory"
)

// MemoryStoreImpl is the episodic memory store backed by the npc_memories
// table, with optional pgvector reranking.
//
// Obtain one via [Store.Memories] rather than constructing directly.
// All methods are safe for concurrent use.
type MemoryStoreImpl struct {
	pool           *pgxpool.Pool
	vectorEnabled  bool
	candidateLimit int
}

// Add implements [memory.NpcMemoryStore]. It inserts one immutable memory
// row, clamping importance and bounding content before write.
func (s *MemoryStoreImpl) Add(ctx context.Context, mem memory.NpcMemory) error {
	if mem.ID == "" {
		return fmt.Errorf("memory store: add: empty memory id")
	}
	if mem.NpcID == "" {
		return fmt.Errorf("memory store: add: empty npc id")
	}

	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	tags := mem.Tags
	if tags == nil {
		tags = []string{}
	}

	args := []any{
		mem.ID,
		mem.NpcID,
		mem.Subject,
		mem.RoomID,
		mem.AreaID,
		mem.Kind,
		memory.ClampImportance(mem.Importance),
		tags,
		memory.BoundContent(mem.Content),
		mem.CreatedAt,
		mem.ExpiresAt,
	}

	q := `
		INSERT INTO npc_memories
		    (id, npc_id, subject_player, room_id, area_id, kind, importance, tags, content, created_at, expires_at`
	placeholders := `
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11`
	if s.vectorEnabled {
		var vec any
		if len(mem.Embedding) > 0 {
			vec = pgvector.NewVector(mem.Embedding)
		}
		args = append(args, vec)
		q += ", embedding"
		placeholders += ", $12"
	}
	q += ")" + placeholders + ")"

	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("memory store: add: %w", err)
	}
	return nil
}

// Recall implements [memory.NpcMemoryStore]. Stage one selects unexpired
// candidates for the NPC by recency, bounded by the store's candidate limit;
// stage two reranks them by vector distance when a query embedding is
// supplied and vectors are enabled, otherwise by importance then recency.
func (s *MemoryStoreImpl) Recall(ctx context.Context, q memory.RecallQuery) ([]memory.NpcMemory, error) {
	if q.NpcID == "" {
		return nil, fmt.Errorf("memory store: recall: empty npc id")
	}
	topK := memory.ClampTopK(q.TopK)
	if topK == 0 {
		return []memory.NpcMemory{}, nil
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"npc_id = " + next(q.NpcID),
		"(expires_at IS NULL OR expires_at > now())",
	}
	if q.Subject != "" {
		conditions = append(conditions, "subject_player = "+next(q.Subject))
	}
	if len(q.Tags) > 0 {
		conditions = append(conditions, "tags && "+next(q.Tags)+"::text[]")
	}

	cols := "id, npc_id, subject_player, room_id, area_id, kind, importance, tags, content, created_at, expires_at"
	if s.vectorEnabled {
		cols += ", embedding"
	}

	useVec := s.vectorEnabled && len(q.Embedding) > 0
	rerank := "importance DESC, created_at DESC"
	if useVec {
		rerank = "embedding <=> " + next(pgvector.NewVector(q.Embedding))
	}

	sql := fmt.Sprintf(`
		WITH candidates AS (
		    SELECT %s
		    FROM   npc_memories
		    WHERE  %s
		    ORDER  BY created_at DESC
		    LIMIT  %s
		)
		SELECT %s
		FROM   candidates
		ORDER  BY %s
		LIMIT  %s`,
		cols,
		strings.Join(conditions, "\n      AND  "),
		next(s.candidateLimit),
		cols,
		rerank,
		next(topK),
	)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("memory store: recall: %w", err)
	}
	result, err := collectMemories(rows, s.vectorEnabled)
	if err != nil {
		return nil, fmt.Errorf("memory store: recall: %w", err)
	}
	return result, nil
}

// PruneExpired deletes memories whose expiry has passed and returns how many
// rows were removed. Intended to be driven from a periodic world heartbeat.
func (s *MemoryStoreImpl) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM npc_memories WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("memory store: prune expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// collectMemories scans pgx rows into a slice of NpcMemory values. withVec
// must match whether the query selected the embedding column.
func collectMemories(rows pgx.Rows, withVec bool) ([]memory.NpcMemory, error) {
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.NpcMemory, error) {
		var (
			m   memory.NpcMemory
			vec *pgvector.Vector
		)
		dest := []any{
			&m.ID,
			&m.NpcID,
			&m.Subject,
			&m.RoomID,
			&m.AreaID,
			&m.Kind,
			&m.Importance,
			&m.Tags,
			&m.Content,
			&m.CreatedAt,
			&m.ExpiresAt,
		}
		if withVec {
			dest = append(dest, &vec)
		}
		if err := row.Scan(dest...); err != nil {
			return memory.NpcMemory{}, err
		}
		if vec != nil {
			m.Embedding = vec.Slice()
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	if result == nil {
		result = []memory.NpcMemory{}
	}
	return result, nil
}

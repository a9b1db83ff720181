// Package memory defines the hybrid memory architecture used by Duskmire NPCs.
//
// Four concerns share one relational datasource:
//
//   - Episodic memory ([NpcMemoryStore]): per-NPC, append-only records of
//     significant experiences, retrieved by two-stage recall (filters +
//     recency, then vector or importance rerank).
//   - World knowledge base ([WorldKnowledgeBase]): keyed JSON facts shared
//     across NPCs with per-entry visibility rules and optional embeddings.
//   - Goals ([NpcGoalStore]): one active goal per (npc, goal type), carrying
//     the plan inside an opaque params document.
//   - Needs ([NpcNeedStore]): standing drives that seed goal derivation when
//     an NPC is idle.
//
// All interfaces are public so that external packages can supply alternative
// backends (Postgres/pgvector, in-memory, …) without depending on duskmire
// internals. The game loop never writes episodic memory directly; it enqueues
// through the bounded [Writer] so database latency cannot stall a tick.
//
// Every implementation must be safe for concurrent use.
package memory

import "context"

// ─────────────────────────────────────────────────────────────────────────────
// Episodic memory store
// ─────────────────────────────────────────────────────────────────────────────

// NpcMemoryStore persists and recalls per-NPC episodic memories.
//
// Memories are immutable after insert. Implementations must be safe for
// concurrent use.
type NpcMemoryStore interface {
	// Add inserts one memory. The embedding is optional. CreatedAt is filled
	// with the current time when zero; Importance is clamped into [0, 100];
	// Content is bounded to [MaxContentLen] bytes.
	// Returns an error when ID or NpcID is empty, or on storage failure.
	Add(ctx context.Context, mem NpcMemory) error

	// Recall performs two-stage retrieval: candidates are selected by the
	// query's filter fields ordered by recency (capped at the store's
	// candidate limit), then reranked by vector distance when an embedding is
	// supplied and vectors are enabled, otherwise by importance then recency.
	// Expired memories are never returned.
	// Returns at most q.TopK rows; an empty (non-nil) slice when none match
	// or when q.TopK is 0.
	Recall(ctx context.Context, q RecallQuery) ([]NpcMemory, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// World knowledge base
// ─────────────────────────────────────────────────────────────────────────────

// WorldKnowledgeBase stores keyed JSON facts shared across NPCs.
//
// Implementations must be safe for concurrent use.
type WorldKnowledgeBase interface {
	// Upsert inserts or replaces the entry with entry.Key. When vectors are
	// enabled and entry.Embedding is empty, the store derives an embedding
	// from the summary (or raw value); a failed derivation is logged and the
	// entry is stored without one.
	Upsert(ctx context.Context, entry KbEntry) error

	// Get retrieves an entry by key regardless of visibility.
	// Returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) (*KbEntry, error)

	// SearchByTags returns entries whose tag set overlaps tags, newest first.
	// No visibility scoping is applied; this is an engine-side lookup.
	// limit caps the result count; 0 applies the store default.
	// Returns an empty (non-nil) slice when no entries match.
	SearchByTags(ctx context.Context, tags []string, limit int) ([]KbEntry, error)

	// Search returns entries visible to q.NpcID ranked for prompt inclusion:
	// by ascending vector distance when q.Embedding is supplied and vectors
	// are enabled, otherwise by text relevance against summary and value.
	// System entries are never returned.
	// Returns an empty (non-nil) slice when no entries match or q.TopK is 0.
	Search(ctx context.Context, q KbQuery) ([]KbEntry, error)

	// Delete removes the entry with the given key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Goal and need stores
// ─────────────────────────────────────────────────────────────────────────────

// NpcGoalStore persists active goals, one row per (npc, goal type).
//
// The synthetic [GoalTypeSurvive] drive never appears here: upserting it is
// rejected and list queries exclude it.
//
// Implementations must be safe for concurrent use.
type NpcGoalStore interface {
	// Upsert inserts or replaces the goal for (goal.NpcID, goal.GoalType).
	// Re-upserting an identical goal is a no-op on status and importance.
	// Returns an error when NpcID or GoalType is empty, or when GoalType is
	// [GoalTypeSurvive].
	Upsert(ctx context.Context, goal NpcGoal) error

	// Get retrieves the goal for (npcID, goalType).
	// Returns (nil, nil) when no such goal exists.
	Get(ctx context.Context, npcID, goalType string) (*NpcGoal, error)

	// GetAll returns every goal for npcID ordered by ascending importance
	// (most pressing first), excluding [GoalTypeSurvive].
	// Returns an empty (non-nil) slice when the NPC has no goals.
	GetAll(ctx context.Context, npcID string) ([]NpcGoal, error)

	// UpdateParams replaces the params document of an existing goal and
	// refreshes its updated timestamp. Returns an error when the goal does
	// not exist.
	UpdateParams(ctx context.Context, npcID, goalType string, params map[string]any) error

	// Clear deletes the goal for (npcID, goalType). Clearing a missing goal
	// is not an error.
	Clear(ctx context.Context, npcID, goalType string) error

	// ClearAll deletes every goal for npcID. When preserveSurvival is true
	// any row typed [GoalTypeSurvive] is kept.
	ClearAll(ctx context.Context, npcID string, preserveSurvival bool) error
}

// NpcNeedStore persists standing drives, one row per (npc, need type).
//
// Implementations must be safe for concurrent use.
type NpcNeedStore interface {
	// Upsert inserts or replaces the need for (need.NpcID, need.NeedType).
	// Returns an error when NpcID or NeedType is empty.
	Upsert(ctx context.Context, need NpcNeed) error

	// GetAll returns every need for npcID ordered by ascending level
	// (strongest drive first).
	// Returns an empty (non-nil) slice when the NPC has no needs.
	GetAll(ctx context.Context, npcID string) ([]NpcNeed, error)

	// Clear deletes the need for (npcID, needType). Clearing a missing need
	// is not an error.
	Clear(ctx context.Context, npcID, needType string) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregate store
// ─────────────────────────────────────────────────────────────────────────────

// Store bundles the four memory concerns behind one datasource handle.
//
// Episodic memory and the knowledge base both define Upsert/Search shapes
// that would collide on a single struct, so backends expose them as sub-types
// in the manner of Memories()/KB() accessors.
type Store interface {
	// Memories returns the episodic memory store.
	Memories() NpcMemoryStore

	// KB returns the world knowledge base.
	KB() WorldKnowledgeBase

	// Goals returns the goal store.
	Goals() NpcGoalStore

	// Needs returns the need store.
	Needs() NpcNeedStore

	// VectorEnabled reports whether the backend activated vector similarity
	// support during bootstrap.
	VectorEnabled() bool

	// Close releases the underlying datasource.
	Close()
}

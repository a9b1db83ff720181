package memory

import (
	"encoding/json"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared constants
// ─────────────────────────────────────────────────────────────────────────────

// Goal importance values. Lower values are scheduled first, so a combat goal
// preempts everything else while a background goal only runs when nothing more
// pressing is active.
const (
	// ImportanceCombat is reserved for goals created while fighting.
	ImportanceCombat = 5

	// ImportanceUrgent is reserved for time-critical goals (fleeing, alarms).
	ImportanceUrgent = 10

	// ImportanceDefault is assigned to goals created from model markup and to
	// declared default goals that do not override it.
	ImportanceDefault = 50

	// ImportanceBackground is assigned to idle-time goals (wandering, chores).
	ImportanceBackground = 100
)

// GoalTypeSurvive is the synthetic survival drive. It is applied to every
// living NPC as a level-1 need and never persisted as a regular goal;
// [NpcGoalStore] queries exclude it.
const GoalTypeSurvive = "survive"

// StatusActive is the status assigned to freshly created goals and needs.
const StatusActive = "active"

// Episodic memory kinds produced by the event promotion rules. Stores accept
// arbitrary kind strings; these are the ones the core writes itself.
const (
	KindConversation   = "conversation"
	KindCombat         = "combat"
	KindGiftReceived   = "gift_received"
	KindWitnessedDeath = "witnessed_death"
)

// MaxContentLen is the upper bound, in bytes, on episodic memory content.
// Longer content is truncated before insert.
const MaxContentLen = 512

// MaxTopK caps how many rows a single recall or knowledge-base search may
// return.
const MaxTopK = 50

// Candidate pre-filter bounds for two-stage recall. The configured candidate
// limit is clamped into this range.
const (
	MinCandidateLimit = 10
	MaxCandidateLimit = 5000
)

// ClampImportance clamps v into the valid importance range [0, 100].
func ClampImportance(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampTopK clamps v into [0, MaxTopK]. A result of 0 means "return nothing";
// callers should short-circuit without touching storage.
func ClampTopK(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxTopK {
		return MaxTopK
	}
	return v
}

// ClampCandidateLimit clamps v into [MinCandidateLimit, MaxCandidateLimit].
func ClampCandidateLimit(v int) int {
	if v < MinCandidateLimit {
		return MinCandidateLimit
	}
	if v > MaxCandidateLimit {
		return MaxCandidateLimit
	}
	return v
}

// BoundContent truncates s to at most MaxContentLen bytes, cutting on a rune
// boundary so truncation never produces invalid UTF-8.
func BoundContent(s string) string {
	if len(s) <= MaxContentLen {
		return s
	}
	cut := MaxContentLen
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// ─────────────────────────────────────────────────────────────────────────────
// Episodic memory
// ─────────────────────────────────────────────────────────────────────────────

// NpcMemory is one episodic memory row: something a specific NPC experienced,
// written once and never mutated. Expired rows are invisible to recall and
// eventually pruned.
type NpcMemory struct {
	// ID is the unique identifier for this memory (a UUID string).
	ID string

	// NpcID identifies the NPC that owns this memory.
	NpcID string

	// Subject is the normalized (lowercase) player name this memory is about.
	// Empty when the memory has no player subject.
	Subject string

	// RoomID is the room where the memory was formed. Optional.
	RoomID string

	// AreaID is the area containing RoomID. Optional.
	AreaID string

	// Kind tags the memory category (e.g. [KindConversation], [KindCombat]).
	Kind string

	// Importance ranks the memory in [0, 100]; higher values surface first
	// when no query embedding is available.
	Importance int

	// Tags hold free-form labels used for overlap filtering during recall
	// (e.g. "room:town_square").
	Tags []string

	// Content is the memory text, bounded to [MaxContentLen] bytes.
	Content string

	// CreatedAt is when the memory was formed. The store fills it on insert
	// when zero.
	CreatedAt time.Time

	// ExpiresAt is when the memory stops being recalled. Nil means the memory
	// never expires.
	ExpiresAt *time.Time

	// Embedding is the optional dense vector for similarity reranking.
	// Dimension must match the store configuration.
	Embedding []float32
}

// RecallQuery selects and ranks episodic memories for one NPC.
//
// Retrieval is two-stage: a candidate set is picked by the filter fields
// ordered by recency, then reranked either by vector distance to Embedding
// (when vectors are enabled and Embedding is non-empty) or by importance and
// recency.
type RecallQuery struct {
	// NpcID scopes the query to one NPC's memories. Required.
	NpcID string

	// Subject restricts candidates to memories about this normalized player
	// name. Empty matches all subjects.
	Subject string

	// Tags restricts candidates to memories whose tag set overlaps this list.
	// Empty matches all tags.
	Tags []string

	// TopK caps the result count, clamped to [0, MaxTopK]. A TopK of 0
	// returns an empty result without querying storage.
	TopK int

	// Embedding is the optional query vector for stage-two reranking.
	Embedding []float32
}

// ─────────────────────────────────────────────────────────────────────────────
// World knowledge base
// ─────────────────────────────────────────────────────────────────────────────

// Visibility controls which callers may see a knowledge-base entry.
type Visibility string

const (
	// VisibilityPublic entries are common knowledge visible to every NPC.
	VisibilityPublic Visibility = "public"

	// VisibilitySystem entries are engine bookkeeping, never surfaced to NPC
	// prompts.
	VisibilitySystem Visibility = "system"

	// VisibilityNPC entries are restricted to the NPCs listed in
	// [KbEntry.NpcIDs].
	VisibilityNPC Visibility = "npc"
)

// KbEntry is one world knowledge-base record: a keyed JSON document shared
// across NPCs, optionally restricted to a set of them.
type KbEntry struct {
	// Key is the primary key.
	Key string

	// Value is the raw JSON document.
	Value json.RawMessage

	// Tags hold free-form labels for tag-overlap lookups.
	Tags []string

	// Visibility controls who may see this entry.
	Visibility Visibility

	// NpcIDs restricts the entry to these NPCs when Visibility is
	// [VisibilityNPC]. Nil means common knowledge.
	NpcIDs []string

	// Summary is an optional human-readable one-liner used for prompts and as
	// the auto-embedding source.
	Summary string

	// Embedding is the optional dense vector for similarity search. When
	// absent and vectors are enabled, the store derives one from Summary (or
	// from Value when Summary is empty) on upsert.
	Embedding []float32

	// UpdatedAt is when the entry was last upserted.
	UpdatedAt time.Time
}

// KbQuery selects and ranks knowledge-base entries for a prompt.
//
// Visibility scoping: entries with a nil NpcIDs set are visible to everyone;
// entries with a non-nil set only to callers in the set; system entries are
// never returned. When NpcID is empty, only common entries are returned.
type KbQuery struct {
	// NpcID is the calling NPC, used for visibility scoping. Optional.
	NpcID string

	// Text is matched against entry summaries and values when no Embedding is
	// supplied.
	Text string

	// Embedding is the optional query vector; when present and vectors are
	// enabled, results are ranked by ascending vector distance.
	Embedding []float32

	// Tags restricts results to entries whose tag set overlaps this list.
	Tags []string

	// TopK caps the result count, clamped to [0, MaxTopK].
	TopK int
}

// ─────────────────────────────────────────────────────────────────────────────
// Goals and needs
// ─────────────────────────────────────────────────────────────────────────────

// NpcGoal is one active goal row. At most one goal exists per
// (NpcID, GoalType) pair; upserts replace.
type NpcGoal struct {
	// NpcID identifies the owning NPC.
	NpcID string

	// GoalType names the goal (e.g. "deliver", "patrol"). Never
	// [GoalTypeSurvive]; survival is a need, not a goal.
	GoalType string

	// TargetPlayer is the normalized lowercase player name this goal targets.
	// Empty when untargeted.
	TargetPlayer string

	// Params is an opaque JSON object carrying goal state, including the plan
	// under the "plan" key.
	Params map[string]any

	// Status is the lifecycle state; [StatusActive] for live goals.
	Status string

	// Importance orders concurrent goals; lower runs first. See the
	// Importance* constants.
	Importance int

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time
}

// NpcNeed is one standing drive row. Needs never complete; they seed goal
// derivation when an NPC has no active goal. At most one need exists per
// (NpcID, NeedType) pair.
type NpcNeed struct {
	// NpcID identifies the owning NPC.
	NpcID string

	// NeedType names the drive (e.g. [GoalTypeSurvive], "greet_customers").
	NeedType string

	// Level ranks drives; 1 is the strongest. Survival is always level 1.
	Level int

	// Params is an opaque JSON object carrying drive configuration.
	Params map[string]any

	// Status is the lifecycle state; [StatusActive] for live needs.
	Status string

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time
}

// Package memstore is a thread-safe, in-memory implementation of the memory
// interfaces. It backs the server when no database is configured
// (memory.enabled: false) and the heavier integration-style tests; NPCs keep
// their episodic memory, knowledge and goals for the lifetime of the process
// and lose them on restart.
//
// Semantics mirror the Postgres backend with vectors disabled: recall reranks
// by importance then recency, knowledge-base search falls back to substring
// relevance, and all clamp and visibility rules apply identically.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"duskmire/pkg/memory"
)

// Compile-time assertion that Store satisfies the aggregate interface.
var _ memory.Store = (*Store)(nil)

// Store bundles the four in-memory sub-stores. The zero value is not usable;
// call [New].
type Store struct {
	memories *memoryStore
	kb       *kbStore
	goals    *goalStore
	needs    *needStore
}

// Config tunes the in-memory store.
type Config struct {
	// CandidateLimit caps the recency-ordered candidate set scanned before
	// reranking, clamped to [memory.MinCandidateLimit,
	// memory.MaxCandidateLimit]. Zero selects 500, the same default the
	// Postgres backend uses.
	CandidateLimit int
}

// New returns an empty [Store].
func New(cfg Config) *Store {
	limit := cfg.CandidateLimit
	if limit == 0 {
		limit = 500
	}
	return &Store{
		memories: &memoryStore{candidateLimit: memory.ClampCandidateLimit(limit)},
		kb:       &kbStore{entries: make(map[string]memory.KbEntry)},
		goals:    &goalStore{rows: make(map[string]map[string]memory.NpcGoal)},
		needs:    &needStore{rows: make(map[string]map[string]memory.NpcNeed)},
	}
}

// Memories implements [memory.Store].
func (s *Store) Memories() memory.NpcMemoryStore { return s.memories }

// KB implements [memory.Store].
func (s *Store) KB() memory.WorldKnowledgeBase { return s.kb }

// Goals implements [memory.Store].
func (s *Store) Goals() memory.NpcGoalStore { return s.goals }

// Needs implements [memory.Store].
func (s *Store) Needs() memory.NpcNeedStore { return s.needs }

// VectorEnabled implements [memory.Store]. The in-memory backend never
// activates vector similarity; recall uses importance ordering.
func (s *Store) VectorEnabled() bool { return false }

// Close implements [memory.Store]. There is nothing to release.
func (s *Store) Close() {}

// ─────────────────────────────────────────────────────────────────────────────
// Episodic memories
// ─────────────────────────────────────────────────────────────────────────────

type memoryStore struct {
	mu             sync.RWMutex
	rows           []memory.NpcMemory
	candidateLimit int
}

// Add implements [memory.NpcMemoryStore].
func (s *memoryStore) Add(_ context.Context, mem memory.NpcMemory) error {
	if mem.ID == "" {
		return fmt.Errorf("memstore: add: empty memory id")
	}
	if mem.NpcID == "" {
		return fmt.Errorf("memstore: add: empty npc id")
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	mem.Importance = memory.ClampImportance(mem.Importance)
	mem.Content = memory.BoundContent(mem.Content)
	mem.Tags = slices.Clone(mem.Tags)
	mem.Embedding = slices.Clone(mem.Embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, mem)
	return nil
}

// Recall implements [memory.NpcMemoryStore]. Stage one filters by owner,
// expiry, subject and tag overlap and keeps the most recent candidates; stage
// two orders by importance then recency — the vectorless path of the
// two-stage contract.
func (s *memoryStore) Recall(_ context.Context, q memory.RecallQuery) ([]memory.NpcMemory, error) {
	topK := memory.ClampTopK(q.TopK)
	if topK == 0 {
		return []memory.NpcMemory{}, nil
	}
	if q.NpcID == "" {
		return nil, fmt.Errorf("memstore: recall: empty npc id")
	}
	now := time.Now()

	s.mu.RLock()
	var candidates []memory.NpcMemory
	for _, m := range s.rows {
		if m.NpcID != q.NpcID {
			continue
		}
		if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			continue
		}
		if q.Subject != "" && m.Subject != q.Subject {
			continue
		}
		if len(q.Tags) > 0 && !overlaps(m.Tags, q.Tags) {
			continue
		}
		candidates = append(candidates, m)
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if len(candidates) > s.candidateLimit {
		candidates = candidates[:s.candidateLimit]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Importance != candidates[j].Importance {
			return candidates[i].Importance > candidates[j].Importance
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	if candidates == nil {
		candidates = []memory.NpcMemory{}
	}
	return candidates, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Knowledge base
// ─────────────────────────────────────────────────────────────────────────────

type kbStore struct {
	mu      sync.RWMutex
	entries map[string]memory.KbEntry
}

// Upsert implements [memory.WorldKnowledgeBase]. Vectors are disabled, so no
// embedding is ever derived.
func (s *kbStore) Upsert(_ context.Context, entry memory.KbEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("memstore: kb upsert: empty key")
	}
	if len(entry.Value) == 0 {
		entry.Value = json.RawMessage("null")
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	if entry.Visibility == "" {
		entry.Visibility = memory.VisibilityPublic
		if len(entry.NpcIDs) > 0 {
			entry.Visibility = memory.VisibilityNPC
		}
	}
	entry.UpdatedAt = time.Now()
	entry.Tags = slices.Clone(entry.Tags)
	entry.NpcIDs = slices.Clone(entry.NpcIDs)
	entry.Embedding = slices.Clone(entry.Embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Get implements [memory.WorldKnowledgeBase].
func (s *kbStore) Get(_ context.Context, key string) (*memory.KbEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// SearchByTags implements [memory.WorldKnowledgeBase].
func (s *kbStore) SearchByTags(_ context.Context, tags []string, limit int) ([]memory.KbEntry, error) {
	if limit <= 0 {
		limit = memory.MaxTopK
	}

	s.mu.RLock()
	matches := []memory.KbEntry{}
	for _, e := range s.entries {
		if overlaps(e.Tags, tags) {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Search implements [memory.WorldKnowledgeBase]. System entries never
// surface; a nil npc id set is common knowledge, a non-nil set requires
// membership, and an anonymous caller sees only common entries. Query text
// matches case-insensitively against summary and value, standing in for the
// database backend's full-text relevance.
func (s *kbStore) Search(_ context.Context, q memory.KbQuery) ([]memory.KbEntry, error) {
	topK := memory.ClampTopK(q.TopK)
	if topK == 0 {
		return []memory.KbEntry{}, nil
	}
	needle := strings.ToLower(q.Text)

	s.mu.RLock()
	matches := []memory.KbEntry{}
	for _, e := range s.entries {
		if e.Visibility == memory.VisibilitySystem {
			continue
		}
		if e.NpcIDs != nil && (q.NpcID == "" || !slices.Contains(e.NpcIDs, q.NpcID)) {
			continue
		}
		if len(q.Tags) > 0 && !overlaps(e.Tags, q.Tags) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Summary), needle) &&
			!strings.Contains(strings.ToLower(string(e.Value)), needle) {
			continue
		}
		matches = append(matches, e)
	}
	s.mu.RUnlock()

	sortNewestFirst(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements [memory.WorldKnowledgeBase].
func (s *kbStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Goals
// ─────────────────────────────────────────────────────────────────────────────

type goalStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]memory.NpcGoal // npc id → goal type → row
}

// Upsert implements [memory.NpcGoalStore].
func (s *goalStore) Upsert(_ context.Context, goal memory.NpcGoal) error {
	if goal.NpcID == "" {
		return fmt.Errorf("memstore: goal upsert: empty npc id")
	}
	if goal.GoalType == "" {
		return fmt.Errorf("memstore: goal upsert: empty goal type")
	}
	if goal.GoalType == memory.GoalTypeSurvive {
		return fmt.Errorf("memstore: goal upsert: %q is a drive, not a goal", memory.GoalTypeSurvive)
	}
	if goal.Status == "" {
		goal.Status = memory.StatusActive
	}
	if goal.Params == nil {
		goal.Params = map[string]any{}
	}
	goal.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	byType, ok := s.rows[goal.NpcID]
	if !ok {
		byType = make(map[string]memory.NpcGoal)
		s.rows[goal.NpcID] = byType
	}
	byType[goal.GoalType] = goal
	return nil
}

// Get implements [memory.NpcGoalStore].
func (s *goalStore) Get(_ context.Context, npcID, goalType string) (*memory.NpcGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.rows[npcID][goalType]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// GetAll implements [memory.NpcGoalStore].
func (s *goalStore) GetAll(_ context.Context, npcID string) ([]memory.NpcGoal, error) {
	s.mu.RLock()
	goals := []memory.NpcGoal{}
	for _, g := range s.rows[npcID] {
		if g.GoalType == memory.GoalTypeSurvive {
			continue
		}
		goals = append(goals, g)
	}
	s.mu.RUnlock()

	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].Importance != goals[j].Importance {
			return goals[i].Importance < goals[j].Importance
		}
		return goals[i].UpdatedAt.After(goals[j].UpdatedAt)
	})
	return goals, nil
}

// UpdateParams implements [memory.NpcGoalStore].
func (s *goalStore) UpdateParams(_ context.Context, npcID, goalType string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[npcID][goalType]
	if !ok {
		return fmt.Errorf("memstore: update params: goal (%q, %q) not found", npcID, goalType)
	}
	g.Params = params
	g.UpdatedAt = time.Now()
	s.rows[npcID][goalType] = g
	return nil
}

// Clear implements [memory.NpcGoalStore].
func (s *goalStore) Clear(_ context.Context, npcID, goalType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[npcID], goalType)
	return nil
}

// ClearAll implements [memory.NpcGoalStore].
func (s *goalStore) ClearAll(_ context.Context, npcID string, preserveSurvival bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !preserveSurvival {
		delete(s.rows, npcID)
		return nil
	}
	for goalType := range s.rows[npcID] {
		if goalType != memory.GoalTypeSurvive {
			delete(s.rows[npcID], goalType)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Needs
// ─────────────────────────────────────────────────────────────────────────────

type needStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]memory.NpcNeed // npc id → need type → row
}

// Upsert implements [memory.NpcNeedStore].
func (s *needStore) Upsert(_ context.Context, need memory.NpcNeed) error {
	if need.NpcID == "" {
		return fmt.Errorf("memstore: need upsert: empty npc id")
	}
	if need.NeedType == "" {
		return fmt.Errorf("memstore: need upsert: empty need type")
	}
	if need.Status == "" {
		need.Status = memory.StatusActive
	}
	if need.Params == nil {
		need.Params = map[string]any{}
	}
	need.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	byType, ok := s.rows[need.NpcID]
	if !ok {
		byType = make(map[string]memory.NpcNeed)
		s.rows[need.NpcID] = byType
	}
	byType[need.NeedType] = need
	return nil
}

// GetAll implements [memory.NpcNeedStore].
func (s *needStore) GetAll(_ context.Context, npcID string) ([]memory.NpcNeed, error) {
	s.mu.RLock()
	needs := []memory.NpcNeed{}
	for _, n := range s.rows[npcID] {
		needs = append(needs, n)
	}
	s.mu.RUnlock()

	sort.SliceStable(needs, func(i, j int) bool {
		return needs[i].Level < needs[j].Level
	})
	return needs, nil
}

// Clear implements [memory.NpcNeedStore].
func (s *needStore) Clear(_ context.Context, npcID, needType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[npcID], needType)
	return nil
}

func overlaps(a, b []string) bool {
	for _, t := range a {
		if slices.Contains(b, t) {
			return true
		}
	}
	return false
}

func sortNewestFirst(entries []memory.KbEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
}

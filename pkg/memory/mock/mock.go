// Package mock provides in-memory test doubles for the memory layer
// interfaces.
//
// Each mock records every method call for assertion in tests, exposes
// exported *Err fields that force failures, and keeps enough state in maps to
// behave like a real store (upsert-then-get round-trips work). All mocks are
// safe for concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	goals := &mock.GoalStore{}
//	_ = goals.Upsert(ctx, memory.NpcGoal{NpcID: "npc", GoalType: "deliver"})
//
//	if got := goals.CallCount("Upsert"); got != 1 {
//	    t.Errorf("expected 1 Upsert call, got %d", got)
//	}
package mock

import (
	"context"
	"sort"
	"sync"

	"duskmire/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// calls is the shared invocation recorder embedded in every mock.
type calls struct {
	mu   sync.Mutex
	list []Call
}

func (c *calls) record(method string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (c *calls) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.list))
	copy(out, c.list)
	return out
}

// CallCount returns how many times the named method was invoked.
func (c *calls) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.list {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering stored state.
func (c *calls) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Episodic memory store mock
// ─────────────────────────────────────────────────────────────────────────────

// MemoryStore is a configurable test double for [memory.NpcMemoryStore].
// Added memories accumulate in insertion order; Recall returns the configured
// RecallResult rather than re-implementing two-stage retrieval.
type MemoryStore struct {
	calls

	mu    sync.Mutex
	added []memory.NpcMemory

	// AddErr is returned by [MemoryStore.Add] when non-nil.
	AddErr error

	// RecallResult is returned by [MemoryStore.Recall].
	// When nil, Recall returns an empty non-nil slice.
	RecallResult []memory.NpcMemory

	// RecallErr is returned by [MemoryStore.Recall] when non-nil.
	RecallErr error
}

// Added returns a copy of every memory accepted by [MemoryStore.Add].
func (m *MemoryStore) Added() []memory.NpcMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.NpcMemory, len(m.added))
	copy(out, m.added)
	return out
}

// Add implements [memory.NpcMemoryStore].
func (m *MemoryStore) Add(_ context.Context, mem memory.NpcMemory) error {
	m.record("Add", mem)
	if m.AddErr != nil {
		return m.AddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, mem)
	return nil
}

// Recall implements [memory.NpcMemoryStore].
func (m *MemoryStore) Recall(_ context.Context, q memory.RecallQuery) ([]memory.NpcMemory, error) {
	m.record("Recall", q)
	if m.RecallResult == nil {
		return []memory.NpcMemory{}, m.RecallErr
	}
	out := make([]memory.NpcMemory, len(m.RecallResult))
	copy(out, m.RecallResult)
	return out, m.RecallErr
}

var _ memory.NpcMemoryStore = (*MemoryStore)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Knowledge base mock
// ─────────────────────────────────────────────────────────────────────────────

// KnowledgeBase is a configurable test double for
// [memory.WorldKnowledgeBase]. Upsert/Get/Delete operate on an internal map;
// Search and SearchByTags return the configured results.
type KnowledgeBase struct {
	calls

	mu      sync.Mutex
	entries map[string]memory.KbEntry

	// UpsertErr is returned by [KnowledgeBase.Upsert] when non-nil.
	UpsertErr error

	// SearchResult is returned by [KnowledgeBase.Search].
	// When nil, Search returns an empty non-nil slice.
	SearchResult []memory.KbEntry

	// SearchErr is returned by [KnowledgeBase.Search] when non-nil.
	SearchErr error

	// SearchByTagsResult is returned by [KnowledgeBase.SearchByTags].
	// When nil, SearchByTags returns an empty non-nil slice.
	SearchByTagsResult []memory.KbEntry
}

// Upsert implements [memory.WorldKnowledgeBase].
func (m *KnowledgeBase) Upsert(_ context.Context, entry memory.KbEntry) error {
	m.record("Upsert", entry)
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]memory.KbEntry{}
	}
	m.entries[entry.Key] = entry
	return nil
}

// Get implements [memory.WorldKnowledgeBase].
func (m *KnowledgeBase) Get(_ context.Context, key string) (*memory.KbEntry, error) {
	m.record("Get", key)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// SearchByTags implements [memory.WorldKnowledgeBase].
func (m *KnowledgeBase) SearchByTags(_ context.Context, tags []string, limit int) ([]memory.KbEntry, error) {
	m.record("SearchByTags", tags, limit)
	if m.SearchByTagsResult == nil {
		return []memory.KbEntry{}, nil
	}
	out := make([]memory.KbEntry, len(m.SearchByTagsResult))
	copy(out, m.SearchByTagsResult)
	return out, nil
}

// Search implements [memory.WorldKnowledgeBase].
func (m *KnowledgeBase) Search(_ context.Context, q memory.KbQuery) ([]memory.KbEntry, error) {
	m.record("Search", q)
	if m.SearchResult == nil {
		return []memory.KbEntry{}, m.SearchErr
	}
	out := make([]memory.KbEntry, len(m.SearchResult))
	copy(out, m.SearchResult)
	return out, m.SearchErr
}

// Delete implements [memory.WorldKnowledgeBase].
func (m *KnowledgeBase) Delete(_ context.Context, key string) error {
	m.record("Delete", key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ memory.WorldKnowledgeBase = (*KnowledgeBase)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Goal store mock
// ─────────────────────────────────────────────────────────────────────────────

// goalKey identifies one goal row.
type goalKey struct {
	npcID    string
	goalType string
}

// GoalStore is a behaving test double for [memory.NpcGoalStore]: rows live in
// an internal map so upsert/get/clear round-trips work like the real store.
type GoalStore struct {
	calls

	mu    sync.Mutex
	goals map[goalKey]memory.NpcGoal

	// Err is returned by every method when non-nil, simulating a datasource
	// outage.
	Err error
}

// Upsert implements [memory.NpcGoalStore].
func (m *GoalStore) Upsert(_ context.Context, goal memory.NpcGoal) error {
	m.record("Upsert", goal)
	if m.Err != nil {
		return m.Err
	}
	if goal.Status == "" {
		goal.Status = memory.StatusActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.goals == nil {
		m.goals = map[goalKey]memory.NpcGoal{}
	}
	m.goals[goalKey{goal.NpcID, goal.GoalType}] = goal
	return nil
}

// Get implements [memory.NpcGoalStore].
func (m *GoalStore) Get(_ context.Context, npcID, goalType string) (*memory.NpcGoal, error) {
	m.record("Get", npcID, goalType)
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	goal, ok := m.goals[goalKey{npcID, goalType}]
	if !ok {
		return nil, nil
	}
	return &goal, nil
}

// GetAll implements [memory.NpcGoalStore].
func (m *GoalStore) GetAll(_ context.Context, npcID string) ([]memory.NpcGoal, error) {
	m.record("GetAll", npcID)
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []memory.NpcGoal{}
	for key, goal := range m.goals {
		if key.npcID == npcID && key.goalType != memory.GoalTypeSurvive {
			out = append(out, goal)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance < out[j].Importance
	})
	return out, nil
}

// UpdateParams implements [memory.NpcGoalStore].
func (m *GoalStore) UpdateParams(_ context.Context, npcID, goalType string, params map[string]any) error {
	m.record("UpdateParams", npcID, goalType, params)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := goalKey{npcID, goalType}
	goal, ok := m.goals[key]
	if !ok {
		return &NotFoundError{NpcID: npcID, Key: goalType}
	}
	goal.Params = params
	m.goals[key] = goal
	return nil
}

// Clear implements [memory.NpcGoalStore].
func (m *GoalStore) Clear(_ context.Context, npcID, goalType string) error {
	m.record("Clear", npcID, goalType)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.goals, goalKey{npcID, goalType})
	return nil
}

// ClearAll implements [memory.NpcGoalStore].
func (m *GoalStore) ClearAll(_ context.Context, npcID string, preserveSurvival bool) error {
	m.record("ClearAll", npcID, preserveSurvival)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.goals {
		if key.npcID != npcID {
			continue
		}
		if preserveSurvival && key.goalType == memory.GoalTypeSurvive {
			continue
		}
		delete(m.goals, key)
	}
	return nil
}

var _ memory.NpcGoalStore = (*GoalStore)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Need store mock
// ─────────────────────────────────────────────────────────────────────────────

// needKey identifies one need row.
type needKey struct {
	npcID    string
	needType string
}

// NeedStore is a behaving test double for [memory.NpcNeedStore].
type NeedStore struct {
	calls

	mu    sync.Mutex
	needs map[needKey]memory.NpcNeed

	// Err is returned by every method when non-nil.
	Err error
}

// Upsert implements [memory.NpcNeedStore].
func (m *NeedStore) Upsert(_ context.Context, need memory.NpcNeed) error {
	m.record("Upsert", need)
	if m.Err != nil {
		return m.Err
	}
	if need.Status == "" {
		need.Status = memory.StatusActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.needs == nil {
		m.needs = map[needKey]memory.NpcNeed{}
	}
	m.needs[needKey{need.NpcID, need.NeedType}] = need
	return nil
}

// GetAll implements [memory.NpcNeedStore].
func (m *NeedStore) GetAll(_ context.Context, npcID string) ([]memory.NpcNeed, error) {
	m.record("GetAll", npcID)
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []memory.NpcNeed{}
	for key, need := range m.needs {
		if key.npcID == npcID {
			out = append(out, need)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Level < out[j].Level
	})
	return out, nil
}

// Clear implements [memory.NpcNeedStore].
func (m *NeedStore) Clear(_ context.Context, npcID, needType string) error {
	m.record("Clear", npcID, needType)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.needs, needKey{npcID, needType})
	return nil
}

var _ memory.NpcNeedStore = (*NeedStore)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Aggregate store mock
// ─────────────────────────────────────────────────────────────────────────────

// Store bundles the four mocks behind the [memory.Store] interface.
// The zero value is ready to use.
type Store struct {
	MemoryStore   MemoryStore
	KnowledgeBase KnowledgeBase
	GoalStore     GoalStore
	NeedStore     NeedStore

	// Vector controls what [Store.VectorEnabled] reports.
	Vector bool

	closeOnce sync.Once
	closed    bool
}

// Memories implements [memory.Store].
func (m *Store) Memories() memory.NpcMemoryStore { return &m.MemoryStore }

// KB implements [memory.Store].
func (m *Store) KB() memory.WorldKnowledgeBase { return &m.KnowledgeBase }

// Goals implements [memory.Store].
func (m *Store) Goals() memory.NpcGoalStore { return &m.GoalStore }

// Needs implements [memory.Store].
func (m *Store) Needs() memory.NpcNeedStore { return &m.NeedStore }

// VectorEnabled implements [memory.Store].
func (m *Store) VectorEnabled() bool { return m.Vector }

// Close implements [memory.Store].
func (m *Store) Close() {
	m.closeOnce.Do(func() { m.closed = true })
}

// Closed reports whether Close was called.
func (m *Store) Closed() bool { return m.closed }

var _ memory.Store = (*Store)(nil)

// NotFoundError reports a missing row during an update that requires one.
type NotFoundError struct {
	// NpcID is the owning NPC.
	NpcID string

	// Key is the goal or need type that was not found.
	Key string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return "mock: no row for (" + e.NpcID + ", " + e.Key + ")"
}

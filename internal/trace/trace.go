// Package trace is the NPC debug fabric: observers attach to NPC ids and
// receive categorized one-line accounts of what the NPC's cognition is doing —
// goal changes, plan progress, chosen paths, executed commands, model calls,
// memory writes, witnessed events.
//
// Emission is fire-and-forget. An NPC with no subscribers costs one map
// lookup; delivery errors are the subscriber's problem. This fabric is for
// humans watching NPCs think, not for metrics — that is internal/observe.
package trace

import (
	"fmt"
	"sort"
	"sync"
)

// Category tags a trace line with the cognition stage it came from.
type Category string

const (
	CatGoal  Category = "GOAL"
	CatPlan  Category = "PLAN"
	CatStep  Category = "STEP"
	CatPath  Category = "PATH"
	CatCmd   Category = "CMD"
	CatLLM   Category = "LLM"
	CatMem   Category = "MEM"
	CatEvent Category = "EVENT"
)

// Subscriber receives trace lines for the NPCs it is attached to.
// Implementations must not block and must swallow their own delivery
// failures — a disconnected observer is not the emitter's concern.
type Subscriber interface {
	TraceLine(npcID string, cat Category, msg string)
}

// Fabric maintains the bidirectional subscription sets under one lock.
// The zero value is not usable; call [New].
type Fabric struct {
	mu    sync.Mutex
	byNPC map[string]map[Subscriber]struct{}
	bySub map[Subscriber]map[string]struct{}
}

// New returns an empty [Fabric].
func New() *Fabric {
	return &Fabric{
		byNPC: make(map[string]map[Subscriber]struct{}),
		bySub: make(map[Subscriber]map[string]struct{}),
	}
}

// Subscribe attaches sub to one NPC id. Subscribing twice is a no-op.
func (f *Fabric) Subscribe(sub Subscriber, npcID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byNPC[npcID] == nil {
		f.byNPC[npcID] = make(map[Subscriber]struct{})
	}
	f.byNPC[npcID][sub] = struct{}{}

	if f.bySub[sub] == nil {
		f.bySub[sub] = make(map[string]struct{})
	}
	f.bySub[sub][npcID] = struct{}{}
}

// Unsubscribe detaches sub from one NPC id.
func (f *Fabric) Unsubscribe(sub Subscriber, npcID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachLocked(sub, npcID)
}

// UnsubscribeAll detaches sub from every NPC it watches, in time proportional
// to the size of its own subscription set.
func (f *Fabric) UnsubscribeAll(sub Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for npcID := range f.bySub[sub] {
		f.detachLocked(sub, npcID)
	}
}

func (f *Fabric) detachLocked(sub Subscriber, npcID string) {
	if subs, ok := f.byNPC[npcID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(f.byNPC, npcID)
		}
	}
	if npcs, ok := f.bySub[sub]; ok {
		delete(npcs, npcID)
		if len(npcs) == 0 {
			delete(f.bySub, sub)
		}
	}
}

// Subscriptions lists the NPC ids sub currently watches, sorted.
func (f *Fabric) Subscriptions(sub Subscriber) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.bySub[sub]))
	for id := range f.bySub[sub] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Emit delivers one trace line to every subscriber of the NPC. The subscriber
// set is copied under the lock and delivery happens outside it, so a
// subscriber may re-enter the fabric from [Subscriber.TraceLine].
func (f *Fabric) Emit(npcID string, cat Category, msg string) {
	f.mu.Lock()
	subs := make([]Subscriber, 0, len(f.byNPC[npcID]))
	for sub := range f.byNPC[npcID] {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.TraceLine(npcID, cat, msg)
	}
}

// Emitf is [Fabric.Emit] with formatting.
func (f *Fabric) Emitf(npcID string, cat Category, format string, args ...any) {
	f.Emit(npcID, cat, fmt.Sprintf(format, args...))
}

package npc

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"duskmire/internal/world"
)

// NPC is one spawned instance: a profile plus its volatile state. The body —
// position, health, inventory — lives in the world under the same id.
type NPC struct {
	ID      string
	Name    string
	Profile Profile
	State   *State
}

// Registry tracks every spawned NPC. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	npcs map[string]*NPC
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{npcs: make(map[string]*NPC)}
}

// Spawn builds the NPC instance and its world body from a profile and a spawn
// definition, registers the instance, and returns both. The caller places the
// body in its room. The spawn may pin the instance id and override the
// display name; otherwise the id derives from the profile.
func (r *Registry) Spawn(p Profile, spawn world.SpawnDef) (*NPC, *world.Living) {
	id := spawn.ID
	if id == "" {
		id = p.ID + "-" + uuid.NewString()[:8]
	}
	name := spawn.Name
	if name == "" {
		name = p.Name
	}

	n := &NPC{
		ID:      id,
		Name:    name,
		Profile: p,
		State:   &State{},
	}
	body := &world.Living{
		ID:        id,
		Name:      name,
		Aliases:   slices.Clone(p.Aliases),
		Health:    p.Health,
		MaxHealth: p.Health,
	}

	r.mu.Lock()
	r.npcs[id] = n
	r.mu.Unlock()
	return n, body
}

// Get returns the NPC with the given id, or nil.
func (r *Registry) Get(id string) *NPC {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.npcs[id]
}

// Remove forgets an NPC, typically after its death.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.npcs, id)
}

// All returns every registered NPC, sorted by id.
func (r *Registry) All() []*NPC {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NPC, 0, len(r.npcs))
	for _, n := range r.npcs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

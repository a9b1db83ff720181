// Package world holds the mutable state of the text world: rooms, items,
// livings, combat pairings, and the area definitions they materialize from.
//
// Ownership follows the cooperative tick model: the scheduler goroutine is the
// only writer, cognition goroutines are concurrent readers. A single RWMutex
// on [World] enforces that split — every mutator takes the write lock, and
// [World.SnapshotFor] hands cognition a deep copy it can hold without racing
// the tick.
//
// Rooms load lazily. [World.Install] only registers definitions; a room is
// materialized — items created, NPC spawns dispatched, linked rooms pulled in —
// the first time something needs it, usually on movement through an exit.
//
// Mutators that have observable consequences return [RoomEvent] values rather
// than delivering them; routing events to sessions, NPC memory, and cognition
// is the scheduler's job.
package world

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// SpawnFunc creates the living for one NPC spawn and places it via
// [World.PlaceLiving]. It runs outside the world lock on the scheduler
// goroutine.
type SpawnFunc func(w *World, roomID string, spawn SpawnDef)

// World is the registry of everything that exists. The zero value is not
// usable; call [New].
type World struct {
	mu       sync.RWMutex
	defs     map[string]RoomDef
	profiles map[string]ProfileDef
	rooms    map[string]*Room
	livings  map[string]*Living
	pairings []pairing

	spawn SpawnFunc
}

// New returns an empty [World].
func New() *World {
	return &World{
		defs:     make(map[string]RoomDef),
		profiles: make(map[string]ProfileDef),
		rooms:    make(map[string]*Room),
		livings:  make(map[string]*Living),
	}
}

// SetSpawnFunc installs the NPC spawn hook. Must be called before any room
// with spawns materializes; spawns encountered earlier are skipped with a
// warning.
func (w *World) SetSpawnFunc(fn SpawnFunc) {
	w.mu.Lock()
	w.spawn = fn
	w.mu.Unlock()
}

// Install registers an area's room and profile definitions. Definitions from
// multiple areas accumulate; duplicate room or profile ids across areas are
// rejected. Exits may point at rooms from areas not yet installed — they stay
// unusable ("destination blocked") until that area arrives.
func (w *World) Install(area *AreaFile) error {
	if area == nil {
		return fmt.Errorf("world: area must not be nil")
	}
	if err := ValidateArea(area); err != nil {
		return fmt.Errorf("world: area %q: %w", area.Area.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range area.Profiles {
		if _, exists := w.profiles[p.ID]; exists {
			return fmt.Errorf("world: area %q: duplicate profile id %q", area.Area.ID, p.ID)
		}
	}
	for _, rd := range area.Rooms {
		if _, exists := w.defs[rd.ID]; exists {
			return fmt.Errorf("world: area %q: duplicate room id %q", area.Area.ID, rd.ID)
		}
	}
	for _, rd := range area.Rooms {
		for _, s := range rd.Spawns {
			if !profileKnown(s.Profile, area.Profiles, w.profiles) {
				return fmt.Errorf("world: area %q: room %q spawns unknown profile %q", area.Area.ID, rd.ID, s.Profile)
			}
		}
	}

	for _, p := range area.Profiles {
		w.profiles[p.ID] = p
	}
	for _, rd := range area.Rooms {
		rd.Area = area.Area.ID
		w.defs[rd.ID] = rd
	}
	return nil
}

func profileKnown(id string, staged []ProfileDef, installed map[string]ProfileDef) bool {
	if _, ok := installed[id]; ok {
		return true
	}
	for _, p := range staged {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Profiles returns all installed NPC profile definitions, sorted by id.
func (w *World) Profiles() []ProfileDef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ProfileDef, 0, len(w.profiles))
	for _, p := range w.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Profile looks up one profile definition by id.
func (w *World) Profile(id string) (ProfileDef, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.profiles[id]
	return p, ok
}

type pendingSpawn struct {
	roomID string
	def    SpawnDef
}

// EnsureRoom materializes the room with the given id, along with its linked
// rooms, and runs spawn processing for everything newly materialized. Already
// materialized rooms return immediately. An id with no installed definition is
// an error — callers treat it as a blocked destination.
func (w *World) EnsureRoom(id string) (*Room, error) {
	room, pending, err := w.materialize(id)
	if err != nil {
		return nil, err
	}
	w.runSpawns(pending)
	return room, nil
}

// BootSpawnRooms materializes every installed room that declares NPC spawns.
// Called once at startup so NPCs exist before the first tick.
func (w *World) BootSpawnRooms() error {
	w.mu.RLock()
	var ids []string
	for id, def := range w.defs {
		if len(def.Spawns) > 0 {
			ids = append(ids, id)
		}
	}
	w.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if _, err := w.EnsureRoom(id); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) materialize(id string) (*Room, []pendingSpawn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r, ok := w.rooms[id]; ok {
		return r, nil, nil
	}
	def, ok := w.defs[id]
	if !ok {
		return nil, nil, fmt.Errorf("world: unknown room %q", id)
	}
	var pending []pendingSpawn
	r := w.buildRoomLocked(def, &pending)
	return r, pending, nil
}

func (w *World) buildRoomLocked(def RoomDef, pending *[]pendingSpawn) *Room {
	r := &Room{
		ID:          def.ID,
		Area:        def.Area,
		Name:        def.Name,
		Description: def.Description,
		Exits:       def.Exits,
		Linked:      slices.Clone(def.Linked),
		Commands:    def.Commands,
	}
	for _, idef := range def.Items {
		r.items = append(r.items, newItem(idef))
	}
	w.rooms[def.ID] = r

	for _, s := range def.Spawns {
		*pending = append(*pending, pendingSpawn{roomID: def.ID, def: s})
	}
	for _, linked := range def.Linked {
		if _, ok := w.rooms[linked]; ok {
			continue
		}
		ldef, ok := w.defs[linked]
		if !ok {
			slog.Warn("linked room has no definition", "room", def.ID, "linked", linked)
			continue
		}
		w.buildRoomLocked(ldef, pending)
	}
	return r
}

func (w *World) runSpawns(pending []pendingSpawn) {
	if len(pending) == 0 {
		return
	}
	w.mu.RLock()
	fn := w.spawn
	w.mu.RUnlock()
	for _, p := range pending {
		if fn == nil {
			slog.Warn("no spawn handler installed, skipping spawn", "room", p.roomID, "profile", p.def.Profile)
			continue
		}
		fn(w, p.roomID, p.def)
	}
}

// Room returns an already materialized room, or nil.
func (w *World) Room(id string) *Room {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rooms[id]
}

// Living returns a living by id, or nil.
func (w *World) Living(id string) *Living {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.livings[id]
}

// LivingViewByID returns a copied view of a living.
func (w *World) LivingViewByID(id string) (LivingView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	l, ok := w.livings[id]
	if !ok {
		return LivingView{}, false
	}
	return viewOfLiving(l), true
}

// PlaceLiving registers l and puts it in the given room. The room must be
// materialized already.
func (w *World) PlaceLiving(l *Living, roomID string) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("world: living must have an id")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.livings[l.ID]; exists {
		return fmt.Errorf("world: living %q already placed", l.ID)
	}
	room, ok := w.rooms[roomID]
	if !ok {
		return fmt.Errorf("world: room %q is not materialized", roomID)
	}
	if l.equipped == nil {
		l.equipped = make(map[string]*Item)
	}
	l.RoomID = roomID
	w.livings[l.ID] = l
	room.livings = append(room.livings, l)
	return nil
}

// RemoveLiving takes a living out of the world: out of its room, out of any
// combat pairings, out of the registry. Used for deaths and disconnects.
func (w *World) RemoveLiving(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLivingLocked(id)
}

func (w *World) removeLivingLocked(id string) {
	l, ok := w.livings[id]
	if !ok {
		return
	}
	if room, ok := w.rooms[l.RoomID]; ok {
		room.livings = slices.DeleteFunc(room.livings, func(o *Living) bool { return o.ID == id })
	}
	w.pairings = slices.DeleteFunc(w.pairings, func(p pairing) bool { return p.a == id || p.b == id })
	delete(w.livings, id)
}

// MoveLiving walks a living through an exit of its current room. The
// destination is materialized lazily; a missing definition rejects the move
// with a blocked-destination error and leaves the living in place.
func (w *World) MoveLiving(id, direction string) (from, to *Room, err error) {
	w.mu.RLock()
	l, ok := w.livings[id]
	var destID string
	if ok {
		from = w.rooms[l.RoomID]
		if from != nil {
			destID = from.Exits[direction]
		}
	}
	w.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("world: unknown living %q", id)
	}
	if from == nil {
		return nil, nil, fmt.Errorf("world: living %q is nowhere", id)
	}
	if destID == "" {
		return nil, nil, fmt.Errorf("there is no exit %s", direction)
	}
	to, err = w.EnsureRoom(destID)
	if err != nil {
		return nil, nil, fmt.Errorf("the way %s is blocked", direction)
	}

	w.mu.Lock()
	from.livings = slices.DeleteFunc(from.livings, func(o *Living) bool { return o.ID == id })
	to.livings = append(to.livings, l)
	l.RoomID = to.ID
	w.mu.Unlock()
	return from, to, nil
}

// OccupantIDs lists the ids of every living in a room.
func (w *World) OccupantIDs(roomID string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	room, ok := w.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room.livings))
	for _, l := range room.livings {
		ids = append(ids, l.ID)
	}
	return ids
}

// LocalCommand looks up a room-scoped verb and returns its narration.
func (w *World) LocalCommand(roomID, verb string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	room, ok := w.rooms[roomID]
	if !ok {
		return "", false
	}
	narration, ok := room.Commands[verb]
	return narration, ok
}

// SnapshotFor deep-copies everything cognition may read about one living: its
// own state, its room with occupants and items, carried and equipped gear, and
// its combat situation.
func (w *World) SnapshotFor(id string) (Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	l, ok := w.livings[id]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		Self:     viewOfLiving(l),
		InCombat: w.inCombatLocked(id),
		Equipped: make(map[string]ItemView, len(l.equipped)),
	}
	if room, ok := w.rooms[l.RoomID]; ok {
		snap.Room = viewOfRoom(room)
		snap.Fighting = make(map[string]bool, len(room.livings))
		for _, occ := range room.livings {
			if w.inCombatLocked(occ.ID) {
				snap.Fighting[occ.ID] = true
			}
		}
	}
	for _, it := range l.carried {
		snap.Carried = append(snap.Carried, viewOfItem(it))
	}
	for slot, it := range l.equipped {
		snap.Equipped[slot] = viewOfItem(it)
	}
	for _, op := range w.opponentsLocked(id) {
		snap.Opponents = append(snap.Opponents, op.Name)
	}
	return snap, true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package world

import "slices"

// Item is a physical object in the world. Items live in exactly one container
// at a time — a room's floor, a living's inventory, or a living's equipment.
// The identity fields (Name, Short, Aliases) are what players and NPCs resolve
// commands against; Slot and Usable gate what can be done with it.
type Item struct {
	ID      string
	Name    string
	Short   string
	Aliases []string

	// Slot names the equipment slot this item occupies when worn or wielded.
	// Empty means the item cannot be equipped.
	Slot string

	// Usable marks the item as a valid target for use/drink/eat.
	Usable bool

	// OnEquip and OnUnequip run when the item enters or leaves an equipment
	// slot. Either may be nil.
	OnEquip   func(l *Living)
	OnUnequip func(l *Living)
}

// Living is anything that occupies a room and can act — a player's body or an
// NPC. Mutation goes through [World] methods only; the fields are exported for
// construction and for same-goroutine reads by the scheduler.
type Living struct {
	ID        string
	Name      string
	Aliases   []string
	IsPlayer  bool
	Health    int
	MaxHealth int
	RoomID    string
	Dead      bool

	carried  []*Item
	equipped map[string]*Item
}

// Room is a materialized location. Identity fields and Exits are fixed when
// the room is loaded from its definition and never change afterwards; only the
// item and living containers mutate.
type Room struct {
	ID          string
	Area        string
	Name        string
	Description string

	// Exits maps a direction to a destination room id.
	Exits map[string]string

	// Linked names rooms that materialize together with this one (a shop's
	// storage, a well's bottom).
	Linked []string

	// Commands maps room-local verbs to their narration ("draw" on a well).
	Commands map[string]string

	items   []*Item
	livings []*Living
}

// ItemView is a read-only copy of an [Item]'s identity, safe to hold outside
// the world lock.
type ItemView struct {
	ID      string
	Name    string
	Short   string
	Aliases []string
	Slot    string
	Usable  bool
}

// LivingView is a read-only copy of a [Living]'s public state.
type LivingView struct {
	ID        string
	Name      string
	Aliases   []string
	IsPlayer  bool
	Health    int
	MaxHealth int
	RoomID    string
}

// RoomView is a read-only copy of a room and its occupants.
type RoomView struct {
	ID          string
	Area        string
	Name        string
	Description string
	Exits       []string
	Items       []ItemView
	Livings     []LivingView
}

// Snapshot is everything cognition may read about one living's situation. It
// is a deep copy: holding or mutating it never races with the tick.
type Snapshot struct {
	Self      LivingView
	Room      RoomView
	Carried   []ItemView
	Equipped  map[string]ItemView
	InCombat  bool
	Opponents []string

	// Fighting holds the ids of room occupants currently in a combat
	// pairing, self included.
	Fighting map[string]bool
}

func viewOfItem(it *Item) ItemView {
	return ItemView{
		ID:      it.ID,
		Name:    it.Name,
		Short:   it.Short,
		Aliases: slices.Clone(it.Aliases),
		Slot:    it.Slot,
		Usable:  it.Usable,
	}
}

func viewOfLiving(l *Living) LivingView {
	return LivingView{
		ID:        l.ID,
		Name:      l.Name,
		Aliases:   slices.Clone(l.Aliases),
		IsPlayer:  l.IsPlayer,
		Health:    l.Health,
		MaxHealth: l.MaxHealth,
		RoomID:    l.RoomID,
	}
}

func viewOfRoom(r *Room) RoomView {
	v := RoomView{
		ID:          r.ID,
		Area:        r.Area,
		Name:        r.Name,
		Description: r.Description,
		Exits:       sortedKeys(r.Exits),
	}
	for _, it := range r.items {
		v.Items = append(v.Items, viewOfItem(it))
	}
	for _, l := range r.livings {
		v.Livings = append(v.Livings, viewOfLiving(l))
	}
	return v
}

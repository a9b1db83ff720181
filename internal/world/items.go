package world

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

func newItem(def ItemDef) *Item {
	id := def.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Item{
		ID:      id,
		Name:    def.Name,
		Short:   def.Short,
		Aliases: slices.Clone(def.Aliases),
		Slot:    def.Slot,
		Usable:  def.Usable,
	}
}

// matchesItem resolves a player-typed query against an item's name, aliases,
// and short description.
func matchesItem(query string, it *Item) bool {
	names := it.Aliases
	if it.Short != "" {
		names = append(slices.Clone(it.Aliases), it.Short)
	}
	return NameMatches(query, it.Name, names)
}

func findItemIndex(items []*Item, query string) int {
	return slices.IndexFunc(items, func(it *Item) bool { return matchesItem(query, it) })
}

// TakeItem moves an item from the living's room onto the living. Errors are
// player-readable failure reasons.
func (w *World) TakeItem(livingID, query string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.livings[livingID]
	if !ok {
		return nil, fmt.Errorf("world: unknown living %q", livingID)
	}
	room, ok := w.rooms[l.RoomID]
	if !ok {
		return nil, fmt.Errorf("there is nothing here")
	}
	idx := findItemIndex(room.items, query)
	if idx < 0 {
		return nil, fmt.Errorf("there is no %s here", query)
	}
	it := room.items[idx]
	room.items = slices.Delete(room.items, idx, idx+1)
	l.carried = append(l.carried, it)
	return it, nil
}

// DropItem moves a carried item onto the floor of the living's room.
func (w *World) DropItem(livingID, query string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.livings[livingID]
	if !ok {
		return nil, fmt.Errorf("world: unknown living %q", livingID)
	}
	idx := findItemIndex(l.carried, query)
	if idx < 0 {
		return nil, fmt.Errorf("you are not carrying %s", query)
	}
	room, ok := w.rooms[l.RoomID]
	if !ok {
		return nil, fmt.Errorf("there is nowhere to drop that")
	}
	it := l.carried[idx]
	l.carried = slices.Delete(l.carried, idx, idx+1)
	room.items = append(room.items, it)
	return it, nil
}

// GiveItem hands a carried item to another living in the same room. The
// target query resolves by exact living id first, then by name.
func (w *World) GiveItem(giverID, itemQuery, targetQuery string) (*Item, *Living, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	giver, ok := w.livings[giverID]
	if !ok {
		return nil, nil, fmt.Errorf("world: unknown living %q", giverID)
	}
	idx := findItemIndex(giver.carried, itemQuery)
	if idx < 0 {
		return nil, nil, fmt.Errorf("you are not carrying %s", itemQuery)
	}
	room, ok := w.rooms[giver.RoomID]
	if !ok {
		return nil, nil, fmt.Errorf("there is nobody here")
	}

	var target *Living
	for _, other := range room.livings {
		if other.ID == giver.ID {
			continue
		}
		if other.ID == targetQuery || NameMatches(targetQuery, other.Name, other.Aliases) {
			target = other
			break
		}
	}
	if target == nil {
		return nil, nil, fmt.Errorf("%s is not here", targetQuery)
	}

	it := giver.carried[idx]
	giver.carried = slices.Delete(giver.carried, idx, idx+1)
	target.carried = append(target.carried, it)
	return it, target, nil
}

// EquipItem moves a carried item into its equipment slot, swapping out any
// current occupant. Equip hooks run while the world lock is held and must not
// call back into [World].
func (w *World) EquipItem(livingID, query string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.livings[livingID]
	if !ok {
		return nil, fmt.Errorf("world: unknown living %q", livingID)
	}
	idx := findItemIndex(l.carried, query)
	if idx < 0 {
		return nil, fmt.Errorf("you are not carrying %s", query)
	}
	it := l.carried[idx]
	if it.Slot == "" {
		return nil, fmt.Errorf("the %s cannot be equipped", it.Name)
	}
	if l.equipped == nil {
		l.equipped = make(map[string]*Item)
	}
	if prev, ok := l.equipped[it.Slot]; ok {
		if prev.OnUnequip != nil {
			prev.OnUnequip(l)
		}
		l.carried = append(l.carried, prev)
	}
	l.carried = slices.Delete(l.carried, idx, idx+1)
	l.equipped[it.Slot] = it
	if it.OnEquip != nil {
		it.OnEquip(l)
	}
	return it, nil
}

// UnequipItem moves an equipped item back into the inventory.
func (w *World) UnequipItem(livingID, query string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.livings[livingID]
	if !ok {
		return nil, fmt.Errorf("world: unknown living %q", livingID)
	}
	for slot, it := range l.equipped {
		if matchesItem(query, it) {
			delete(l.equipped, slot)
			if it.OnUnequip != nil {
				it.OnUnequip(l)
			}
			l.carried = append(l.carried, it)
			return it, nil
		}
	}
	return nil, fmt.Errorf("you are not wearing %s", query)
}

// UseItem resolves a usable item, checking the inventory first and the room
// floor second. The item stays where it is; what "using" means is narration.
func (w *World) UseItem(livingID, query string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.livings[livingID]
	if !ok {
		return nil, fmt.Errorf("world: unknown living %q", livingID)
	}
	var it *Item
	if idx := findItemIndex(l.carried, query); idx >= 0 {
		it = l.carried[idx]
	} else if room, ok := w.rooms[l.RoomID]; ok {
		if idx := findItemIndex(room.items, query); idx >= 0 {
			it = room.items[idx]
		}
	}
	if it == nil {
		return nil, fmt.Errorf("there is no %s to use", query)
	}
	if !it.Usable {
		return nil, fmt.Errorf("the %s cannot be used that way", it.Name)
	}
	return it, nil
}

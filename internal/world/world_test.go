package world_test

import (
	"strings"
	"testing"

	"duskmire/internal/world"
)

const testAreaYAML = `
area:
  id: millbrook
  name: "Millbrook Village"
profiles:
  - id: barnaby
    name: "Barnaby the Brewer"
    aliases: [brewer, barkeep]
    persona: "A stout, cheerful brewer who knows everyone's business."
    caps: humanoid
rooms:
  - id: millbrook/square
    name: "Village Square"
    description: "A cobbled square around an old stone well."
    exits: { north: millbrook/tavern, east: millbrook/garden }
    items:
      - name: "rusty sword"
        short: "a rusty old sword"
        aliases: [sword]
        slot: weapon
    commands:
      draw: "draws a bucket of water from the well"
  - id: millbrook/tavern
    name: "The Drunken Goose"
    description: "A warm taproom smelling of hops."
    exits: { south: millbrook/square, down: millbrook/cellar }
    linked_rooms: [millbrook/cellar]
    npcs:
      - profile: barnaby
        id: npc-barnaby
  - id: millbrook/cellar
    name: "Tavern Cellar"
    exits: { up: millbrook/tavern }
  - id: millbrook/garden
    name: "Herb Garden"
    exits: { west: millbrook/square }
    items:
      - name: "red apple"
        aliases: [apple]
        usable: true
  - id: millbrook/vault
    name: "Sealed Vault"
`

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	area, err := world.LoadAreaFromReader(strings.NewReader(testAreaYAML))
	if err != nil {
		t.Fatalf("LoadAreaFromReader: %v", err)
	}
	w := world.New()
	if err := w.Install(area); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return w
}

func placeTestLiving(t *testing.T, w *world.World, id, name, roomID string, health int) *world.Living {
	t.Helper()
	if _, err := w.EnsureRoom(roomID); err != nil {
		t.Fatalf("EnsureRoom(%s): %v", roomID, err)
	}
	l := &world.Living{ID: id, Name: name, IsPlayer: true, Health: health, MaxHealth: health}
	if err := w.PlaceLiving(l, roomID); err != nil {
		t.Fatalf("PlaceLiving(%s): %v", id, err)
	}
	return l
}

func TestInstall_DuplicateRoomAcrossAreas(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	dup := &world.AreaFile{
		Area: world.AreaMeta{ID: "other"},
		Rooms: []world.RoomDef{
			{ID: "millbrook/square", Name: "Impostor Square"},
		},
	}
	if err := w.Install(dup); err == nil {
		t.Fatal("Install: expected duplicate room id error, got nil")
	}
}

func TestInstall_UnknownSpawnProfile(t *testing.T) {
	t.Parallel()

	w := world.New()
	area := &world.AreaFile{
		Area: world.AreaMeta{ID: "broken"},
		Rooms: []world.RoomDef{
			{ID: "broken/hut", Name: "Hut", Spawns: []world.SpawnDef{{Profile: "nobody"}}},
		},
	}
	err := w.Install(area)
	if err == nil {
		t.Fatal("Install: expected unknown profile error, got nil")
	}
	if !strings.Contains(err.Error(), "nobody") {
		t.Errorf("error %q does not name the missing profile", err)
	}
}

func TestEnsureRoom_MaterializesItems(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	snap, ok := w.SnapshotFor("p1")
	if !ok {
		t.Fatal("SnapshotFor: living not found")
	}
	if snap.Room.Name != "Village Square" {
		t.Errorf("room name = %q, want %q", snap.Room.Name, "Village Square")
	}
	if len(snap.Room.Items) != 1 || snap.Room.Items[0].Name != "rusty sword" {
		t.Errorf("room items = %+v, want the rusty sword", snap.Room.Items)
	}
	if got := snap.Room.Exits; len(got) != 2 || got[0] != "east" || got[1] != "north" {
		t.Errorf("exits = %v, want sorted [east north]", got)
	}
}

func TestEnsureRoom_UnknownRoom(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if _, err := w.EnsureRoom("nowhere/void"); err == nil {
		t.Fatal("EnsureRoom: expected error for unknown room, got nil")
	}
}

func TestEnsureRoom_LinkedRoomsMaterialize(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if _, err := w.EnsureRoom("millbrook/tavern"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if w.Room("millbrook/cellar") == nil {
		t.Error("linked cellar did not materialize with the tavern")
	}
	if w.Room("millbrook/garden") != nil {
		t.Error("garden materialized without being visited or linked")
	}
}

func TestEnsureRoom_SpawnsOnce(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	var spawned []world.SpawnDef
	w.SetSpawnFunc(func(w *world.World, roomID string, spawn world.SpawnDef) {
		spawned = append(spawned, spawn)
		l := &world.Living{ID: spawn.ID, Name: "Barnaby", Health: 100, MaxHealth: 100}
		if err := w.PlaceLiving(l, roomID); err != nil {
			t.Errorf("PlaceLiving from spawn hook: %v", err)
		}
	})

	if _, err := w.EnsureRoom("millbrook/tavern"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if _, err := w.EnsureRoom("millbrook/tavern"); err != nil {
		t.Fatalf("EnsureRoom (second): %v", err)
	}

	if len(spawned) != 1 {
		t.Fatalf("spawn hook ran %d times, want 1", len(spawned))
	}
	if spawned[0].Profile != "barnaby" || spawned[0].ID != "npc-barnaby" {
		t.Errorf("spawn = %+v, want barnaby profile with pinned id", spawned[0])
	}
	occupants := w.OccupantIDs("millbrook/tavern")
	if len(occupants) != 1 || occupants[0] != "npc-barnaby" {
		t.Errorf("occupants = %v, want [npc-barnaby]", occupants)
	}
}

func TestBootSpawnRooms(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	count := 0
	w.SetSpawnFunc(func(w *world.World, roomID string, spawn world.SpawnDef) { count++ })

	if err := w.BootSpawnRooms(); err != nil {
		t.Fatalf("BootSpawnRooms: %v", err)
	}
	if count != 1 {
		t.Errorf("spawn count = %d, want 1", count)
	}
	if w.Room("millbrook/tavern") == nil {
		t.Error("tavern not materialized by BootSpawnRooms")
	}
}

func TestMoveLiving(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	from, to, err := w.MoveLiving("p1", "north")
	if err != nil {
		t.Fatalf("MoveLiving: %v", err)
	}
	if from.ID != "millbrook/square" || to.ID != "millbrook/tavern" {
		t.Errorf("moved %s -> %s, want square -> tavern", from.ID, to.ID)
	}
	snap, _ := w.SnapshotFor("p1")
	if snap.Self.RoomID != "millbrook/tavern" {
		t.Errorf("living room = %q, want tavern", snap.Self.RoomID)
	}
	if ids := w.OccupantIDs("millbrook/square"); len(ids) != 0 {
		t.Errorf("square still occupied by %v", ids)
	}
}

func TestMoveLiving_NoExit(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	if _, _, err := w.MoveLiving("p1", "up"); err == nil {
		t.Fatal("MoveLiving: expected error for missing exit, got nil")
	}
}

func TestMoveLiving_DestinationBlocked(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	frontier := &world.AreaFile{
		Area: world.AreaMeta{ID: "frontier"},
		Rooms: []world.RoomDef{
			{ID: "frontier/gate", Name: "Frontier Gate", Exits: map[string]string{"north": "unmapped/wilds"}},
		},
	}
	if err := w.Install(frontier); err != nil {
		t.Fatalf("Install: %v", err)
	}
	placeTestLiving(t, w, "p1", "Mira", "frontier/gate", 100)

	_, _, err := w.MoveLiving("p1", "north")
	if err == nil {
		t.Fatal("MoveLiving: expected blocked destination error, got nil")
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Errorf("error = %q, want a blocked-destination reason", err)
	}
	if snap, _ := w.SnapshotFor("p1"); snap.Self.RoomID != "frontier/gate" {
		t.Errorf("living moved to %q despite blocked destination", snap.Self.RoomID)
	}
}

func TestTakeAndDropItem(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	it, err := w.TakeItem("p1", "sword")
	if err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	if it.Name != "rusty sword" {
		t.Errorf("took %q, want rusty sword", it.Name)
	}
	snap, _ := w.SnapshotFor("p1")
	if len(snap.Carried) != 1 || len(snap.Room.Items) != 0 {
		t.Errorf("carried=%d roomItems=%d, want 1 and 0", len(snap.Carried), len(snap.Room.Items))
	}

	if _, err := w.TakeItem("p1", "sword"); err == nil {
		t.Error("TakeItem: expected error taking the sword twice")
	}

	if _, err := w.DropItem("p1", "sword"); err != nil {
		t.Fatalf("DropItem: %v", err)
	}
	snap, _ = w.SnapshotFor("p1")
	if len(snap.Carried) != 0 || len(snap.Room.Items) != 1 {
		t.Errorf("carried=%d roomItems=%d after drop, want 0 and 1", len(snap.Carried), len(snap.Room.Items))
	}
}

func TestGiveItem(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)
	placeTestLiving(t, w, "npc-1", "Barnaby", "millbrook/square", 100)

	if _, err := w.TakeItem("p1", "sword"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}

	it, target, err := w.GiveItem("p1", "sword", "barnaby")
	if err != nil {
		t.Fatalf("GiveItem: %v", err)
	}
	if it.Name != "rusty sword" || target.ID != "npc-1" {
		t.Errorf("gave %q to %q, want rusty sword to npc-1", it.Name, target.ID)
	}
	snap, _ := w.SnapshotFor("npc-1")
	if len(snap.Carried) != 1 {
		t.Errorf("recipient carries %d items, want 1", len(snap.Carried))
	}
}

func TestGiveItem_TargetByID(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)
	placeTestLiving(t, w, "npc-1", "Barnaby", "millbrook/square", 100)

	if _, err := w.TakeItem("p1", "sword"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	if _, _, err := w.GiveItem("p1", "sword", "npc-1"); err != nil {
		t.Fatalf("GiveItem by id: %v", err)
	}
}

func TestGiveItem_TargetAbsent(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	if _, err := w.TakeItem("p1", "sword"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	if _, _, err := w.GiveItem("p1", "sword", "ghost"); err == nil {
		t.Fatal("GiveItem: expected error for absent target, got nil")
	}
}

func TestEquipAndUnequip(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	l := placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	taken, err := w.TakeItem("p1", "sword")
	if err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	equips, unequips := 0, 0
	taken.OnEquip = func(_ *world.Living) { equips++ }
	taken.OnUnequip = func(_ *world.Living) { unequips++ }

	if _, err := w.EquipItem("p1", "sword"); err != nil {
		t.Fatalf("EquipItem: %v", err)
	}
	snap, _ := w.SnapshotFor("p1")
	if got, ok := snap.Equipped["weapon"]; !ok || got.Name != "rusty sword" {
		t.Errorf("equipped = %+v, want rusty sword in weapon slot", snap.Equipped)
	}
	if len(snap.Carried) != 0 {
		t.Errorf("carried = %d after equip, want 0", len(snap.Carried))
	}
	if equips != 1 {
		t.Errorf("OnEquip ran %d times, want 1", equips)
	}

	if _, err := w.UnequipItem("p1", "sword"); err != nil {
		t.Fatalf("UnequipItem: %v", err)
	}
	if unequips != 1 {
		t.Errorf("OnUnequip ran %d times, want 1", unequips)
	}
	snap, _ = w.SnapshotFor("p1")
	if len(snap.Carried) != 1 || len(snap.Equipped) != 0 {
		t.Errorf("carried=%d equipped=%d after unequip, want 1 and 0", len(snap.Carried), len(snap.Equipped))
	}
	_ = l
}

func TestEquipItem_NoSlot(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/garden", 100)

	if _, err := w.TakeItem("p1", "apple"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	if _, err := w.EquipItem("p1", "apple"); err == nil {
		t.Fatal("EquipItem: expected error for slotless item, got nil")
	}
}

func TestUseItem(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/garden", 100)

	// On the floor, usable.
	if _, err := w.UseItem("p1", "apple"); err != nil {
		t.Fatalf("UseItem(apple): %v", err)
	}

	// Carried, still usable.
	if _, err := w.TakeItem("p1", "apple"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	if _, err := w.UseItem("p1", "apple"); err != nil {
		t.Fatalf("UseItem(carried apple): %v", err)
	}
}

func TestUseItem_NotUsable(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	_, err := w.UseItem("p1", "sword")
	if err == nil {
		t.Fatal("UseItem: expected error for non-usable item, got nil")
	}
	if !strings.Contains(err.Error(), "cannot be used") {
		t.Errorf("error = %q, want a cannot-be-used reason", err)
	}
}

func TestLocalCommand(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if _, err := w.EnsureRoom("millbrook/square"); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}

	narration, ok := w.LocalCommand("millbrook/square", "draw")
	if !ok {
		t.Fatal("LocalCommand(draw): not found")
	}
	if !strings.Contains(narration, "bucket") {
		t.Errorf("narration = %q, want the well narration", narration)
	}
	if _, ok := w.LocalCommand("millbrook/square", "dance"); ok {
		t.Error("LocalCommand(dance): unexpectedly found")
	}
}

func TestSnapshotFor_IsDeepCopy(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	before, _ := w.SnapshotFor("p1")
	if _, err := w.TakeItem("p1", "sword"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}

	if len(before.Room.Items) != 1 {
		t.Errorf("snapshot mutated by later world change: room items = %d", len(before.Room.Items))
	}
	if len(before.Carried) != 0 {
		t.Errorf("snapshot mutated by later world change: carried = %d", len(before.Carried))
	}
}

func TestRemoveLiving(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "p1", "Mira", "millbrook/square", 100)

	w.RemoveLiving("p1")
	if w.Living("p1") != nil {
		t.Error("living still registered after RemoveLiving")
	}
	if ids := w.OccupantIDs("millbrook/square"); len(ids) != 0 {
		t.Errorf("room still occupied by %v", ids)
	}
}

func TestProfileLookup(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	p, ok := w.Profile("barnaby")
	if !ok {
		t.Fatal("Profile(barnaby): not found")
	}
	if p.Name != "Barnaby the Brewer" || p.Caps != "humanoid" {
		t.Errorf("profile = %+v, want Barnaby the humanoid brewer", p)
	}
	if got := w.Profiles(); len(got) != 1 {
		t.Errorf("Profiles() = %d entries, want 1", len(got))
	}
}

package world_test

import (
	"testing"

	"duskmire/internal/world"
)

func startTestFight(t *testing.T, w *world.World, attHealth, defHealth int) {
	t.Helper()
	placeTestLiving(t, w, "att", "Roderick", "millbrook/square", attHealth)
	placeTestLiving(t, w, "def", "Wolf", "millbrook/square", defHealth)
	if err := w.StartCombat("att", "def"); err != nil {
		t.Fatalf("StartCombat: %v", err)
	}
}

func TestStartCombat_Self(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "att", "Roderick", "millbrook/square", 100)
	if err := w.StartCombat("att", "att"); err == nil {
		t.Fatal("StartCombat: expected error attacking yourself, got nil")
	}
}

func TestStartCombat_DifferentRooms(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	placeTestLiving(t, w, "att", "Roderick", "millbrook/square", 100)
	placeTestLiving(t, w, "def", "Wolf", "millbrook/garden", 100)
	if err := w.StartCombat("att", "def"); err == nil {
		t.Fatal("StartCombat: expected error for target in another room, got nil")
	}
}

func TestStartCombat_DuplicateIsNoop(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	startTestFight(t, w, 100, 100)

	if err := w.StartCombat("def", "att"); err != nil {
		t.Fatalf("StartCombat (reverse): %v", err)
	}
	if got := w.Opponents("att"); len(got) != 1 {
		t.Errorf("opponents = %d, want 1 (no duplicate pairing)", len(got))
	}
}

func TestRunCombatRound_Exchange(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	startTestFight(t, w, 100, 100)

	events := w.RunCombatRound(world.FixedResolver{Damage: 10})
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 swings", len(events))
	}
	for _, ev := range events {
		if ev.Kind != world.EventCombat {
			t.Errorf("event kind = %q, want combat", ev.Kind)
		}
	}
	if events[0].ActorID != "att" || events[0].TargetID != "def" {
		t.Errorf("first swing %s -> %s, want att -> def", events[0].ActorID, events[0].TargetID)
	}
	if events[1].ActorID != "def" || events[1].TargetID != "att" {
		t.Errorf("second swing %s -> %s, want def -> att", events[1].ActorID, events[1].TargetID)
	}

	attSnap, _ := w.SnapshotFor("att")
	defSnap, _ := w.SnapshotFor("def")
	if attSnap.Self.Health != 90 || defSnap.Self.Health != 90 {
		t.Errorf("health after round = %d/%d, want 90/90", attSnap.Self.Health, defSnap.Self.Health)
	}
	if !attSnap.InCombat || len(attSnap.Opponents) != 1 || attSnap.Opponents[0] != "Wolf" {
		t.Errorf("attacker snapshot combat view = %+v, want fighting Wolf", attSnap.Opponents)
	}
}

func TestRunCombatRound_MissNarration(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	startTestFight(t, w, 100, 100)

	events := w.RunCombatRound(world.FixedResolver{Damage: 0})
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Message != "Roderick misses Wolf" {
		t.Errorf("narration = %q, want a miss", events[0].Message)
	}
}

func TestRunCombatRound_Death(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	startTestFight(t, w, 100, 10)

	// The defender carries loot that must survive them.
	if _, err := w.TakeItem("def", "sword"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}

	events := w.RunCombatRound(world.FixedResolver{Damage: 10})

	// One lethal swing, one death, no counter-swing.
	if len(events) != 2 {
		t.Fatalf("events = %d, want swing + death", len(events))
	}
	if events[0].Kind != world.EventCombat || events[1].Kind != world.EventDeath {
		t.Fatalf("event kinds = %q, %q, want combat then death", events[0].Kind, events[1].Kind)
	}
	death := events[1]
	if death.ActorName != "Wolf" || death.Target != "Roderick" {
		t.Errorf("death event = %+v, want Wolf slain by Roderick", death)
	}

	if w.Living("def") != nil {
		t.Error("dead living still registered")
	}
	if w.InCombat("att") {
		t.Error("attacker still in combat after the only opponent died")
	}

	attSnap, _ := w.SnapshotFor("att")
	if attSnap.Self.Health != 100 {
		t.Errorf("attacker health = %d, want untouched 100 (no counter-swing)", attSnap.Self.Health)
	}
	if len(attSnap.Room.Items) != 1 || attSnap.Room.Items[0].Name != "rusty sword" {
		t.Errorf("room items = %+v, want the dropped sword", attSnap.Room.Items)
	}
}

func TestEndCombatFor(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	startTestFight(t, w, 100, 100)

	w.EndCombatFor("att")
	if w.InCombat("att") || w.InCombat("def") {
		t.Error("combat still active after EndCombatFor")
	}
	if events := w.RunCombatRound(world.FixedResolver{Damage: 10}); len(events) != 0 {
		t.Errorf("round after disengage produced %d events, want 0", len(events))
	}
}

package promote_test

import (
	"strings"
	"testing"
	"time"

	"duskmire/internal/promote"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
	"duskmire/pkg/memory/mock"
)

func barnabyScene(occupants int) promote.Scene {
	return promote.Scene{
		Observer:  promote.Observer{ID: "npc-barnaby", Name: "Barnaby", Aliases: []string{"brewer", "barkeep"}},
		Occupants: occupants,
		AreaID:    "millbrook",
	}
}

func playerEvent(kind world.EventKind) world.RoomEvent {
	return world.RoomEvent{
		Kind:          kind,
		RoomID:        "millbrook/square",
		ActorID:       "player-mira",
		ActorName:     "Mira",
		ActorIsPlayer: true,
		At:            time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCandidate_SkipRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   world.RoomEvent
	}{
		{"npc actor", world.RoomEvent{Kind: world.EventSpeech, ActorID: "npc-guard", ActorName: "town guard", Message: "move along, barnaby"}},
		{"own action", func() world.RoomEvent {
			ev := playerEvent(world.EventSpeech)
			ev.ActorID = "npc-barnaby"
			ev.ActorIsPlayer = false
			return ev
		}()},
		{"anonymous actor", world.RoomEvent{Kind: world.EventSpeech, ActorIsPlayer: true, Message: "barnaby!"}},
		{"unmemorable kind", playerEvent(world.EventArrival)},
		{"item shuffling", playerEvent(world.EventItemTaken)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if mem, ok := promote.Candidate(tt.ev, barnabyScene(2)); ok {
				t.Errorf("promoted %+v", mem)
			}
		})
	}
}

func TestCandidate_DirectedSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		message   string
		occupants int
		want      bool
	}{
		{"one on one always directed", "nice weather today", 2, true},
		{"crowd, undirected", "nice weather today", 4, false},
		{"crowd, named", "Barnaby, two ales please", 4, true},
		{"crowd, alias", "hey brewer, two ales", 4, true},
		{"crowd, case insensitive", "BARKEEP! Over here!", 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := playerEvent(world.EventSpeech)
			ev.Message = tt.message
			mem, ok := promote.Candidate(ev, barnabyScene(tt.occupants))
			if ok != tt.want {
				t.Fatalf("ok = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if mem.Kind != memory.KindConversation || mem.Importance != promote.ImportanceConversation {
				t.Errorf("kind %s importance %d", mem.Kind, mem.Importance)
			}
			if !strings.Contains(mem.Content, "Mira said:") || !strings.Contains(mem.Content, tt.message) {
				t.Errorf("content = %q", mem.Content)
			}
			if mem.ExpiresAt == nil {
				t.Fatal("conversation has no expiry")
			}
			if got := mem.ExpiresAt.Sub(mem.CreatedAt); got != promote.ConversationTTL {
				t.Errorf("expiry after %v, want %v", got, promote.ConversationTTL)
			}
		})
	}
}

func TestCandidate_KindTable(t *testing.T) {
	t.Parallel()

	gift := playerEvent(world.EventItemGiven)
	gift.Message = "red apple"
	gift.Target = "Barnaby"
	gift.TargetID = "npc-barnaby"

	combat := playerEvent(world.EventCombat)
	combat.Message = "Mira attacks the town guard!"

	death := playerEvent(world.EventDeath)
	death.Message = "The town guard has died."

	tests := []struct {
		name           string
		ev             world.RoomEvent
		wantKind       string
		wantImportance int
		wantContent    string
	}{
		{"gift", gift, memory.KindGiftReceived, promote.ImportanceGift, "Mira gave red apple to Barnaby"},
		{"combat", combat, memory.KindCombat, promote.ImportanceCombat, "Mira attacks the town guard!"},
		{"death", death, memory.KindWitnessedDeath, promote.ImportanceDeath, "The town guard has died."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mem, ok := promote.Candidate(tt.ev, barnabyScene(5))
			if !ok {
				t.Fatal("not promoted")
			}
			if mem.Kind != tt.wantKind || mem.Importance != tt.wantImportance {
				t.Errorf("kind %s importance %d, want %s %d", mem.Kind, mem.Importance, tt.wantKind, tt.wantImportance)
			}
			if mem.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", mem.Content, tt.wantContent)
			}
			if mem.ExpiresAt != nil {
				t.Errorf("%s expires at %v, want never", tt.wantKind, mem.ExpiresAt)
			}
		})
	}
}

func TestCandidate_RowShape(t *testing.T) {
	t.Parallel()

	ev := playerEvent(world.EventSpeech)
	ev.Message = "Barnaby, have you seen the well?"
	mem, ok := promote.Candidate(ev, barnabyScene(3))
	if !ok {
		t.Fatal("not promoted")
	}
	if mem.ID == "" {
		t.Error("no id assigned")
	}
	if mem.NpcID != "npc-barnaby" {
		t.Errorf("npc id = %q", mem.NpcID)
	}
	if mem.Subject != "mira" {
		t.Errorf("subject = %q, want normalized player name", mem.Subject)
	}
	if mem.RoomID != "millbrook/square" || mem.AreaID != "millbrook" {
		t.Errorf("location = %s / %s", mem.RoomID, mem.AreaID)
	}
	if len(mem.Tags) != 1 || mem.Tags[0] != "room:millbrook/square" {
		t.Errorf("tags = %v", mem.Tags)
	}
	if !mem.CreatedAt.Equal(ev.At) {
		t.Errorf("created at %v, want event time %v", mem.CreatedAt, ev.At)
	}
}

func TestCandidate_BoundsContent(t *testing.T) {
	t.Parallel()

	ev := playerEvent(world.EventSpeech)
	ev.Message = "barnaby " + strings.Repeat("and on ", 200)
	mem, ok := promote.Candidate(ev, barnabyScene(3))
	if !ok {
		t.Fatal("not promoted")
	}
	if len(mem.Content) > memory.MaxContentLen {
		t.Errorf("content is %d bytes", len(mem.Content))
	}
}

func TestPromoter_EnqueuesThroughWriter(t *testing.T) {
	t.Parallel()

	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store})
	defer w.Close()

	p := promote.NewPromoter(w)
	ev := playerEvent(world.EventItemGiven)
	ev.Message = "red apple"
	ev.Target = "Barnaby"

	p.Observe(ev, barnabyScene(2))
	if got := w.Depth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}

	// Skipped events leave the queue untouched.
	p.Observe(playerEvent(world.EventArrival), barnabyScene(2))
	if got := w.Depth(); got != 1 {
		t.Errorf("queue depth = %d after skip", got)
	}
}

func TestPromoter_NilWriterSkips(t *testing.T) {
	t.Parallel()

	p := promote.NewPromoter(nil)
	ev := playerEvent(world.EventCombat)
	ev.Message = "Mira attacks!"
	p.Observe(ev, barnabyScene(2))
}

func TestPromoter_ClosedWriter(t *testing.T) {
	t.Parallel()

	w := memory.NewWriter(memory.WriterConfig{Store: &mock.MemoryStore{}})
	w.Close()

	p := promote.NewPromoter(w)
	ev := playerEvent(world.EventDeath)
	ev.Message = "The guard has died."
	p.Observe(ev, barnabyScene(2))
	if got := w.Depth(); got != 0 {
		t.Errorf("queue depth = %d after close", got)
	}
}

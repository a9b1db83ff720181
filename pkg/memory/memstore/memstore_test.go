package memstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"duskmire/pkg/memory"
	"duskmire/pkg/memory/memstore"
)

func TestMemories_AddValidation(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	if err := s.Memories().Add(ctx, memory.NpcMemory{NpcID: "barnaby"}); err == nil {
		t.Error("Add with empty id should fail")
	}
	if err := s.Memories().Add(ctx, memory.NpcMemory{ID: "m1"}); err == nil {
		t.Error("Add with empty npc id should fail")
	}
	if err := s.Memories().Add(ctx, memory.NpcMemory{ID: "m1", NpcID: "barnaby"}); err != nil {
		t.Errorf("Add: %v", err)
	}
}

func TestMemories_RecallOrderingAndFilters(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	expired := base.Add(-time.Minute)
	add := func(id string, importance int, createdAt time.Time, subject string, tags []string, expiresAt *time.Time) {
		t.Helper()
		err := s.Memories().Add(ctx, memory.NpcMemory{
			ID: id, NpcID: "barnaby", Importance: importance,
			CreatedAt: createdAt, Subject: subject, Tags: tags, ExpiresAt: expiresAt,
		})
		if err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	add("old-important", 90, base, "alice", []string{"room:square"}, nil)
	add("new-minor", 20, base.Add(30*time.Minute), "", nil, nil)
	add("new-important", 90, base.Add(20*time.Minute), "alice", nil, nil)
	add("gone", 99, base, "", nil, &expired)

	got, err := s.Memories().Recall(ctx, memory.RecallQuery{NpcID: "barnaby", TopK: 10})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	want := []string{"new-important", "old-important", "new-minor"}
	if len(got) != len(want) {
		t.Fatalf("Recall returned %d rows, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Recall[%d] = %s, want %s", i, got[i].ID, id)
		}
	}

	bySubject, err := s.Memories().Recall(ctx, memory.RecallQuery{NpcID: "barnaby", Subject: "alice", TopK: 10})
	if err != nil {
		t.Fatalf("Recall by subject: %v", err)
	}
	if len(bySubject) != 2 {
		t.Errorf("Recall by subject returned %d rows, want 2", len(bySubject))
	}

	byTag, err := s.Memories().Recall(ctx, memory.RecallQuery{NpcID: "barnaby", Tags: []string{"room:square"}, TopK: 10})
	if err != nil {
		t.Fatalf("Recall by tag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "old-important" {
		t.Errorf("Recall by tag = %+v, want old-important only", byTag)
	}
}

func TestMemories_RecallTopKZero(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()
	if err := s.Memories().Add(ctx, memory.NpcMemory{ID: "m1", NpcID: "barnaby"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Memories().Recall(ctx, memory.RecallQuery{NpcID: "barnaby", TopK: 0})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Recall with TopK=0 = %v, want empty non-nil slice", got)
	}
}

func TestKB_VisibilityScoping(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	upsert := func(key string, vis memory.Visibility, npcIDs []string) {
		t.Helper()
		err := s.KB().Upsert(ctx, memory.KbEntry{
			Key: key, Value: json.RawMessage(`{"fact":true}`),
			Visibility: vis, NpcIDs: npcIDs, Summary: "about " + key,
		})
		if err != nil {
			t.Fatalf("Upsert %s: %v", key, err)
		}
	}
	upsert("common", memory.VisibilityPublic, nil)
	upsert("secret", memory.VisibilityNPC, []string{"barnaby"})
	upsert("engine", memory.VisibilitySystem, nil)

	keys := func(entries []memory.KbEntry) map[string]bool {
		m := make(map[string]bool, len(entries))
		for _, e := range entries {
			m[e.Key] = true
		}
		return m
	}

	asBarnaby, err := s.KB().Search(ctx, memory.KbQuery{NpcID: "barnaby", TopK: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := keys(asBarnaby); !got["common"] || !got["secret"] || got["engine"] {
		t.Errorf("barnaby sees %v, want common+secret without engine", got)
	}

	asStranger, err := s.KB().Search(ctx, memory.KbQuery{NpcID: "gerda", TopK: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := keys(asStranger); !got["common"] || got["secret"] {
		t.Errorf("gerda sees %v, want common only", got)
	}

	anonymous, err := s.KB().Search(ctx, memory.KbQuery{TopK: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := keys(anonymous); !got["common"] || got["secret"] || got["engine"] {
		t.Errorf("anonymous sees %v, want common only", got)
	}
}

func TestKB_UpsertGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	in := memory.KbEntry{
		Key:    "tavern",
		Value:  json.RawMessage(`{"owner":"gerda"}`),
		Tags:   []string{"place", "town"},
		NpcIDs: []string{"barnaby"},

		Summary: "The Old Tavern is run by Gerda.",
	}
	if err := s.KB().Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.KB().Get(ctx, "tavern")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing key")
	}
	if got.Visibility != memory.VisibilityNPC {
		t.Errorf("Visibility = %q, want npc (derived from non-empty NpcIDs)", got.Visibility)
	}
	if got.Summary != in.Summary || len(got.Tags) != 2 || len(got.NpcIDs) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	missing, err := s.KB().Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get missing = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestGoals_SurviveRejectedAndOrdering(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	err := s.Goals().Upsert(ctx, memory.NpcGoal{NpcID: "barnaby", GoalType: memory.GoalTypeSurvive})
	if err == nil {
		t.Error("Upsert of survive should be rejected")
	}

	for goalType, importance := range map[string]int{
		"patrol":  memory.ImportanceBackground,
		"deliver": memory.ImportanceDefault,
		"defend":  memory.ImportanceCombat,
	} {
		err := s.Goals().Upsert(ctx, memory.NpcGoal{NpcID: "barnaby", GoalType: goalType, Importance: importance})
		if err != nil {
			t.Fatalf("Upsert %s: %v", goalType, err)
		}
	}

	all, err := s.Goals().GetAll(ctx, "barnaby")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	want := []string{"defend", "deliver", "patrol"}
	if len(all) != len(want) {
		t.Fatalf("GetAll returned %d goals, want %d", len(all), len(want))
	}
	for i, goalType := range want {
		if all[i].GoalType != goalType {
			t.Errorf("GetAll[%d] = %s, want %s", i, all[i].GoalType, goalType)
		}
	}
	if all[0].Status != memory.StatusActive {
		t.Errorf("Status = %q, want %q default", all[0].Status, memory.StatusActive)
	}
}

func TestGoals_UpdateParamsAndClear(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	if err := s.Goals().UpdateParams(ctx, "barnaby", "deliver", nil); err == nil {
		t.Error("UpdateParams on missing goal should fail")
	}

	if err := s.Goals().Upsert(ctx, memory.NpcGoal{NpcID: "barnaby", GoalType: "deliver"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Goals().UpdateParams(ctx, "barnaby", "deliver", map[string]any{"plan": "x"}); err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}
	g, err := s.Goals().Get(ctx, "barnaby", "deliver")
	if err != nil || g == nil {
		t.Fatalf("Get = (%v, %v)", g, err)
	}
	if g.Params["plan"] != "x" {
		t.Errorf("Params = %v, want plan=x", g.Params)
	}

	if err := s.Goals().Clear(ctx, "barnaby", "deliver"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Goals().Clear(ctx, "barnaby", "deliver"); err != nil {
		t.Errorf("Clear of missing goal should be a no-op, got %v", err)
	}
	g, _ = s.Goals().Get(ctx, "barnaby", "deliver")
	if g != nil {
		t.Errorf("goal survived Clear: %+v", g)
	}
}

func TestNeeds_OrderingAndClear(t *testing.T) {
	t.Parallel()
	s := memstore.New(memstore.Config{})
	ctx := context.Background()

	for needType, level := range map[string]int{"greet_customers": 3, memory.GoalTypeSurvive: 1, "restock": 5} {
		err := s.Needs().Upsert(ctx, memory.NpcNeed{NpcID: "gerda", NeedType: needType, Level: level})
		if err != nil {
			t.Fatalf("Upsert %s: %v", needType, err)
		}
	}

	needs, err := s.Needs().GetAll(ctx, "gerda")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	want := []string{memory.GoalTypeSurvive, "greet_customers", "restock"}
	for i, needType := range want {
		if needs[i].NeedType != needType {
			t.Errorf("GetAll[%d] = %s, want %s", i, needs[i].NeedType, needType)
		}
	}

	if err := s.Needs().Clear(ctx, "gerda", "restock"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	needs, _ = s.Needs().GetAll(ctx, "gerda")
	if len(needs) != 2 {
		t.Errorf("GetAll after Clear returned %d needs, want 2", len(needs))
	}
}

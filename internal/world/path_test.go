package world_test

import (
	"strings"
	"testing"
)

func matchRoomName(want string) func(id, name string) bool {
	return func(_, name string) bool {
		return strings.EqualFold(name, want)
	}
}

func TestFindPath_ShortestRoute(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	path, ok := w.FindPath("millbrook/square", matchRoomName("Tavern Cellar"))
	if !ok {
		t.Fatal("FindPath: no route to the cellar")
	}
	if len(path) != 2 || path[0] != "north" || path[1] != "down" {
		t.Errorf("path = %v, want [north down]", path)
	}
}

func TestFindPath_StartIsTarget(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	path, ok := w.FindPath("millbrook/square", matchRoomName("Village Square"))
	if !ok {
		t.Fatal("FindPath: starting room not recognized as target")
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty", path)
	}
}

func TestFindPath_NoRoute(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if _, ok := w.FindPath("millbrook/square", matchRoomName("Sealed Vault")); ok {
		t.Error("FindPath: found a route to the unreachable vault")
	}
}

func TestFindPath_MatchByID(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	path, ok := w.FindPath("millbrook/garden", func(id, _ string) bool {
		return id == "millbrook/tavern"
	})
	if !ok {
		t.Fatal("FindPath: no route garden -> tavern")
	}
	if len(path) != 2 || path[0] != "west" || path[1] != "north" {
		t.Errorf("path = %v, want [west north]", path)
	}
}

func TestNextDirection(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)

	dir, ok := w.NextDirection("millbrook/square", matchRoomName("Tavern Cellar"))
	if !ok || dir != "north" {
		t.Errorf("NextDirection = %q/%v, want north/true", dir, ok)
	}

	dir, ok = w.NextDirection("millbrook/square", matchRoomName("Village Square"))
	if !ok || dir != "" {
		t.Errorf("NextDirection at target = %q/%v, want empty/true", dir, ok)
	}

	if _, ok := w.NextDirection("millbrook/square", matchRoomName("Sealed Vault")); ok {
		t.Error("NextDirection: unexpectedly routed to the vault")
	}
}

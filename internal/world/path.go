package world

import (
	"slices"
	"sort"
)

// FindPath runs a breadth-first search over the installed room definitions
// and returns the shortest direction sequence from the starting room to the
// first room isTarget accepts. Searching definitions rather than materialized
// rooms lets plans route through rooms nobody has visited yet. Directions at
// each room are tried in sorted order, so results are deterministic.
//
// isTarget runs under the world lock and must not call back into [World].
func (w *World) FindPath(fromID string, isTarget func(id, name string) bool) ([]string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	start, ok := w.defs[fromID]
	if !ok {
		return nil, false
	}
	if isTarget(start.ID, start.Name) {
		return nil, true
	}

	type node struct {
		id   string
		path []string
	}
	visited := map[string]bool{fromID: true}
	queue := []node{{id: fromID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		def, ok := w.defs[cur.id]
		if !ok {
			continue
		}
		dirs := make([]string, 0, len(def.Exits))
		for d := range def.Exits {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)

		for _, dir := range dirs {
			destID := def.Exits[dir]
			if visited[destID] {
				continue
			}
			visited[destID] = true
			dest, ok := w.defs[destID]
			if !ok {
				continue
			}
			path := append(slices.Clone(cur.path), dir)
			if isTarget(dest.ID, dest.Name) {
				return path, true
			}
			queue = append(queue, node{id: destID, path: path})
		}
	}
	return nil, false
}

// NextDirection returns the first step of the shortest path toward a matching
// room. The second return is false when no route exists; an empty direction
// with true means the starting room already matches.
func (w *World) NextDirection(fromID string, isTarget func(id, name string) bool) (string, bool) {
	path, ok := w.FindPath(fromID, isTarget)
	if !ok {
		return "", false
	}
	if len(path) == 0 {
		return "", true
	}
	return path[0], true
}

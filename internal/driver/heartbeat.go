package driver

import (
	"sort"
	"sync"
	"time"
)

// Heartbeats schedules periodic per-owner callbacks drained once per tick.
// An owner has at most one heartbeat; re-adding replaces it. Safe for
// concurrent registration, though callbacks themselves run on the tick
// goroutine via [Heartbeats.DrainDue].
type Heartbeats struct {
	mu      sync.Mutex
	entries map[string]*heartbeat
}

type heartbeat struct {
	every time.Duration
	next  time.Time
	fn    func(owner string)
}

// NewHeartbeats returns an empty registry.
func NewHeartbeats() *Heartbeats {
	return &Heartbeats{entries: make(map[string]*heartbeat)}
}

// Add registers fn to run every interval, first firing one interval from
// now. A previous heartbeat for the same owner is replaced.
func (h *Heartbeats) Add(owner string, every time.Duration, fn func(owner string)) {
	if every <= 0 || fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[owner] = &heartbeat{every: every, next: time.Now().Add(every), fn: fn}
}

// Remove unregisters the owner's heartbeat. Removing a missing owner is a
// no-op.
func (h *Heartbeats) Remove(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, owner)
}

// Count returns the number of registered heartbeats.
func (h *Heartbeats) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// DrainDue fires every heartbeat due at now and reschedules it one interval
// out. Callbacks run outside the registry lock, in owner order so a tick's
// firing order is deterministic. Returns the number fired.
func (h *Heartbeats) DrainDue(now time.Time) int {
	type firing struct {
		owner string
		fn    func(string)
	}

	h.mu.Lock()
	var due []firing
	for owner, hb := range h.entries {
		if hb.next.After(now) {
			continue
		}
		hb.next = now.Add(hb.every)
		due = append(due, firing{owner: owner, fn: hb.fn})
	}
	h.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].owner < due[j].owner })
	for _, f := range due {
		f.fn(f.owner)
	}
	return len(due)
}

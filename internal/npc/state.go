package npc

import (
	"fmt"
	"slices"
	"sync"

	"duskmire/internal/world"
)

const (
	// FeedbackCap bounds the per-NPC command result list.
	FeedbackCap = 3

	// WitnessCap bounds the per-NPC witnessed event ring.
	WitnessCap = 5
)

// State is the volatile, in-memory side of one NPC: the last few command
// results, the last few witnessed room events, who it is currently responding
// to, and how many attempts in a row have failed. It is written on the tick
// and read by off-tick cognition, so it guards itself.
//
// The zero value is ready to use.
type State struct {
	mu           sync.Mutex
	feedback     []string
	witnessed    []world.RoomEvent
	interactorID string
	failStreak   int
	turnActive   bool
}

// RecordOK appends an [OK] feedback entry and resets the failure streak.
func (s *State) RecordOK(cmd, args string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushFeedback(fmt.Sprintf("[OK] %s", joinCmd(cmd, args)))
	s.failStreak = 0
}

// RecordFailure appends a [FAILED] feedback entry and extends the failure
// streak.
func (s *State) RecordFailure(cmd, args, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := fmt.Sprintf("[FAILED] %s", joinCmd(cmd, args))
	if reason != "" {
		entry += " - " + reason
	}
	s.pushFeedback(entry)
	s.failStreak++
}

func (s *State) pushFeedback(entry string) {
	s.feedback = append(s.feedback, entry)
	if len(s.feedback) > FeedbackCap {
		s.feedback = s.feedback[len(s.feedback)-FeedbackCap:]
	}
}

func joinCmd(cmd, args string) string {
	if args == "" {
		return cmd
	}
	return cmd + " " + args
}

// DrainFeedback returns the buffered command results and the current failure
// streak, clearing the buffer. The streak survives the drain; only a
// successful command resets it.
func (s *State) DrainFeedback() (entries []string, failStreak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries = s.feedback
	s.feedback = nil
	return entries, s.failStreak
}

// Witness appends a room event to the witnessed ring, evicting the oldest
// beyond [WitnessCap].
func (s *State) Witness(ev world.RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.witnessed = append(s.witnessed, ev)
	if len(s.witnessed) > WitnessCap {
		s.witnessed = s.witnessed[len(s.witnessed)-WitnessCap:]
	}
}

// RecentEvents returns a copy of the witnessed ring, oldest first. The ring
// is not cleared — events age out by eviction.
func (s *State) RecentEvents() []world.RoomEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.witnessed)
}

// SetInteractor remembers who the NPC is currently responding to. Target
// fallbacks like "player" resolve against this id while the two are still
// co-located.
func (s *State) SetInteractor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactorID = id
}

// Interactor returns the current interactor id, or the empty string.
func (s *State) Interactor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interactorID
}

// ClearInteractor forgets the interactor.
func (s *State) ClearInteractor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactorID = ""
}

// ConsecutiveFailures returns the current failure streak.
func (s *State) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failStreak
}

// TryBeginTurn claims the single cognition slot. It returns false while a
// turn is already in flight, so event bursts collapse into one turn instead
// of stacking.
func (s *State) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive {
		return false
	}
	s.turnActive = true
	return true
}

// EndTurn releases the cognition slot.
func (s *State) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnActive = false
}

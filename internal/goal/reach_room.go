package goal

import (
	"fmt"
	"strings"

	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

// reachRoomKeywords are scanned in order; the text after the first hit is
// the destination.
var reachRoomKeywords = []string{"go to ", "travel to ", "head to ", "visit ", "reach ", "return to "}

// ReachRoom judges "go to X" steps: complete when the NPC already stands in
// a room whose name or id matches the destination, otherwise it asks the
// pather for the next direction and suggests the matching go command.
type ReachRoom struct{}

var _ Evaluator = ReachRoom{}

// NewReachRoom returns the evaluator.
func NewReachRoom() ReachRoom { return ReachRoom{} }

func (ReachRoom) Name() string { return "reach_room" }

func (ReachRoom) GoalTypes() []string { return nil }

func (ReachRoom) StepKeywords() []string { return reachRoomKeywords }

func (ReachRoom) Evaluate(_ string, _ memory.NpcGoal, stepText string, snap world.Snapshot, pather Pather) Result {
	target, ok := keywordTarget(stepText, reachRoomKeywords)
	if !ok {
		return Result{Status: StatusNotApplicable}
	}

	atTarget := func(id, name string) bool {
		return world.NameMatches(target, name, nil) || world.NameMatches(target, id, nil)
	}
	if atTarget(snap.Room.ID, snap.Room.Name) {
		return Result{
			Status: StatusComplete,
			Reason: arrivedReason(snap.Room.Name),
		}
	}

	if pather == nil {
		return Result{Status: StatusBlocked, Reason: fmt.Sprintf("no route to %s", target)}
	}
	dir, routed := pather.NextDirection(snap.Self.RoomID, atTarget)
	if !routed {
		return Result{Status: StatusBlocked, Reason: fmt.Sprintf("no route to %s", target)}
	}
	if dir == "" {
		return Result{Status: StatusComplete, Reason: arrivedReason(snap.Room.Name)}
	}
	return Result{
		Status:          StatusInProgress,
		Reason:          fmt.Sprintf("heading %s toward %s", dir, target),
		SuggestedAction: fmt.Sprintf("[cmd:go %s]", dir),
	}
}

// arrivedReason lowercases the room name so the reason matches however the
// step phrased the destination; step text is matched case-insensitively and
// the reason should read the same way.
func arrivedReason(roomName string) string {
	return "arrived at " + strings.ToLower(roomName)
}

package goal

import (
	"fmt"

	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

var acquireItemKeywords = []string{"get ", "take ", "pick up ", "acquire ", "fetch ", "obtain ", "find "}

// AcquireItem judges "get X" steps: complete when something in the NPC's
// inventory (carried or equipped) matches the wanted item, in progress
// otherwise — with a get suggestion when the item lies in the room.
type AcquireItem struct{}

var _ Evaluator = AcquireItem{}

// NewAcquireItem returns the evaluator.
func NewAcquireItem() AcquireItem { return AcquireItem{} }

func (AcquireItem) Name() string { return "acquire_item" }

func (AcquireItem) GoalTypes() []string { return nil }

func (AcquireItem) StepKeywords() []string { return acquireItemKeywords }

func (AcquireItem) Evaluate(_ string, _ memory.NpcGoal, stepText string, snap world.Snapshot, _ Pather) Result {
	target, ok := keywordTarget(stepText, acquireItemKeywords)
	if !ok {
		return Result{Status: StatusNotApplicable}
	}

	for _, it := range snap.Carried {
		if itemMatches(target, it) {
			return Result{Status: StatusComplete, Reason: fmt.Sprintf("carrying %s", it.Name)}
		}
	}
	for _, it := range snap.Equipped {
		if itemMatches(target, it) {
			return Result{Status: StatusComplete, Reason: fmt.Sprintf("wearing %s", it.Name)}
		}
	}

	for _, it := range snap.Room.Items {
		if itemMatches(target, it) {
			return Result{
				Status:          StatusInProgress,
				Reason:          fmt.Sprintf("%s is here for the taking", it.Name),
				SuggestedAction: fmt.Sprintf("[cmd:get %s]", it.Name),
			}
		}
	}
	return Result{Status: StatusInProgress, Reason: fmt.Sprintf("%s not acquired yet", target)}
}

func itemMatches(target string, it world.ItemView) bool {
	candidates := it.Aliases
	if it.Short != "" {
		candidates = append(append([]string(nil), it.Aliases...), it.Short)
	}
	return world.NameMatches(target, it.Name, candidates)
}

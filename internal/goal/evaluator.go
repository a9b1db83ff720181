package goal

import (
	"strings"

	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

// Status is an evaluator's verdict on one plan step.
type Status string

const (
	// StatusNotApplicable means the evaluator cannot judge this step; the
	// registry keeps trying.
	StatusNotApplicable Status = "not_applicable"
	// StatusInProgress means the step is underway; SuggestedAction may
	// carry a command markup that makes deterministic progress.
	StatusInProgress Status = "in_progress"
	// StatusComplete means the step's condition already holds.
	StatusComplete Status = "complete"
	// StatusBlocked means the step cannot currently be achieved.
	StatusBlocked Status = "blocked"
)

// Result is one evaluation outcome.
type Result struct {
	Status Status
	Reason string

	// SuggestedAction is an optional command markup (e.g. "[cmd:go north]")
	// the scheduler may execute while the NPC is idle.
	SuggestedAction string
}

// Pather answers routing queries against the installed room graph. It must
// not be used to mutate the world.
type Pather interface {
	NextDirection(fromID string, isTarget func(id, name string) bool) (string, bool)
}

// Evaluator is a deterministic step-completion check. Evaluators never
// mutate state; they judge a snapshot.
type Evaluator interface {
	// Name identifies the evaluator in traces.
	Name() string

	// GoalTypes returns the goal types this evaluator applies to, matched
	// case-insensitively as substrings of the goal's type. Empty means any.
	GoalTypes() []string

	// StepKeywords returns the step-text keywords this evaluator applies
	// to, matched case-insensitively. Empty means any.
	StepKeywords() []string

	// Evaluate judges the current step for one NPC.
	Evaluate(npcID string, g memory.NpcGoal, stepText string, snap world.Snapshot, pather Pather) Result
}

// Registry tries evaluators in registration order; the first verdict that is
// not [StatusNotApplicable] wins.
type Registry struct {
	evaluators []Evaluator
}

// NewRegistry builds a registry with the given evaluators, in order.
func NewRegistry(evaluators ...Evaluator) *Registry {
	return &Registry{evaluators: evaluators}
}

// Register appends an evaluator.
func (r *Registry) Register(e Evaluator) {
	r.evaluators = append(r.evaluators, e)
}

// Evaluate judges the plan's current step. It returns a zero Result with
// [StatusNotApplicable] when the plan has no current step or no evaluator
// claims it.
func (r *Registry) Evaluate(npcID string, g memory.NpcGoal, plan Plan, snap world.Snapshot, pather Pather) Result {
	stepText := plan.Current()
	if stepText == "" {
		return Result{Status: StatusNotApplicable}
	}
	for _, e := range r.evaluators {
		if !matchesGoalType(e.GoalTypes(), g.GoalType) {
			continue
		}
		if !matchesKeyword(e.StepKeywords(), stepText) {
			continue
		}
		if res := e.Evaluate(npcID, g, stepText, snap, pather); res.Status != StatusNotApplicable {
			return res
		}
	}
	return Result{Status: StatusNotApplicable}
}

func matchesGoalType(patterns []string, goalType string) bool {
	if len(patterns) == 0 {
		return true
	}
	goalType = strings.ToLower(goalType)
	for _, p := range patterns {
		if strings.Contains(goalType, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func matchesKeyword(keywords []string, stepText string) bool {
	if len(keywords) == 0 {
		return true
	}
	stepText = strings.ToLower(stepText)
	for _, k := range keywords {
		if strings.Contains(stepText, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// keywordTarget extracts the text following the first matching keyword,
// trimmed of articles and trailing punctuation. ok is false when no keyword
// matches or nothing follows it.
func keywordTarget(stepText string, keywords []string) (string, bool) {
	lower := strings.ToLower(stepText)
	for _, k := range keywords {
		i := strings.Index(lower, k)
		if i < 0 {
			continue
		}
		target := strings.TrimSpace(stepText[i+len(k):])
		target = strings.TrimRight(target, ".!?,;")
		target = strings.TrimSpace(strings.TrimPrefix(target, "the "))
		if target != "" {
			return target, true
		}
	}
	return "", false
}

// Package goal manages NPC motivation: goals persisted through
// [memory.NpcGoalStore], the plans they carry, and the deterministic
// evaluators that advance plan steps without an LLM turn.
package goal

import (
	"fmt"
	"slices"
	"strings"
)

// planParamsKey is where a goal's plan lives inside its params document.
const planParamsKey = "plan"

// Plan is the ordered step list a goal carries. CurrentStep is -1 when there
// is no plan or the plan is complete; Completed holds the finished step
// indices, sorted and unique.
type Plan struct {
	Steps       []string
	CurrentStep int
	Completed   []int
}

// FromSteps builds a fresh plan positioned on its first step.
func FromSteps(steps []string) Plan {
	p := Plan{Steps: slices.Clone(steps), CurrentStep: -1}
	if len(p.Steps) > 0 {
		p.CurrentStep = 0
	}
	return p
}

// FromParams decodes the plan stored under the "plan" key. It tolerates both
// in-memory and JSON-decoded value shapes (float64 numbers, []any lists) and
// drops out-of-range indices. A missing or malformed plan yields the zero
// plan with CurrentStep -1.
func FromParams(params map[string]any) Plan {
	p := Plan{CurrentStep: -1}
	raw, ok := params[planParamsKey].(map[string]any)
	if !ok {
		return p
	}
	p.Steps = toStringSlice(raw["steps"])
	p.CurrentStep = toInt(raw["currentStep"], -1)
	if p.CurrentStep < -1 || p.CurrentStep >= len(p.Steps) {
		p.CurrentStep = -1
	}
	for _, i := range toIntSlice(raw["completedSteps"]) {
		if i >= 0 && i < len(p.Steps) {
			p.complete(i)
		}
	}
	return p
}

// ToParams returns a copy of params with this plan encoded under the "plan"
// key. Every other key is preserved; a nil params starts a fresh document.
func (p Plan) ToParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[planParamsKey] = map[string]any{
		"steps":          slices.Clone(p.Steps),
		"currentStep":    p.CurrentStep,
		"completedSteps": slices.Clone(p.Completed),
	}
	return out
}

// HasSteps reports whether the plan carries any steps at all.
func (p Plan) HasSteps() bool { return len(p.Steps) > 0 }

// IsComplete reports whether every step index is in the completed set.
func (p Plan) IsComplete() bool { return len(p.Completed) == len(p.Steps) }

// IsStepComplete reports whether step index i is in the completed set.
func (p Plan) IsStepComplete(i int) bool {
	_, found := slices.BinarySearch(p.Completed, i)
	return found
}

// Current returns the text of the current step, or "" when there is none.
func (p Plan) Current() string {
	if p.CurrentStep < 0 || p.CurrentStep >= len(p.Steps) {
		return ""
	}
	return p.Steps[p.CurrentStep]
}

// MarkDone completes the current step and advances: scan forward from the
// next index for an uncompleted step, then wrap around from 0; when none
// remains, CurrentStep becomes -1 and the plan is complete. A plan without a
// current step is left untouched.
func (p *Plan) MarkDone() {
	if p.CurrentStep < 0 || p.CurrentStep >= len(p.Steps) {
		return
	}
	p.complete(p.CurrentStep)
	for i := p.CurrentStep + 1; i < len(p.Steps); i++ {
		if !p.IsStepComplete(i) {
			p.CurrentStep = i
			return
		}
	}
	for i := 0; i < p.CurrentStep; i++ {
		if !p.IsStepComplete(i) {
			p.CurrentStep = i
			return
		}
	}
	p.CurrentStep = -1
}

// Skip moves to the next step without marking the current one complete,
// clamped to the last step.
func (p *Plan) Skip() {
	if p.CurrentStep < 0 || p.CurrentStep+1 >= len(p.Steps) {
		return
	}
	p.CurrentStep++
}

// Summary renders the plan position for prompts, e.g.
// "step 2/3: 'negotiate price'".
func (p Plan) Summary() string {
	if !p.HasSteps() {
		return ""
	}
	if p.CurrentStep < 0 {
		return "plan complete"
	}
	return fmt.Sprintf("step %d/%d: '%s'", p.CurrentStep+1, len(p.Steps), p.Steps[p.CurrentStep])
}

func (p *Plan) complete(i int) {
	pos, found := slices.BinarySearch(p.Completed, i)
	if !found {
		p.Completed = slices.Insert(p.Completed, pos, i)
	}
}

// SplitSteps splits a pipe-separated plan template into trimmed steps,
// dropping blanks.
func SplitSteps(template string) []string {
	var steps []string
	for _, s := range strings.Split(template, "|") {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toInt(v any, fallback int) int {
	switch vv := v.(type) {
	case int:
		return vv
	case int64:
		return int(vv)
	case float64:
		return int(vv)
	}
	return fallback
}

func toIntSlice(v any) []int {
	switch vv := v.(type) {
	case []int:
		return slices.Clone(vv)
	case []any:
		out := make([]int, 0, len(vv))
		for _, e := range vv {
			out = append(out, toInt(e, 0))
		}
		return out
	}
	return nil
}

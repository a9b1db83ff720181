package goal_test

import (
	"reflect"
	"testing"

	"duskmire/internal/goal"
)

func TestPlan_ParamsRoundTrip(t *testing.T) {
	t.Parallel()

	original := goal.FromSteps([]string{"find alice", "give package"})
	params := original.ToParams(map[string]any{"mood": "cheerful"})

	if params["mood"] != "cheerful" {
		t.Errorf("non-plan key lost: %v", params)
	}
	decoded := goal.FromParams(params)
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip mismatch\ngot:  %+v\nwant: %+v", decoded, original)
	}
}

func TestPlan_FromParamsToleratesJSONShapes(t *testing.T) {
	t.Parallel()

	// A params document that went through JSON: lists become []any and
	// numbers become float64.
	params := map[string]any{
		"plan": map[string]any{
			"steps":          []any{"open the shop", "greet customers", "close up"},
			"currentStep":    float64(1),
			"completedSteps": []any{float64(0)},
		},
	}
	p := goal.FromParams(params)
	if len(p.Steps) != 3 || p.CurrentStep != 1 {
		t.Fatalf("decoded plan = %+v", p)
	}
	if !p.IsStepComplete(0) || p.IsStepComplete(1) {
		t.Errorf("completed set = %v", p.Completed)
	}
}

func TestPlan_FromParamsSanitizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"nil params", nil},
		{"plan not a map", map[string]any{"plan": "oops"}},
		{"missing plan key", map[string]any{"other": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := goal.FromParams(tt.params)
			if p.HasSteps() || p.CurrentStep != -1 {
				t.Errorf("FromParams() = %+v, want empty plan", p)
			}
		})
	}

	t.Run("out of range indices dropped", func(t *testing.T) {
		t.Parallel()
		p := goal.FromParams(map[string]any{
			"plan": map[string]any{
				"steps":          []any{"only step"},
				"currentStep":    float64(7),
				"completedSteps": []any{float64(-1), float64(0), float64(9)},
			},
		})
		if p.CurrentStep != -1 {
			t.Errorf("CurrentStep = %d, want -1 for out-of-range index", p.CurrentStep)
		}
		if !reflect.DeepEqual(p.Completed, []int{0}) {
			t.Errorf("Completed = %v, want [0]", p.Completed)
		}
	})
}

func TestPlan_MarkDoneAdvancesForward(t *testing.T) {
	t.Parallel()

	p := goal.FromSteps([]string{"find alice", "give package"})
	p.MarkDone()

	if !p.IsStepComplete(0) {
		t.Error("step 0 not marked complete")
	}
	if p.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", p.CurrentStep)
	}
	if p.IsComplete() {
		t.Error("plan complete after one of two steps")
	}
}

func TestPlan_MarkDoneWrapsToEarlierStep(t *testing.T) {
	t.Parallel()

	p := goal.FromSteps([]string{"a", "b", "c"})
	p.Skip() // current 1, step 0 untouched
	p.MarkDone()
	if p.CurrentStep != 2 {
		t.Fatalf("CurrentStep = %d, want 2", p.CurrentStep)
	}
	p.MarkDone()
	if p.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want wrap to 0", p.CurrentStep)
	}
	p.MarkDone()
	if !p.IsComplete() || p.CurrentStep != -1 {
		t.Errorf("plan = %+v, want complete with CurrentStep -1", p)
	}
}

func TestPlan_MarkDoneWithoutCurrentStepIsNoop(t *testing.T) {
	t.Parallel()

	var p goal.Plan
	p.CurrentStep = -1
	p.MarkDone()
	if p.CurrentStep != -1 || len(p.Completed) != 0 {
		t.Errorf("plan mutated: %+v", p)
	}
}

func TestPlan_SkipDoesNotComplete(t *testing.T) {
	t.Parallel()

	p := goal.FromSteps([]string{"a", "b"})
	p.Skip()
	if p.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", p.CurrentStep)
	}
	if len(p.Completed) != 0 {
		t.Errorf("Completed = %v, want none", p.Completed)
	}
	// Skipping past the last step stays put.
	p.Skip()
	if p.CurrentStep != 1 {
		t.Errorf("CurrentStep after clamped skip = %d, want 1", p.CurrentStep)
	}
}

func TestPlan_Summary(t *testing.T) {
	t.Parallel()

	p := goal.FromSteps([]string{"find buyer", "negotiate price", "hand over"})
	p.Skip()
	if got := p.Summary(); got != "step 2/3: 'negotiate price'" {
		t.Errorf("Summary() = %q", got)
	}

	done := goal.FromSteps([]string{"only"})
	done.MarkDone()
	if got := done.Summary(); got != "plan complete" {
		t.Errorf("Summary() of complete plan = %q", got)
	}

	var empty goal.Plan
	if got := empty.Summary(); got != "" {
		t.Errorf("Summary() of empty plan = %q", got)
	}
}

func TestSplitSteps(t *testing.T) {
	t.Parallel()

	got := goal.SplitSteps(" open the shop |greet customers|| close up ")
	want := []string{"open the shop", "greet customers", "close up"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitSteps() = %v, want %v", got, want)
	}
	if goal.SplitSteps("") != nil {
		t.Error("SplitSteps(\"\") should be nil")
	}
}

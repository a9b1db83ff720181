package goal

import (
	"context"
	"fmt"
	"strings"

	"duskmire/internal/markup"
	"duskmire/internal/npc"
	"duskmire/internal/trace"
	"duskmire/pkg/memory"
)

// Manager owns goal and need lifecycle for NPCs: default-goal bootstrap,
// markup directives from model responses, plan step advancement, and
// need-to-goal derivation when an NPC runs out of goals.
//
// The manager holds no in-memory goal state; every operation reads and
// writes through the stores so a restart resumes where the NPC left off.
type Manager struct {
	goals  memory.NpcGoalStore
	needs  memory.NpcNeedStore
	tracer *trace.Fabric
}

// NewManager wires the stores. tracer may be nil to disable trace output.
func NewManager(goals memory.NpcGoalStore, needs memory.NpcNeedStore, tracer *trace.Fabric) *Manager {
	return &Manager{goals: goals, needs: needs, tracer: tracer}
}

// Bootstrap prepares a freshly spawned NPC: the survival drive, the profile's
// declared needs, and the default goal when none of its type exists yet.
func (m *Manager) Bootstrap(ctx context.Context, npcID string, prof *npc.Profile) error {
	err := m.needs.Upsert(ctx, memory.NpcNeed{
		NpcID:    npcID,
		NeedType: memory.GoalTypeSurvive,
		Level:    1,
		Status:   memory.StatusActive,
	})
	if err != nil {
		return fmt.Errorf("goal: bootstrap survive need: %w", err)
	}

	for _, n := range prof.Needs {
		level := n.Level
		if level < 1 {
			level = 2
		}
		var params map[string]any
		if n.Goal != "" {
			params = map[string]any{"goal": strings.ToLower(n.Goal)}
		}
		err := m.needs.Upsert(ctx, memory.NpcNeed{
			NpcID:    npcID,
			NeedType: strings.ToLower(n.Type),
			Level:    level,
			Params:   params,
			Status:   memory.StatusActive,
		})
		if err != nil {
			return fmt.Errorf("goal: bootstrap need %q: %w", n.Type, err)
		}
	}

	return m.ensureDefaultGoal(ctx, npcID, prof)
}

// ApplyAction executes one goal, plan or step directive parsed from a model
// response. Other action kinds are ignored. interactor is the name of the
// entity the NPC is currently responding to, used to resolve the "player"
// placeholder in goal targets; it may be empty.
func (m *Manager) ApplyAction(ctx context.Context, npcID string, prof *npc.Profile, a markup.Action, interactor string) error {
	switch a.Kind {
	case markup.KindGoal:
		if a.GoalOp == markup.GoalClear {
			return m.clear(ctx, npcID, prof, a.GoalType)
		}
		return m.set(ctx, npcID, a.GoalType, a.Target, interactor)
	case markup.KindPlan:
		return m.attachPlan(ctx, npcID, a.PlanGoalType, a.Steps)
	case markup.KindStep:
		return m.AdvanceStep(ctx, npcID, prof, a.StepGoalType, a.StepOp)
	}
	return nil
}

func (m *Manager) set(ctx context.Context, npcID, goalType, target, interactor string) error {
	if goalType == memory.GoalTypeSurvive {
		m.emit(npcID, trace.CatGoal, "survive is a drive, goal markup ignored")
		return nil
	}
	g := memory.NpcGoal{
		NpcID:        npcID,
		GoalType:     goalType,
		TargetPlayer: resolveTarget(target, interactor),
		Params:       map[string]any{},
		Status:       memory.StatusActive,
		Importance:   memory.ImportanceDefault,
	}
	if err := m.goals.Upsert(ctx, g); err != nil {
		return fmt.Errorf("goal: set %q: %w", goalType, err)
	}
	m.emitf(npcID, trace.CatGoal, "goal %s set (target %q)", goalType, g.TargetPlayer)
	return nil
}

func (m *Manager) clear(ctx context.Context, npcID string, prof *npc.Profile, goalType string) error {
	if goalType == "" {
		if err := m.goals.ClearAll(ctx, npcID, true); err != nil {
			return fmt.Errorf("goal: clear all: %w", err)
		}
		m.emit(npcID, trace.CatGoal, "all goals cleared")
		return m.ensureDefaultGoal(ctx, npcID, prof)
	}
	if goalType == memory.GoalTypeSurvive {
		return nil
	}
	if err := m.goals.Clear(ctx, npcID, goalType); err != nil {
		return fmt.Errorf("goal: clear %q: %w", goalType, err)
	}
	m.emitf(npcID, trace.CatGoal, "goal %s cleared", goalType)
	if prof != nil && strings.EqualFold(prof.DefaultGoal.Type, goalType) {
		return m.ensureDefaultGoal(ctx, npcID, prof)
	}
	return nil
}

// attachPlan sets a fresh plan on the named goal, or on the most pressing
// active goal when no goal type is given. Sliding a plan under a goal that
// does not exist is a no-op.
func (m *Manager) attachPlan(ctx context.Context, npcID, goalType string, steps []string) error {
	g, err := m.targetGoal(ctx, npcID, goalType)
	if err != nil {
		return err
	}
	if g == nil {
		m.emitf(npcID, trace.CatPlan, "no goal to attach a %d-step plan to", len(steps))
		return nil
	}
	params := FromSteps(steps).ToParams(g.Params)
	if err := m.goals.UpdateParams(ctx, npcID, g.GoalType, params); err != nil {
		return fmt.Errorf("goal: attach plan to %q: %w", g.GoalType, err)
	}
	m.emitf(npcID, trace.CatPlan, "plan with %d steps attached to %s", len(steps), g.GoalType)
	return nil
}

// AdvanceStep applies a step directive to the named goal (or the most
// pressing one). Completing the final step clears the owning goal and
// restores the default goal when applicable. A goal without a current step
// is left untouched.
func (m *Manager) AdvanceStep(ctx context.Context, npcID string, prof *npc.Profile, goalType string, op markup.StepOp) error {
	g, err := m.targetGoal(ctx, npcID, goalType)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	plan := FromParams(g.Params)
	if plan.Current() == "" {
		return nil
	}

	switch op {
	case markup.StepSkip:
		plan.Skip()
		if err := m.goals.UpdateParams(ctx, npcID, g.GoalType, plan.ToParams(g.Params)); err != nil {
			return fmt.Errorf("goal: skip step on %q: %w", g.GoalType, err)
		}
		m.emitf(npcID, trace.CatStep, "skipped to step %d/%d of %s", plan.CurrentStep+1, len(plan.Steps), g.GoalType)
		return nil
	case markup.StepDone:
		plan.MarkDone()
		if plan.IsComplete() {
			m.emitf(npcID, trace.CatStep, "plan for %s complete", g.GoalType)
			return m.clear(ctx, npcID, prof, g.GoalType)
		}
		if err := m.goals.UpdateParams(ctx, npcID, g.GoalType, plan.ToParams(g.Params)); err != nil {
			return fmt.Errorf("goal: complete step on %q: %w", g.GoalType, err)
		}
		m.emitf(npcID, trace.CatStep, "advanced to step %d/%d of %s", plan.CurrentStep+1, len(plan.Steps), g.GoalType)
		return nil
	}
	return nil
}

// DeriveFromNeeds synthesizes a goal from the NPC's strongest need when no
// active goal exists. It reports whether a goal was created.
func (m *Manager) DeriveFromNeeds(ctx context.Context, npcID string, prof *npc.Profile) (bool, error) {
	goals, err := m.goals.GetAll(ctx, npcID)
	if err != nil {
		return false, fmt.Errorf("goal: list goals: %w", err)
	}
	if len(goals) > 0 {
		return false, nil
	}

	needs, err := m.needs.GetAll(ctx, npcID)
	if err != nil {
		return false, fmt.Errorf("goal: list needs: %w", err)
	}
	for _, n := range needs {
		goalType := n.NeedType
		if mapped, ok := n.Params["goal"].(string); ok && mapped != "" {
			goalType = mapped
		}
		if goalType == memory.GoalTypeSurvive {
			continue
		}
		params := map[string]any{}
		if prof != nil && strings.EqualFold(prof.DefaultGoal.Type, goalType) && prof.DefaultGoal.Plan != "" {
			params = FromSteps(SplitSteps(prof.DefaultGoal.Plan)).ToParams(nil)
		}
		g := memory.NpcGoal{
			NpcID:      npcID,
			GoalType:   goalType,
			Params:     params,
			Status:     memory.StatusActive,
			Importance: memory.ImportanceBackground,
		}
		if err := m.goals.Upsert(ctx, g); err != nil {
			return false, fmt.Errorf("goal: derive %q from need %q: %w", goalType, n.NeedType, err)
		}
		m.emitf(npcID, trace.CatGoal, "goal %s derived from need %s", goalType, n.NeedType)
		return true, nil
	}
	return false, nil
}

// ActiveGoal returns the most pressing active goal and its decoded plan, or
// (nil, zero plan) when the NPC has none.
func (m *Manager) ActiveGoal(ctx context.Context, npcID string) (*memory.NpcGoal, Plan, error) {
	goals, err := m.goals.GetAll(ctx, npcID)
	if err != nil {
		return nil, Plan{CurrentStep: -1}, fmt.Errorf("goal: list goals: %w", err)
	}
	if len(goals) == 0 {
		return nil, Plan{CurrentStep: -1}, nil
	}
	g := goals[0]
	return &g, FromParams(g.Params), nil
}

// ensureDefaultGoal re-creates the profile's default goal when no goal of
// its type exists.
func (m *Manager) ensureDefaultGoal(ctx context.Context, npcID string, prof *npc.Profile) error {
	if prof == nil || prof.DefaultGoal.IsZero() {
		return nil
	}
	t := prof.DefaultGoal
	goalType := strings.ToLower(t.Type)
	existing, err := m.goals.Get(ctx, npcID, goalType)
	if err != nil {
		return fmt.Errorf("goal: check default goal: %w", err)
	}
	if existing != nil {
		return nil
	}

	importance := t.Importance
	if importance == 0 {
		importance = memory.ImportanceDefault
	}
	params := map[string]any{}
	if steps := SplitSteps(t.Plan); len(steps) > 0 {
		params = FromSteps(steps).ToParams(nil)
	}
	g := memory.NpcGoal{
		NpcID:        npcID,
		GoalType:     goalType,
		TargetPlayer: strings.ToLower(t.Target),
		Params:       params,
		Status:       memory.StatusActive,
		Importance:   importance,
	}
	if err := m.goals.Upsert(ctx, g); err != nil {
		return fmt.Errorf("goal: restore default goal %q: %w", goalType, err)
	}
	m.emitf(npcID, trace.CatGoal, "default goal %s restored", goalType)
	return nil
}

// targetGoal resolves which goal a plan or step directive addresses: the
// named type when given, otherwise the most pressing active goal.
func (m *Manager) targetGoal(ctx context.Context, npcID, goalType string) (*memory.NpcGoal, error) {
	if goalType != "" {
		g, err := m.goals.Get(ctx, npcID, goalType)
		if err != nil {
			return nil, fmt.Errorf("goal: get %q: %w", goalType, err)
		}
		return g, nil
	}
	goals, err := m.goals.GetAll(ctx, npcID)
	if err != nil {
		return nil, fmt.Errorf("goal: list goals: %w", err)
	}
	if len(goals) == 0 {
		return nil, nil
	}
	return &goals[0], nil
}

// resolveTarget normalizes a goal target for storage, substituting the
// "player" placeholder with the current interactor's name.
func resolveTarget(raw, interactor string) string {
	if interactor != "" {
		for _, f := range strings.Fields(raw) {
			if strings.EqualFold(f, "player") {
				return strings.ToLower(interactor)
			}
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func (m *Manager) emit(npcID string, cat trace.Category, msg string) {
	if m.tracer != nil {
		m.tracer.Emit(npcID, cat, msg)
	}
}

func (m *Manager) emitf(npcID string, cat trace.Category, format string, args ...any) {
	if m.tracer != nil {
		m.tracer.Emitf(npcID, cat, format, args...)
	}
}

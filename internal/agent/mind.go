// Package agent runs the per-NPC cognition turn.
//
// A [Mind] owns no world state. Each turn it snapshots the world, fetches
// the active goal, lets the deterministic evaluators judge the current plan
// step, consults the model, and hands the parsed actions to a [Scheduler]
// as a single closure. The expensive parts — the LLM call and memory
// recall — happen on the caller's goroutine, off the world tick; everything
// that mutates the world runs inside the submitted closure, serialized with
// player input and combat.
//
// Overlapping invocations are dropped: a Mind whose previous turn has not
// finished ignores new triggers instead of queueing them, so a slow model
// never builds a backlog of stale decisions.
package agent

import (
	"context"
	"errors"
	"strings"

	"duskmire/internal/action"
	"duskmire/internal/goal"
	"duskmire/internal/markup"
	"duskmire/internal/npc"
	"duskmire/internal/prompt"
	"duskmire/internal/trace"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
	"duskmire/pkg/provider/llm"
)

// Scheduler serializes world mutation. [Mind.Think] submits its completed
// decision as one closure; the implementation runs submitted closures on the
// world tick, in submission order.
type Scheduler interface {
	Submit(fn func())
}

// Config holds all dependencies needed to create a [Mind].
//
// Required fields are Profile, State, World, Goals, and Executor. LLM is
// optional — a nil LLM disables the model entirely and the Mind acts only on
// evaluator suggestions, which is how non-speaking wildlife runs. Prompt is
// required only when LLM is set.
type Config struct {
	// Profile is the NPC's static identity: persona, capabilities, default
	// goal, and needs. Must not be nil.
	Profile *npc.Profile

	// State is the NPC's mutable per-turn state: feedback ring, interactor,
	// witnessed events, turn guard. Must not be nil.
	State *npc.State

	// World is the live world the Mind snapshots and acts on. It also
	// serves as the pathing collaborator for evaluators. Must not be nil.
	World *world.World

	// LLM is the completion client. When nil the Mind never builds a
	// prompt; evaluator suggestions are its only source of actions.
	LLM llm.Client

	// Prompt builds the per-turn user prompt. Must not be nil when LLM is
	// set; ignored otherwise.
	Prompt *prompt.Builder

	// Goals manages the NPC's persistent motivation rows. Must not be nil.
	Goals *goal.Manager

	// Evaluators judge the current plan step before the model is consulted.
	// Optional; a nil registry skips the pre-pass.
	Evaluators *goal.Registry

	// Executor turns parsed world actions into room events. Must not be nil.
	Executor *action.Executor

	// Tracer receives cognition trace lines. Optional.
	Tracer *trace.Fabric

	// Deliver receives the room events each executed action produced, in
	// order, from inside the submitted closure. Optional; nil discards
	// events, which is useful for text-free tests.
	Deliver func(events []world.RoomEvent)
}

// Mind is one NPC's cognition loop. Create it with [NewMind]; it is safe to
// call [Mind.Think] from any goroutine, though overlapping calls for the
// same Mind drop rather than queue.
type Mind struct {
	profile *npc.Profile
	state   *npc.State
	world   *world.World
	llm     llm.Client
	prompt  *prompt.Builder
	goals   *goal.Manager
	evals   *goal.Registry
	exec    *action.Executor
	tracer  *trace.Fabric
	deliver func([]world.RoomEvent)

	// system is the capability-aware system prompt, fixed for the Mind's
	// lifetime because Profile is immutable after spawn.
	system string
}

// NewMind creates a [Mind] from the given configuration.
//
// Errors are prefixed with "agent: ".
func NewMind(cfg Config) (*Mind, error) {
	if cfg.Profile == nil {
		return nil, errors.New("agent: Profile must not be nil")
	}
	if cfg.State == nil {
		return nil, errors.New("agent: State must not be nil")
	}
	if cfg.World == nil {
		return nil, errors.New("agent: World must not be nil")
	}
	if cfg.Goals == nil {
		return nil, errors.New("agent: Goals must not be nil")
	}
	if cfg.Executor == nil {
		return nil, errors.New("agent: Executor must not be nil")
	}
	if cfg.LLM != nil && cfg.Prompt == nil {
		return nil, errors.New("agent: Prompt must not be nil when LLM is set")
	}

	return &Mind{
		profile: cfg.Profile,
		state:   cfg.State,
		world:   cfg.World,
		llm:     cfg.LLM,
		prompt:  cfg.Prompt,
		goals:   cfg.Goals,
		evals:   cfg.Evaluators,
		exec:    cfg.Executor,
		tracer:  cfg.Tracer,
		deliver: cfg.Deliver,
		system:  prompt.System(cfg.Profile),
	}, nil
}

// ID returns the NPC's identifier.
func (m *Mind) ID() string { return m.profile.ID }

// Profile returns the NPC's static profile.
func (m *Mind) Profile() *npc.Profile { return m.profile }

// State returns the NPC's mutable state, for the driver's witness fan-out.
func (m *Mind) State() *npc.State { return m.state }

// Bootstrap seeds the NPC's persistent motivation rows: the default goal
// and the profile's needs. Call once after spawn, before the first turn.
func (m *Mind) Bootstrap(ctx context.Context) error {
	return m.goals.Bootstrap(ctx, m.profile.ID, m.profile)
}

// Think runs one cognition turn.
//
// The flow:
//  1. Claim the turn guard; bail if a turn is already in flight.
//  2. Snapshot the world. A missing or dead NPC ends the turn quietly.
//  3. Fetch the active goal, deriving one from needs when the slate is empty.
//  4. Evaluator pre-pass: a Complete verdict queues a step advance, an
//     InProgress verdict records the suggested command as a fallback.
//  5. Consult the model; when it yields nothing actionable, fall back to the
//     evaluator's suggestion.
//  6. Submit the collected actions for serialized execution. The turn guard
//     is released when the closure finishes, or here when nothing came of
//     the turn.
//
// Errors from collaborators are traced and absorbed; a failed turn leaves
// the world exactly as it was.
func (m *Mind) Think(ctx context.Context, sched Scheduler) {
	if !m.state.TryBeginTurn() {
		m.emitf(trace.CatEvent, "cognition busy, trigger dropped")
		return
	}

	snap, ok := m.world.SnapshotFor(m.profile.ID)
	if !ok || snap.Self.Health <= 0 {
		m.state.EndTurn()
		return
	}

	g, plan := m.motivation(ctx)

	var auto []markup.Action
	var suggestion string
	if g != nil && m.evals != nil {
		res := m.evals.Evaluate(m.profile.ID, *g, plan, snap, m.world)
		switch res.Status {
		case goal.StatusComplete:
			m.emitf(trace.CatStep, "step %q complete: %s", plan.Current(), res.Reason)
			auto = append(auto, markup.Action{
				Kind:         markup.KindStep,
				StepOp:       markup.StepDone,
				StepGoalType: g.GoalType,
			})
		case goal.StatusInProgress:
			suggestion = res.SuggestedAction
		case goal.StatusBlocked:
			m.emitf(trace.CatStep, "step %q blocked: %s", plan.Current(), res.Reason)
		}
	}

	actions := m.consult(ctx, snap, g, plan)
	if len(actions) == 0 && suggestion != "" {
		m.emitf(trace.CatStep, "idle, acting on suggestion %s", suggestion)
		actions = markup.Parse(suggestion)
	}
	actions = append(auto, actions...)

	if len(actions) == 0 {
		m.state.EndTurn()
		return
	}

	sched.Submit(func() {
		defer m.state.EndTurn()
		m.apply(ctx, actions)
	})
}

// motivation returns the NPC's active goal and plan, deriving a goal from
// the strongest need when none exists. Store errors are traced and degrade
// to goalless cognition.
func (m *Mind) motivation(ctx context.Context) (*memory.NpcGoal, goal.Plan) {
	g, plan, err := m.goals.ActiveGoal(ctx, m.profile.ID)
	if err != nil {
		m.emitf(trace.CatGoal, "goal lookup failed: %v", err)
		return nil, goal.Plan{}
	}
	if g != nil {
		return g, plan
	}

	created, err := m.goals.DeriveFromNeeds(ctx, m.profile.ID, m.profile)
	if err != nil {
		m.emitf(trace.CatGoal, "need derivation failed: %v", err)
		return nil, goal.Plan{}
	}
	if !created {
		return nil, goal.Plan{}
	}
	g, plan, err = m.goals.ActiveGoal(ctx, m.profile.ID)
	if err != nil {
		m.emitf(trace.CatGoal, "goal lookup failed: %v", err)
		return nil, goal.Plan{}
	}
	return g, plan
}

// consult asks the model for the turn's actions. It returns nil when no
// model is wired, when the call fails, or when the response parses to
// nothing — the caller decides what idleness means.
func (m *Mind) consult(ctx context.Context, snap world.Snapshot, g *memory.NpcGoal, plan goal.Plan) []markup.Action {
	if m.llm == nil {
		return nil
	}

	user := m.prompt.Build(ctx, m.profile.ID, prompt.TurnInput{
		Snapshot: snap,
		State:    m.state,
		Goal:     g,
		Plan:     plan,
	})
	raw, err := m.llm.Complete(ctx, m.system, user, llm.ProfileNPC)
	if err != nil {
		m.emitf(trace.CatLLM, "completion failed: %v", err)
		return nil
	}
	m.emitf(trace.CatLLM, "prompt %d chars, response %d chars", len(user), len(raw))

	actions := markup.Parse(raw)
	if len(actions) == 0 && raw != "" {
		m.emitf(trace.CatLLM, "response had no usable actions")
	}
	return actions
}

// apply executes parsed actions in order. Goal-directed markup goes to the
// goal manager; everything else becomes a world action whose room events go
// out through the delivery hook. Runs inside the submitted closure.
func (m *Mind) apply(ctx context.Context, actions []markup.Action) {
	for _, a := range actions {
		switch a.Kind {
		case markup.KindGoal, markup.KindPlan, markup.KindStep:
			if err := m.goals.ApplyAction(ctx, m.profile.ID, m.profile, a, m.interactorName()); err != nil {
				m.emitf(trace.CatGoal, "apply %s failed: %v", a.Kind, err)
			}
		default:
			events := m.exec.Execute(action.Actor{
				ID:    m.profile.ID,
				Caps:  m.profile.Caps,
				State: m.state,
			}, a)
			if len(events) > 0 && m.deliver != nil {
				m.deliver(events)
			}
		}
	}
}

// interactorName resolves the current interactor to their normalized display
// name. The state holds the living id (what the executor needs for `give …
// to player`), but goal rows store the lowercased player name so they join
// against memory subjects. A despawned interactor falls back to the raw id.
func (m *Mind) interactorName() string {
	id := m.state.Interactor()
	if id == "" {
		return ""
	}
	if v, ok := m.world.LivingViewByID(id); ok {
		return strings.ToLower(v.Name)
	}
	return id
}

func (m *Mind) emitf(cat trace.Category, format string, args ...any) {
	if m.tracer != nil {
		m.tracer.Emitf(m.profile.ID, cat, format, args...)
	}
}

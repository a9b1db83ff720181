// Package action executes the world-facing half of a parsed response —
// speech, emotes and [cmd:…] commands — against the world.
//
// Every command walks the same pipeline: capability gate, target resolution,
// side effect, event emission, feedback record, trace line. Failures never
// mutate the world; they become a player-readable reason in the actor's
// feedback ring so the next prompt can teach the model what went wrong.
// Players and NPCs share the verb table — the driver runs typed player input
// through the same [Executor] it runs NPC markup through.
package action

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"duskmire/internal/markup"
	"duskmire/internal/npc"
	"duskmire/internal/observe"
	"duskmire/internal/trace"
	"duskmire/internal/world"
)

// Actor is whoever a command runs as. State may be nil; actors without one
// get no feedback ring and no interactor resolution.
type Actor struct {
	ID    string
	Caps  npc.Caps
	State *npc.State
}

// Executor runs actions against the world and reports what happened as room
// events for the driver to fan out.
type Executor struct {
	world   *world.World
	tracer  *trace.Fabric
	metrics *observe.Metrics

	// intn is [rand.IntN]; tests pin it to force flee outcomes.
	intn func(n int) int
}

// Option is a functional option for [NewExecutor].
type Option func(*Executor)

// WithTracer mirrors every command outcome into the NPC trace fabric.
func WithTracer(f *trace.Fabric) Option {
	return func(e *Executor) { e.tracer = f }
}

// WithMetrics counts executed commands by verb and outcome.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithIntN replaces the random source behind flee rolls and exit picks.
func WithIntN(fn func(n int) int) Option {
	return func(e *Executor) {
		if fn != nil {
			e.intn = fn
		}
	}
}

// NewExecutor creates an [Executor] bound to one world.
func NewExecutor(w *world.World, opts ...Option) *Executor {
	e := &Executor{
		world: w,
		intn:  rand.IntN,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs one parsed action. Goal, plan and step directives are not
// world actions and are ignored here; the goal manager owns them. The
// returned events are addressed per room — the caller delivers each to the
// occupants of its RoomID.
func (e *Executor) Execute(act Actor, a markup.Action) []world.RoomEvent {
	switch a.Kind {
	case markup.KindSay:
		return e.say(act, a.Text)
	case markup.KindEmote:
		return e.emote(act, a.Text)
	case markup.KindCommand:
		return e.command(act, a.Verb, a.Args)
	}
	return nil
}

func (e *Executor) say(act Actor, text string) []world.RoomEvent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	view, ok := e.world.LivingViewByID(act.ID)
	if !ok {
		return nil
	}
	if !act.Caps.Can(npc.CanSpeak) {
		e.fail(act, "say", text, "you cannot speak")
		return nil
	}
	e.ok(act, "say", text)
	return []world.RoomEvent{{
		Kind:          world.EventSpeech,
		RoomID:        view.RoomID,
		ActorID:       view.ID,
		ActorName:     view.Name,
		ActorIsPlayer: view.IsPlayer,
		Message:       text,
		At:            time.Now(),
	}}
}

func (e *Executor) emote(act Actor, text string) []world.RoomEvent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	view, ok := e.world.LivingViewByID(act.ID)
	if !ok {
		return nil
	}
	if !act.Caps.Can(npc.CanEmote) {
		e.fail(act, "emote", text, "you cannot emote")
		return nil
	}
	e.ok(act, "emote", text)
	return []world.RoomEvent{{
		Kind:          world.EventEmote,
		RoomID:        view.RoomID,
		ActorID:       view.ID,
		ActorName:     view.Name,
		ActorIsPlayer: view.IsPlayer,
		Message:       text,
		At:            time.Now(),
	}}
}

// command dispatches one [cmd:…] markup or typed player command. Unknown
// verbs fall through to the room's local commands (a well's "draw", a shop
// counter's "ring").
func (e *Executor) command(act Actor, verb, args string) []world.RoomEvent {
	verb = strings.ToLower(strings.TrimSpace(verb))
	args = strings.TrimSpace(args)
	if verb == "" {
		return nil
	}
	view, ok := e.world.LivingViewByID(act.ID)
	if !ok {
		return nil
	}

	// Bare directions are shorthand for go.
	if full, isDir := directions[verb]; isDir && args == "" {
		verb, args = "go", full
	}

	spec, known := verbs[verb]
	if !known {
		return e.localCommand(act, view, verb, args)
	}
	if !act.Caps.Can(spec.cap) {
		e.fail(act, verb, args, spec.denied)
		return nil
	}
	events, err := spec.fn(e, act, view, args)
	if err != nil {
		e.fail(act, verb, args, err.Error())
		return events
	}
	e.ok(act, verb, args)
	return events
}

// localCommand resolves a verb against the actor's room. The narration in
// the area file is a third-person predicate ("draws up a bucket of cold
// water"); the actor's name is prepended.
func (e *Executor) localCommand(act Actor, view world.LivingView, verb, args string) []world.RoomEvent {
	if !act.Caps.Can(npc.CanManipulateItems) {
		e.fail(act, verb, args, "you cannot do that")
		return nil
	}
	narration, ok := e.world.LocalCommand(view.RoomID, verb)
	if !ok {
		e.fail(act, verb, args, "you cannot do that here")
		return nil
	}
	e.ok(act, verb, args)
	return []world.RoomEvent{{
		Kind:          world.EventOther,
		RoomID:        view.RoomID,
		ActorID:       view.ID,
		ActorName:     view.Name,
		ActorIsPlayer: view.IsPlayer,
		Message:       view.Name + " " + narration,
		At:            time.Now(),
	}}
}

func (e *Executor) ok(act Actor, cmd, args string) {
	if act.State != nil {
		act.State.RecordOK(cmd, args)
	}
	if e.metrics != nil {
		e.metrics.RecordNPCAction(context.Background(), cmd, "ok")
	}
	e.tracef(act.ID, "%s ok", joined(cmd, args))
}

func (e *Executor) fail(act Actor, cmd, args, reason string) {
	if act.State != nil {
		act.State.RecordFailure(cmd, args, reason)
	}
	if e.metrics != nil {
		e.metrics.RecordNPCAction(context.Background(), cmd, "failed")
	}
	e.tracef(act.ID, "%s failed: %s", joined(cmd, args), reason)
}

func (e *Executor) tracef(id, format string, args ...any) {
	if e.tracer != nil {
		e.tracer.Emitf(id, trace.CatCmd, format, args...)
	}
}

func joined(cmd, args string) string {
	if args == "" {
		return cmd
	}
	return cmd + " " + args
}

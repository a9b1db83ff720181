// Package driver owns the world mutation timeline. One cooperative goroutine
// runs the tick: accept connections, fire heartbeats and callouts, run a
// combat round, dispatch player input, execute cognition closures, drain the
// message bus, prune dead sessions. Everything that changes the world happens
// on that goroutine; off-tick cognition hands its completed decision back
// through [Driver.Submit].
//
// The driver is also the event router. Room events produced by commands,
// combat, and movement flow through [Driver.HandleEvents], which renders them
// to sessions, fans them out to co-located NPC minds, promotes them into
// episodic memory, and triggers cognition turns.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"duskmire/internal/action"
	"duskmire/internal/agent"
	"duskmire/internal/bus"
	"duskmire/internal/npc"
	"duskmire/internal/observe"
	"duskmire/internal/promote"
	"duskmire/internal/session"
	"duskmire/internal/trace"
	"duskmire/internal/world"
)

const (
	// DefaultLoopDelay is the pause between ticks when the config does not
	// set one.
	DefaultLoopDelay = 50 * time.Millisecond

	// DefaultHeartbeatEvery is the heartbeat cognition period for profiles
	// that opt in.
	DefaultHeartbeatEvery = 10 * time.Second

	// acceptBacklog bounds connections waiting for the accept phase.
	acceptBacklog = 16
)

// calloutRespawn is the callout name the driver registers for delayed NPC
// respawn after death.
const calloutRespawn = "respawn"

// MindBuilder constructs the cognition loop for one spawned NPC instance.
// prof carries the instance id and display name; deliver is the driver's
// event router and must be wired as the Mind's delivery hook.
type MindBuilder func(prof *npc.Profile, st *npc.State, deliver func([]world.RoomEvent)) (*agent.Mind, error)

// Config holds the driver's collaborators. World, Sessions, Bus, NPCs, and
// Executor are required; the rest default or stay off when unset.
type Config struct {
	World    *world.World
	Sessions *session.Manager
	Bus      *bus.Bus
	NPCs     *npc.Registry
	Executor *action.Executor

	// MindBuilder creates a cognition loop per spawn. Nil spawns bodies
	// without minds, which is how pure-scenery NPCs and tests run.
	MindBuilder MindBuilder

	// Resolver decides combat swing outcomes. Defaults to a fixed 10 damage.
	Resolver world.Resolver

	// Promoter routes witnessed events into episodic memory. Optional.
	Promoter *promote.Promoter

	// Tracer is the NPC debug fabric observer sessions attach to. Optional.
	Tracer *trace.Fabric

	// Metrics records tick phase latency and session counts. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// LoopDelay is the pause between ticks. Zero selects [DefaultLoopDelay].
	LoopDelay time.Duration

	// HeartbeatEvery is the heartbeat cognition period. Zero selects
	// [DefaultHeartbeatEvery].
	HeartbeatEvery time.Duration

	// RespawnDelay re-runs an NPC's spawn this long after its death.
	// Zero disables respawn.
	RespawnDelay time.Duration

	// ListenAddr is the TCP address accepting player connections. Empty
	// disables the listener; the world still ticks.
	ListenAddr string

	// StartRoom is where newly named players appear. Required when
	// ListenAddr is set.
	StartRoom string
}

// spawnOrigin remembers where an NPC instance came from, for respawn.
type spawnOrigin struct {
	roomID string
	def    world.SpawnDef
}

// Driver is the tick scheduler. Create it with [New]; run it with
// [Driver.Run], or call [Driver.Tick] directly from tests.
type Driver struct {
	world     *world.World
	sessions  *session.Manager
	bus       *bus.Bus
	npcs      *npc.Registry
	exec      *action.Executor
	buildMind MindBuilder
	resolver  world.Resolver
	promoter  *promote.Promoter
	tracer    *trace.Fabric
	metrics   *observe.Metrics

	loopDelay      time.Duration
	heartbeatEvery time.Duration
	respawnDelay   time.Duration
	listenAddr     string
	startRoom      string

	heartbeats *Heartbeats
	callouts   *Callouts
	conns      chan net.Conn

	submitMu  sync.Mutex
	submitted []func()

	mindsMu sync.Mutex
	minds   map[string]*agent.Mind
	origins map[string]spawnOrigin

	stateMu      sync.Mutex
	playerStates map[string]*npc.State

	// runCtx is the lifetime context cognition goroutines inherit. Set by
	// Run before the first tick; Background until then.
	runCtx context.Context
}

var _ agent.Scheduler = (*Driver)(nil)

// New wires a [Driver] from cfg, installs it as the world's spawn handler,
// and installs immediate message delivery on the bus.
func New(cfg Config) (*Driver, error) {
	if cfg.World == nil {
		return nil, errors.New("driver: World must not be nil")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("driver: Sessions must not be nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("driver: Bus must not be nil")
	}
	if cfg.NPCs == nil {
		return nil, errors.New("driver: NPCs must not be nil")
	}
	if cfg.Executor == nil {
		return nil, errors.New("driver: Executor must not be nil")
	}
	if cfg.ListenAddr != "" && cfg.StartRoom == "" {
		return nil, errors.New("driver: StartRoom is required with a listener")
	}

	d := &Driver{
		world:          cfg.World,
		sessions:       cfg.Sessions,
		bus:            cfg.Bus,
		npcs:           cfg.NPCs,
		exec:           cfg.Executor,
		buildMind:      cfg.MindBuilder,
		resolver:       cfg.Resolver,
		promoter:       cfg.Promoter,
		tracer:         cfg.Tracer,
		metrics:        cfg.Metrics,
		loopDelay:      cfg.LoopDelay,
		heartbeatEvery: cfg.HeartbeatEvery,
		respawnDelay:   cfg.RespawnDelay,
		listenAddr:     cfg.ListenAddr,
		startRoom:      cfg.StartRoom,
		heartbeats:     NewHeartbeats(),
		callouts:       NewCallouts(),
		conns:          make(chan net.Conn, acceptBacklog),
		minds:          make(map[string]*agent.Mind),
		origins:        make(map[string]spawnOrigin),
		playerStates:   make(map[string]*npc.State),
		runCtx:         context.Background(),
	}
	if d.resolver == nil {
		d.resolver = world.FixedResolver{Damage: 10}
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.loopDelay <= 0 {
		d.loopDelay = DefaultLoopDelay
	}
	if d.heartbeatEvery <= 0 {
		d.heartbeatEvery = DefaultHeartbeatEvery
	}

	d.callouts.Register(calloutRespawn, d.respawn)
	d.world.SetSpawnFunc(d.spawnNPC)
	d.bus.SetImmediate(delivery{world: d.world, sessions: d.sessions})
	return d, nil
}

// Callouts exposes the one-shot callback registry so content code can
// register handlers and schedule fires.
func (d *Driver) Callouts() *Callouts { return d.callouts }

// Heartbeats exposes the periodic callback registry.
func (d *Driver) Heartbeats() *Heartbeats { return d.heartbeats }

// Submit queues fn for execution during the next tick's cognition phase.
// Implements [agent.Scheduler].
func (d *Driver) Submit(fn func()) {
	if fn == nil {
		return
	}
	d.submitMu.Lock()
	d.submitted = append(d.submitted, fn)
	d.submitMu.Unlock()
}

// Run ticks the world until ctx is canceled. With a listen address
// configured it also accepts player connections.
func (d *Driver) Run(ctx context.Context) error {
	d.runCtx = ctx

	if d.listenAddr != "" {
		ln, err := net.Listen("tcp", d.listenAddr)
		if err != nil {
			return fmt.Errorf("driver: listen on %s: %w", d.listenAddr, err)
		}
		defer ln.Close()
		go d.acceptLoop(ctx, ln)
		slog.Info("accepting player connections", "addr", ln.Addr().String())
	}

	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-time.After(d.loopDelay):
		}
	}
}

func (d *Driver) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("accept failed, listener stopping", "err", err)
			}
			return
		}
		select {
		case d.conns <- conn:
		default:
			// Accept backlog full; shed the connection rather than stall.
			_ = conn.Close()
		}
	}
}

func (d *Driver) shutdown() {
	for _, s := range d.sessions.All() {
		s.Send("The world fades...")
		_ = s.Close()
	}
	d.prune(context.Background())
}

// Tick runs one pass of the world loop. Exported so tests drive the
// scheduler deterministically.
func (d *Driver) Tick(ctx context.Context) {
	now := time.Now()

	d.accept(ctx)
	d.phase(ctx, observe.PhaseHeartbeat, func() { d.heartbeats.DrainDue(now) })
	d.phase(ctx, observe.PhaseCallout, func() { d.callouts.DrainDue(now) })
	d.phase(ctx, observe.PhaseCombat, func() {
		d.HandleEvents(d.world.RunCombatRound(d.resolver))
	})
	d.phase(ctx, observe.PhaseInput, func() { d.readInput(ctx) })
	d.phase(ctx, observe.PhaseCognition, func() { d.drainSubmitted() })
	d.phase(ctx, observe.PhaseDeliver, func() {
		d.bus.Drain(delivery{world: d.world, sessions: d.sessions})
	})
	d.prune(ctx)
}

func (d *Driver) phase(ctx context.Context, name string, fn func()) {
	start := time.Now()
	fn()
	d.metrics.RecordTickPhase(ctx, name, time.Since(start))
}

func (d *Driver) accept(ctx context.Context) {
	for {
		select {
		case conn := <-d.conns:
			s := session.NewLineSession(conn)
			d.sessions.Add(s)
			d.metrics.ActiveSessions.Add(ctx, 1)
			s.Send("Welcome to Duskmire.")
			s.Send("What is your name?")
		default:
			return
		}
	}
}

// readInput polls each session for at most one line and dispatches it, so a
// chatty client cannot starve the others within a tick.
func (d *Driver) readInput(ctx context.Context) {
	for _, s := range d.sessions.All() {
		line, ok := s.ReadLine()
		if !ok {
			continue
		}
		d.handleLine(ctx, s, line)
	}
}

func (d *Driver) drainSubmitted() {
	d.submitMu.Lock()
	queue := d.submitted
	d.submitted = nil
	d.submitMu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

// prune sweeps out closed sessions: metric decrement, trace detach, player
// despawn with a departure event for whoever remains in the room.
func (d *Driver) prune(ctx context.Context) {
	for _, s := range d.sessions.Prune() {
		d.metrics.ActiveSessions.Add(ctx, -1)
		if sub, ok := s.(trace.Subscriber); ok && d.tracer != nil {
			d.tracer.UnsubscribeAll(sub)
		}
		if pid := s.PlayerID(); pid != "" {
			d.despawnPlayer(pid)
		}
		_ = s.Close()
	}
}

func (d *Driver) despawnPlayer(pid string) {
	d.stateMu.Lock()
	delete(d.playerStates, pid)
	d.stateMu.Unlock()

	l := d.world.Living(pid)
	if l == nil {
		return
	}
	ev := world.RoomEvent{
		Kind:          world.EventDeparture,
		RoomID:        l.RoomID,
		ActorID:       l.ID,
		ActorName:     l.Name,
		ActorIsPlayer: true,
		At:            time.Now(),
	}
	d.world.RemoveLiving(pid)
	d.HandleEvents([]world.RoomEvent{ev})
	slog.Info("player left the world", "player_id", pid)
}

// playerState returns the feedback ring for a bound player, creating it on
// first use. Players share the executor's feedback mechanics with NPCs; the
// driver renders failure reasons back to the console instead of a prompt.
func (d *Driver) playerState(pid string) *npc.State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.playerStates[pid]
	if !ok {
		st = &npc.State{}
		d.playerStates[pid] = st
	}
	return st
}

// mind returns the cognition loop for an NPC instance, or nil.
func (d *Driver) mind(id string) *agent.Mind {
	d.mindsMu.Lock()
	defer d.mindsMu.Unlock()
	return d.minds[id]
}

// AttachMind registers a cognition loop and, when its profile opts in,
// schedules heartbeat cognition.
func (d *Driver) AttachMind(m *agent.Mind) {
	id := m.ID()
	d.mindsMu.Lock()
	d.minds[id] = m
	d.mindsMu.Unlock()

	if m.Profile().Heartbeat {
		d.heartbeats.Add(id, d.heartbeatEvery, func(owner string) {
			if mm := d.mind(owner); mm != nil {
				d.think(mm, observe.TurnCauseHeartbeat)
			}
		})
	}
}

// DetachMind forgets an NPC's cognition loop, heartbeat, and pending
// callouts. Called on death.
func (d *Driver) DetachMind(id string) {
	d.mindsMu.Lock()
	delete(d.minds, id)
	d.mindsMu.Unlock()
	d.heartbeats.Remove(id)
	d.callouts.Cancel(id)
}

// spawnNPC is the world's spawn hook: build the instance, place the body,
// and wire a mind when a builder is configured. Spawn failures log and skip
// the NPC rather than poison room materialization.
func (d *Driver) spawnNPC(w *world.World, roomID string, def world.SpawnDef) {
	pd, ok := w.Profile(def.Profile)
	if !ok {
		slog.Warn("spawn references unknown profile", "room", roomID, "profile", def.Profile)
		return
	}
	prof, err := npc.ProfileFromDef(pd)
	if err != nil {
		slog.Warn("spawn profile invalid", "room", roomID, "profile", def.Profile, "err", err)
		return
	}

	n, body := d.npcs.Spawn(prof, def)
	if err := w.PlaceLiving(body, roomID); err != nil {
		d.npcs.Remove(n.ID)
		slog.Warn("spawn placement failed", "room", roomID, "npc_id", n.ID, "err", err)
		return
	}

	d.mindsMu.Lock()
	d.origins[n.ID] = spawnOrigin{roomID: roomID, def: def}
	d.mindsMu.Unlock()

	if d.buildMind == nil {
		return
	}

	// The registry keeps the kind-level profile; the mind acts as the
	// instance, so it gets a copy carrying the instance id and name.
	inst := prof
	inst.ID = n.ID
	inst.Name = n.Name
	m, err := d.buildMind(&inst, n.State, d.HandleEvents)
	if err != nil {
		slog.Warn("mind construction failed, NPC will be inert", "npc_id", n.ID, "err", err)
		return
	}
	if err := m.Bootstrap(d.runCtx); err != nil {
		slog.Warn("goal bootstrap failed", "npc_id", n.ID, "err", err)
	}
	d.AttachMind(m)
	slog.Info("npc spawned", "npc_id", n.ID, "room", roomID, "caps", inst.Caps.String())
}

// respawn is the callout handler re-running a dead NPC's spawn definition.
func (d *Driver) respawn(target string, _ []string) {
	d.mindsMu.Lock()
	origin, ok := d.origins[target]
	delete(d.origins, target)
	d.mindsMu.Unlock()
	if !ok {
		return
	}
	if d.world.Room(origin.roomID) == nil {
		return
	}
	d.spawnNPC(d.world, origin.roomID, origin.def)
}

// HandleEvents routes room events to everyone who cares: session text via
// the bus, witness rings and memory promotion for co-located NPCs, death
// cleanup, and cognition triggers for player-driven events. Safe with a nil
// or empty slice. Must run on the tick goroutine.
func (d *Driver) HandleEvents(events []world.RoomEvent) {
	for _, ev := range events {
		d.renderEvent(ev)
		d.witness(ev)
		if ev.Kind == world.EventDeath {
			d.handleDeath(ev)
		}
	}
}

// renderEvent turns one event into console text: a room broadcast excluding
// the actor, plus an echo to a player actor. Player arrivals get the room
// description instead of their own arrival line.
func (d *Driver) renderEvent(ev world.RoomEvent) {
	d.bus.Room(ev.RoomID, ev.ActorID, ev.String())

	if !ev.ActorIsPlayer {
		return
	}
	switch ev.Kind {
	case world.EventArrival:
		if s := d.sessions.ByPlayer(ev.ActorID); s != nil {
			d.renderRoom(s, ev.ActorID)
		}
	case world.EventDeparture:
	default:
		d.bus.Tell(ev.ActorID, ev.String())
	}
}

// witness fans the event out to every NPC in the room except the actor:
// into the witness ring, through memory promotion, and — for player-driven
// events that concern the NPC — into a cognition turn.
func (d *Driver) witness(ev world.RoomEvent) {
	occupants := d.world.OccupantIDs(ev.RoomID)
	areaID := ""
	if room := d.world.Room(ev.RoomID); room != nil {
		areaID = room.Area
	}

	for _, id := range occupants {
		if id == ev.ActorID {
			continue
		}
		n := d.npcs.Get(id)
		if n == nil {
			continue
		}
		n.State.Witness(ev)
		if d.promoter != nil {
			d.promoter.Observe(ev, promote.Scene{
				Observer: promote.Observer{
					ID:      n.ID,
					Name:    n.Name,
					Aliases: n.Profile.Aliases,
				},
				Occupants: len(occupants),
				AreaID:    areaID,
			})
		}
		d.maybeThink(n, ev)
	}
}

// maybeThink triggers a cognition turn when a player's event concerns the
// NPC. Speech, arrivals and deaths wake everyone in the room; gifts and
// attacks wake their target. Speech and gifts set the interactor so target
// fallbacks resolve to whoever is being answered.
func (d *Driver) maybeThink(n *npc.NPC, ev world.RoomEvent) {
	if !ev.ActorIsPlayer {
		return
	}
	trigger := false
	switch ev.Kind {
	case world.EventSpeech, world.EventArrival, world.EventDeath:
		trigger = true
	case world.EventItemGiven, world.EventCombat:
		trigger = ev.TargetID == n.ID
	}
	if !trigger {
		return
	}
	if ev.Kind == world.EventSpeech || ev.Kind == world.EventItemGiven {
		n.State.SetInteractor(ev.ActorID)
	}
	m := d.mind(n.ID)
	if m == nil {
		return
	}
	d.think(m, observe.TurnCauseWitness)
}

// think runs one cognition turn off the tick goroutine, under a span so slow
// model calls in a trace point at the NPC and trigger responsible.
func (d *Driver) think(m *agent.Mind, cause string) {
	go func() {
		ctx, span := observe.StartTurnSpan(d.runCtx, m.ID(), cause)
		defer span.End()
		observe.Logger(ctx).Debug("cognition turn", "npc_id", m.ID(), "cause", cause)
		m.Think(ctx, d)
	}()
}

// handleDeath cleans up after the world has already removed the deceased:
// NPC minds detach and may respawn later, player sessions get the bad news
// and close.
func (d *Driver) handleDeath(ev world.RoomEvent) {
	id := ev.ActorID

	if n := d.npcs.Get(id); n != nil {
		d.DetachMind(id)
		d.npcs.Remove(id)
		if d.respawnDelay > 0 {
			if err := d.callouts.Schedule(time.Now().Add(d.respawnDelay), calloutRespawn, id); err != nil {
				slog.Warn("respawn scheduling failed", "npc_id", id, "err", err)
			}
		} else {
			d.mindsMu.Lock()
			delete(d.origins, id)
			d.mindsMu.Unlock()
		}
		slog.Info("npc died", "npc_id", id, "killer", ev.TargetID)
		return
	}

	if s := d.sessions.ByPlayer(id); s != nil {
		s.Send("You have died.")
		_ = s.Close()
	}
	d.stateMu.Lock()
	delete(d.playerStates, id)
	d.stateMu.Unlock()
}

// delivery resolves bus messages to connected sessions. Room broadcasts go
// to every connected occupant except the sender.
type delivery struct {
	world    *world.World
	sessions *session.Manager
}

var _ bus.Delivery = delivery{}

func (d delivery) DeliverTell(targetID, text string) bool {
	return d.sessions.SendToPlayer(targetID, text)
}

func (d delivery) DeliverRoom(roomID, excludeID, text string) {
	for _, id := range d.world.OccupantIDs(roomID) {
		if id == excludeID {
			continue
		}
		d.sessions.SendToPlayer(id, text)
	}
}

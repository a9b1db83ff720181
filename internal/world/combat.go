package world

import (
	"fmt"
	"slices"
	"time"
)

// pairing is one active fight. a started it; both sides swing each round.
type pairing struct {
	a, b      string
	startedAt time.Time
}

// RoundOutcome is the result of one combat swing.
type RoundOutcome struct {
	Damage    int
	Narration string
}

// Resolver decides the outcome of one swing. Damage rules live outside the
// core; implementations must be pure functions of the two views — Resolve runs
// under the world lock and must not call back into [World].
type Resolver interface {
	Resolve(attacker, defender LivingView) RoundOutcome
}

// FixedResolver deals the same damage on every swing. It is the default
// resolver and the test double.
type FixedResolver struct {
	Damage int
}

func (r FixedResolver) Resolve(attacker, defender LivingView) RoundOutcome {
	return RoundOutcome{Damage: r.Damage}
}

var _ Resolver = FixedResolver{}

// StartCombat opens a pairing between two livings in the same room. An
// existing pairing between the two, in either direction, makes this a no-op.
func (w *World) StartCombat(attackerID, defenderID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if attackerID == defenderID {
		return fmt.Errorf("you cannot attack yourself")
	}
	att, ok := w.livings[attackerID]
	if !ok {
		return fmt.Errorf("world: unknown living %q", attackerID)
	}
	def, ok := w.livings[defenderID]
	if !ok || def.RoomID != att.RoomID {
		return fmt.Errorf("they are not here")
	}
	if w.hasPairingLocked(attackerID, defenderID) {
		return nil
	}
	w.pairings = append(w.pairings, pairing{a: attackerID, b: defenderID, startedAt: time.Now()})
	return nil
}

// EndCombatFor removes every pairing the living participates in.
func (w *World) EndCombatFor(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pairings = slices.DeleteFunc(w.pairings, func(p pairing) bool { return p.a == id || p.b == id })
}

// InCombat reports whether the living has any active pairing.
func (w *World) InCombat(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.inCombatLocked(id)
}

func (w *World) inCombatLocked(id string) bool {
	for _, p := range w.pairings {
		if p.a == id || p.b == id {
			return true
		}
	}
	return false
}

// Opponents returns views of everyone the living is currently fighting.
func (w *World) Opponents(id string) []LivingView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.opponentsLocked(id)
}

func (w *World) opponentsLocked(id string) []LivingView {
	var out []LivingView
	for _, p := range w.pairings {
		other := ""
		switch id {
		case p.a:
			other = p.b
		case p.b:
			other = p.a
		default:
			continue
		}
		if l, ok := w.livings[other]; ok {
			out = append(out, viewOfLiving(l))
		}
	}
	return out
}

func (w *World) hasPairingLocked(a, b string) bool {
	for _, p := range w.pairings {
		if (p.a == a && p.b == b) || (p.a == b && p.b == a) {
			return true
		}
	}
	return false
}

func (w *World) endPairingLocked(a, b string) {
	w.pairings = slices.DeleteFunc(w.pairings, func(p pairing) bool {
		return (p.a == a && p.b == b) || (p.a == b && p.b == a)
	})
}

// RunCombatRound runs one exchange for every active pairing: the initiator
// swings, then the other side swings back if both still stand. Deaths end all
// of the deceased's pairings, drop their belongings on the floor, and remove
// them from the world. The returned events — one per swing, plus deaths — are
// delivered by the caller.
func (w *World) RunCombatRound(res Resolver) []RoomEvent {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	var events []RoomEvent
	for _, p := range slices.Clone(w.pairings) {
		// An earlier death this round may have removed the pairing.
		if !w.hasPairingLocked(p.a, p.b) {
			continue
		}
		att, def := w.livings[p.a], w.livings[p.b]
		if att == nil || def == nil || att.Dead || def.Dead || att.RoomID != def.RoomID {
			w.endPairingLocked(p.a, p.b)
			continue
		}
		events = append(events, w.swingLocked(res, att, def, now)...)
		if !att.Dead && !def.Dead {
			events = append(events, w.swingLocked(res, def, att, now)...)
		}
	}
	return events
}

func (w *World) swingLocked(res Resolver, att, def *Living, now time.Time) []RoomEvent {
	out := res.Resolve(viewOfLiving(att), viewOfLiving(def))
	msg := out.Narration
	if msg == "" {
		if out.Damage > 0 {
			msg = fmt.Sprintf("%s hits %s", att.Name, def.Name)
		} else {
			msg = fmt.Sprintf("%s misses %s", att.Name, def.Name)
		}
	}
	def.Health -= out.Damage

	events := []RoomEvent{{
		Kind:          EventCombat,
		RoomID:        att.RoomID,
		ActorID:       att.ID,
		ActorName:     att.Name,
		ActorIsPlayer: att.IsPlayer,
		Message:       msg,
		Target:        def.Name,
		TargetID:      def.ID,
		At:            now,
	}}
	if def.Health <= 0 {
		events = append(events, w.killLocked(def, att, now))
	}
	return events
}

func (w *World) killLocked(dead, killer *Living, now time.Time) RoomEvent {
	dead.Dead = true
	dead.Health = 0
	roomID := dead.RoomID

	// Belongings stay behind on the floor.
	if room, ok := w.rooms[roomID]; ok {
		room.items = append(room.items, dead.carried...)
		for _, it := range dead.equipped {
			room.items = append(room.items, it)
		}
	}
	dead.carried = nil
	dead.equipped = nil

	w.removeLivingLocked(dead.ID)

	return RoomEvent{
		Kind:          EventDeath,
		RoomID:        roomID,
		ActorID:       dead.ID,
		ActorName:     dead.Name,
		ActorIsPlayer: dead.IsPlayer,
		Message:       fmt.Sprintf("%s has died", dead.Name),
		Target:        killer.Name,
		TargetID:      killer.ID,
		At:            now,
	}
}

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"duskmire/internal/action"
	"duskmire/internal/markup"
	"duskmire/internal/npc"
	"duskmire/internal/session"
	"duskmire/internal/trace"
	"duskmire/internal/world"
)

// playerCaps is every capability at once; typed player input is not gated
// the way model output is.
const playerCaps = npc.Merchant

const helpText = `Commands:
  look (l)             describe your surroundings
  go <direction>       move; bare directions (n, s, e, w, ...) work too
  say <text> / '<text> speak to the room
  emote <text> (me)    act out something
  get/drop <item>      pick up or drop an item
  give <item> to <who> hand an item over
  equip <item>         wear or wield an item
  use <item>           use, drink, or eat an item
  kill <target>        start a fight
  flee                 try to escape a fight
  who                  list connected players
  trace <npc-id>       watch an NPC think; 'trace off' detaches, 'trace' lists
  quit                 leave the world`

// handleLine routes one raw input line. Unbound sessions are still at the
// name prompt; everything else goes through the command dispatch.
func (d *Driver) handleLine(ctx context.Context, s session.Session, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if s.PlayerID() == "" {
		d.bindName(s, line)
		return
	}
	d.dispatch(ctx, s, line)
}

// bindName turns the first input line into a player body in the start room.
func (d *Driver) bindName(s session.Session, line string) {
	name := cleanName(line)
	if name == "" {
		s.Send("Names are 2-16 letters. Try again.")
		return
	}
	pid := "player:" + strings.ToLower(name)

	if d.world.Living(pid) != nil {
		s.Send(fmt.Sprintf("Someone called %s is already here. Pick another name.", name))
		return
	}
	room, err := d.world.EnsureRoom(d.startRoom)
	if err != nil {
		slog.Error("start room unavailable", "room", d.startRoom, "err", err)
		s.Send("The world is not ready for visitors. Try again later.")
		return
	}
	body := &world.Living{
		ID:        pid,
		Name:      name,
		IsPlayer:  true,
		Health:    100,
		MaxHealth: 100,
	}
	if err := d.world.PlaceLiving(body, room.ID); err != nil {
		slog.Error("player placement failed", "player_id", pid, "err", err)
		s.Send("Something went wrong. Try another name.")
		return
	}
	if err := d.sessions.BindPlayer(s.ID(), pid); err != nil {
		d.world.RemoveLiving(pid)
		s.Send("Something went wrong. Try another name.")
		return
	}

	s.Send(fmt.Sprintf("Welcome, %s. Type 'help' for commands.", name))
	slog.Info("player joined", "player_id", pid, "room", room.ID)
	d.HandleEvents([]world.RoomEvent{{
		Kind:          world.EventArrival,
		RoomID:        room.ID,
		ActorID:       pid,
		ActorName:     name,
		ActorIsPlayer: true,
		At:            time.Now(),
	}})
}

// cleanName accepts 2-16 ASCII letters and title-cases the result.
func cleanName(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || len(raw) > 16 {
		return ""
	}
	for _, r := range raw {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return ""
		}
	}
	return strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:])
}

// dispatch runs one typed command for a bound player. Console verbs resolve
// first; everything else goes through the shared executor so players and
// NPCs obey the same world rules.
func (d *Driver) dispatch(ctx context.Context, s session.Session, line string) {
	pid := s.PlayerID()

	// Leading apostrophe is say shorthand.
	if rest, ok := strings.CutPrefix(line, "'"); ok {
		d.execute(s, pid, markup.Action{Kind: markup.KindSay, Text: rest})
		return
	}

	verb, args, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	args = strings.TrimSpace(args)

	switch verb {
	case "quit":
		s.Send("Farewell.")
		_ = s.Close()
	case "help":
		s.Send(helpText)
	case "look", "l":
		d.renderRoom(s, pid)
	case "who":
		d.who(s)
	case "trace":
		d.traceCommand(s, args)
	case "say":
		d.execute(s, pid, markup.Action{Kind: markup.KindSay, Text: args})
	case "emote", "me":
		d.execute(s, pid, markup.Action{Kind: markup.KindEmote, Text: args})
	default:
		d.execute(s, pid, markup.Action{Kind: markup.KindCommand, Verb: verb, Args: args})
	}
}

// execute runs one action through the shared executor and renders its
// failure feedback, if any, back to the console.
func (d *Driver) execute(s session.Session, pid string, a markup.Action) {
	st := d.playerState(pid)
	events := d.exec.Execute(action.Actor{ID: pid, Caps: playerCaps, State: st}, a)
	d.HandleEvents(events)

	entries, _ := st.DrainFeedback()
	for _, e := range entries {
		reason, ok := strings.CutPrefix(e, "[FAILED] ")
		if !ok {
			continue
		}
		// The feedback entry is "<cmd> - <reason>"; the reason alone reads
		// naturally on a console.
		if _, r, found := strings.Cut(reason, " - "); found {
			reason = r
		} else {
			reason = "You can't do that."
		}
		s.Send(reason)
	}
}

// renderRoom writes the standard room description: name, description,
// exits, items on the floor, and other occupants.
func (d *Driver) renderRoom(s session.Session, pid string) {
	snap, ok := d.world.SnapshotFor(pid)
	if !ok {
		return
	}
	s.Send(snap.Room.Name)
	if snap.Room.Description != "" {
		s.Send(snap.Room.Description)
	}
	if len(snap.Room.Exits) > 0 {
		s.Send("Exits: " + strings.Join(snap.Room.Exits, ", "))
	} else {
		s.Send("There are no obvious exits.")
	}
	for _, it := range snap.Room.Items {
		short := it.Short
		if short == "" {
			short = it.Name
		}
		s.Send("  " + short)
	}
	for _, l := range snap.Room.Livings {
		if l.ID == pid {
			continue
		}
		line := l.Name + " is here."
		if snap.Fighting[l.ID] {
			line = l.Name + " is here, fighting."
		}
		s.Send(line)
	}
}

// who lists every connected, named player.
func (d *Driver) who(s session.Session) {
	var names []string
	for _, other := range d.sessions.All() {
		pid := other.PlayerID()
		if pid == "" {
			continue
		}
		if v, ok := d.world.LivingViewByID(pid); ok {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		s.Send("Nobody is here.")
		return
	}
	s.Send(fmt.Sprintf("Connected (%d): %s", len(names), strings.Join(names, ", ")))
}

// traceCommand manages this session's trace fabric subscriptions:
// "trace <npc-id>" attaches, "trace off" detaches everything, bare "trace"
// lists current subscriptions.
func (d *Driver) traceCommand(s session.Session, args string) {
	if d.tracer == nil {
		s.Send("Tracing is not available.")
		return
	}
	sub, ok := s.(trace.Subscriber)
	if !ok {
		s.Send("This console cannot receive traces.")
		return
	}

	switch args {
	case "":
		ids := d.tracer.Subscriptions(sub)
		if len(ids) == 0 {
			s.Send("Not tracing anyone. Usage: trace <npc-id>, trace off")
			return
		}
		s.Send("Tracing: " + strings.Join(ids, ", "))
	case "off":
		d.tracer.UnsubscribeAll(sub)
		s.Send("Trace detached.")
	default:
		if d.npcs.Get(args) == nil {
			s.Send(fmt.Sprintf("There is no NPC with id %q.", args))
			return
		}
		d.tracer.Subscribe(sub, args)
		s.Send("Tracing " + args + ". 'trace off' to stop.")
	}
}

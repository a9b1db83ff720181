package action

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"duskmire/internal/npc"
	"duskmire/internal/world"
)

// verbSpec binds a verb to its required capability, the reason recorded when
// the capability is missing, and the handler that performs the side effect.
type verbSpec struct {
	cap    npc.Caps
	denied string
	fn     func(e *Executor, act Actor, view world.LivingView, args string) ([]world.RoomEvent, error)
}

const deniedItems = "you cannot handle objects"

var verbs = map[string]verbSpec{
	"go": {npc.CanWander, "you cannot leave", (*Executor).doGo},

	"get":  {npc.CanManipulateItems, deniedItems, (*Executor).doGet},
	"take": {npc.CanManipulateItems, deniedItems, (*Executor).doGet},
	"drop": {npc.CanManipulateItems, deniedItems, (*Executor).doDrop},
	"give": {npc.CanManipulateItems, deniedItems, (*Executor).doGive},

	"equip":   {npc.CanManipulateItems, deniedItems, (*Executor).doEquip},
	"wield":   {npc.CanManipulateItems, deniedItems, (*Executor).doEquip},
	"wear":    {npc.CanManipulateItems, deniedItems, (*Executor).doEquip},
	"unequip": {npc.CanManipulateItems, deniedItems, (*Executor).doUnequip},
	"remove":  {npc.CanManipulateItems, deniedItems, (*Executor).doUnequip},

	"kill":   {npc.CanAttack, "you cannot attack", (*Executor).doKill},
	"attack": {npc.CanAttack, "you cannot attack", (*Executor).doKill},

	"flee":    {npc.CanFlee, "you cannot flee", (*Executor).doFlee},
	"retreat": {npc.CanFlee, "you cannot flee", (*Executor).doFlee},

	"use":   {npc.CanManipulateItems, deniedItems, useHandler("uses")},
	"drink": {npc.CanManipulateItems, deniedItems, useHandler("drinks")},
	"eat":   {npc.CanManipulateItems, deniedItems, useHandler("eats")},

	"follow": {npc.CanFollow, "you cannot follow anyone", (*Executor).doFollow},
}

// directions expands the single-letter movement shorthand and recognizes the
// canonical exit names.
var directions = map[string]string{
	"n": "north", "s": "south", "e": "east", "w": "west", "u": "up", "d": "down",
	"north": "north", "south": "south", "east": "east", "west": "west", "up": "up", "down": "down",
}

// opposites names the direction an arrival appears to come from. Unknown
// exits yield a plain "arrives".
var opposites = map[string]string{
	"north": "south", "south": "north",
	"east": "west", "west": "east",
	"up": "below", "down": "above",
}

func (e *Executor) doGo(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	dir := strings.ToLower(args)
	if full, ok := directions[dir]; ok {
		dir = full
	}
	if dir == "" {
		return nil, errors.New("go where?")
	}
	from, to, err := e.world.MoveLiving(act.ID, dir)
	if err != nil {
		return nil, err
	}
	at := time.Now()
	return []world.RoomEvent{
		{
			Kind: world.EventDeparture, RoomID: from.ID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Direction: dir, At: at,
		},
		{
			Kind: world.EventArrival, RoomID: to.ID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Direction: opposites[dir], At: at,
		},
	}, nil
}

func (e *Executor) doGet(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("get what?")
	}
	it, err := e.world.TakeItem(act.ID, args)
	if err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventItemTaken, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: it.Name, At: time.Now(),
	}}, nil
}

func (e *Executor) doDrop(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("drop what?")
	}
	it, err := e.world.DropItem(act.ID, args)
	if err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventItemDropped, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: it.Name, At: time.Now(),
	}}, nil
}

func (e *Executor) doGive(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	itemQ, targetQ, err := splitGive(args)
	if err != nil {
		return nil, err
	}
	it, target, err := e.world.GiveItem(act.ID, itemQ, resolvePlaceholder(act, targetQ))
	if err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventItemGiven, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: it.Name, Target: target.Name, TargetID: target.ID, At: time.Now(),
	}}, nil
}

// splitGive accepts both "give <item> to <target>" and "give <target> <item>".
func splitGive(args string) (itemQ, targetQ string, err error) {
	if i := strings.Index(strings.ToLower(args), " to "); i >= 0 {
		itemQ = strings.TrimSpace(args[:i])
		targetQ = strings.TrimSpace(args[i+4:])
	} else if fields := strings.Fields(args); len(fields) >= 2 {
		targetQ = fields[0]
		itemQ = strings.Join(fields[1:], " ")
	}
	if itemQ == "" || targetQ == "" {
		return "", "", errors.New("give what to whom?")
	}
	return itemQ, targetQ, nil
}

func (e *Executor) doEquip(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("equip what?")
	}
	it, err := e.world.EquipItem(act.ID, args)
	if err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventOther, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: fmt.Sprintf("%s equips the %s", view.Name, it.Name), At: time.Now(),
	}}, nil
}

func (e *Executor) doUnequip(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("remove what?")
	}
	it, err := e.world.UnequipItem(act.ID, args)
	if err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventOther, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: fmt.Sprintf("%s removes the %s", view.Name, it.Name), At: time.Now(),
	}}, nil
}

func (e *Executor) doKill(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("attack whom?")
	}
	target, err := e.resolveLiving(act, view, args)
	if err != nil {
		return nil, err
	}
	if err := e.world.StartCombat(act.ID, target.ID); err != nil {
		return nil, err
	}
	return []world.RoomEvent{{
		Kind: world.EventCombat, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: fmt.Sprintf("%s attacks %s!", view.Name, target.Name),
		Target:  target.Name, TargetID: target.ID, At: time.Now(),
	}}, nil
}

// doFlee rolls a coin. Heads ends every pairing and moves the actor through
// a random exit; tails leaves the fight standing and tells the room.
func (e *Executor) doFlee(act Actor, view world.LivingView, _ string) ([]world.RoomEvent, error) {
	if !e.world.InCombat(act.ID) {
		return nil, errors.New("you are not fighting anyone")
	}
	if e.intn(2) != 0 {
		ev := world.RoomEvent{
			Kind: world.EventOther, RoomID: view.RoomID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Message: view.Name + " tries to flee but fails", At: time.Now(),
		}
		return []world.RoomEvent{ev}, errors.New("you fail to get away")
	}

	snap, ok := e.world.SnapshotFor(act.ID)
	if !ok || len(snap.Room.Exits) == 0 {
		return nil, errors.New("there is no way out")
	}
	dir := snap.Room.Exits[e.intn(len(snap.Room.Exits))]
	from, to, err := e.world.MoveLiving(act.ID, dir)
	if err != nil {
		return nil, err
	}
	e.world.EndCombatFor(act.ID)
	at := time.Now()
	return []world.RoomEvent{
		{
			Kind: world.EventOther, RoomID: from.ID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Message: fmt.Sprintf("%s flees %s!", view.Name, dir), At: at,
		},
		{
			Kind: world.EventArrival, RoomID: to.ID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Direction: opposites[dir], At: at,
		},
	}, nil
}

// useHandler builds the handler for use, drink and eat; only the narration
// verb differs. The item must be flagged usable.
func useHandler(verb3p string) func(e *Executor, act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	return func(e *Executor, act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
		if args == "" {
			return nil, errors.New("use what?")
		}
		it, err := e.world.UseItem(act.ID, args)
		if err != nil {
			return nil, err
		}
		return []world.RoomEvent{{
			Kind: world.EventOther, RoomID: view.RoomID,
			ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
			Message: fmt.Sprintf("%s %s the %s", view.Name, verb3p, it.Name), At: time.Now(),
		}}, nil
	}
}

func (e *Executor) doFollow(act Actor, view world.LivingView, args string) ([]world.RoomEvent, error) {
	if args == "" {
		return nil, errors.New("follow whom?")
	}
	target, err := e.resolveLiving(act, view, args)
	if err != nil {
		return nil, err
	}
	if act.State != nil {
		act.State.SetInteractor(target.ID)
	}
	return []world.RoomEvent{{
		Kind: world.EventEmote, RoomID: view.RoomID,
		ActorID: view.ID, ActorName: view.Name, ActorIsPlayer: view.IsPlayer,
		Message: "starts following " + target.Name, At: time.Now(),
	}}, nil
}

// resolveLiving finds another living in the actor's room by id, name or
// alias.
func (e *Executor) resolveLiving(act Actor, view world.LivingView, query string) (world.LivingView, error) {
	query = resolvePlaceholder(act, query)
	for _, id := range e.world.OccupantIDs(view.RoomID) {
		if id == act.ID {
			continue
		}
		other, ok := e.world.LivingViewByID(id)
		if !ok {
			continue
		}
		if id == query || world.NameMatches(query, other.Name, other.Aliases) {
			return other, nil
		}
	}
	return world.LivingView{}, fmt.Errorf("%s is not here", query)
}

// resolvePlaceholder substitutes the actor's current interactor for the
// literal "player". Players have no interactor; for them the word stays a
// (probably failing) name query.
func resolvePlaceholder(act Actor, query string) string {
	if act.State == nil || !strings.EqualFold(strings.TrimSpace(query), "player") {
		return query
	}
	if id := act.State.Interactor(); id != "" {
		return id
	}
	return query
}

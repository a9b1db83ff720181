package world

import (
	"fmt"
	"time"
)

// EventKind tags a [RoomEvent] variant.
type EventKind string

const (
	EventSpeech      EventKind = "speech"
	EventEmote       EventKind = "emote"
	EventArrival     EventKind = "arrival"
	EventDeparture   EventKind = "departure"
	EventCombat      EventKind = "combat"
	EventItemTaken   EventKind = "item_taken"
	EventItemDropped EventKind = "item_dropped"
	EventItemGiven   EventKind = "item_given"
	EventDeath       EventKind = "death"
	EventOther       EventKind = "other"
)

// RoomEvent describes something that happened in a room. Events are values —
// immutable once constructed — and are fanned out by the scheduler to every
// observer in the room: player sessions render them, NPC minds remember them.
//
// Which optional fields are set depends on Kind: Message carries speech and
// narration, Target/TargetID name the other party of combat, gifts and
// attacks, Direction is set on arrivals and departures.
type RoomEvent struct {
	Kind          EventKind
	RoomID        string
	ActorID       string
	ActorName     string
	ActorIsPlayer bool
	Message       string
	Target        string
	TargetID      string
	Direction     string
	At            time.Time
}

// String renders the event as one line of third-person prose, the form
// players read and NPCs remember. Combat, death and "other" events carry
// their full narration in Message already.
func (ev RoomEvent) String() string {
	switch ev.Kind {
	case EventSpeech:
		return fmt.Sprintf("%s says: \"%s\"", ev.ActorName, ev.Message)
	case EventEmote:
		return ev.ActorName + " " + ev.Message
	case EventArrival:
		switch ev.Direction {
		case "":
			return ev.ActorName + " arrives"
		case "above", "below":
			return fmt.Sprintf("%s arrives from %s", ev.ActorName, ev.Direction)
		default:
			return fmt.Sprintf("%s arrives from the %s", ev.ActorName, ev.Direction)
		}
	case EventDeparture:
		if ev.Direction != "" {
			return fmt.Sprintf("%s leaves %s", ev.ActorName, ev.Direction)
		}
		return ev.ActorName + " leaves"
	case EventItemTaken:
		return fmt.Sprintf("%s picks up %s", ev.ActorName, ev.Message)
	case EventItemDropped:
		return fmt.Sprintf("%s drops %s", ev.ActorName, ev.Message)
	case EventItemGiven:
		return fmt.Sprintf("%s gives %s to %s", ev.ActorName, ev.Message, ev.Target)
	case EventCombat, EventDeath:
		return ev.Message
	default:
		if ev.Message == "" {
			return string(ev.Kind)
		}
		return ev.Message
	}
}

// Package promote decides which witnessed room events become episodic
// memories.
//
// The rules are deliberately narrow: only player actions are memorable, an
// NPC never remembers its own, and overheard speech counts only when it was
// directed at the observer. A positive decision yields a bounded,
// third-person memory candidate that is handed to the async writer —
// promotion never waits for persistence.
package promote

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"duskmire/internal/trace"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

// Importance per promoted kind. Higher surfaces first during recall.
const (
	ImportanceConversation = 30
	ImportanceGift         = 70
	ImportanceCombat       = 80
	ImportanceDeath        = 90
)

// ConversationTTL is how long a promoted conversation stays recallable.
// Gifts, fights and deaths never expire.
const ConversationTTL = 7 * 24 * time.Hour

// Observer is the NPC doing the witnessing.
type Observer struct {
	ID      string
	Name    string
	Aliases []string
}

// Scene is the room context at the moment of the event. Occupants counts
// every living present, observer included; AreaID may be empty.
type Scene struct {
	Observer  Observer
	Occupants int
	AreaID    string
}

// Candidate applies the promotion rules to one event. ok is false when the
// event is not worth remembering.
func Candidate(ev world.RoomEvent, sc Scene) (mem memory.NpcMemory, ok bool) {
	if ev.ActorID == "" || ev.ActorID == sc.Observer.ID || !ev.ActorIsPlayer {
		return memory.NpcMemory{}, false
	}

	var (
		kind       string
		importance int
		content    string
		expires    *time.Time
	)
	switch ev.Kind {
	case world.EventSpeech:
		if !directedAt(ev.Message, sc) {
			return memory.NpcMemory{}, false
		}
		kind = memory.KindConversation
		importance = ImportanceConversation
		content = fmt.Sprintf("%s said: %q", ev.ActorName, ev.Message)
	case world.EventItemGiven:
		kind = memory.KindGiftReceived
		importance = ImportanceGift
		content = fmt.Sprintf("%s gave %s to %s", ev.ActorName, ev.Message, ev.Target)
	case world.EventCombat:
		kind = memory.KindCombat
		importance = ImportanceCombat
		content = ev.Message
	case world.EventDeath:
		kind = memory.KindWitnessedDeath
		importance = ImportanceDeath
		content = ev.Message
	default:
		return memory.NpcMemory{}, false
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if kind == memory.KindConversation {
		e := at.Add(ConversationTTL)
		expires = &e
	}

	return memory.NpcMemory{
		ID:         uuid.NewString(),
		NpcID:      sc.Observer.ID,
		Subject:    strings.ToLower(ev.ActorName),
		RoomID:     ev.RoomID,
		AreaID:     sc.AreaID,
		Kind:       kind,
		Importance: importance,
		Tags:       []string{"room:" + ev.RoomID},
		Content:    memory.BoundContent(content),
		CreatedAt:  at,
		ExpiresAt:  expires,
	}, true
}

// directedAt reports whether speech was aimed at the observer: always in a
// 1-on-1 room, otherwise only when the message names the observer.
func directedAt(message string, sc Scene) bool {
	if sc.Occupants == 2 {
		return true
	}
	msg := strings.ToLower(message)
	if n := strings.ToLower(sc.Observer.Name); n != "" && strings.Contains(msg, n) {
		return true
	}
	for _, alias := range sc.Observer.Aliases {
		if a := strings.ToLower(alias); a != "" && strings.Contains(msg, a) {
			return true
		}
	}
	return false
}

// Promoter routes positive decisions into the bounded memory writer.
type Promoter struct {
	writer *memory.Writer
	tracer *trace.Fabric
}

// Option is a functional option for [NewPromoter].
type Option func(*Promoter)

// WithTracer mirrors promotion decisions into the NPC trace fabric.
func WithTracer(f *trace.Fabric) Option {
	return func(p *Promoter) { p.tracer = f }
}

// NewPromoter creates a [Promoter]. writer may be nil when the memory layer
// is disabled; every event is then silently skipped.
func NewPromoter(writer *memory.Writer, opts ...Option) *Promoter {
	p := &Promoter{writer: writer}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Observe runs the rules on one witnessed event and enqueues the resulting
// memory, if any. It never blocks on storage.
func (p *Promoter) Observe(ev world.RoomEvent, sc Scene) {
	if p.writer == nil {
		return
	}
	mem, ok := Candidate(ev, sc)
	if !ok {
		return
	}
	if !p.writer.Enqueue(mem) {
		p.emitf(sc.Observer.ID, "memory writer closed, %s not recorded", mem.Kind)
		return
	}
	p.emitf(sc.Observer.ID, "remembered %s (importance %d): %s", mem.Kind, mem.Importance, mem.Content)
}

func (p *Promoter) emitf(npcID, format string, args ...any) {
	if p.tracer != nil {
		p.tracer.Emitf(npcID, trace.CatMem, format, args...)
	}
}

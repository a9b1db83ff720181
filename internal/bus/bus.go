// Package bus queues outbound game messages between tick phases. Two shapes
// exist: tells, addressed to a single recipient, and room messages, broadcast
// to everyone in a room except the sender.
//
// By default messages wait in FIFO order for the scheduler's delivery phase.
// An optional immediate handler short-circuits that: when installed, messages
// are written synchronously at enqueue time — the path NPC speech takes, so a
// model response reaches the player the moment it lands instead of on the
// next drain.
package bus

import (
	"log/slog"
	"sync"
)

// Delivery writes messages to connected recipients. Implementations resolve
// rooms to sessions themselves; the bus only routes.
type Delivery interface {
	// DeliverTell writes to one recipient. It reports false when the
	// recipient is not connected.
	DeliverTell(targetID, text string) bool

	// DeliverRoom writes to every connected occupant of the room except
	// excludeID.
	DeliverRoom(roomID, excludeID, text string)
}

type msgKind int

const (
	kindTell msgKind = iota
	kindRoom
)

type message struct {
	kind      msgKind
	targetID  string
	roomID    string
	excludeID string
	text      string
}

// Bus is the message queue. Safe for concurrent use; the zero value is not
// usable, call [New].
type Bus struct {
	mu        sync.Mutex
	queue     []message
	immediate Delivery
}

// New returns an empty [Bus].
func New() *Bus {
	return &Bus{}
}

// SetImmediate installs the synchronous delivery handler. Pass nil to go back
// to queue-and-drain.
func (b *Bus) SetImmediate(d Delivery) {
	b.mu.Lock()
	b.immediate = d
	b.mu.Unlock()
}

// Tell routes text to a single recipient. With an immediate handler installed
// and the recipient connected, the write happens now; otherwise the message
// queues for the next drain.
func (b *Bus) Tell(targetID, text string) {
	b.mu.Lock()
	imm := b.immediate
	b.mu.Unlock()

	if imm != nil && imm.DeliverTell(targetID, text) {
		return
	}

	b.mu.Lock()
	b.queue = append(b.queue, message{kind: kindTell, targetID: targetID, text: text})
	b.mu.Unlock()
}

// Room routes text to everyone in the room except the sender. With an
// immediate handler installed the broadcast happens now — room chatter only
// ever reaches connected occupants, so nothing is left to queue.
func (b *Bus) Room(roomID, excludeID, text string) {
	b.mu.Lock()
	imm := b.immediate
	b.mu.Unlock()

	if imm != nil {
		imm.DeliverRoom(roomID, excludeID, text)
		return
	}

	b.mu.Lock()
	b.queue = append(b.queue, message{kind: kindRoom, roomID: roomID, excludeID: excludeID, text: text})
	b.mu.Unlock()
}

// Drain delivers everything queued, in enqueue order. Tells whose recipient
// is still not connected are dropped.
func (b *Bus) Drain(d Delivery) {
	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, m := range pending {
		switch m.kind {
		case kindTell:
			if !d.DeliverTell(m.targetID, m.text) {
				slog.Debug("dropping tell for disconnected recipient", "target", m.targetID)
			}
		case kindRoom:
			d.DeliverRoom(m.roomID, m.excludeID, m.text)
		}
	}
}

// Pending returns the queued message count.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

package bus_test

import (
	"sync"
	"testing"

	"duskmire/internal/bus"
)

// fakeDelivery records routed messages; connected gates tells.
type fakeDelivery struct {
	mu        sync.Mutex
	connected map[string]bool
	log       []string
}

func newFakeDelivery(connected ...string) *fakeDelivery {
	d := &fakeDelivery{connected: make(map[string]bool)}
	for _, id := range connected {
		d.connected[id] = true
	}
	return d
}

func (d *fakeDelivery) DeliverTell(targetID, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected[targetID] {
		return false
	}
	d.log = append(d.log, "tell "+targetID+": "+text)
	return true
}

func (d *fakeDelivery) DeliverRoom(roomID, excludeID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, "room "+roomID+" (not "+excludeID+"): "+text)
}

func (d *fakeDelivery) lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

func TestBus_QueueAndDrainPreservesOrder(t *testing.T) {
	t.Parallel()

	b := bus.New()
	b.Tell("p1", "psst")
	b.Room("square", "npc-1", "Barnaby says: hello")
	b.Tell("p2", "you too")

	if b.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", b.Pending())
	}

	d := newFakeDelivery("p1", "p2")
	b.Drain(d)

	want := []string{
		"tell p1: psst",
		"room square (not npc-1): Barnaby says: hello",
		"tell p2: you too",
	}
	got := d.lines()
	if len(got) != len(want) {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if b.Pending() != 0 {
		t.Errorf("pending after drain = %d, want 0", b.Pending())
	}
}

func TestBus_DrainDropsDisconnectedTells(t *testing.T) {
	t.Parallel()

	b := bus.New()
	b.Tell("ghost", "anyone there?")

	d := newFakeDelivery() // nobody connected
	b.Drain(d)

	if len(d.lines()) != 0 {
		t.Errorf("delivered = %v, want nothing", d.lines())
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d, want 0 (dropped, not requeued)", b.Pending())
	}
}

func TestBus_ImmediateDeliveryBypassesQueue(t *testing.T) {
	t.Parallel()

	b := bus.New()
	d := newFakeDelivery("p1")
	b.SetImmediate(d)

	b.Tell("p1", "right away")
	b.Room("square", "", "it echoes")

	if b.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 with immediate handler", b.Pending())
	}
	if got := d.lines(); len(got) != 2 {
		t.Fatalf("delivered = %v, want both messages synchronously", got)
	}
}

func TestBus_ImmediateTellToDisconnectedQueues(t *testing.T) {
	t.Parallel()

	b := bus.New()
	imm := newFakeDelivery() // recipient not connected yet
	b.SetImmediate(imm)

	b.Tell("p1", "hold this")
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 (fell back to the queue)", b.Pending())
	}

	// Recipient connects before the drain.
	late := newFakeDelivery("p1")
	b.Drain(late)
	if got := late.lines(); len(got) != 1 || got[0] != "tell p1: hold this" {
		t.Errorf("delivered = %v, want the queued tell", got)
	}
}

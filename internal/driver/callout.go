package driver

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Callback handles one fired callout. The target is whatever object id the
// callout was scheduled against; args are free-form strings fixed at
// scheduling time.
type Callback func(target string, args []string)

// Callouts is a registry of named one-shot callbacks with timestamps.
// Handlers register under a name; scheduling binds a name to a target and a
// due time. Scheduling against an unregistered name fails immediately rather
// than at fire time, so content errors surface at load.
//
// Safe for concurrent scheduling; fired callbacks run on the tick goroutine
// via [Callouts.DrainDue].
type Callouts struct {
	mu       sync.Mutex
	handlers map[string]Callback
	pending  []callout
	seq      uint64
}

type callout struct {
	seq    uint64
	at     time.Time
	name   string
	target string
	args   []string
}

// NewCallouts returns an empty registry.
func NewCallouts() *Callouts {
	return &Callouts{handlers: make(map[string]Callback)}
}

// Register installs the handler for a callout name, replacing any previous
// one.
func (c *Callouts) Register(name string, fn Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = fn
}

// Schedule queues one callout to fire at or after the given time.
func (c *Callouts) Schedule(at time.Time, name, target string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[name]; !ok {
		return fmt.Errorf("driver: no callout handler %q", name)
	}
	c.seq++
	c.pending = append(c.pending, callout{seq: c.seq, at: at, name: name, target: target, args: args})
	return nil
}

// Cancel drops every pending callout scheduled against the target and
// returns how many were dropped. Used when the target leaves the world.
func (c *Callouts) Cancel(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.pending[:0]
	dropped := 0
	for _, co := range c.pending {
		if co.target == target {
			dropped++
			continue
		}
		kept = append(kept, co)
	}
	c.pending = kept
	return dropped
}

// Pending returns the number of queued callouts.
func (c *Callouts) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// DrainDue fires every callout due at now, in due-time then scheduling
// order, outside the registry lock. Returns the number fired.
func (c *Callouts) DrainDue(now time.Time) int {
	type firing struct {
		co callout
		fn Callback
	}

	c.mu.Lock()
	var due []firing
	kept := c.pending[:0]
	for _, co := range c.pending {
		if co.at.After(now) {
			kept = append(kept, co)
			continue
		}
		due = append(due, firing{co: co, fn: c.handlers[co.name]})
	}
	c.pending = kept
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].co.at.Equal(due[j].co.at) {
			return due[i].co.at.Before(due[j].co.at)
		}
		return due[i].co.seq < due[j].co.seq
	})
	for _, f := range due {
		if f.fn != nil {
			f.fn(f.co.target, f.co.args)
		}
	}
	return len(due)
}

package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// minWriterQueue is the floor on the writer's queue capacity. Configured
// capacities below it are raised so a burst of promotions cannot immediately
// start dropping.
const minWriterQueue = 100

// Writer is the bounded asynchronous path for episodic memory writes. Many
// producers enqueue without blocking; a single worker drains the queue one
// write at a time with a soft rate limit. When the queue is full the oldest
// queued write is dropped so the newest observation always wins.
//
// Failed writes are logged and swallowed; a bad record never halts the worker.
//
// All methods are safe for concurrent use.
type Writer struct {
	store NpcMemoryStore
	queue chan NpcMemory
	pause time.Duration

	onDrop  func()
	onWrite func(ok bool)

	dropped atomic.Uint64
	started atomic.Bool

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WriterConfig configures a [Writer].
type WriterConfig struct {
	// Store receives the drained writes. Required.
	Store NpcMemoryStore

	// QueueSize is the queue capacity. Values below 100 are raised to 100.
	QueueSize int

	// MaxWritesPerSecond is the soft rate limit applied between writes.
	// Zero or negative disables pacing.
	MaxWritesPerSecond int

	// OnDrop is invoked once per write dropped due to overflow. Optional.
	OnDrop func()

	// OnWrite is invoked after every attempted write with its outcome.
	// Optional.
	OnWrite func(ok bool)
}

// NewWriter creates a new [Writer] with the given configuration. Call
// [Writer.Start] to begin draining.
func NewWriter(cfg WriterConfig) *Writer {
	size := cfg.QueueSize
	if size < minWriterQueue {
		size = minWriterQueue
	}
	var pause time.Duration
	if cfg.MaxWritesPerSecond > 0 {
		pause = time.Duration(1000/cfg.MaxWritesPerSecond) * time.Millisecond
	}
	return &Writer{
		store:   cfg.Store,
		queue:   make(chan NpcMemory, size),
		pause:   pause,
		onDrop:  cfg.OnDrop,
		onWrite: cfg.OnWrite,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the drain worker in a background goroutine. The worker runs
// until [Writer.Close] is called or ctx is cancelled. Repeated calls are
// no-ops.
func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.loop(ctx)
}

// Enqueue offers one write to the queue without blocking. When the queue is
// full the oldest queued write is discarded to make room. Returns false only
// after [Writer.Close], when new writes are no longer accepted.
func (w *Writer) Enqueue(mem NpcMemory) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	for {
		select {
		case w.queue <- mem:
			return true
		default:
		}

		// Full. Drop the oldest entry and retry; the retry loop also covers
		// the race where the worker drained between the two selects.
		select {
		case <-w.queue:
			w.dropped.Add(1)
			if w.onDrop != nil {
				w.onDrop()
			}
		default:
		}
	}
}

// Depth returns the number of writes currently queued.
func (w *Writer) Depth() int { return len(w.queue) }

// Dropped returns the total number of writes discarded due to overflow.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Close stops accepting writes, drains whatever is still queued, waits for
// the worker to exit, and closes the store when it exposes a Close method.
// Safe to call multiple times.
func (w *Writer) Close() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	if w.started.Load() {
		<-w.stopped
	}

	if c, ok := w.store.(interface{ Close() }); ok {
		c.Close()
	}
}

// loop drains the queue until cancellation or [Writer.Close].
func (w *Writer) loop(ctx context.Context) {
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			w.drain(ctx)
			return
		case mem := <-w.queue:
			w.write(ctx, mem)
			if w.pause <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				w.drain(ctx)
				return
			case <-time.After(w.pause):
			}
		}
	}
}

// drain writes everything still queued, without pacing. Called on shutdown.
func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case mem := <-w.queue:
			w.write(ctx, mem)
		default:
			return
		}
	}
}

// write performs one store insert, logging and swallowing any failure.
func (w *Writer) write(ctx context.Context, mem NpcMemory) {
	err := w.store.Add(ctx, mem)
	if err != nil {
		slog.Warn("memory write failed",
			"npc_id", mem.NpcID,
			"kind", mem.Kind,
			"error", err,
		)
	}
	if w.onWrite != nil {
		w.onWrite(err == nil)
	}
}

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"duskmire/pkg/memory"
	"duskmire/pkg/memory/mock"
)

// newTestMemory builds a minimal valid memory write.
func newTestMemory(i int) memory.NpcMemory {
	return memory.NpcMemory{
		ID:      fmt.Sprintf("mem-%03d", i),
		NpcID:   "npc-barnaby",
		Kind:    memory.KindConversation,
		Content: fmt.Sprintf("observation %d", i),
	}
}

func TestWriter_EnqueueAndDrain(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store})

	for i := 0; i < 5; i++ {
		if !w.Enqueue(newTestMemory(i)) {
			t.Fatalf("Enqueue(%d) rejected before close", i)
		}
	}

	w.Start(context.Background())
	w.Close()

	added := store.Added()
	if len(added) != 5 {
		t.Fatalf("wrote %d memories, want 5", len(added))
	}
	for i, mem := range added {
		if want := fmt.Sprintf("mem-%03d", i); mem.ID != want {
			t.Errorf("write %d = %q, want %q (FIFO order)", i, mem.ID, want)
		}
	}
}

func TestWriter_DropOldestOnOverflow(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store, QueueSize: 100})

	// Flood before the worker starts so the overflow path is deterministic.
	for i := 0; i < 200; i++ {
		w.Enqueue(newTestMemory(i))
	}

	if got := w.Dropped(); got != 100 {
		t.Fatalf("Dropped() = %d, want 100", got)
	}
	if got := w.Depth(); got != 100 {
		t.Fatalf("Depth() = %d, want 100", got)
	}

	w.Start(context.Background())
	w.Close()

	added := store.Added()
	if len(added) != 100 {
		t.Fatalf("wrote %d memories, want 100", len(added))
	}
	// The oldest writes were dropped; the newest survived.
	if got, want := added[0].ID, "mem-100"; got != want {
		t.Errorf("first surviving write = %q, want %q", got, want)
	}
	if got, want := added[99].ID, "mem-199"; got != want {
		t.Errorf("last surviving write = %q, want %q", got, want)
	}
}

func TestWriter_QueueSizeFloor(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store, QueueSize: 10})

	// A configured size below 100 is raised to 100, so 100 writes fit.
	for i := 0; i < 100; i++ {
		w.Enqueue(newTestMemory(i))
	}
	if got := w.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}

	w.Start(context.Background())
	w.Close()
	if got := len(store.Added()); got != 100 {
		t.Errorf("wrote %d memories, want 100", got)
	}
}

func TestWriter_RejectsEnqueueAfterClose(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store})
	w.Start(context.Background())
	w.Close()

	if w.Enqueue(newTestMemory(0)) {
		t.Error("Enqueue accepted after Close")
	}
	// Close is idempotent.
	w.Close()
}

func TestWriter_CloseWithoutStart(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{Store: store})
	w.Close() // must not block waiting for a worker that never ran
}

func TestWriter_BadWriteDoesNotHaltWorker(t *testing.T) {
	t.Parallel()
	store := &mock.MemoryStore{AddErr: errors.New("connection reset")}
	w := memory.NewWriter(memory.WriterConfig{Store: store})

	for i := 0; i < 3; i++ {
		w.Enqueue(newTestMemory(i))
	}
	w.Start(context.Background())
	w.Close()

	if got := store.CallCount("Add"); got != 3 {
		t.Errorf("Add attempted %d times, want 3 (failures must not stop the drain)", got)
	}
	if got := len(store.Added()); got != 0 {
		t.Errorf("%d memories stored despite forced error", got)
	}
}

func TestWriter_Hooks(t *testing.T) {
	t.Parallel()
	var drops, okWrites, failWrites atomic.Int64
	store := &mock.MemoryStore{}
	w := memory.NewWriter(memory.WriterConfig{
		Store:     store,
		QueueSize: 100,
		OnDrop:    func() { drops.Add(1) },
		OnWrite: func(ok bool) {
			if ok {
				okWrites.Add(1)
			} else {
				failWrites.Add(1)
			}
		},
	})

	for i := 0; i < 150; i++ {
		w.Enqueue(newTestMemory(i))
	}
	w.Start(context.Background())
	w.Close()

	if got := drops.Load(); got != 50 {
		t.Errorf("OnDrop fired %d times, want 50", got)
	}
	if got := okWrites.Load(); got != 100 {
		t.Errorf("OnWrite(true) fired %d times, want 100", got)
	}
	if got := failWrites.Load(); got != 0 {
		t.Errorf("OnWrite(false) fired %d times, want 0", got)
	}
}

func TestWriter_ClosesStoreWithCloser(t *testing.T) {
	t.Parallel()
	store := &mock.Store{}
	w := memory.NewWriter(memory.WriterConfig{Store: closableStore{store}})
	w.Start(context.Background())
	w.Close()
	if !store.Closed() {
		t.Error("store with Close method was not closed on writer disposal")
	}
}

// closableStore adapts the aggregate mock into an NpcMemoryStore that also
// exposes Close, mirroring how production wiring hands the writer a handle it
// owns.
type closableStore struct {
	*mock.Store
}

func (c closableStore) Add(ctx context.Context, mem memory.NpcMemory) error {
	return c.Store.Memories().Add(ctx, mem)
}

func (c closableStore) Recall(ctx context.Context, q memory.RecallQuery) ([]memory.NpcMemory, error) {
	return c.Store.Memories().Recall(ctx, q)
}

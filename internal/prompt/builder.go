// Package prompt builds the two prompts of one NPC decision turn: the
// per-profile system prompt and the deterministic user prompt describing the
// NPC's current situation.
//
// The user prompt's sections appear in a fixed order — condition and combat
// status, location, who and what is present, recent events, goal and plan,
// recalled memories, known facts, and the previous turn's command results —
// so consecutive prompts diff cleanly in traces. Store lookups run
// concurrently; a failing lookup degrades to an absent section rather than a
// failed turn.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"duskmire/internal/goal"
	"duskmire/internal/npc"
	"duskmire/internal/trace"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
)

const (
	// DefaultTopK caps recalled memories and knowledge hits per prompt.
	DefaultTopK = 5

	// DefaultReplanThreshold is the consecutive-failure count beyond which
	// the prompt carries a re-plan instruction.
	DefaultReplanThreshold = 2
)

// Embedder computes the query vector for recall. [llm.Client] satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Builder assembles user prompts for decision turns.
type Builder struct {
	memories memory.NpcMemoryStore
	kb       memory.WorldKnowledgeBase
	embedder Embedder
	tracer   *trace.Fabric

	memoryTopK      int
	kbTopK          int
	replanThreshold int
}

// Option is a functional option for [NewBuilder].
type Option func(*Builder)

// WithEmbedder supplies the query-embedding source. Without one, recall
// falls back to importance and recency ordering.
func WithEmbedder(e Embedder) Option {
	return func(b *Builder) { b.embedder = e }
}

// WithTracer mirrors recall degradation into the NPC trace fabric.
func WithTracer(f *trace.Fabric) Option {
	return func(b *Builder) { b.tracer = f }
}

// WithMemoryTopK overrides how many memories a prompt recalls.
// Defaults to [DefaultTopK].
func WithMemoryTopK(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.memoryTopK = n
		}
	}
}

// WithKbTopK overrides how many knowledge entries a prompt includes.
// Defaults to [DefaultTopK].
func WithKbTopK(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.kbTopK = n
		}
	}
}

// WithReplanThreshold overrides the failure streak beyond which the re-plan
// hint appears. Defaults to [DefaultReplanThreshold].
func WithReplanThreshold(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.replanThreshold = n
		}
	}
}

// NewBuilder creates a [Builder]. memories and kb may be nil when the memory
// layer is disabled; their sections are then omitted from every prompt.
func NewBuilder(memories memory.NpcMemoryStore, kb memory.WorldKnowledgeBase, opts ...Option) *Builder {
	b := &Builder{
		memories:        memories,
		kb:              kb,
		memoryTopK:      DefaultTopK,
		kbTopK:          DefaultTopK,
		replanThreshold: DefaultReplanThreshold,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// TurnInput is everything volatile the builder reads for one turn.
type TurnInput struct {
	// Snapshot is the NPC's deep-copied view of the world.
	Snapshot world.Snapshot

	// State supplies witnessed events and the feedback buffer, which Build
	// drains. May be nil.
	State *npc.State

	// Goal and Plan describe the active goal, when one exists.
	Goal *memory.NpcGoal
	Plan goal.Plan
}

// Build assembles the user prompt for one decision turn. It drains the
// NPC's feedback buffer as a side effect; calling Build twice for the same
// turn would lose the previous turn's command results.
func (b *Builder) Build(ctx context.Context, npcID string, in TurnInput) string {
	var (
		feedback []string
		streak   int
		events   []world.RoomEvent
	)
	if in.State != nil {
		feedback, streak = in.State.DrainFeedback()
		events = in.State.RecentEvents()
	}

	mems, kbHits := b.recall(ctx, npcID, events, feedback)

	var sb strings.Builder
	writeCondition(&sb, in.Snapshot)
	writeRoom(&sb, in.Snapshot.Room)
	writePresence(&sb, in.Snapshot)
	writeEvents(&sb, events)
	writeGoal(&sb, in.Goal, in.Plan)
	writeMemories(&sb, mems)
	writeKnowledge(&sb, kbHits)
	writeFeedback(&sb, feedback, streak, b.replanThreshold)
	sb.WriteString("\nWhat do you do?")
	return sb.String()
}

// recall fetches memories and knowledge concurrently. A failing fetch
// degrades to an empty section; a decision turn never dies on a recall
// hiccup.
func (b *Builder) recall(ctx context.Context, npcID string, events []world.RoomEvent, feedback []string) ([]memory.NpcMemory, []memory.KbEntry) {
	if b.memories == nil && b.kb == nil {
		return nil, nil
	}
	query := queryText(events, feedback)

	var embedding []float32
	if b.embedder != nil && query != "" {
		vec, err := b.embedder.Embed(ctx, query)
		if err != nil {
			b.emitf(npcID, "query embedding unavailable: %v", err)
		} else {
			embedding = vec
		}
	}

	// Each lookup absorbs its own error, so a failing memory store cannot
	// cancel the knowledge search or vice versa. A plain group, not
	// WithContext: sibling cancellation is exactly what we don't want here.
	var (
		mems   []memory.NpcMemory
		kbHits []memory.KbEntry
		eg     errgroup.Group
	)
	if b.memories != nil {
		eg.Go(func() error {
			res, err := b.memories.Recall(ctx, memory.RecallQuery{
				NpcID:     npcID,
				TopK:      b.memoryTopK,
				Embedding: embedding,
			})
			if err != nil {
				b.degraded(npcID, fmt.Errorf("prompt: recall memories for %q: %w", npcID, err))
				return nil
			}
			mems = res
			return nil
		})
	}
	if b.kb != nil {
		eg.Go(func() error {
			res, err := b.kb.Search(ctx, memory.KbQuery{
				NpcID:     npcID,
				Text:      query,
				Embedding: embedding,
				TopK:      b.kbTopK,
			})
			if err != nil {
				b.degraded(npcID, fmt.Errorf("prompt: search knowledge for %q: %w", npcID, err))
				return nil
			}
			kbHits = res
			return nil
		})
	}
	_ = eg.Wait()
	return mems, kbHits
}

func (b *Builder) degraded(npcID string, err error) {
	slog.Debug("prompt recall degraded", "npc", npcID, "error", err)
	b.emitf(npcID, "recall degraded: %v", err)
}

// queryText folds the newest events and any failure feedback into the text
// the recall embedding is computed from.
func queryText(events []world.RoomEvent, feedback []string) string {
	var parts []string
	for _, ev := range events {
		parts = append(parts, ev.String())
	}
	for _, f := range feedback {
		if strings.HasPrefix(f, "[FAILED]") {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}

func (b *Builder) emitf(npcID, format string, args ...any) {
	if b.tracer != nil {
		b.tracer.Emitf(npcID, trace.CatMem, format, args...)
	}
}

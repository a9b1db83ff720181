// Package llm defines the language-model client used for NPC cognition and
// narrative generation.
//
// A Client speaks to one chat endpoint and one embedding endpoint. Every chat
// request runs under one of two profiles: [ProfileNPC] for the short in-world
// decision turns issued on cognition ticks, and [ProfileStory] for longer
// narrative output such as quest text. The profile selects the model, the
// sampling temperature, and the output-token cap; implementations resolve
// those from their configuration.
//
// Failure semantics are deliberate: timeouts, network faults, non-success
// statuses, and malformed bodies all surface as ordinary errors, and callers
// are expected to treat any error as "no response" — an NPC whose request
// fails simply stays silent for that turn. Implementations never panic and
// never retry on their own.
package llm

import "context"

// Profile selects the request parameters for a chat completion.
type Profile string

const (
	// ProfileNPC is the hot profile used for per-tick NPC decisions. Short
	// output caps and tight timeouts keep the world loop responsive.
	ProfileNPC Profile = "npc"

	// ProfileStory is the cool profile used for narrative generation. It
	// allows a larger output cap and a longer timeout.
	ProfileStory Profile = "story"
)

// Client is a chat + embedding language-model client.
//
// Implementations must be safe for concurrent use; cognition turns for
// different NPCs may issue requests in parallel.
type Client interface {
	// Complete sends a single-turn chat request consisting of an optional
	// system prompt and one user message, and returns the model's text.
	//
	// Returns an error on timeout, transport failure, non-success status, or
	// an undecodable body. An empty string with a nil error means the model
	// produced no text.
	Complete(ctx context.Context, systemPrompt, userMessage string, profile Profile) (string, error)

	// CompleteWithHistory sends a multi-turn chat request. The optional
	// system prompt is placed first, followed by history in order.
	CompleteWithHistory(ctx context.Context, systemPrompt string, history []Message, profile Profile) (string, error)

	// Embed computes a dense vector for text using the configured embedding
	// model. Returns an error when no embedding model is configured or the
	// request fails.
	Embed(ctx context.Context, text string) ([]float32, error)
}

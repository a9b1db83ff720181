// Package mock provides a test double for the llm.Client interface.
//
// Use Client in unit tests to verify the prompts that cognition builds and to
// feed controlled completions without a live model backend. Responses are
// consumed from a FIFO queue so multi-turn tests can script one reply per
// decision turn. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	c := &mock.Client{}
//	c.QueueResponse(`Hello there! [cmd:wave]`)
//	text, err := c.Complete(ctx, system, user, llm.ProfileNPC)
package mock

import (
	"context"
	"sync"

	"duskmire/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// SystemPrompt is the system prompt passed to Complete.
	SystemPrompt string
	// UserMessage is the user message passed to Complete.
	UserMessage string
	// Profile is the profile passed to Complete.
	Profile llm.Profile
}

// HistoryCall records a single invocation of CompleteWithHistory.
type HistoryCall struct {
	// SystemPrompt is the system prompt passed to CompleteWithHistory.
	SystemPrompt string
	// History is a copy of the history slice passed to CompleteWithHistory.
	History []llm.Message
	// Profile is the profile passed to CompleteWithHistory.
	Profile llm.Profile
}

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Text is the text passed to Embed.
	Text string
}

// Client is a mock implementation of llm.Client.
//
// Complete and CompleteWithHistory pop the next queued response; an empty
// queue yields ("", nil), which callers interpret as the model saying
// nothing. Set Err fields to inject errors instead.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is the FIFO queue consumed by Complete and
	// CompleteWithHistory. Prefer QueueResponse over setting it directly.
	Responses []string

	// CompleteErr, if non-nil, is returned by Complete and
	// CompleteWithHistory without consuming a queued response.
	CompleteErr error

	// EmbedResult is returned by Embed.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// HistoryCalls records every invocation of CompleteWithHistory in order.
	HistoryCalls []HistoryCall

	// EmbedCalls records every invocation of Embed in order.
	EmbedCalls []EmbedCall
}

// QueueResponse appends text to the response queue. Thread-safe.
func (c *Client) QueueResponse(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = append(c.Responses, text)
}

// Complete records the call and pops the next queued response.
func (c *Client) Complete(_ context.Context, systemPrompt, userMessage string, profile llm.Profile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = append(c.CompleteCalls, CompleteCall{
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		Profile:      profile,
	})
	if c.CompleteErr != nil {
		return "", c.CompleteErr
	}
	return c.pop(), nil
}

// CompleteWithHistory records the call and pops the next queued response.
func (c *Client) CompleteWithHistory(_ context.Context, systemPrompt string, history []llm.Message, profile llm.Profile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := make([]llm.Message, len(history))
	copy(hist, history)
	c.HistoryCalls = append(c.HistoryCalls, HistoryCall{
		SystemPrompt: systemPrompt,
		History:      hist,
		Profile:      profile,
	})
	if c.CompleteErr != nil {
		return "", c.CompleteErr
	}
	return c.pop(), nil
}

// Embed records the call and returns EmbedResult, EmbedErr.
func (c *Client) Embed(_ context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EmbedCalls = append(c.EmbedCalls, EmbedCall{Text: text})
	if c.EmbedErr != nil {
		return nil, c.EmbedErr
	}
	return c.EmbedResult, nil
}

// pop removes and returns the head of the response queue, or "" when the
// queue is empty. Callers must hold mu.
func (c *Client) pop() string {
	if len(c.Responses) == 0 {
		return ""
	}
	head := c.Responses[0]
	c.Responses = c.Responses[1:]
	return head
}

// Reset clears all recorded calls and queued responses. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = nil
	c.CompleteCalls = nil
	c.HistoryCalls = nil
	c.EmbedCalls = nil
}

// Ensure Client implements llm.Client at compile time.
var _ llm.Client = (*Client)(nil)

package observe

import (
	"context"
	"time"

	"duskmire/pkg/provider/llm"
)

// instrumentedLLM decorates an [llm.Client] with request metrics. Failures
// still propagate unchanged; this layer only watches.
type instrumentedLLM struct {
	inner   llm.Client
	metrics *Metrics
}

// InstrumentLLM wraps client so every chat and embedding request records a
// count and a latency sample. A nil client returns nil, so callers can wrap
// unconditionally.
func InstrumentLLM(client llm.Client, m *Metrics) llm.Client {
	if client == nil {
		return nil
	}
	return &instrumentedLLM{inner: client, metrics: m}
}

func (c *instrumentedLLM) Complete(ctx context.Context, systemPrompt, userMessage string, profile llm.Profile) (string, error) {
	start := time.Now()
	out, err := c.inner.Complete(ctx, systemPrompt, userMessage, profile)
	c.record(ctx, string(profile), err, time.Since(start))
	return out, err
}

func (c *instrumentedLLM) CompleteWithHistory(ctx context.Context, systemPrompt string, history []llm.Message, profile llm.Profile) (string, error) {
	start := time.Now()
	out, err := c.inner.CompleteWithHistory(ctx, systemPrompt, history, profile)
	c.record(ctx, string(profile), err, time.Since(start))
	return out, err
}

func (c *instrumentedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	out, err := c.inner.Embed(ctx, text)
	c.record(ctx, "embed", err, time.Since(start))
	return out, err
}

func (c *instrumentedLLM) record(ctx context.Context, profile string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordLLMRequest(ctx, profile, status, d)
}

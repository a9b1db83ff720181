// Package ollama implements llm.Client against the native HTTP API of an
// Ollama server.
//
// Ollama (https://ollama.com) hosts local large language models. This package
// uses the /api/chat endpoint for completions and /api/embed for embedding
// vectors. Any server speaking the same wire contract works; a bearer token
// can be configured for remote deployments that sit behind an auth proxy.
//
// Example usage:
//
//	c, err := ollama.New(ollama.Config{Model: "llama3.1"}) // http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text, err := c.Complete(ctx, "You are a goblin.", "A stranger waves at you.", llm.ProfileNPC)
//
// Only standard library packages are used — no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"duskmire/pkg/provider/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// APIKeyEnvVar is consulted for a bearer token when Config.APIKey is empty.
const APIKeyEnvVar = "DUSKMIRE_LLM_API_KEY"

// Defaults applied to unset Config fields.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 256
)

// Ensure Client implements the llm.Client interface at compile time.
var _ llm.Client = (*Client)(nil)

// Config configures a Client. Model is required; every other field has a
// usable zero value.
type Config struct {
	// BaseURL is the base URL of the Ollama server. Empty means
	// DefaultBaseURL. A trailing slash is stripped automatically.
	BaseURL string

	// APIKey, when non-empty, is sent as "Authorization: Bearer <key>" on
	// every request. When empty, the APIKeyEnvVar environment variable is
	// consulted; if that is also empty, no Authorization header is sent.
	APIKey string

	// Model is the chat model for llm.ProfileNPC requests. Required.
	Model string

	// StoryModel is the chat model for llm.ProfileStory requests. Empty
	// means Model.
	StoryModel string

	// EmbeddingModel is the model used by Embed. Empty disables embeddings;
	// Embed then returns an error without issuing a request.
	EmbeddingModel string

	// Temperature is the sampling temperature for llm.ProfileNPC requests.
	// Zero or negative selects the package default.
	Temperature float64

	// StoryTemperature is the sampling temperature for llm.ProfileStory
	// requests. Zero or negative means Temperature.
	StoryTemperature float64

	// MaxTokens caps generated tokens (num_predict) for llm.ProfileNPC
	// requests. Zero or negative selects the package default.
	MaxTokens int

	// StoryMaxTokens caps generated tokens for llm.ProfileStory requests.
	// Zero or negative means MaxTokens.
	StoryMaxTokens int

	// Timeout bounds a single llm.ProfileNPC request, including connection
	// time and body read. Zero means no per-request deadline.
	Timeout time.Duration

	// StoryTimeout bounds a single llm.ProfileStory request. Zero means
	// Timeout.
	StoryTimeout time.Duration
}

// profileParams holds the resolved request parameters for one llm.Profile.
type profileParams struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// Client implements llm.Client using an Ollama server.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	npc            profileParams
	story          profileParams
	embeddingModel string
}

// New constructs a new Ollama Client from cfg.
//
// cfg.Model must not be empty. Unset optional fields are resolved as
// documented on [Config]: story parameters fall back to their NPC
// counterparts, and the underlying HTTP client's timeout is set to the
// larger of the two profile timeouts so that neither profile is cut short
// by the other's budget.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama llm: model must not be empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// Strip trailing slash for consistent URL construction.
	baseURL = strings.TrimRight(baseURL, "/")

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnvVar)
	}

	npc := profileParams{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
	if npc.temperature <= 0 {
		npc.temperature = defaultTemperature
	}
	if npc.maxTokens <= 0 {
		npc.maxTokens = defaultMaxTokens
	}

	story := profileParams{
		model:       cfg.StoryModel,
		temperature: cfg.StoryTemperature,
		maxTokens:   cfg.StoryMaxTokens,
		timeout:     cfg.StoryTimeout,
	}
	if story.model == "" {
		story.model = npc.model
	}
	if story.temperature <= 0 {
		story.temperature = npc.temperature
	}
	if story.maxTokens <= 0 {
		story.maxTokens = npc.maxTokens
	}
	if story.timeout <= 0 {
		story.timeout = npc.timeout
	}

	httpClient := &http.Client{}
	if m := max(npc.timeout, story.timeout); m > 0 {
		httpClient.Timeout = m
	}

	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		httpClient:     httpClient,
		npc:            npc,
		story:          story,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// chatRequest is the JSON request body sent to Ollama's /api/chat endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
	Messages []chatMessage `json:"messages"`
}

// chatOptions carries the per-request sampling parameters.
type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// chatMessage is a single chat turn on the wire.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse covers both response shapes the contract permits: the chat
// shape {"message":{"content":…}} and the generate shape {"response":…}.
type chatResponse struct {
	Message  *chatMessage `json:"message"`
	Response string       `json:"response"`
}

// embedRequest is the JSON request body sent to Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the JSON response body returned by Ollama's /api/embed
// endpoint.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Complete implements llm.Client for a single-turn request.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string, profile llm.Profile) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: llm.RoleUser, Content: userMessage})

	text, err := c.callChat(ctx, msgs, profile)
	if err != nil {
		return "", fmt.Errorf("ollama llm: complete: %w", err)
	}
	return text, nil
}

// CompleteWithHistory implements llm.Client for a multi-turn request. The
// system prompt, when non-empty, is placed before history; history order is
// preserved.
func (c *Client) CompleteWithHistory(ctx context.Context, systemPrompt string, history []llm.Message, profile llm.Profile) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	text, err := c.callChat(ctx, msgs, profile)
	if err != nil {
		return "", fmt.Errorf("ollama llm: complete with history: %w", err)
	}
	return text, nil
}

// Embed implements llm.Client by computing the embedding vector for a single
// text string. The server may return several vectors; the first is taken.
//
// Embeds run on the NPC timeout budget since they sit on the hot recall path.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, fmt.Errorf("ollama llm: embed: no embedding model configured")
	}
	if c.npc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.npc.timeout)
		defer cancel()
	}

	body, err := json.Marshal(embedRequest{Model: c.embeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama llm: embed: marshal request: %w", err)
	}

	var result embedResponse
	if err := c.post(ctx, "/api/embed", body, &result); err != nil {
		return nil, fmt.Errorf("ollama llm: embed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama llm: embed: empty embeddings in response")
	}
	return result.Embeddings[0], nil
}

// params returns the resolved request parameters for profile. Unknown
// profiles fall back to the NPC parameters.
func (c *Client) params(profile llm.Profile) profileParams {
	if profile == llm.ProfileStory {
		return c.story
	}
	return c.npc
}

// callChat sends a POST /api/chat request and extracts the completion text.
// The response may carry either message.content or response; message.content
// wins when both are present.
func (c *Client) callChat(ctx context.Context, msgs []chatMessage, profile llm.Profile) (string, error) {
	params := c.params(profile)
	if params.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:  params.model,
		Stream: false,
		Options: chatOptions{
			Temperature: params.temperature,
			NumPredict:  params.maxTokens,
		},
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var result chatResponse
	if err := c.post(ctx, "/api/chat", body, &result); err != nil {
		return "", err
	}
	if result.Message != nil && result.Message.Content != "" {
		return result.Message.Content, nil
	}
	return result.Response, nil
}

// post is the internal helper that sends a JSON POST request to the Ollama
// server and decodes the JSON response into out.
//
// It respects context cancellation via http.NewRequestWithContext.
func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

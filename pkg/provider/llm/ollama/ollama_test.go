package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duskmire/pkg/provider/llm"
	"duskmire/pkg/provider/llm/ollama"
)

// chatCapture holds the decoded body and auth header of one /api/chat request
// received by a mock server, for assertions after the call returns.
type chatCapture struct {
	Model   string `json:"model"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Authorization string `json:"-"`
}

// mockChatServer starts a test HTTP server that handles /api/chat requests and
// replies with responseBody. Captured requests are handed to the test through
// the returned getter, which blocks briefly until the handler has delivered one.
func mockChatServer(t *testing.T, responseBody string) (*httptest.Server, func() chatCapture) {
	t.Helper()
	reqCh := make(chan chatCapture, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: got %q, want /api/chat", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: got %q, want POST", r.Method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatCapture
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		req.Authorization = r.Header.Get("Authorization")
		reqCh <- req

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(responseBody)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	capture := func() chatCapture {
		select {
		case req := <-reqCh:
			return req
		case <-time.After(2 * time.Second):
			t.Fatal("no request captured")
			return chatCapture{}
		}
	}
	return srv, capture
}

// TestNew_EmptyModel verifies that constructing a Client with an empty chat
// model returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := ollama.New(ollama.Config{})
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// TestComplete_MessageContent verifies the full request shape for a
// single-turn completion and that the chat-style {"message":{"content":…}}
// response body is extracted.
func TestComplete_MessageContent(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"role":"assistant","content":"Well met, traveller."}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{
		BaseURL:     srv.URL,
		Model:       "llama3.1",
		Temperature: 0.5,
		MaxTokens:   128,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := c.Complete(context.Background(), "You are a guard.", "A stranger approaches.", llm.ProfileNPC)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Well met, traveller." {
		t.Errorf("text: got %q, want %q", text, "Well met, traveller.")
	}

	got := capture()
	if got.Model != "llama3.1" {
		t.Errorf("model: got %q, want %q", got.Model, "llama3.1")
	}
	if got.Stream {
		t.Error("stream: got true, want false")
	}
	if got.Options.Temperature != 0.5 {
		t.Errorf("temperature: got %v, want 0.5", got.Options.Temperature)
	}
	if got.Options.NumPredict != 128 {
		t.Errorf("num_predict: got %d, want 128", got.Options.NumPredict)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages: got %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "You are a guard." {
		t.Errorf("messages[0]: got %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "A stranger approaches." {
		t.Errorf("messages[1]: got %+v", got.Messages[1])
	}
}

// TestComplete_ResponseField verifies that the generate-style {"response":…}
// body shape is accepted when no message object is present.
func TestComplete_ResponseField(t *testing.T) {
	srv, _ := mockChatServer(t, `{"response":"Hmph."}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := c.Complete(context.Background(), "", "Hello?", llm.ProfileNPC)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Hmph." {
		t.Errorf("text: got %q, want %q", text, "Hmph.")
	}
}

// TestComplete_EmptySystemPrompt verifies that no system message is sent when
// the system prompt is empty.
func TestComplete_EmptySystemPrompt(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"content":"ok"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "Hello?", llm.ProfileNPC); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got := capture()
	if len(got.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(got.Messages))
	}
	if got.Messages[0].Role != "user" {
		t.Errorf("messages[0].Role: got %q, want user", got.Messages[0].Role)
	}
}

// TestComplete_StoryProfile verifies that the story profile selects the story
// model, temperature, and token cap.
func TestComplete_StoryProfile(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"content":"Once upon a time…"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{
		BaseURL:          srv.URL,
		Model:            "llama3.1",
		StoryModel:       "llama3.1:70b",
		Temperature:      0.5,
		StoryTemperature: 0.9,
		MaxTokens:        128,
		StoryMaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Complete(context.Background(), "Narrate.", "The siege begins.", llm.ProfileStory); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got := capture()
	if got.Model != "llama3.1:70b" {
		t.Errorf("model: got %q, want %q", got.Model, "llama3.1:70b")
	}
	if got.Options.Temperature != 0.9 {
		t.Errorf("temperature: got %v, want 0.9", got.Options.Temperature)
	}
	if got.Options.NumPredict != 2048 {
		t.Errorf("num_predict: got %d, want 2048", got.Options.NumPredict)
	}
}

// TestComplete_StoryFallsBackToNpcModel verifies that an unset story model
// reuses the NPC model.
func TestComplete_StoryFallsBackToNpcModel(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"content":"ok"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileStory); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := capture(); got.Model != "llama3.1" {
		t.Errorf("model: got %q, want %q", got.Model, "llama3.1")
	}
}

// TestComplete_BearerToken verifies that a configured API key is sent as an
// Authorization header.
func TestComplete_BearerToken(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"content":"ok"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1", APIKey: "sk-duskmire-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileNPC); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := capture(); got.Authorization != "Bearer sk-duskmire-test" {
		t.Errorf("Authorization: got %q, want %q", got.Authorization, "Bearer sk-duskmire-test")
	}
}

// TestComplete_NoTokenNoHeader verifies that no Authorization header is sent
// when neither the config nor the environment supplies a key.
func TestComplete_NoTokenNoHeader(t *testing.T) {
	t.Setenv(ollama.APIKeyEnvVar, "")

	srv, capture := mockChatServer(t, `{"message":{"content":"ok"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileNPC); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := capture(); got.Authorization != "" {
		t.Errorf("Authorization: got %q, want empty", got.Authorization)
	}
}

// TestComplete_APIKeyFromEnv verifies that the bearer token falls back to the
// environment when the config leaves it empty.
func TestComplete_APIKeyFromEnv(t *testing.T) {
	t.Setenv(ollama.APIKeyEnvVar, "sk-from-env")

	srv, capture := mockChatServer(t, `{"message":{"content":"ok"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileNPC); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := capture(); got.Authorization != "Bearer sk-from-env" {
		t.Errorf("Authorization: got %q, want %q", got.Authorization, "Bearer sk-from-env")
	}
}

// TestCompleteWithHistory_Order verifies that history messages are forwarded
// in order after the system prompt.
func TestCompleteWithHistory_Order(t *testing.T) {
	srv, capture := mockChatServer(t, `{"message":{"content":"And then?"}}`)
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "Who goes there?"},
		{Role: llm.RoleAssistant, Content: "A friend."},
		{Role: llm.RoleUser, Content: "Prove it."},
	}
	text, err := c.CompleteWithHistory(context.Background(), "You are a sentry.", history, llm.ProfileNPC)
	if err != nil {
		t.Fatalf("CompleteWithHistory: %v", err)
	}
	if text != "And then?" {
		t.Errorf("text: got %q, want %q", text, "And then?")
	}

	got := capture()
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages: got %d, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("messages[%d].Role: got %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[3].Content != "Prove it." {
		t.Errorf("messages[3].Content: got %q, want %q", got.Messages[3].Content, "Prove it.")
	}
}

// TestComplete_ServerError verifies that a non-200 HTTP status is treated as
// an error.
func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileNPC); err == nil {
		t.Fatal("expected error for 404 response, got nil")
	}
}

// TestComplete_MalformedJSON verifies that an unparseable response body is
// treated as an error.
func TestComplete_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), "", "x", llm.ProfileNPC); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestComplete_ProfileTimeout verifies that a request exceeding the profile
// timeout fails promptly instead of blocking.
func TestComplete_ProfileTimeout(t *testing.T) {
	// stopCh signals the handler to return so httptest.Server.Close() doesn't
	// block waiting for a hung goroutine.
	stopCh := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-stopCh:
		}
	}))
	// Defers run LIFO: close(stopCh) fires first, unblocking the handler so
	// that the subsequent srv.Close() can drain connections without hanging.
	defer srv.Close()
	defer close(stopCh)

	c, err := ollama.New(ollama.Config{
		BaseURL: srv.URL,
		Model:   "llama3.1",
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	_, err = c.Complete(context.Background(), "", "x", llm.ProfileNPC)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timed out after %v, want well under 5s", elapsed)
	}
}

// TestEmbed verifies the embed request shape and that the first vector of the
// response is returned.
func TestEmbed(t *testing.T) {
	type embedCapture struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}
	reqCh := make(chan embedCapture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: got %q, want /api/embed", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req embedCapture
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		reqCh <- req

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}, {0.9, 0.9, 0.9}},
		})
	}))
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1", EmbeddingModel: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := c.Embed(context.Background(), "the dusty cellar")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3}
	if len(vec) != len(want) {
		t.Fatalf("length: got %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d]: got %v, want %v", i, vec[i], want[i])
		}
	}

	got := <-reqCh
	if got.Model != "nomic-embed-text" {
		t.Errorf("model: got %q, want %q", got.Model, "nomic-embed-text")
	}
	if got.Input != "the dusty cellar" {
		t.Errorf("input: got %q, want %q", got.Input, "the dusty cellar")
	}
}

// TestEmbed_NoModelConfigured verifies that Embed fails fast when no
// embedding model is configured, without issuing any network request.
func TestEmbed_NoModelConfigured(t *testing.T) {
	// Use a port unlikely to be open so any accidental request would fail
	// differently than the configuration error we expect.
	c, err := ollama.New(ollama.Config{BaseURL: "http://127.0.0.1:19999", Model: "llama3.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for missing embedding model, got nil")
	}
}

// TestEmbed_EmptyResponse verifies that a response without embeddings is
// treated as an error.
func TestEmbed_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	c, err := ollama.New(ollama.Config{BaseURL: srv.URL, Model: "llama3.1", EmbeddingModel: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty embeddings, got nil")
	}
}

package config_test

import (
	"strings"
	"testing"

	"duskmire/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: debug
  metrics_addr: ":9090"
llm:
  enabled: true
  base_url: "http://ollama.internal:11434"
  model: llama3.1
  story_model: "llama3.1:70b"
  temperature: 0.6
  story_temperature: 0.9
  max_tokens: 200
  story_max_tokens: 1500
  timeout_ms: 20000
  story_timeout_ms: 90000
  embedding_model: nomic-embed-text
memory:
  enabled: true
  connection_string: "postgres://localhost:5432/duskmire"
  use_pgvector: true
  default_memory_top_k: 7
  default_kb_top_k: 4
  candidate_limit: 800
  max_write_queue: 2000
  max_writes_per_second: 50
  embedding_dimensions: 768
driver:
  loop_delay_ms: 50
  listen_addr: ":4000"
  respawn_ms: 60000
world:
  area_files: ["areas/millbrook.yaml"]
  kb_seed_files: ["seeds/lore.kb"]
  watch_seed_files: true
  start_room: "millbrook:square"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.LLM.StoryModel != "llama3.1:70b" {
		t.Errorf("story_model: got %q", cfg.LLM.StoryModel)
	}
	if cfg.LLM.TimeoutMs != 20000 || cfg.LLM.StoryTimeoutMs != 90000 {
		t.Errorf("timeouts: got %d/%d", cfg.LLM.TimeoutMs, cfg.LLM.StoryTimeoutMs)
	}
	if !cfg.Memory.UsePgvector {
		t.Error("use_pgvector: got false, want true")
	}
	if cfg.Memory.CandidateLimit != 800 {
		t.Errorf("candidate_limit: got %d, want 800", cfg.Memory.CandidateLimit)
	}
	if cfg.Driver.ListenAddr != ":4000" {
		t.Errorf("listen_addr: got %q, want :4000", cfg.Driver.ListenAddr)
	}
	if cfg.Driver.RespawnMs != 60000 {
		t.Errorf("respawn_ms: got %d, want 60000", cfg.Driver.RespawnMs)
	}
	if len(cfg.World.AreaFiles) != 1 || cfg.World.AreaFiles[0] != "areas/millbrook.yaml" {
		t.Errorf("area_files: got %v", cfg.World.AreaFiles)
	}
	if !cfg.World.WatchSeedFiles {
		t.Error("watch_seed_files: got false, want true")
	}
	if cfg.World.StartRoom != "millbrook:square" {
		t.Errorf("start_room: got %q, want millbrook:square", cfg.World.StartRoom)
	}
}

func TestLoadFromReader_EmptyInputIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Enabled || cfg.Memory.Enabled {
		t.Error("zero config should leave llm and memory disabled")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
driver:
  loop_delay_ms: 50
  tick_rate: 20
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_EnabledLLMRequiresModel(t *testing.T) {
	t.Parallel()
	yaml := `
llm:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled LLM without model, got nil")
	}
	if !strings.Contains(err.Error(), "llm.model") {
		t.Errorf("error should mention llm.model, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
llm:
  enabled: true
  temperature: 3.5
driver:
  loop_delay_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "llm.model", "temperature", "loop_delay_ms"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyAreaFileEntry(t *testing.T) {
	t.Parallel()
	yaml := `
world:
  area_files: ["areas/ok.yaml", ""]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty area file entry, got nil")
	}
	if !strings.Contains(err.Error(), "area_files[1]") {
		t.Errorf("error should name the empty entry, got: %v", err)
	}
}

func TestValidate_ListenerRequiresStartRoom(t *testing.T) {
	t.Parallel()
	yaml := `
driver:
  listen_addr: ":4000"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for listener without start room, got nil")
	}
	if !strings.Contains(err.Error(), "world.start_room") {
		t.Errorf("error should mention world.start_room, got: %v", err)
	}
}

func TestApplyEnvFallbacks_ConnectionString(t *testing.T) {
	t.Setenv(config.EnvPgDSN, "postgres://env-primary/duskmire")
	t.Setenv(config.EnvDatabaseURL, "postgres://env-secondary/duskmire")

	cfg := &config.Config{}
	config.ApplyEnvFallbacks(cfg)
	if cfg.Memory.ConnectionString != "postgres://env-primary/duskmire" {
		t.Errorf("connection string: got %q, want the %s value", cfg.Memory.ConnectionString, config.EnvPgDSN)
	}
}

func TestApplyEnvFallbacks_DatabaseURLSecondary(t *testing.T) {
	t.Setenv(config.EnvPgDSN, "")
	t.Setenv(config.EnvDatabaseURL, "postgres://env-secondary/duskmire")

	cfg := &config.Config{}
	config.ApplyEnvFallbacks(cfg)
	if cfg.Memory.ConnectionString != "postgres://env-secondary/duskmire" {
		t.Errorf("connection string: got %q, want the %s value", cfg.Memory.ConnectionString, config.EnvDatabaseURL)
	}
}

func TestApplyEnvFallbacks_YamlWins(t *testing.T) {
	t.Setenv(config.EnvPgDSN, "postgres://env/duskmire")
	t.Setenv(config.EnvLLMAPIKey, "sk-env")

	cfg := &config.Config{}
	cfg.Memory.ConnectionString = "postgres://file/duskmire"
	cfg.LLM.APIKey = "sk-file"
	config.ApplyEnvFallbacks(cfg)
	if cfg.Memory.ConnectionString != "postgres://file/duskmire" {
		t.Errorf("connection string: got %q, want the file value", cfg.Memory.ConnectionString)
	}
	if cfg.LLM.APIKey != "sk-file" {
		t.Errorf("api key: got %q, want the file value", cfg.LLM.APIKey)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("\"trace\" should not be valid")
	}
}

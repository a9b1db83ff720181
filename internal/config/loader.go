package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by [ApplyEnvFallbacks] for values the YAML
// file leaves empty.
const (
	EnvPgDSN       = "DUSKMIRE_PG_DSN"
	EnvDatabaseURL = "DATABASE_URL"
	EnvLLMAPIKey   = "DUSKMIRE_LLM_API_KEY"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment fallbacks applied. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment fallbacks,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnvFallbacks(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvFallbacks fills empty secret-bearing fields from the environment:
// memory.connection_string from DUSKMIRE_PG_DSN then DATABASE_URL, and
// llm.api_key from DUSKMIRE_LLM_API_KEY. Values present in the YAML win.
func ApplyEnvFallbacks(cfg *Config) {
	if cfg.Memory.ConnectionString == "" {
		cfg.Memory.ConnectionString = os.Getenv(EnvPgDSN)
	}
	if cfg.Memory.ConnectionString == "" {
		cfg.Memory.ConnectionString = os.Getenv(EnvDatabaseURL)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(EnvLLMAPIKey)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// LLM
	if cfg.LLM.Enabled && cfg.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required when llm.enabled is true"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.StoryTemperature < 0 || cfg.LLM.StoryTemperature > 2 {
		errs = append(errs, fmt.Errorf("llm.story_temperature %.2f is out of range [0, 2]", cfg.LLM.StoryTemperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must not be negative", cfg.LLM.MaxTokens))
	}
	if cfg.LLM.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_ms %d must not be negative", cfg.LLM.TimeoutMs))
	}
	if cfg.LLM.StoryTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("llm.story_timeout_ms %d must not be negative", cfg.LLM.StoryTimeoutMs))
	}
	if !cfg.LLM.Enabled && cfg.LLM.Model != "" {
		slog.Warn("llm.model is set but llm.enabled is false; NPCs will not use the model")
	}

	// Memory
	if cfg.Memory.Enabled && cfg.Memory.ConnectionString == "" {
		slog.Warn("memory.enabled is true but no connection string is configured; long-term memory will be unavailable",
			"env_fallbacks", []string{EnvPgDSN, EnvDatabaseURL})
	}
	if cfg.Memory.UsePgvector && cfg.LLM.EmbeddingModel == "" {
		slog.Warn("memory.use_pgvector is true but llm.embedding_model is empty; recall will fall back to importance ordering")
	}
	if cfg.Memory.UsePgvector && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("memory.use_pgvector is true but memory.embedding_dimensions is not set; defaulting to 768")
	}
	if cfg.Memory.MaxWritesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("memory.max_writes_per_second %d must not be negative", cfg.Memory.MaxWritesPerSecond))
	}

	// Driver
	if cfg.Driver.LoopDelayMs < 0 {
		errs = append(errs, fmt.Errorf("driver.loop_delay_ms %d must not be negative", cfg.Driver.LoopDelayMs))
	}
	if cfg.Driver.HeartbeatMs < 0 {
		errs = append(errs, fmt.Errorf("driver.heartbeat_ms %d must not be negative", cfg.Driver.HeartbeatMs))
	}
	if cfg.Driver.RespawnMs < 0 {
		errs = append(errs, fmt.Errorf("driver.respawn_ms %d must not be negative", cfg.Driver.RespawnMs))
	}
	if cfg.Driver.ListenAddr != "" && cfg.World.StartRoom == "" {
		errs = append(errs, fmt.Errorf("world.start_room is required when driver.listen_addr is set"))
	}

	// World
	for i, path := range cfg.World.AreaFiles {
		if path == "" {
			errs = append(errs, fmt.Errorf("world.area_files[%d] is empty", i))
		}
	}
	for i, path := range cfg.World.KbSeedFiles {
		if path == "" {
			errs = append(errs, fmt.Errorf("world.kb_seed_files[%d] is empty", i))
		}
	}
	if cfg.World.WatchSeedFiles && len(cfg.World.KbSeedFiles) == 0 {
		slog.Warn("world.watch_seed_files is true but world.kb_seed_files is empty; nothing to watch")
	}

	return errors.Join(errs...)
}

// Command duskmire is the world server: it loads areas, wires the memory and
// cognition stack, and runs the tick driver with an optional player listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duskmire/internal/action"
	"duskmire/internal/agent"
	"duskmire/internal/bus"
	"duskmire/internal/config"
	"duskmire/internal/driver"
	"duskmire/internal/goal"
	"duskmire/internal/health"
	"duskmire/internal/kbseed"
	"duskmire/internal/npc"
	"duskmire/internal/observe"
	"duskmire/internal/promote"
	"duskmire/internal/prompt"
	"duskmire/internal/session"
	"duskmire/internal/trace"
	"duskmire/internal/world"
	"duskmire/pkg/memory"
	"duskmire/pkg/memory/memstore"
	"duskmire/pkg/memory/postgres"
	"duskmire/pkg/provider/llm"
	"duskmire/pkg/provider/llm/ollama"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A local .env is a convenience for DSNs and API keys; absence is fine.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "duskmire: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "duskmire: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("duskmire starting",
		"config", *configPath,
		"listen_addr", cfg.Driver.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "duskmire"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Language model ────────────────────────────────────────────────────────
	var llmClient llm.Client
	if cfg.LLM.Enabled {
		client, err := ollama.New(ollama.Config{
			BaseURL:          cfg.LLM.BaseURL,
			APIKey:           cfg.LLM.APIKey,
			Model:            cfg.LLM.Model,
			StoryModel:       cfg.LLM.StoryModel,
			EmbeddingModel:   cfg.LLM.EmbeddingModel,
			Temperature:      cfg.LLM.Temperature,
			StoryTemperature: cfg.LLM.StoryTemperature,
			MaxTokens:        cfg.LLM.MaxTokens,
			StoryMaxTokens:   cfg.LLM.StoryMaxTokens,
			Timeout:          time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
			StoryTimeout:     time.Duration(cfg.LLM.StoryTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			slog.Error("failed to create LLM client", "err", err)
			return 1
		}
		llmClient = observe.InstrumentLLM(client, metrics)
		slog.Info("llm client ready", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	} else {
		slog.Info("llm disabled; NPCs run on evaluators only")
	}

	// ── Memory store ──────────────────────────────────────────────────────────
	var store memory.Store
	if cfg.Memory.Enabled && cfg.Memory.ConnectionString != "" {
		var embed func(context.Context, string) ([]float32, error)
		if llmClient != nil && cfg.LLM.EmbeddingModel != "" {
			embed = llmClient.Embed
		}
		pg, err := postgres.NewStore(ctx, postgres.Config{
			DSN:                 cfg.Memory.ConnectionString,
			UseVector:           cfg.Memory.UsePgvector,
			EmbeddingDimensions: cfg.Memory.EmbeddingDimensions,
			CandidateLimit:      cfg.Memory.CandidateLimit,
			EmbedText:           embed,
		})
		if err != nil {
			slog.Error("failed to open memory store", "err", err)
			return 1
		}
		store = pg
		slog.Info("postgres memory store ready", "vectors", pg.VectorEnabled())
	} else {
		store = memstore.New(memstore.Config{CandidateLimit: cfg.Memory.CandidateLimit})
		slog.Info("in-memory store ready; memories do not survive restarts")
	}
	defer store.Close()

	writer := memory.NewWriter(memory.WriterConfig{
		Store:              store.Memories(),
		QueueSize:          cfg.Memory.MaxWriteQueue,
		MaxWritesPerSecond: cfg.Memory.MaxWritesPerSecond,
		OnDrop:             func() { metrics.RecordQueueDrop(ctx) },
		OnWrite:            func(ok bool) { metrics.RecordMemoryWrite(ctx, ok) },
	})
	writer.Start(ctx)
	defer writer.Close()
	if err := metrics.RegisterQueueDepth(func() int64 { return int64(writer.Depth()) }); err != nil {
		slog.Warn("queue depth gauge registration failed", "err", err)
	}

	// ── Knowledge base seeds ──────────────────────────────────────────────────
	if cfg.World.WatchSeedFiles && len(cfg.World.KbSeedFiles) > 0 {
		watcher, err := kbseed.NewWatcher(ctx, store.KB(), cfg.World.KbSeedFiles)
		if err != nil {
			slog.Error("failed to seed knowledge base", "err", err)
			return 1
		}
		watcher.Start(ctx)
		slog.Info("kb seed files watched", "files", len(cfg.World.KbSeedFiles))
	} else if len(cfg.World.KbSeedFiles) > 0 {
		n, err := kbseed.SeedFiles(ctx, store.KB(), cfg.World.KbSeedFiles)
		if err != nil {
			slog.Error("failed to seed knowledge base", "err", err)
			return 1
		}
		slog.Info("kb seeded", "entries", n)
	}

	// ── World content ─────────────────────────────────────────────────────────
	w := world.New()
	for _, path := range cfg.World.AreaFiles {
		area, err := world.LoadAreaFile(path)
		if err != nil {
			slog.Error("failed to load area", "path", path, "err", err)
			return 1
		}
		if err := w.Install(area); err != nil {
			slog.Error("failed to install area", "path", path, "err", err)
			return 1
		}
		slog.Info("area installed", "area", area.Area.ID, "rooms", len(area.Rooms))
	}

	// ── Cognition stack ───────────────────────────────────────────────────────
	tracer := trace.New()
	exec := action.NewExecutor(w, action.WithTracer(tracer), action.WithMetrics(metrics))
	goals := goal.NewManager(store.Goals(), store.Needs(), tracer)
	evaluators := goal.NewRegistry(goal.NewReachRoom(), goal.NewAcquireItem())
	promoter := promote.NewPromoter(writer, promote.WithTracer(tracer))

	promptOpts := []prompt.Option{prompt.WithTracer(tracer)}
	if cfg.Memory.DefaultMemoryTopK > 0 {
		promptOpts = append(promptOpts, prompt.WithMemoryTopK(cfg.Memory.DefaultMemoryTopK))
	}
	if cfg.Memory.DefaultKbTopK > 0 {
		promptOpts = append(promptOpts, prompt.WithKbTopK(cfg.Memory.DefaultKbTopK))
	}
	if llmClient != nil && cfg.LLM.EmbeddingModel != "" {
		promptOpts = append(promptOpts, prompt.WithEmbedder(llmClient))
	}
	prompts := prompt.NewBuilder(store.Memories(), store.KB(), promptOpts...)

	buildMind := func(prof *npc.Profile, st *npc.State, deliver func([]world.RoomEvent)) (*agent.Mind, error) {
		id := prof.ID
		return agent.NewMind(agent.Config{
			Profile:    prof,
			State:      st,
			World:      w,
			LLM:        llmClient,
			Prompt:     prompts,
			Goals:      goals,
			Evaluators: evaluators,
			Executor:   exec,
			Tracer:     tracer,
			Deliver: func(events []world.RoomEvent) {
				metrics.RecordNPCTurn(ctx, id)
				deliver(events)
			},
		})
	}

	// ── Driver ────────────────────────────────────────────────────────────────
	drv, err := driver.New(driver.Config{
		World:          w,
		Sessions:       session.NewManager(),
		Bus:            bus.New(),
		NPCs:           npc.NewRegistry(),
		Executor:       exec,
		MindBuilder:    buildMind,
		Promoter:       promoter,
		Tracer:         tracer,
		Metrics:        metrics,
		LoopDelay:      time.Duration(cfg.Driver.LoopDelayMs) * time.Millisecond,
		HeartbeatEvery: time.Duration(cfg.Driver.HeartbeatMs) * time.Millisecond,
		RespawnDelay:   time.Duration(cfg.Driver.RespawnMs) * time.Millisecond,
		ListenAddr:     cfg.Driver.ListenAddr,
		StartRoom:      cfg.World.StartRoom,
	})
	if err != nil {
		slog.Error("failed to initialise driver", "err", err)
		return 1
	}

	// Spawns run through the driver's spawn hook, so rooms boot after it is
	// installed.
	if err := w.BootSpawnRooms(); err != nil {
		slog.Error("failed to boot spawn rooms", "err", err)
		return 1
	}

	// ── Diagnostics endpoint ──────────────────────────────────────────────────
	var diagSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(health.Checker{
			Name: "memory_store",
			Check: func(ctx context.Context) error {
				_, err := store.KB().Get(ctx, "healthz")
				return err
			},
		}).Register(mux)

		diagSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := diagSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("diagnostics server error", "err", err)
			}
		}()
		slog.Info("diagnostics listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	printStartupSummary(cfg)
	slog.Info("world ticking — press Ctrl+C to shut down")

	if err := drv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	writer.Close()
	if diagSrv != nil {
		if err := diagSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("diagnostics shutdown error", "err", err)
		}
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Duskmire — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", summaryLLM(cfg))
	printRow("Memory", summaryMemory(cfg))
	printRow("Areas", fmt.Sprintf("%d file(s)", len(cfg.World.AreaFiles)))
	printRow("KB seeds", fmt.Sprintf("%d file(s)", len(cfg.World.KbSeedFiles)))
	if cfg.Driver.ListenAddr != "" {
		printRow("Players", cfg.Driver.ListenAddr+" → "+cfg.World.StartRoom)
	} else {
		printRow("Players", "(no listener)")
	}
	if cfg.Server.MetricsAddr != "" {
		printRow("Diagnostics", cfg.Server.MetricsAddr)
	} else {
		printRow("Diagnostics", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func summaryLLM(cfg *config.Config) string {
	if !cfg.LLM.Enabled {
		return "(disabled)"
	}
	return cfg.LLM.Model
}

func summaryMemory(cfg *config.Config) string {
	if cfg.Memory.Enabled && cfg.Memory.ConnectionString != "" {
		if cfg.Memory.UsePgvector {
			return "postgres + pgvector"
		}
		return "postgres"
	}
	return "in-memory"
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s   : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

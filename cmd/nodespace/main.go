// Command nodespace is the main entry point for the NodeSpace core logic
// server: it loads configuration, wires the storage, embedding, and
// generation providers, and serves the health/readiness HTTP endpoints
// while the core service is available for in-process callers.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nodespace/corelogic/internal/config"
	"github.com/nodespace/corelogic/internal/core"
	"github.com/nodespace/corelogic/internal/health"
	"github.com/nodespace/corelogic/internal/observe"
	"github.com/nodespace/corelogic/internal/resilience"
	"github.com/nodespace/corelogic/pkg/embedmodel"
	"github.com/nodespace/corelogic/pkg/embedmodel/ollama"
	"github.com/nodespace/corelogic/pkg/embedmodel/openai"
	embedmock "github.com/nodespace/corelogic/pkg/embedmodel/mock"
	"github.com/nodespace/corelogic/pkg/genmodel"
	"github.com/nodespace/corelogic/pkg/genmodel/anyllm"
	genopenai "github.com/nodespace/corelogic/pkg/genmodel/openai"
	genmock "github.com/nodespace/corelogic/pkg/genmodel/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nodespace: config file %q not found — pass -config with the path to a YAML config file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nodespace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("nodespace starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ──────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "nodespace-core"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Core service ───────────────────────────────────────────────────────────
	svc := core.New(cfg, providers, core.WithMetrics(metrics))
	if err := svc.Initialize(ctx); err != nil {
		slog.Error("failed to initialise core service", "err", err)
		return 1
	}

	// ── Config hot-reload ──────────────────────────────────────────────────────
	// Only the RAG generation knobs (temperature, top_p, max_tokens, prompt
	// preamble, default_k) take effect without a restart — provider and store
	// changes still require one, since rewiring those safely while requests
	// are in flight isn't supported.
	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config) {
		svc.Reconfigure(newCfg)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server: health/readiness ─────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "store", Check: func(checkCtx context.Context) error {
			type pinger interface{ Ping(context.Context) error }
			if p, ok := svc.Store().(pinger); ok {
				return p.Ping(checkCtx)
			}
			return nil
		}},
	).Register(mux)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: observe.Middleware(metrics)(mux)}

	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with the core. Used for startup logging.
var builtinProviders = map[string][]string{
	"embeddings": {"openai", "ollama", "mock"},
	"generate":   {"openai", "anyllm", "mock"},
}

// registerBuiltinProviders wires the concrete factory functions for every
// provider name the core ships with into reg.
func registerBuiltinProviders(reg *config.Registry) {
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embedmodel.Provider, error) {
		opts := []openai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embedmodel.Provider, error) {
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(baseURL, e.Model)
	})
	reg.RegisterEmbeddings("mock", func(e config.ProviderEntry) (embedmodel.Provider, error) {
		return &embedmock.Provider{EmbedResult: make([]float32, 1536), DimensionsValue: 1536, ModelIDValue: "mock"}, nil
	})

	reg.RegisterGenerate("openai", func(e config.ProviderEntry) (genmodel.Provider, error) {
		opts := []genopenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, genopenai.WithBaseURL(e.BaseURL))
		}
		return genopenai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterGenerate("anyllm", func(e config.ProviderEntry) (genmodel.Provider, error) {
		backend, _ := e.Options["backend"].(string)
		if backend == "" {
			backend = "openai"
		}
		opts := []anyllmlib.Option{}
		if e.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
		}
		return anyllm.New(backend, e.Model, opts...)
	})
	reg.RegisterGenerate("mock", func(e config.ProviderEntry) (genmodel.Provider, error) {
		return &genmock.Provider{GenerateResult: "mock response"}, nil
	})
}

// buildProviders instantiates the embeddings and generation providers named
// in cfg using the registry, wrapping each in a fallback chain when the
// entry's Fallbacks list is non-empty.
func buildProviders(cfg *config.Config, reg *config.Registry) (*core.Providers, error) {
	ps := &core.Providers{}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		entry := cfg.Providers.Embeddings
		p, err := reg.CreateEmbeddings(entry)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "embeddings", "name", name)

		if len(entry.Fallbacks) > 0 {
			fb := resilience.NewEmbedFallback(p, name, resilience.FallbackConfig{})
			for _, fe := range entry.Fallbacks {
				fp, err := reg.CreateEmbeddings(fe)
				if err != nil {
					return nil, fmt.Errorf("create embeddings fallback %q: %w", fe.Name, err)
				}
				fb.AddFallback(fe.Name, fp)
				slog.Info("embeddings fallback registered", "primary", name, "fallback", fe.Name)
			}
			ps.Embeddings = fb
		} else {
			ps.Embeddings = p
		}
	}

	if name := cfg.Providers.Generate.Name; name != "" {
		entry := cfg.Providers.Generate
		p, err := reg.CreateGenerate(entry)
		if err != nil {
			return nil, fmt.Errorf("create generate provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "generate", "name", name)

		if len(entry.Fallbacks) > 0 {
			fb := resilience.NewGenerateFallback(p, name, resilience.FallbackConfig{})
			for _, fe := range entry.Fallbacks {
				fp, err := reg.CreateGenerate(fe)
				if err != nil {
					return nil, fmt.Errorf("create generate fallback %q: %w", fe.Name, err)
				}
				fb.AddFallback(fe.Name, fp)
				slog.Info("generate fallback registered", "primary", name, "fallback", fe.Name)
			}
			ps.Generate = fb
		} else {
			ps.Generate = p
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      NodeSpace Core — startup summary ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if n := len(cfg.Providers.Embeddings.Fallbacks); n > 0 {
		fmt.Printf("║    fallbacks     : %-19d ║\n", n)
	}
	printProvider("Generate", cfg.Providers.Generate.Name, cfg.Providers.Generate.Model)
	if n := len(cfg.Providers.Generate.Fallbacks); n > 0 {
		fmt.Printf("║    fallbacks     : %-19d ║\n", n)
	}
	fmt.Printf("║  RAG default k   : %-19d ║\n", cfg.RAG.DefaultK)
	fmt.Printf("║  RAG temperature : %-19.2f ║\n", cfg.RAG.Temperature)
	fmt.Printf("║  RAG top_p       : %-19.2f ║\n", cfg.RAG.TopP)
	fmt.Printf("║  RAG max_tokens  : %-19d ║\n", cfg.RAG.MaxTokens)
	fmt.Printf("║  Token budget    : %-19d ║\n", cfg.RAG.TokenBudget)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

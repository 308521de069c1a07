// Command switchyard is the main entry point for the Switchyard tool-routing
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/extension"
	"github.com/switchyard-ai/switchyard/internal/health"
	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/internal/router"
	"github.com/switchyard-ai/switchyard/internal/server"
	"github.com/switchyard-ai/switchyard/pkg/provider/embeddings"
	ollamaembed "github.com/switchyard-ai/switchyard/pkg/provider/embeddings/ollama"
	oaembed "github.com/switchyard-ai/switchyard/pkg/provider/embeddings/openai"
	"github.com/switchyard-ai/switchyard/pkg/provider/llm"
	"github.com/switchyard-ai/switchyard/pkg/provider/llm/anyllm"
	oai "github.com/switchyard-ai/switchyard/pkg/provider/llm/openai"
	"github.com/switchyard-ai/switchyard/pkg/toolstore"
	"github.com/switchyard-ai/switchyard/pkg/toolstore/memstore"
	pgstore "github.com/switchyard-ai/switchyard/pkg/toolstore/postgres"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serverURL := flag.String("server", "http://localhost:8080", "base URL of a running server, used by the info subcommand")
	flag.Parse()

	// "switchyard info" is a client command against a running server; it needs
	// no config file and no providers.
	if flag.Arg(0) == "info" {
		return runInfo(os.Stdout, *serverURL)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "switchyard: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "switchyard: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("switchyard starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "switchyard",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if cfg.Providers.LLM.Name == "" {
		slog.Error("no LLM provider configured; tool selection needs one")
		return 1
	}
	provider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create LLM provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	// ── Tool selector ─────────────────────────────────────────────────────────
	selector, err := router.New(ctx, router.Config{
		Strategy:   router.Strategy(cfg.Router.Strategy),
		TableName:  cfg.Router.TableName,
		OpenStore:  openStore(cfg),
		Embeddings: &cfg.Router.Embedding,
		Registry:   reg,
		Metrics:    metrics,
	}, provider)
	if err != nil {
		slog.Error("failed to build tool selector", "strategy", cfg.Router.Strategy, "err", err)
		return 1
	}
	slog.Info("tool selector ready", "strategy", selector.Type())

	// ── Extensions ────────────────────────────────────────────────────────────
	host := extension.New(selector, metrics)
	if err := host.SyncAll(ctx, cfg.Extensions); err != nil {
		// Partial failures are tolerated; the healthy extensions keep serving.
		slog.Warn("some extensions failed to register", "err", err)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checker := health.Checker{
		Name: "extensions",
		Check: func(context.Context) error {
			if got, want := len(host.Extensions()), len(cfg.Extensions); got < want {
				return fmt.Errorf("%d of %d extensions registered", got, want)
			}
			return nil
		},
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := server.New(server.Config{
		Addr:     addr,
		Selector: selector,
		Host:     host,
		Health:   health.New(checker),
		Metrics:  metrics,
		Version:  version,
	})

	printStartupSummary(cfg, addr, selector.Type())

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- srv.StartTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- srv.Start()
	}()

	slog.Info("server ready, press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	var failed bool
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "err", err)
		failed = true
	}
	if err := host.Close(shutdownCtx); err != nil {
		slog.Warn("extension host close error", "err", err)
	}
	if failed {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// openai uses the native SDK client: it doubles as an embedding provider,
	// which lets the vector strategy run without a dedicated embedder.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oai.Option
		if entry.BaseURL != "" {
			opts = append(opts, oai.WithBaseURL(entry.BaseURL))
		}
		if em := optString(entry.Options, "embedding_model"); em != "" {
			opts = append(opts, oai.WithEmbeddingModel(em))
		}
		return oai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted providers share the any-llm pattern: optional
	// APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// openStore returns the catalog opener for the vector strategy. With a
// Postgres DSN configured it opens the durable pgvector catalog; otherwise it
// falls back to the in-memory store, which is rebuilt from the extensions on
// every start.
func openStore(cfg *config.Config) router.OpenStoreFunc {
	return func(ctx context.Context, table string, dimensions int) (toolstore.Store, error) {
		if cfg.Catalog.PostgresDSN == "" {
			slog.Warn("no catalog database configured, using the in-memory tool catalog")
			return memstore.New(), nil
		}
		if cfg.Catalog.EmbeddingDimensions > 0 {
			dimensions = cfg.Catalog.EmbeddingDimensions
		}
		return pgstore.New(ctx, cfg.Catalog.PostgresDSN, table, dimensions)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string, strategy router.Strategy) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Switchyard startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Router.Embedding.Provider, cfg.Router.Embedding.Model)
	fmt.Printf("║  Strategy        : %-19s ║\n", strategy)
	if cfg.Catalog.PostgresDSN != "" {
		fmt.Printf("║  Catalog         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Catalog         : %-19s ║\n", "in-memory")
	}
	fmt.Printf("║  Extensions      : %-19d ║\n", len(cfg.Extensions))
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncateLabel(value, 19))
}

// truncateLabel shortens s to at most max runes, marking the cut with an
// ellipsis. Counting runes keeps multi-byte provider or model names intact.
func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
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

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

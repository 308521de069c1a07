package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the embedding configuration. They win
// over the YAML values and are resolved once at load time.
const (
	EnvEmbeddingProvider = "SWITCHYARD_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "SWITCHYARD_EMBEDDING_MODEL"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// validStrategies are the accepted router.strategy values. Empty selects the
// default backend at construction time.
var validStrategies = []string{"", "vector", "llm"}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. It is a convenience wrapper
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

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides resolves the SWITCHYARD_EMBEDDING_* environment variables
// into cfg and fills in the default embedding model. Resolution happens once
// here so the rest of the system never consults the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Router.Embedding.Provider = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Router.Embedding.Model = v
	}
	if cfg.Router.Embedding.Provider != "" && cfg.Router.Embedding.Model == "" {
		cfg.Router.Embedding.Model = DefaultEmbeddingModel
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

	// Provider name validation, warnings only.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("embeddings", cfg.Router.Embedding.Provider)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; tool selection will not be available")
	}

	// Router
	if !slices.Contains(validStrategies, cfg.Router.Strategy) {
		errs = append(errs, fmt.Errorf("router.strategy %q is invalid; valid values: vector, llm", cfg.Router.Strategy))
	}
	if cfg.Router.Strategy == "vector" {
		if cfg.Router.TableName == "" {
			errs = append(errs, fmt.Errorf("router.table_name is required when router.strategy is vector"))
		}
		if cfg.Catalog.PostgresDSN == "" {
			slog.Warn("catalog.postgres_dsn is empty; the vector strategy will use the in-memory catalog and lose it on restart")
		}
	}

	// Embedding dimensions cross-check
	if cfg.Catalog.PostgresDSN != "" && cfg.Catalog.EmbeddingDimensions <= 0 {
		slog.Warn("catalog.postgres_dsn is configured but catalog.embedding_dimensions is not set; the embedding provider's reported dimension will be used")
	}

	// Extension duplicate name detection
	namesSeen := make(map[string]int, len(cfg.Extensions))

	for i, ext := range cfg.Extensions {
		prefix := fmt.Sprintf("extensions[%d]", i)
		if ext.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[ext.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of extensions[%d]", prefix, ext.Name, prev))
			}
			namesSeen[ext.Name] = i
		}
		if ext.Transport != "" && !ext.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, ext.Transport))
		}
		if ext.Transport == TransportStdio && ext.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if ext.Transport == TransportStreamableHTTP && ext.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

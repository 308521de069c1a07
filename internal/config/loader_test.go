package config_test

import (
	"strings"
	"testing"

	"github.com/switchyard-ai/switchyard/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
router:
  strategy: vector
  table_name: tool_catalog
  embedding:
    provider: openai
catalog:
  postgres_dsn: postgres://localhost:5432/switchyard
  embedding_dimensions: 1536
extensions:
  - name: files
    transport: stdio
    command: npx -y files-mcp
  - name: web
    transport: streamable-http
    url: https://mcp.example.com/mcp
`

// TestLoadFromReader_Valid verifies a complete config round trip, including
// the default embedding model fill-in.
func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Router.Strategy != "vector" {
		t.Errorf("strategy = %q, want vector", cfg.Router.Strategy)
	}
	if cfg.Router.Embedding.Model != config.DefaultEmbeddingModel {
		t.Errorf("embedding model = %q, want default %q", cfg.Router.Embedding.Model, config.DefaultEmbeddingModel)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[1].URL != "https://mcp.example.com/mcp" {
		t.Errorf("extensions not decoded as expected: %+v", cfg.Extensions)
	}
}

// TestLoadFromReader_UnknownField verifies that strict decoding rejects
// misspelled keys.
func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted an unknown field")
	}
}

// TestLoadFromReader_Empty verifies that an empty document yields a usable
// zero config.
func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader of empty input returned error: %v", err)
	}
	if cfg.Router.Strategy != "" {
		t.Errorf("strategy = %q, want empty", cfg.Router.Strategy)
	}
}

// TestEnvOverrides verifies that the SWITCHYARD_EMBEDDING_* variables win
// over the YAML values. Not parallel: t.Setenv forbids it.
func TestEnvOverrides(t *testing.T) {
	t.Setenv(config.EnvEmbeddingProvider, "ollama")
	t.Setenv(config.EnvEmbeddingModel, "nomic-embed-text")

	cfg, err := config.LoadFromReader(strings.NewReader(`
router:
  embedding:
    provider: openai
    model: text-embedding-3-large
`))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Router.Embedding.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", cfg.Router.Embedding.Provider)
	}
	if cfg.Router.Embedding.Model != "nomic-embed-text" {
		t.Errorf("model = %q, want nomic-embed-text", cfg.Router.Embedding.Model)
	}
}

// TestEnvOverrides_ProviderOnlyFillsDefaultModel verifies the default model
// when only the provider variable is set.
func TestEnvOverrides_ProviderOnlyFillsDefaultModel(t *testing.T) {
	t.Setenv(config.EnvEmbeddingProvider, "openai")

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Router.Embedding.Model != config.DefaultEmbeddingModel {
		t.Errorf("model = %q, want default %q", cfg.Router.Embedding.Model, config.DefaultEmbeddingModel)
	}
}

// TestValidate_Errors verifies that validation reports every failure.
func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: "server.log_level",
		},
		{
			name: "bad strategy",
			yaml: "router:\n  strategy: bayesian\n",
			want: "router.strategy",
		},
		{
			name: "vector without table name",
			yaml: "router:\n  strategy: vector\n",
			want: "router.table_name",
		},
		{
			name: "extension without name",
			yaml: "extensions:\n  - transport: stdio\n    command: srv\n",
			want: "extensions[0].name",
		},
		{
			name: "stdio without command",
			yaml: "extensions:\n  - name: files\n    transport: stdio\n",
			want: "extensions[0].command",
		},
		{
			name: "streamable-http without url",
			yaml: "extensions:\n  - name: web\n    transport: streamable-http\n",
			want: "extensions[0].url",
		},
		{
			name: "duplicate extension names",
			yaml: "extensions:\n  - name: files\n    transport: stdio\n    command: a\n  - name: files\n    transport: stdio\n    command: b\n",
			want: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("LoadFromReader accepted invalid config:\n%s", tt.yaml)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

// TestValidate_JoinsMultipleErrors verifies that all failures are reported at
// once rather than one at a time.
func TestValidate_JoinsMultipleErrors(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
router:
  strategy: bayesian
`))
	if err == nil {
		t.Fatal("LoadFromReader accepted invalid config")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.log_level") || !strings.Contains(msg, "router.strategy") {
		t.Errorf("joined error %q does not report both failures", msg)
	}
}

// Package extension connects Switchyard to MCP tool servers and mirrors
// their tools into the router's catalog.
//
// Each configured extension is one MCP server reached over stdio or
// streamable-HTTP using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). On registration the host
// discovers the server's tools, qualifies their names with the extension
// name, and indexes them through the [router.Selector]; on deregistration it
// removes them again. Tool executions are routed to the owning session and
// recorded into the selector's call history.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/internal/router"
)

// nameSeparator joins an extension name and a tool name into the fully
// qualified form the rest of the system uses ("files__read").
const nameSeparator = "__"

// Result is the outcome of one tool execution.
type Result struct {
	// Content is the concatenated text content returned by the tool.
	Content string

	// IsError reports an application-level tool failure (the call itself
	// succeeded but the tool reported an error).
	IsError bool

	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
}

// conn holds a live connection to one extension's MCP server.
type conn struct {
	session *mcpsdk.ClientSession
	// tools lists the fully qualified names this extension contributed to the
	// router catalog.
	tools []string
}

// Host manages extension connections and keeps the router catalog in sync
// with them. All methods are safe for concurrent use.
type Host struct {
	mu       sync.RWMutex
	selector router.Selector
	conns    map[string]*conn // key: extension name

	// client is reused across all connections. The official SDK allows a
	// single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	metrics *observe.Metrics
}

// New creates a Host that maintains the given selector's catalog.
// metrics may be nil.
func New(selector router.Selector, metrics *observe.Metrics) *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "switchyard", Version: "1.0.0"},
		nil,
	)
	return &Host{
		selector: selector,
		conns:    make(map[string]*conn),
		client:   client,
		metrics:  metrics,
	}
}

// Register connects to the extension described by cfg, discovers its tools,
// and indexes them into the router catalog under the extension's name.
// Registering an already-registered extension replaces the old connection;
// indexing is idempotent, so the catalog is unaffected by the re-discovery.
func (h *Host) Register(ctx context.Context, cfg config.ExtensionConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("extension: name must not be empty")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("extension: unknown transport %q for extension %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case config.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("extension: stdio extension %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case config.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("extension: streamable-http extension %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("extension: failed to connect to %q: %w", cfg.Name, err)
	}

	// Discover tools using the iterator.
	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("extension: failed to list tools for %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	qualified := qualifyTools(cfg.Name, discovered)
	if err := h.selector.IndexTools(ctx, qualified, cfg.Name); err != nil {
		_ = session.Close()
		return fmt.Errorf("extension: failed to index tools for %q: %w", cfg.Name, err)
	}

	names := make([]string, 0, len(qualified))
	for _, t := range qualified {
		names = append(names, t.Name)
	}

	h.mu.Lock()
	old, existed := h.conns[cfg.Name]
	h.conns[cfg.Name] = &conn{session: session, tools: names}
	h.mu.Unlock()

	if existed {
		_ = old.session.Close()
	} else if h.metrics != nil {
		h.metrics.ActiveExtensions.Add(ctx, 1)
	}

	slog.Info("extension registered",
		"extension", cfg.Name,
		"transport", string(cfg.Transport),
		"tools", len(names),
	)
	return nil
}

// Deregister closes the extension's connection and removes its tools from
// the router catalog. Deregistering an unknown extension is a no-op.
func (h *Host) Deregister(ctx context.Context, name string) error {
	h.mu.Lock()
	c, ok := h.conns[name]
	delete(h.conns, name)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	if h.metrics != nil {
		h.metrics.ActiveExtensions.Add(ctx, -1)
	}

	var errs []error
	for _, toolName := range c.tools {
		if err := h.selector.RemoveTool(ctx, toolName); err != nil {
			errs = append(errs, fmt.Errorf("extension: remove tool %q: %w", toolName, err))
		}
	}
	if err := c.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("extension: close %q: %w", name, err))
	}
	return errors.Join(errs...)
}

// SyncAll registers every configured extension concurrently. A failing
// extension is logged and does not prevent the others from coming up; the
// joined error reports all failures.
func (h *Host) SyncAll(ctx context.Context, cfgs []config.ExtensionConfig) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, cfg := range cfgs {
		g.Go(func() error {
			if err := h.Register(ctx, cfg); err != nil {
				slog.Error("extension registration failed", "extension", cfg.Name, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ExecuteTool invokes a fully qualified tool and records the call in the
// router's history. args must be a JSON object string; "" and "{}" mean no
// arguments.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*Result, error) {
	extName, bare, ok := strings.Cut(name, nameSeparator)
	if !ok {
		return nil, fmt.Errorf("extension: tool name %q is not qualified as extension%stool", name, nameSeparator)
	}

	h.mu.RLock()
	c, found := h.conns[extName]
	h.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("extension: %q not registered for tool %q", extName, name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("extension: invalid args JSON for tool %q: %w", name, err)
		}
	}

	start := time.Now()
	callResult, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      bare,
		Arguments: argsMap,
	})
	durationMs := time.Since(start).Milliseconds()

	if h.metrics != nil {
		status := "ok"
		if err != nil || (callResult != nil && callResult.IsError) {
			status = "error"
		}
		h.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(
				observe.Attr("tool", name),
				observe.Attr("status", status),
			),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("extension: call to tool %q failed: %w", name, err)
	}

	// A completed call feeds the recency signal regardless of the tool's own
	// success flag.
	h.selector.RecordToolCall(name)

	var sb strings.Builder
	for _, content := range callResult.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return &Result{
		Content:    sb.String(),
		IsError:    callResult.IsError,
		DurationMs: durationMs,
	}, nil
}

// Extensions returns the names of all registered extensions.
func (h *Host) Extensions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.conns))
	for name := range h.conns {
		names = append(names, name)
	}
	return names
}

// Tools returns the fully qualified names of every tool contributed by the
// registered extensions.
func (h *Host) Tools() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var names []string
	for _, c := range h.conns {
		names = append(names, c.tools...)
	}
	return names
}

// Close deregisters every extension and releases all sessions.
func (h *Host) Close(ctx context.Context) error {
	h.mu.RLock()
	names := make([]string, 0, len(h.conns))
	for name := range h.conns {
		names = append(names, name)
	}
	h.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := h.Deregister(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// qualifyTools returns copies of tools with names prefixed by the extension
// name. The originals are never mutated; they belong to the SDK session.
func qualifyTools(extension string, tools []*mcpsdk.Tool) []*mcpsdk.Tool {
	qualified := make([]*mcpsdk.Tool, 0, len(tools))
	for _, t := range tools {
		cp := *t
		cp.Name = extension + nameSeparator + t.Name
		qualified = append(qualified, &cp)
	}
	return qualified
}

// splitCommand splits a command line into executable and arguments.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

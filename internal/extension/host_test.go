package extension

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/router"
	llmmock "github.com/switchyard-ai/switchyard/pkg/provider/llm/mock"
)

func newTestHost() *Host {
	return New(router.NewLLMSelector(&llmmock.Provider{}, nil), nil)
}

// TestQualifyTools verifies name qualification and that the SDK's tool
// structs are copied, not mutated.
func TestQualifyTools(t *testing.T) {
	t.Parallel()
	original := &mcpsdk.Tool{Name: "read", Description: "Reads a file."}

	qualified := qualifyTools("files", []*mcpsdk.Tool{original})
	if len(qualified) != 1 {
		t.Fatalf("qualifyTools returned %d tools, want 1", len(qualified))
	}
	if qualified[0].Name != "files__read" {
		t.Errorf("qualified name = %q, want files__read", qualified[0].Name)
	}
	if original.Name != "read" {
		t.Errorf("original tool was mutated to %q", original.Name)
	}
}

// TestSplitCommand verifies command-line splitting.
func TestSplitCommand(t *testing.T) {
	t.Parallel()
	exe, args := splitCommand("npx -y my-mcp-server --port 9000")
	if exe != "npx" {
		t.Errorf("executable = %q, want npx", exe)
	}
	if len(args) != 4 || args[0] != "-y" || args[3] != "9000" {
		t.Errorf("args = %v, want [-y my-mcp-server --port 9000]", args)
	}

	exe, args = splitCommand("")
	if exe != "" || args != nil {
		t.Errorf("splitCommand(\"\") = %q, %v, want empty", exe, args)
	}
}

// TestRegister_Validation verifies the configuration errors that surface
// before any connection attempt.
func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	h := newTestHost()
	ctx := context.Background()

	if err := h.Register(ctx, config.ExtensionConfig{Transport: config.TransportStdio, Command: "srv"}); err == nil {
		t.Error("Register without a name succeeded, want error")
	}
	if err := h.Register(ctx, config.ExtensionConfig{Name: "x", Transport: "carrier-pigeon"}); err == nil {
		t.Error("Register with unknown transport succeeded, want error")
	}
	if err := h.Register(ctx, config.ExtensionConfig{Name: "x", Transport: config.TransportStdio}); err == nil {
		t.Error("Register stdio without command succeeded, want error")
	}
	if err := h.Register(ctx, config.ExtensionConfig{Name: "x", Transport: config.TransportStreamableHTTP}); err == nil {
		t.Error("Register streamable-http without URL succeeded, want error")
	}
}

// TestSyncAll_FailureIsolation verifies that one broken extension does not
// stop the others from being attempted and that every failure is reported.
func TestSyncAll_FailureIsolation(t *testing.T) {
	t.Parallel()
	h := newTestHost()

	err := h.SyncAll(context.Background(), []config.ExtensionConfig{
		{Name: "broken-a", Transport: config.TransportStdio},          // missing command
		{Name: "broken-b", Transport: config.TransportStreamableHTTP}, // missing URL
	})
	if err == nil {
		t.Fatal("SyncAll with two broken extensions returned nil error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "broken-a") || !strings.Contains(msg, "broken-b") {
		t.Errorf("joined error %q does not report both failures", msg)
	}
}

// TestExecuteTool_Errors verifies the lookup errors.
func TestExecuteTool_Errors(t *testing.T) {
	t.Parallel()
	h := newTestHost()
	ctx := context.Background()

	if _, err := h.ExecuteTool(ctx, "unqualified", "{}"); err == nil {
		t.Error("ExecuteTool with unqualified name succeeded, want error")
	}
	if _, err := h.ExecuteTool(ctx, "ghost__tool", "{}"); err == nil {
		t.Error("ExecuteTool for unregistered extension succeeded, want error")
	}
}

// TestDeregister_Unknown verifies that deregistering an unknown extension is
// a no-op.
func TestDeregister_Unknown(t *testing.T) {
	t.Parallel()
	h := newTestHost()
	if err := h.Deregister(context.Background(), "nosuch"); err != nil {
		t.Errorf("Deregister of unknown extension returned error: %v", err)
	}
}

package router_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchyard-ai/switchyard/internal/router"
	"github.com/switchyard-ai/switchyard/pkg/provider/llm"
	llmmock "github.com/switchyard-ai/switchyard/pkg/provider/llm/mock"
)

// calcTool and webTool are the fixtures most tests index under "calc" and
// "web" extensions.
func calcTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "calc__evaluate",
		Description: "Evaluates an arithmetic expression.",
	}
}

func webTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "web__fetch",
		Description: "Fetches the contents of a URL.",
	}
}

// TestLLMSelector_SelectTools_MissingQuery verifies the invalid-params error.
func TestLLMSelector_SelectTools_MissingQuery(t *testing.T) {
	t.Parallel()
	s := router.NewLLMSelector(&llmmock.Provider{}, nil)

	_, err := s.SelectTools(context.Background(), router.Query{})
	var rerr *router.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("SelectTools with empty query returned %v, want *router.Error", err)
	}
	if rerr.Code != router.CodeInvalidParams {
		t.Errorf("error code = %s, want %s", rerr.Code, router.CodeInvalidParams)
	}
}

// TestLLMSelector_SelectTools_EmptyCatalog verifies that an empty catalog
// yields an empty result without spending a completion.
func TestLLMSelector_SelectTools_EmptyCatalog(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)

	got, err := s.SelectTools(context.Background(), router.Query{Text: "add two numbers"})
	if err != nil {
		t.Fatalf("SelectTools on empty catalog returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SelectTools on empty catalog = %v, want empty", got)
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("provider was called %d times for an empty catalog, want 0", len(p.CompleteCalls))
	}
}

// TestLLMSelector_SelectTools_ParsesToolBlocks verifies that the model
// response is split on blank lines and only tool blocks survive, in model
// order.
func TestLLMSelector_SelectTools_ParsesToolBlocks(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Here are the relevant tools:\n\n" +
				"Tool: calc__evaluate\nDescription: Evaluates an arithmetic expression.\nSchema: {}\n\n" +
				"Tool: web__fetch\nDescription: Fetches the contents of a URL.\nSchema: {}\n\n" +
				"Those should cover it.",
		},
	}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool(), webTool()}, "calc")

	got, err := s.SelectTools(context.Background(), router.Query{Text: "add two numbers"})
	if err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SelectTools returned %d blocks, want 2: %v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "Tool: calc__evaluate\n") {
		t.Errorf("first block = %q, want calc__evaluate first", got[0])
	}
	if !strings.HasPrefix(got[1], "Tool: web__fetch\n") {
		t.Errorf("second block = %q, want web__fetch second", got[1])
	}
}

// TestLLMSelector_SelectTools_NoSystemPromptNoTools verifies the shape of the
// completion request: a single user message, no system prompt, no tools
// offered.
func TestLLMSelector_SelectTools_NoSystemPromptNoTools(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	if _, err := s.SelectTools(context.Background(), router.Query{Text: "add two numbers"}); err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != "" {
		t.Errorf("request carries a system prompt: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v, want a single user message", req.Messages)
	}
	if len(req.Tools) != 0 {
		t.Errorf("request offers %d tools, want 0", len(req.Tools))
	}
	if !strings.Contains(req.Messages[0].Content, "add two numbers") {
		t.Errorf("prompt does not contain the query text")
	}
}

// TestLLMSelector_IndexTools_Idempotent verifies that re-indexing the same
// extension leaves exactly one block per tool in the prompt catalog.
func TestLLMSelector_IndexTools_Idempotent(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	if _, err := s.SelectTools(context.Background(), router.Query{Text: "add"}); err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	if n := strings.Count(prompt, "Tool: calc__evaluate"); n != 1 {
		t.Errorf("catalog contains %d blocks for calc__evaluate, want 1", n)
	}
}

// TestLLMSelector_SelectTools_ExtensionScope verifies that an extension
// filter restricts the catalog offered to the model, and that an unknown
// extension yields an empty result without a provider call.
func TestLLMSelector_SelectTools_ExtensionScope(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")
	mustIndex(t, s, []*mcp.Tool{webTool()}, "web")

	if _, err := s.SelectTools(context.Background(), router.Query{Text: "add", Extension: "calc"}); err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Tool: calc__evaluate") {
		t.Errorf("scoped prompt is missing the calc tool")
	}
	if strings.Contains(prompt, "Tool: web__fetch") {
		t.Errorf("scoped prompt leaks the web tool")
	}

	got, err := s.SelectTools(context.Background(), router.Query{Text: "add", Extension: "nosuch"})
	if err != nil {
		t.Fatalf("SelectTools with unknown extension returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unknown extension = %v, want empty", got)
	}
	if len(p.CompleteCalls) != 1 {
		t.Errorf("provider called %d times, want 1 (no call for unknown extension)", len(p.CompleteCalls))
	}
}

// TestLLMSelector_SelectTools_Streaming verifies that a streaming-capable
// model is asked through StreamCompletion and its chunks are folded back into
// one answer before parsing.
func TestLLMSelector_SelectTools_Streaming(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{SupportsStreaming: true},
		StreamChunks: []llm.Chunk{
			{Text: "Tool: calc__evaluate\nDescription: Evaluates"},
			{Text: " an arithmetic expression.\nSchema: {}"},
			{FinishReason: "stop"},
		},
	}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	got, err := s.SelectTools(context.Background(), router.Query{Text: "add two numbers"})
	if err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	if len(got) != 1 || !strings.HasPrefix(got[0], "Tool: calc__evaluate\n") {
		t.Fatalf("SelectTools = %v, want one calc__evaluate block", got)
	}
	if len(p.StreamCalls) != 1 {
		t.Errorf("StreamCompletion called %d times, want 1", len(p.StreamCalls))
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("Complete called %d times for a streaming model, want 0", len(p.CompleteCalls))
	}
}

// TestLLMSelector_SelectTools_StreamError verifies that an error surfaced
// mid-stream fails the query with the internal code.
func TestLLMSelector_SelectTools_StreamError(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{SupportsStreaming: true},
		StreamChunks: []llm.Chunk{
			{Text: "Tool: calc__"},
			{FinishReason: "error", Text: "connection reset"},
		},
	}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	_, err := s.SelectTools(context.Background(), router.Query{Text: "add"})
	var rerr *router.Error
	if !errors.As(err, &rerr) || rerr.Code != router.CodeInternal {
		t.Fatalf("SelectTools with failing stream returned %v, want internal *router.Error", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error %q does not carry the stream failure", err)
	}
}

// TestLLMSelector_SelectTools_ContextWindowOverflow verifies that a prompt
// whose token estimate exceeds the model's window fails before any completion
// is requested.
func TestLLMSelector_SelectTools_ContextWindowOverflow(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 100},
		TokenCount:        101,
	}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	_, err := s.SelectTools(context.Background(), router.Query{Text: "add"})
	var rerr *router.Error
	if !errors.As(err, &rerr) || rerr.Code != router.CodeInternal {
		t.Fatalf("SelectTools with oversized prompt returned %v, want internal *router.Error", err)
	}
	if n := len(p.CompleteCalls) + len(p.StreamCalls); n != 0 {
		t.Errorf("provider received %d completion requests despite the overflow, want 0", n)
	}
}

// TestLLMSelector_SelectTools_ProviderError verifies the internal error code.
func TestLLMSelector_SelectTools_ProviderError(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	_, err := s.SelectTools(context.Background(), router.Query{Text: "add"})
	var rerr *router.Error
	if !errors.As(err, &rerr) || rerr.Code != router.CodeInternal {
		t.Fatalf("SelectTools with failing provider returned %v, want internal *router.Error", err)
	}
}

// TestLLMSelector_RemoveTool_Qualified verifies per-tool removal with an
// extension-qualified name.
func TestLLMSelector_RemoveTool_Qualified(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	second := &mcp.Tool{Name: "calc__derive", Description: "Symbolic derivative."}
	mustIndex(t, s, []*mcp.Tool{calcTool(), second}, "calc")

	if err := s.RemoveTool(context.Background(), "calc__evaluate"); err != nil {
		t.Fatalf("RemoveTool returned error: %v", err)
	}

	if _, err := s.SelectTools(context.Background(), router.Query{Text: "derive"}); err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	if strings.Contains(prompt, "Tool: calc__evaluate") {
		t.Errorf("removed tool still present in catalog")
	}
	if !strings.Contains(prompt, "Tool: calc__derive") {
		t.Errorf("sibling tool was removed along with the target")
	}
}

// TestLLMSelector_RemoveTool_LastToolDropsExtension verifies that removing an
// extension's only tool empties its scope entirely.
func TestLLMSelector_RemoveTool_LastToolDropsExtension(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	if err := s.RemoveTool(context.Background(), "calc__evaluate"); err != nil {
		t.Fatalf("RemoveTool returned error: %v", err)
	}

	got, err := s.SelectTools(context.Background(), router.Query{Text: "add"})
	if err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SelectTools after removing the only tool = %v, want empty", got)
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("provider called %d times for an emptied catalog, want 0", len(p.CompleteCalls))
	}
}

// TestLLMSelector_RemoveTool_BareName verifies that a name without the
// extension separator is looked for across all extensions.
func TestLLMSelector_RemoveTool_BareName(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)
	bare := &mcp.Tool{Name: "ping", Description: "Liveness probe."}
	mustIndex(t, s, []*mcp.Tool{bare}, "net")
	mustIndex(t, s, []*mcp.Tool{calcTool()}, "calc")

	if err := s.RemoveTool(context.Background(), "ping"); err != nil {
		t.Fatalf("RemoveTool returned error: %v", err)
	}

	if _, err := s.SelectTools(context.Background(), router.Query{Text: "probe"}); err != nil {
		t.Fatalf("SelectTools returned error: %v", err)
	}
	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	if strings.Contains(prompt, "Tool: ping") {
		t.Errorf("bare-name removal left the tool in the catalog")
	}
}

// TestLLMSelector_History verifies the shared call-history behaviour through
// the Selector surface.
func TestLLMSelector_History(t *testing.T) {
	t.Parallel()
	s := router.NewLLMSelector(&llmmock.Provider{}, nil)
	for i := 0; i < 103; i++ {
		s.RecordToolCall(fmt.Sprintf("tool-%d", i))
	}

	got := s.RecentToolCalls(2)
	if len(got) != 2 || got[0] != "tool-102" || got[1] != "tool-101" {
		t.Errorf("RecentToolCalls(2) = %v, want [tool-102 tool-101]", got)
	}
	if all := s.RecentToolCalls(1000); len(all) != 100 {
		t.Errorf("history holds %d entries, want 100", len(all))
	}
}

// TestLLMSelector_Type verifies the reported strategy.
func TestLLMSelector_Type(t *testing.T) {
	t.Parallel()
	s := router.NewLLMSelector(&llmmock.Provider{}, nil)
	if got := s.Type(); got != router.StrategyLLM {
		t.Errorf("Type() = %s, want %s", got, router.StrategyLLM)
	}
}

// TestLLMSelector_ConcurrentUse hammers indexing, selection and the call
// history from many goroutines at once; meant to run under the race detector.
// Repeated concurrent indexing of the same tools must still leave exactly one
// block per tool in the catalog.
func TestLLMSelector_ConcurrentUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := &llmmock.Provider{}
	s := router.NewLLMSelector(p, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := s.IndexTools(ctx, []*mcp.Tool{calcTool(), webTool()}, "calc"); err != nil {
					t.Errorf("IndexTools returned error: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := s.SelectTools(ctx, router.Query{Text: "add two numbers"}); err != nil {
					t.Errorf("SelectTools returned error: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.RecordToolCall("calc__evaluate")
				s.RecentToolCalls(10)
			}
		}()
	}
	wg.Wait()

	p.Reset()
	if _, err := s.SelectTools(ctx, router.Query{Text: "add two numbers"}); err != nil {
		t.Fatalf("SelectTools after concurrent indexing returned error: %v", err)
	}
	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	for _, name := range []string{"calc__evaluate", "web__fetch"} {
		if n := strings.Count(prompt, "Tool: "+name); n != 1 {
			t.Errorf("catalog contains %d blocks for %s after concurrent indexing, want 1", n, name)
		}
	}
}

// mustIndex indexes tools and fails the test on error.
func mustIndex(t *testing.T, s router.Selector, tools []*mcp.Tool, extension string) {
	t.Helper()
	if err := s.IndexTools(context.Background(), tools, extension); err != nil {
		t.Fatalf("IndexTools(%s) returned error: %v", extension, err)
	}
}

package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/pkg/provider/llm"
)

// blockSeparator joins and splits the tool blocks inside an extension's
// catalog text and in model responses.
const blockSeparator = "\n\n"

// LLMSelector asks a completion model to pick tools. Each extension's tools
// are kept as a rendered text catalog; at selection time the relevant
// catalogs and the query are folded into a prompt and the model's answer is
// parsed back into tool blocks.
//
// Catalog state is in-memory only, so an LLMSelector is always constructible
// and needs no external store.
type LLMSelector struct {
	mu       sync.RWMutex
	provider llm.Provider
	// catalogs maps extension name to its blank-line-separated tool blocks.
	catalogs map[string]string
	history  *callHistory
	metrics  *observe.Metrics
}

var _ Selector = (*LLMSelector)(nil)

// NewLLMSelector creates an LLM-backed selector using provider for ranking
// completions. metrics may be nil.
func NewLLMSelector(provider llm.Provider, metrics *observe.Metrics) *LLMSelector {
	return &LLMSelector{
		provider: provider,
		catalogs: make(map[string]string),
		history:  newCallHistory(),
		metrics:  metrics,
	}
}

// SelectTools implements [Selector]. Query.K is advisory for this backend:
// the model decides how many tools are relevant.
func (s *LLMSelector) SelectTools(ctx context.Context, q Query) ([]string, error) {
	start := time.Now()
	blocks, err := s.selectTools(ctx, q)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSelection(ctx, string(StrategyLLM), status, time.Since(start).Seconds())
	}
	return blocks, err
}

func (s *LLMSelector) selectTools(ctx context.Context, q Query) ([]string, error) {
	if q.Text == "" {
		return nil, invalidParams("missing 'query' parameter")
	}

	s.mu.RLock()
	var scope string
	if q.Extension != "" {
		scope = s.catalogs[q.Extension]
	} else {
		all := make([]string, 0, len(s.catalogs))
		for _, catalog := range s.catalogs {
			all = append(all, catalog)
		}
		scope = strings.Join(all, "\n")
	}
	s.mu.RUnlock()

	// Nothing indexed for this scope: no suggestions, not an error, and no
	// point spending a completion on an empty catalog.
	if strings.TrimSpace(scope) == "" {
		return []string{}, nil
	}

	prompt, err := renderSelectorPrompt(scope, q.Text)
	if err != nil {
		return nil, internalErr("failed to render prompt template", err)
	}
	req := llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}

	// With many extensions the folded catalog can outgrow the model. The
	// count is approximate, so only a hard overflow against a known window
	// fails the query.
	if caps := s.provider.Capabilities(); caps.ContextWindow > 0 {
		if n, err := s.provider.CountTokens(req.Messages); err == nil && n > caps.ContextWindow {
			return nil, internalErr(fmt.Sprintf("tool catalog prompt needs about %d tokens but the model's context window is %d", n, caps.ContextWindow), nil)
		}
	}

	content, err := s.complete(ctx, req)
	if err != nil {
		return nil, internalErr("failed to search tools", err)
	}
	return parseToolBlocks(content), nil
}

// complete runs the ranking request, streaming when the model supports it.
// The chunks are folded back into one answer; errors surfaced mid-stream
// arrive as a chunk with FinishReason "error".
func (s *LLMSelector) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if !s.provider.Capabilities().SupportsStreaming {
		resp, err := s.provider.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", nil
		}
		return resp.Content, nil
	}

	ch, err := s.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			return "", errors.New(chunk.Text)
		}
		sb.WriteString(chunk.Text)
	}
	return sb.String(), nil
}

// parseToolBlocks splits a model response on blank lines and keeps the
// segments that are tool blocks, preserving the model's order.
func parseToolBlocks(text string) []string {
	segments := strings.Split(text, blockSeparator)
	blocks := make([]string, 0, len(segments))
	for _, seg := range segments {
		trimmed := strings.TrimSpace(seg)
		if strings.HasPrefix(trimmed, "Tool:") {
			blocks = append(blocks, trimmed)
		}
	}
	return blocks
}

// IndexTools implements [Selector]. A tool whose "Tool: {name}" header is
// already present in the extension's catalog is skipped, so re-registering an
// extension never duplicates blocks.
func (s *LLMSelector) IndexTools(ctx context.Context, tools []*mcp.Tool, extension string) error {
	if err := ctx.Err(); err != nil {
		return internalErr("index tools", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexed := int64(0)
	for _, tool := range tools {
		entry := s.catalogs[extension]
		if containsToolHeader(entry, tool.Name) {
			continue
		}
		block := renderToolBlock(tool.Name, tool.Description, toolSchemaJSON(tool))
		if entry != "" {
			entry += blockSeparator
		}
		s.catalogs[extension] = entry + block
		indexed++
	}

	if s.metrics != nil && indexed > 0 {
		s.metrics.RecordIndexedTools(ctx, string(StrategyLLM), extension, indexed)
	}
	return nil
}

// RemoveTool implements [Selector]. A fully qualified "extension__tool" name
// removes that tool's block from its extension catalog; a bare name is
// looked for across all extensions. An extension whose last block is removed
// disappears from the catalog map entirely.
func (s *LLMSelector) RemoveTool(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return internalErr("remove tool", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if extension, _, ok := strings.Cut(name, "__"); ok {
		s.removeFromExtension(extension, name)
		return nil
	}
	for extension := range s.catalogs {
		s.removeFromExtension(extension, name)
	}
	return nil
}

// removeFromExtension drops name's block from one extension catalog. Caller
// holds the write lock.
func (s *LLMSelector) removeFromExtension(extension, name string) {
	catalog, ok := s.catalogs[extension]
	if !ok {
		return
	}

	kept := make([]string, 0)
	for _, block := range strings.Split(catalog, blockSeparator) {
		if firstLine(block) == "Tool: "+name {
			continue
		}
		kept = append(kept, block)
	}

	if len(kept) == 0 {
		delete(s.catalogs, extension)
		return
	}
	s.catalogs[extension] = strings.Join(kept, blockSeparator)
}

// RecordToolCall implements [Selector].
func (s *LLMSelector) RecordToolCall(name string) {
	s.history.record(name)
	if s.metrics != nil {
		s.metrics.RecordedCalls.Add(context.Background(), 1)
	}
}

// RecentToolCalls implements [Selector].
func (s *LLMSelector) RecentToolCalls(limit int) []string {
	return s.history.recent(limit)
}

// Type implements [Selector].
func (s *LLMSelector) Type() Strategy {
	return StrategyLLM
}

// containsToolHeader reports whether catalog already holds a block for name.
// Matching the full header line rather than a substring keeps "search" from
// shadowing "search_web".
func containsToolHeader(catalog, name string) bool {
	for _, block := range strings.Split(catalog, blockSeparator) {
		if firstLine(block) == "Tool: "+name {
			return true
		}
	}
	return false
}

// firstLine returns block's text up to the first newline, trimmed.
func firstLine(block string) string {
	line, _, _ := strings.Cut(block, "\n")
	return strings.TrimSpace(line)
}

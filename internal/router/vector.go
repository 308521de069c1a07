package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/pkg/provider/embeddings"
	"github.com/switchyard-ai/switchyard/pkg/toolstore"
)

// VectorSelector ranks tools by embedding similarity. Tool descriptions are
// embedded at index time and stored in a [toolstore.Store]; a query is
// embedded at selection time and matched by nearest-neighbour search.
//
// The mutex orders catalog mutations against reads. Embedding calls are
// network I/O and happen outside the lock; only the dedup probe plus the
// catalog write run under it, so concurrent IndexTools calls cannot race a
// tool into the catalog twice.
type VectorSelector struct {
	mu       sync.RWMutex
	store    toolstore.Store
	embedder embeddings.Provider
	history  *callHistory
	metrics  *observe.Metrics
}

var _ Selector = (*VectorSelector)(nil)

// NewVectorSelector creates a vector-backed selector over the given catalog
// store and embedding provider. metrics may be nil.
func NewVectorSelector(store toolstore.Store, embedder embeddings.Provider, metrics *observe.Metrics) *VectorSelector {
	return &VectorSelector{
		store:    store,
		embedder: embedder,
		history:  newCallHistory(),
		metrics:  metrics,
	}
}

// SelectTools implements [Selector].
func (s *VectorSelector) SelectTools(ctx context.Context, q Query) ([]string, error) {
	start := time.Now()
	blocks, err := s.selectTools(ctx, q)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSelection(ctx, string(StrategyVector), status, time.Since(start).Seconds())
	}
	return blocks, err
}

func (s *VectorSelector) selectTools(ctx context.Context, q Query) ([]string, error) {
	if q.Text == "" {
		return nil, invalidParams("missing 'query' parameter")
	}
	k := q.K
	if k <= 0 {
		k = defaultK
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{q.Text})
	if err != nil {
		return nil, internalErr("failed to generate query embedding", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, internalErr("no embedding returned", nil)
	}

	s.mu.RLock()
	records, err := s.store.SearchTools(ctx, vectors[0], k, q.Extension)
	s.mu.RUnlock()
	if err != nil {
		return nil, internalErr("failed to search tools", err)
	}

	blocks := make([]string, 0, len(records))
	for _, rec := range records {
		blocks = append(blocks, renderToolBlock(rec.ToolName, rec.Description, rec.Schema))
	}
	return blocks, nil
}

// IndexTools implements [Selector]. All tool texts are embedded in one batch
// call, then already-indexed names are filtered out and the remainder is
// upserted. The filter and the write happen under the same lock so two
// concurrent registrations of the same extension stay idempotent.
func (s *VectorSelector) IndexTools(ctx context.Context, tools []*mcp.Tool, extension string) error {
	if len(tools) == 0 {
		return nil
	}

	texts := make([]string, 0, len(tools))
	for _, tool := range tools {
		texts = append(texts, embeddingText(tool))
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return internalErr("failed to generate tool embeddings", err)
	}
	if len(vectors) != len(tools) {
		return internalErr(fmt.Sprintf("expected %d tool embeddings, got %d", len(tools), len(vectors)), nil)
	}

	records := make([]toolstore.ToolRecord, 0, len(tools))
	for i, tool := range tools {
		records = append(records, toolstore.ToolRecord{
			ToolName:    tool.Name,
			Description: tool.Description,
			Schema:      toolSchemaJSON(tool),
			Vector:      vectors[i],
			Extension:   extension,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Probe each record with its own vector: an exact re-index lands on itself
	// as the nearest neighbour, so a name match on the top hit means the tool
	// is already in the catalog.
	newRecords := make([]toolstore.ToolRecord, 0, len(records))
	for _, rec := range records {
		existing, err := s.store.SearchTools(ctx, rec.Vector, 1, rec.Extension)
		if err != nil {
			return internalErr("failed to search for existing tools", err)
		}
		indexed := false
		for _, e := range existing {
			if e.ToolName == rec.ToolName {
				indexed = true
				break
			}
		}
		if !indexed {
			newRecords = append(newRecords, rec)
		}
	}

	if len(newRecords) == 0 {
		return nil
	}
	if err := s.store.IndexTools(ctx, newRecords); err != nil {
		return internalErr("failed to index tools", err)
	}
	if s.metrics != nil {
		s.metrics.RecordIndexedTools(ctx, string(StrategyVector), extension, int64(len(newRecords)))
	}
	return nil
}

// RemoveTool implements [Selector].
func (s *VectorSelector) RemoveTool(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.RemoveTool(ctx, name); err != nil {
		return internalErr(fmt.Sprintf("failed to remove tool %s", name), err)
	}
	return nil
}

// RecordToolCall implements [Selector].
func (s *VectorSelector) RecordToolCall(name string) {
	s.history.record(name)
	if s.metrics != nil {
		s.metrics.RecordedCalls.Add(context.Background(), 1)
	}
}

// RecentToolCalls implements [Selector].
func (s *VectorSelector) RecentToolCalls(limit int) []string {
	return s.history.recent(limit)
}

// Type implements [Selector].
func (s *VectorSelector) Type() Strategy {
	return StrategyVector
}

// embeddingText is the text embedded per tool: name, description, and the
// indented schema, space-joined.
func embeddingText(tool *mcp.Tool) string {
	return strings.Join([]string{tool.Name, tool.Description, toolSchemaJSON(tool)}, " ")
}

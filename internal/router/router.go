// Package router implements polymorphic tool selection for agents whose
// extensions expose more tools than fit a model's context window.
//
// A [Selector] narrows the full tool catalog down to a handful of candidates
// for a natural-language query. Two backends are provided: [VectorSelector]
// ranks by embedding similarity against a [toolstore.Store], and
// [LLMSelector] asks a completion model to pick from a text catalog. Both
// share the same contract and the same bounded call-history behaviour, so
// callers hold a Selector and never care which backend is active.
//
// Construct a Selector with [New], which picks the backend from [Config].
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Strategy identifies a tool-selection backend.
type Strategy string

const (
	// StrategyVector ranks tools by embedding similarity.
	StrategyVector Strategy = "vector"

	// StrategyLLM asks a completion model to pick tools from a text catalog.
	StrategyLLM Strategy = "llm"
)

// defaultK is the number of tools a selection returns when the query does not
// ask for a specific count.
const defaultK = 5

// Query is a single tool-selection request.
type Query struct {
	// Text is the natural-language description of what the agent wants to do.
	// Required; selection fails with CodeInvalidParams when empty.
	Text string

	// K caps the number of returned tools. Values <= 0 mean the default of 5.
	// The LLM backend treats it as advisory.
	K int

	// Extension restricts the search to tools from one extension. Empty means
	// the whole catalog.
	Extension string
}

// Selector is the tool-selection contract shared by all backends.
//
// Implementations must be safe for concurrent use: SelectTools may run in
// parallel with IndexTools and RemoveTool, and readers never observe a
// partially applied mutation.
type Selector interface {
	// SelectTools returns the most relevant tools for q, each rendered as a
	//
	//	Tool: {name}
	//	Description: {description}
	//	Schema: {schema}
	//
	// text block. Relevance order is backend-defined. An empty catalog yields
	// an empty slice, not an error.
	SelectTools(ctx context.Context, q Query) ([]string, error)

	// IndexTools adds the tools of one extension to the catalog. Indexing is
	// idempotent per (tool name, extension): re-registering an extension does
	// not duplicate entries.
	IndexTools(ctx context.Context, tools []*mcp.Tool, extension string) error

	// RemoveTool removes a tool from the catalog by its fully qualified name.
	// Removing an unknown name is not an error.
	RemoveTool(ctx context.Context, name string) error

	// RecordToolCall appends a tool invocation to the bounded call history.
	RecordToolCall(name string)

	// RecentToolCalls returns up to limit recorded names, most recent first.
	RecentToolCalls(limit int) []string

	// Type reports which backend this selector is.
	Type() Strategy
}

// renderToolBlock produces the text block format every backend returns from
// SelectTools and the LLM backend stores in its catalog.
func renderToolBlock(name, description, schema string) string {
	return fmt.Sprintf("Tool: %s\nDescription: %s\nSchema: %s", name, description, schema)
}

// toolSchemaJSON renders a tool's input schema as indented JSON, falling back
// to "{}" for a nil or unmarshalable schema.
func toolSchemaJSON(tool *mcp.Tool) string {
	if tool.InputSchema == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(tool.InputSchema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

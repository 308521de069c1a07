// Package toolstore defines the vector-indexed tool catalog used by the tool
// router's vector backend.
//
// A Store holds one record per tool, keyed by tool name within an extension,
// together with the embedding vector of the tool's rendered description. The
// router searches it by vector similarity to shortlist tools for a query.
//
// Two implementations ship with this module: [postgres] backed by pgvector for
// durable catalogs, and [memstore] for tests and single-process deployments.
package toolstore

import "context"

// ToolRecord is a single indexed tool.
type ToolRecord struct {
	// ToolName is the fully qualified tool name (typically "extension__tool").
	ToolName string
	// Description is the human-readable tool description.
	Description string
	// Schema is the JSON-encoded input schema of the tool.
	Schema string
	// Vector is the embedding of the tool's rendered text. Its length must match
	// the dimension the store was created with.
	Vector []float32
	// Extension is the name of the extension that provides the tool.
	Extension string
}

// Store is a vector-searchable catalog of tool records.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SearchTools returns up to k records ordered by ascending cosine distance to
	// vector (most similar first). If extension is non-empty, only records from
	// that extension are considered. An empty catalog yields an empty slice, not
	// an error.
	SearchTools(ctx context.Context, vector []float32, k int, extension string) ([]ToolRecord, error)

	// IndexTools upserts the given records. A record whose ToolName and Extension
	// match an existing one replaces it. Passing an empty slice is a no-op.
	IndexTools(ctx context.Context, records []ToolRecord) error

	// RemoveTool deletes every record with the given tool name, across all
	// extensions. Removing a name that is not indexed is not an error.
	RemoveTool(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close()
}

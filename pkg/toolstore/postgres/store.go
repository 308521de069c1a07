// Package postgres provides a PostgreSQL-backed implementation of
// [toolstore.Store] using the pgvector extension.
//
// Each deployment may use its own table (the table name is supplied at
// construction), so several agents can share a database without sharing a
// catalog. [New] installs the pgvector extension and creates the table and its
// HNSW index if they do not exist.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn, "tool_catalog", 1536)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/switchyard-ai/switchyard/pkg/toolstore"
)

// Ensure Store implements the toolstore.Store interface.
var _ toolstore.Store = (*Store)(nil)

// tableNameRe restricts table names to plain SQL identifiers. The table name
// is interpolated into DDL and queries, so it must never carry quoting or
// punctuation.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a pgvector-backed tool catalog. All methods are safe for
// concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs the
// idempotent migration for the given table.
//
// dimensions must match the output dimension of the embedding model that will
// populate the catalog (e.g., 1536 for text-embedding-3-small). Changing it
// after the first migration requires a manual schema change.
func New(ctx context.Context, dsn string, table string, dimensions int) (*Store, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("toolstore postgres: invalid table name %q", table)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("toolstore postgres: dimensions must be positive, got %d", dimensions)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("toolstore postgres: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can be
	// scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("toolstore postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("toolstore postgres: ping: %w", err)
	}

	if err := migrate(ctx, pool, table, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("toolstore postgres: migrate: %w", err)
	}

	return &Store{pool: pool, table: table}, nil
}

// migrate creates or ensures the catalog table, its uniqueness constraint and
// its HNSW index. It is idempotent and safe to run on every start.
func migrate(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id          BIGSERIAL    PRIMARY KEY,
    tool_name   TEXT         NOT NULL,
    description TEXT         NOT NULL DEFAULT '',
    schema      TEXT         NOT NULL DEFAULT '',
    embedding   vector(%[2]d),
    extension   TEXT         NOT NULL DEFAULT '',
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (tool_name, extension)
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_tool_name
    ON %[1]s (tool_name);

CREATE INDEX IF NOT EXISTS idx_%[1]s_extension
    ON %[1]s (extension);

CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding
    ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, table, dimensions)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// SearchTools implements [toolstore.Store]. Results are ordered by ascending
// cosine distance to vector.
func (s *Store) SearchTools(ctx context.Context, vector []float32, k int, extension string) ([]toolstore.ToolRecord, error) {
	queryVec := pgvector.NewVector(vector)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if extension != "" {
		conditions = append(conditions, "extension = "+next(extension))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT tool_name, description, schema, embedding, extension,
		       embedding <=> $1 AS distance
		FROM   %s
		%s
		ORDER  BY distance
		LIMIT  %s`, s.table, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("toolstore postgres: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (toolstore.ToolRecord, error) {
		var (
			rec      toolstore.ToolRecord
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&rec.ToolName,
			&rec.Description,
			&rec.Schema,
			&vec,
			&rec.Extension,
			&distance,
		); err != nil {
			return toolstore.ToolRecord{}, err
		}
		rec.Vector = vec.Slice()
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("toolstore postgres: scan rows: %w", err)
	}
	if results == nil {
		results = []toolstore.ToolRecord{}
	}
	return results, nil
}

// IndexTools implements [toolstore.Store]. Records are upserted in a single
// transaction so a partial batch never becomes visible.
func (s *Store) IndexTools(ctx context.Context, records []toolstore.ToolRecord) error {
	if len(records) == 0 {
		return nil
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (tool_name, description, schema, embedding, extension, indexed_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tool_name, extension) DO UPDATE SET
		    description = EXCLUDED.description,
		    schema      = EXCLUDED.schema,
		    embedding   = EXCLUDED.embedding,
		    indexed_at  = EXCLUDED.indexed_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("toolstore postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		if _, err := tx.Exec(ctx, q,
			rec.ToolName,
			rec.Description,
			rec.Schema,
			pgvector.NewVector(rec.Vector),
			rec.Extension,
		); err != nil {
			return fmt.Errorf("toolstore postgres: index tool %q: %w", rec.ToolName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("toolstore postgres: commit: %w", err)
	}
	return nil
}

// RemoveTool implements [toolstore.Store].
func (s *Store) RemoveTool(ctx context.Context, name string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE tool_name = $1`, s.table)
	if _, err := s.pool.Exec(ctx, q, name); err != nil {
		return fmt.Errorf("toolstore postgres: remove tool %q: %w", name, err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

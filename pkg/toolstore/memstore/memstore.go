// Package memstore provides an in-memory implementation of [toolstore.Store].
//
// It performs exact (brute-force) cosine search over all records, which is
// fine for the catalog sizes a single agent carries. Use it in tests and in
// deployments that do not want a PostgreSQL dependency; catalogs do not
// survive a restart.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/switchyard-ai/switchyard/pkg/toolstore"
)

// Ensure Store implements the toolstore.Store interface.
var _ toolstore.Store = (*Store)(nil)

// Store is an in-memory tool catalog guarded by a RWMutex.
type Store struct {
	mu sync.RWMutex
	// records is keyed by extension, then tool name.
	records map[string]map[string]toolstore.ToolRecord
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]map[string]toolstore.ToolRecord),
	}
}

// SearchTools implements [toolstore.Store]. All candidate records are scored
// by cosine distance and the k closest are returned, most similar first.
func (s *Store) SearchTools(ctx context.Context, vector []float32, k int, extension string) ([]toolstore.ToolRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	type scored struct {
		rec      toolstore.ToolRecord
		distance float64
	}
	var candidates []scored
	for ext, byName := range s.records {
		if extension != "" && ext != extension {
			continue
		}
		for _, rec := range byName {
			candidates = append(candidates, scored{rec: rec, distance: cosineDistance(vector, rec.Vector)})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}

	results := make([]toolstore.ToolRecord, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.rec)
	}
	return results, nil
}

// IndexTools implements [toolstore.Store].
func (s *Store) IndexTools(ctx context.Context, records []toolstore.ToolRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		byName, ok := s.records[rec.Extension]
		if !ok {
			byName = make(map[string]toolstore.ToolRecord)
			s.records[rec.Extension] = byName
		}
		byName[rec.ToolName] = rec
	}
	return nil
}

// RemoveTool implements [toolstore.Store]. The name is removed from every
// extension it appears in; empty extensions are dropped.
func (s *Store) RemoveTool(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ext, byName := range s.records {
		delete(byName, name)
		if len(byName) == 0 {
			delete(s.records, ext)
		}
	}
	return nil
}

// Close implements [toolstore.Store]. It is a no-op for the in-memory store.
func (s *Store) Close() {}

// Len returns the total number of indexed records. Intended for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byName := range s.records {
		n += len(byName)
	}
	return n
}

// cosineDistance returns 1 - cosine similarity of a and b, matching the
// ordering pgvector's <=> operator produces. Mismatched lengths and zero
// vectors score as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

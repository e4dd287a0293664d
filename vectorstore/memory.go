package vectorstore

import (
	"context"
	"sort"
	"sync"

	"ally-backend/models"
)

// Memory is an in-process vector index using brute-force cosine search.
// It backs tests and local development where no external index is
// configured. Vectors are assumed normalized, so inner product equals
// cosine similarity.
type Memory struct {
	dimension int

	mu      sync.RWMutex
	entries map[string]models.IndexEntry
	order   []string
}

// NewMemory creates an empty in-memory index.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		entries:   make(map[string]models.IndexEntry),
	}
}

// Upsert stores entries, replacing any entry that shares an id.
func (m *Memory) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if _, exists := m.entries[entry.ID]; !exists {
			m.order = append(m.order, entry.ID)
		}
		m.entries[entry.ID] = entry
	}
	return nil
}

// Query returns the top-k entries by inner product, descending.
func (m *Memory) Query(ctx context.Context, vector []float64, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if topK <= 0 || len(m.order) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		entry := m.entries[id]
		var dot float64
		n := len(vector)
		if len(entry.Values) < n {
			n = len(entry.Values)
		}
		for i := 0; i < n; i++ {
			dot += vector[i] * entry.Values[i]
		}
		matches = append(matches, Match{ID: id, Score: dot, Metadata: entry.Metadata})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Stats returns the entry count and configured dimensionality.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Count: len(m.entries), Dimension: m.dimension}, nil
}

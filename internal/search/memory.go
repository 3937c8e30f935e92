package search

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an Indexer backed by a map, for tests and for running
// without a Meilisearch instance.
type MemoryIndex struct {
	mu     sync.Mutex
	chunks map[string]ChunkRecord
	// FailIndex makes IndexChunks return an error, to exercise the
	// callers' degraded paths. FailDelete does the same for
	// DeleteByPage.
	FailIndex  error
	FailDelete error
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string]ChunkRecord)}
}

func (m *MemoryIndex) IndexChunks(_ context.Context, chunks []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIndex != nil {
		return m.FailIndex
	}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryIndex) DeleteByPage(_ context.Context, pageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	for id, c := range m.chunks {
		if c.PageID == pageID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// ChunksForPage returns the stored chunks for a page, ordered by index.
func (m *MemoryIndex) ChunksForPage(pageID int) []ChunkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ChunkRecord
	for _, c := range m.chunks {
		if c.PageID == pageID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

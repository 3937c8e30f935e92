// Package search maintains the derived chunk index next to the document
// store and answers full-text queries against it. The index is derived
// state: it can always be rebuilt from stored pages, so index failures
// are logged and tolerated rather than failing page saves.
package search

import "context"

// ChunkRecord is one indexed slice of a page's content together with the
// flat metadata the query side filters on.
type ChunkRecord struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	SourceType    string `json:"source_type"`
	PageID        int    `json:"page_id"`
	Title         string `json:"title"`
	Timestamp     int64  `json:"timestamp"`
	Subtype       string `json:"subtype"`
	GroupID       string `json:"group_id"`
	ChunkIndex    int    `json:"chunk_index"`
	TotalChunks   int    `json:"total_chunks"`
	OriginalDocID string `json:"original_doc_id"`
}

// Query describes one search request.
type Query struct {
	Text    string
	Subtype string // empty = all page kinds
	GroupID string
	Limit   int
	Offset  int
}

// Result is a single hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	PageID  int    `json:"pageId"`
	Subtype string `json:"subtype"`
	GroupID string `json:"groupId,omitempty"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Indexer pushes chunk batches into the index and removes them per page.
type Indexer interface {
	// IndexChunks upserts the batch. Chunk ids are deterministic, so a
	// re-index of the same page overwrites in place.
	IndexChunks(ctx context.Context, chunks []ChunkRecord) error
	// DeleteByPage removes every chunk whose metadata carries the
	// numeric page id, regardless of how many chunks the last index
	// run produced.
	DeleteByPage(ctx context.Context, pageID int) error
}

// Searcher answers full-text queries.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

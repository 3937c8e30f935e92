package search

import (
	"fmt"
	"strings"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
)

// Default chunking geometry. Overlap keeps sentences that straddle a cut
// retrievable from both neighbouring chunks.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunker splits page content into overlapping fixed-size pieces,
// preferring to cut at paragraph, then sentence, then word boundaries.
// Sizes are in runes so multi-byte text never gets cut mid-character.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunk texts for content. Empty or whitespace-only
// content yields no chunks.
func (c Chunker) Split(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= c.Size {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.Size
		if end >= len(runes) {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		cut := c.findBreak(runes, start, end)
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			chunks = append(chunks, piece)
		}

		next := cut - c.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// findBreak picks the cut position inside (start, end]: the last paragraph
// break in the window, else the last sentence end, else the last space.
// A break in the first half of the window is ignored so chunks never
// degenerate to fragments; with no usable boundary the cut is hard.
func (c Chunker) findBreak(runes []rune, start, end int) int {
	min := start + c.Size/2

	for i := end - 1; i > min; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > min; i-- {
		if isSentenceEnd(runes[i-1]) && (runes[i] == ' ' || runes[i] == '\n') {
			return i + 1
		}
	}
	for i := end - 1; i > min; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// ChunkPage splits the page content and wraps each piece in its metadata
// record. Chunk ids derive from the page's entity id and the 0-based
// chunk index.
func (c Chunker) ChunkPage(page *model.Page, groupID string) []ChunkRecord {
	pieces := c.Split(page.Content)
	if len(pieces) == 0 {
		return nil
	}

	docID := model.PageID(page.Collective, page.OCS.ID)
	records := make([]ChunkRecord, 0, len(pieces))
	for i, piece := range pieces {
		records = append(records, ChunkRecord{
			ID:            ChunkID(docID, i),
			Content:       piece,
			SourceType:    "collectives_page",
			PageID:        page.OCS.ID,
			Title:         page.OCS.Title,
			Timestamp:     page.OCS.Timestamp,
			Subtype:       string(page.Subtype),
			GroupID:       groupID,
			ChunkIndex:    i,
			TotalChunks:   len(pieces),
			OriginalDocID: docID,
		})
	}
	return records
}

// ChunkID builds the deterministic id of one chunk of a page document.
func ChunkID(pageDocID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", pageDocID, index)
}

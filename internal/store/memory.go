package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MemoryBackend is an in-memory Backend with the same revision semantics
// as the Postgres implementation. It backs unit tests of the save/retry
// and cascade logic without a database.
type MemoryBackend struct {
	mu   sync.Mutex
	docs map[string]Doc
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]Doc)}
}

func (b *MemoryBackend) Get(_ context.Context, id string) (Doc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.docs[id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return doc, nil
}

func (b *MemoryBackend) Put(_ context.Context, doc Doc) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.docs[doc.ID]
	if doc.Rev == 0 {
		if ok {
			return 0, ErrConflict
		}
		doc.Rev = 1
		b.docs[doc.ID] = doc
		return doc.Rev, nil
	}
	if !ok || existing.Rev != doc.Rev {
		return 0, ErrConflict
	}
	doc.Rev = existing.Rev + 1
	b.docs[doc.ID] = doc
	return doc.Rev, nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[id]; !ok {
		return ErrNotFound
	}
	delete(b.docs, id)
	return nil
}

func (b *MemoryBackend) Find(_ context.Context, q Query) ([]Doc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matches []Doc
	for _, doc := range b.docs {
		if doc.Type != q.Type {
			continue
		}
		if !matchesEq(doc, q.Eq) {
			continue
		}
		matches = append(matches, doc)
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			return lessDocs(matches[i], matches[j], q.Sort)
		})
	} else {
		// Deterministic order for tests.
		sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	}

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// Len reports the number of stored documents.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// BumpRev increments a document's revision out-of-band, simulating a
// concurrent external writer.
func (b *MemoryBackend) BumpRev(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if doc, ok := b.docs[id]; ok {
		doc.Rev++
		b.docs[id] = doc
	}
}

func matchesEq(doc Doc, eq map[string]any) bool {
	if len(eq) == 0 {
		return true
	}
	fields := bodyFields(doc)
	for field, want := range eq {
		got, ok := fields[field]
		if !ok || asString(got) != asString(want) {
			return false
		}
	}
	return true
}

func lessDocs(a, b Doc, sorts []SortField) bool {
	fa, fb := bodyFields(a), bodyFields(b)
	for _, s := range sorts {
		va, vb := asString(fa[s.Field]), asString(fb[s.Field])
		if s.Field == "updated_at" {
			va, vb = asString(a.UpdatedAt), asString(b.UpdatedAt)
		}
		if va == vb {
			continue
		}
		if na, errA := strconv.ParseFloat(va, 64); errA == nil {
			if nb, errB := strconv.ParseFloat(vb, 64); errB == nil {
				if s.Desc {
					return na > nb
				}
				return na < nb
			}
		}
		if s.Desc {
			return va > vb
		}
		return va < vb
	}
	return false
}

func bodyFields(doc Doc) map[string]any {
	fields := make(map[string]any)
	_ = json.Unmarshal(doc.Body, &fields)
	return fields
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

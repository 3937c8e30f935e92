// Package store persists extracted entities as revisioned JSON documents.
// Every entity type shares one write path: deterministic ids, a revision
// token checked on write, and a single bounded cache in front of reads.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/cache"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict indicates a write carried a stale revision token.
	ErrConflict = errors.New("revision conflict")
)

// Entity is implemented by every persistable model (via model.Meta plus
// per-type DocType/BuildID methods).
type Entity interface {
	DocID() string
	SetDocID(id string)
	DocRev() int64
	SetDocRev(rev int64)
	SetUpdatedAt(ts int64)
	DocType() string
	BuildID() (string, error)
}

// Doc is the raw stored form of a document.
type Doc struct {
	ID        string
	Type      string
	Rev       int64
	UpdatedAt int64
	Body      []byte
}

// SortField orders query results by one top-level document field.
type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents by type tag plus optional equality matches on
// top-level body fields. Callers are responsible for indexes on fields
// they filter or sort by frequently.
type Query struct {
	Type  string
	Eq    map[string]any
	Sort  []SortField
	Limit int
}

// Backend is the raw document storage under the Store. The Postgres
// implementation is authoritative; the in-memory one backs tests.
type Backend interface {
	Get(ctx context.Context, id string) (Doc, error)
	// Put writes the document if doc.Rev matches the stored revision
	// (0 means "must not exist yet") and returns the new revision.
	// A mismatch returns ErrConflict.
	Put(ctx context.Context, doc Doc) (int64, error)
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, q Query) ([]Doc, error)
}

// Store is the typed persistence layer over a Backend.
type Store struct {
	backend Backend
	cache   *cache.Cache
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a Store. The cache is owned by this store instance, not
// shared globally.
func New(backend Backend, c *cache.Cache, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		cache:   c,
		log:     log.With().Str("component", "store").Logger(),
		now:     time.Now,
	}
}

// Save writes the entity, assigning its deterministic id on first save and
// stamping updated_at. A stale revision is recovered once by re-fetching
// the current revision and retrying; a second conflict propagates, since
// that level of contention is for the caller to resolve.
func (s *Store) Save(ctx context.Context, e Entity) error {
	id := e.DocID()
	if id == "" {
		built, err := e.BuildID()
		if err != nil {
			return fmt.Errorf("build %s id: %w", e.DocType(), err)
		}
		id = built
		e.SetDocID(id)
	}

	now := s.now().Unix()
	e.SetUpdatedAt(now)

	for attempt := 0; ; attempt++ {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.DocType(), err)
		}

		newRev, err := s.backend.Put(ctx, Doc{
			ID:        id,
			Type:      e.DocType(),
			Rev:       e.DocRev(),
			UpdatedAt: now,
			Body:      body,
		})
		if err == nil {
			e.SetDocRev(newRev)
			s.cache.Add(id, e)
			return nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= 1 {
			return fmt.Errorf("save %s: %w", id, err)
		}

		// Stale revision: pick up the current one and retry exactly once.
		current, getErr := s.backend.Get(ctx, id)
		if getErr != nil {
			return fmt.Errorf("refetch %s after conflict: %w", id, getErr)
		}
		e.SetDocRev(current.Rev)
		s.log.Debug().Str("id", id).Int64("rev", current.Rev).Msg("retrying save after revision conflict")
	}
}

// Delete removes the document and evicts it from the cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete: id is required")
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	s.cache.Remove(id)
	s.log.Info().Str("id", id).Msg("deleted document")
	return nil
}

// Get loads a document by id, consulting the cache first. The returned
// value is the cached instance on a hit.
func Get[T any](ctx context.Context, s *Store, id string) (*T, error) {
	if id == "" {
		return nil, fmt.Errorf("get: id is required")
	}
	if v, ok := s.cache.Get(id); ok {
		if typed, ok := v.(*T); ok {
			return typed, nil
		}
	}

	doc, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := decode[T](doc)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, out)
	return out, nil
}

// Find runs a selector query and decodes every match. Results bypass the
// cache; they reflect the store at query time.
func Find[T any](ctx context.Context, s *Store, q Query) ([]*T, error) {
	docs, err := s.backend.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Type, err)
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		decoded, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

// FindDocs runs a selector query without decoding, for callers that only
// need ids (the delete cascade).
func (s *Store) FindDocs(ctx context.Context, q Query) ([]Doc, error) {
	return s.backend.Find(ctx, q)
}

func decode[T any](doc Doc) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(doc.Body, out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", doc.ID, err)
	}
	// The columns are authoritative for id and revision.
	if e, ok := any(out).(Entity); ok {
		e.SetDocID(doc.ID)
		e.SetDocRev(doc.Rev)
	}
	return out, nil
}

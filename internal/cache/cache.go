// Package cache provides the bounded document cache owned by a store
// instance. The cache is handed to the store at construction rather than
// held in a package-level variable, so tests can run against isolated
// instances.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the default number of cached documents.
const DefaultSize = 500

// Cache is a size-bounded LRU keyed by document id. It holds documents of
// every entity type; callers type-assert on read. The LRU is safe for
// concurrent use, though the engine itself runs single-threaded.
type Cache struct {
	lru *lru.Cache[string, any]
}

// New creates a cache bounded to size entries. A size of zero or less
// falls back to DefaultSize.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner}, nil
}

// Get returns the cached document for id, marking it recently used.
func (c *Cache) Get(id string) (any, bool) {
	if id == "" {
		return nil, false
	}
	return c.lru.Get(id)
}

// Add stores or refreshes the document for id, evicting the least
// recently used entry when full.
func (c *Cache) Add(id string, doc any) {
	if id == "" {
		return
	}
	c.lru.Add(id, doc)
}

// Remove evicts the entry for id, if present.
func (c *Cache) Remove(id string) {
	if id == "" {
		return
	}
	c.lru.Remove(id)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge empties the cache.
func (c *Cache) Purge() { c.lru.Purge() }

package cache

import (
	"fmt"
	"testing"
)

func TestCacheAddGetRemove(t *testing.T) {
	c, err := New(10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add("Group:1", "group one")
	v, ok := c.Get("Group:1")
	if !ok || v.(string) != "group one" {
		t.Fatalf("expected cached value, got %v (ok=%v)", v, ok)
	}

	c.Remove("Group:1")
	if _, ok := c.Get("Group:1"); ok {
		t.Fatal("expected entry to be evicted after Remove")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a") // a is now most recently used
	c.Add("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
}

func TestCacheIgnoresEmptyIDs(t *testing.T) {
	c, _ := New(2)
	c.Add("", "nothing")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
	if _, ok := c.Get(""); ok {
		t.Fatal("empty id must never hit")
	}
}

func TestCacheBounded(t *testing.T) {
	c, _ := New(5)
	for i := 0; i < 20; i++ {
		c.Add(fmt.Sprintf("Decision:%d", i), i)
	}
	if c.Len() != 5 {
		t.Fatalf("expected cache capped at 5, got %d", c.Len())
	}
}

package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(10)

	c.Put("a", []byte("aaaa"))
	c.Put("b", []byte("bbbb"))
	// Touch a so b is the oldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	if err := c.Put("c", []byte("cccc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if c.Contains("b") {
		t.Error("b should have been evicted")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Error("a and c should remain")
	}
	if got := c.Size(); got != 8 {
		t.Errorf("Size = %d, want 8", got)
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestMemoryCache_Replace(t *testing.T) {
	c := NewMemoryCache(100)
	c.Put("k", []byte("short"))
	c.Put("k", []byte("a longer value"))

	got, ok := c.Get("k")
	if !ok || string(got) != "a longer value" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if c.Size() != int64(len("a longer value")) {
		t.Errorf("Size = %d after replace", c.Size())
	}
}

func TestMemoryCache_TooLarge(t *testing.T) {
	c := NewMemoryCache(4)
	if err := c.Put("k", []byte("12345")); err != ErrItemTooLarge {
		t.Fatalf("Put = %v, want ErrItemTooLarge", err)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	c := NewMemoryCache(100)
	c.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	c.Put("new", []byte("y"))

	if n := c.Prune(10 * time.Millisecond); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
	if c.Contains("old") || !c.Contains("new") {
		t.Error("wrong entry pruned")
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(100)
	c.Put("k", []byte("v"))
	c.Get("k")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("hits=%d misses=%d", s.Hits, s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
	if s.Items != 1 {
		t.Errorf("Items = %d, want 1", s.Items)
	}
}

package cache

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCapacityEviction(t *testing.T) {
	var evicted []string
	c := NewLRUCache[int](2, time.Hour, WithEvictHook(func(k string, _ int) { evicted = append(evicted, k) }))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v, %v", v, ok)
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestLRUSlidingExpiry(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, 10*time.Minute, WithClock[string](clk.now))
	c.Set("s", "v")

	clk.advance(8 * time.Minute)
	if _, ok := c.Get("s"); !ok {
		t.Fatal("entry expired too early")
	}
	clk.advance(8 * time.Minute)
	if _, ok := c.Get("s"); !ok {
		t.Fatal("Get should have extended the lifetime")
	}
	clk.advance(11 * time.Minute)
	if _, ok := c.Get("s"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRURangeAndCleanExpired(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Minute, WithClock[int](clk.now))
	c.Set("old", 1)
	clk.advance(45 * time.Second)
	c.Set("new", 2)
	clk.advance(30 * time.Second)

	var seen []string
	c.Range(func(k string, _ int) bool {
		seen = append(seen, k)
		return true
	})
	if len(seen) != 1 || seen[0] != "new" {
		t.Fatalf("Range saw %v", seen)
	}

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d", n)
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestManagerSweep(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Second, WithClock[int](clk.now))
	c.Set("a", 1)
	c.Set("b", 2)
	clk.advance(2 * time.Second)

	m := NewManager()
	m.Register("sessions", c)
	if n := m.Sweep(); n != 2 {
		t.Fatalf("Sweep = %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

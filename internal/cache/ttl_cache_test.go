package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache[int64, string]()
	c.Set(1, "fy2025", time.Minute)
	got, ok := c.Get(1)
	if !ok || got != "fy2025" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("unexpected hit for missing key")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[int64, string]()
	c.Set(1, "stale", time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get(1); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[int64, string]()
	c.Set(1, "value", 0)
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("deleted entry should miss")
	}
}

func TestTTLCacheNilSafe(t *testing.T) {
	var c *TTLCache[int64, string]
	c.Set(1, "value", time.Minute)
	if _, ok := c.Get(1); ok {
		t.Fatal("nil cache should always miss")
	}
	c.Delete(1)
}

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	c := NewMemory(time.Minute, 10)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatalf("Get(missing) = hit")
	}

	c.Set(ctx, "k", []byte("v"))

	got, ok := c.Get(ctx, "k")

	if !ok || string(got) != "v" {
		t.Fatalf("Get(k) = %q, %v", got, ok)
	}

	c.Delete(ctx, "k")

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("Get after Delete = hit")
	}
}

func TestMemoryTTL(t *testing.T) {
	c := NewMemory(10*time.Millisecond, 10)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("entry survived past TTL")
	}
}

func TestMemoryBoundedEviction(t *testing.T) {
	c := NewMemory(time.Minute, 8)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}

	c.mu.RLock()
	size := len(c.m)
	c.mu.RUnlock()

	if size > 8 {
		t.Fatalf("cache grew to %d entries, max 8", size)
	}
}

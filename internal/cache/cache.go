package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the injected cache used for GET response caching. It is a
// best-effort layer: staleness and loss on restart are acceptable, so
// implementations don't return errors. Swapping the in-process store for a
// shared one (redis) changes no call sites.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
	Delete(ctx context.Context, key string)
}

type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	max int
	m   map[string]entry
}

type entry struct {
	val []byte
	exp time.Time
}

func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	if maxEntries <= 0 {
		maxEntries = 1000
	}

	return &Memory{
		ttl: ttl,
		max: maxEntries,
		m:   make(map[string]entry),
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}

	return e.val, true
}

func (c *Memory) Set(_ context.Context, key string, val []byte) {
	c.mu.Lock()

	if len(c.m) >= c.max {
		c.evictLocked()
	}

	c.m[key] = entry{val: val, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// evictLocked drops expired entries first; if the map is still at the
// threshold it sheds arbitrary entries down to half capacity.
func (c *Memory) evictLocked() {
	now := time.Now()

	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
		}
	}

	if len(c.m) < c.max {
		return
	}

	for k := range c.m {
		if len(c.m) <= c.max/2 {
			break
		}

		delete(c.m, k)
	}
}

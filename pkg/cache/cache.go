// Package cache keeps last-known-good results for data bindings. Entries
// are persisted through a kv.Store so they survive between command
// invocations, with an in-process LRU in front of it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/extdeck/extdeck/pkg/kv"
)

const keyPrefix = "cache:"

// Entry is one cached value and the time it was stored.
type Entry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Age reports how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Cache stores JSON-encoded values under string keys.
type Cache struct {
	store kv.Store
	mem   *expirable.LRU[string, Entry]
	clock Clock
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(cc *Cache) { cc.clock = c }
}

// WithMemory sizes the in-process LRU front. size <= 0 disables it.
func WithMemory(size int, ttl time.Duration) Option {
	return func(c *Cache) {
		if size <= 0 {
			c.mem = nil
			return
		}
		c.mem = expirable.NewLRU[string, Entry](size, nil, ttl)
	}
}

// New creates a Cache persisted in store.
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		mem:   expirable.NewLRU[string, Entry](128, nil, 10*time.Minute),
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time {
	return c.clock.Now()
}

// Get returns the entry at key.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if c.mem != nil {
		if e, ok := c.mem.Get(key); ok {
			return e, true, nil
		}
	}
	e, ok, err := kv.GetJSON[Entry](ctx, c.store, keyPrefix+key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if c.mem != nil {
		c.mem.Add(key, e)
	}
	return e, true, nil
}

// Put encodes v and stores it at key, stamped with the current time.
func (c *Cache) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	e := Entry{Value: raw, StoredAt: c.clock.Now()}
	if err := kv.SetJSON(ctx, c.store, keyPrefix+key, e); err != nil {
		return err
	}
	if c.mem != nil {
		c.mem.Add(key, e)
	}
	return nil
}

// Delete drops key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.mem != nil {
		c.mem.Remove(key)
	}
	return c.store.Delete(ctx, keyPrefix+key)
}

// Load decodes the entry at key into T.
func Load[T any](ctx context.Context, c *Cache, key string) (T, Entry, bool, error) {
	var out T
	e, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return out, Entry{}, false, err
	}
	if err := json.Unmarshal(e.Value, &out); err != nil {
		return out, Entry{}, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return out, e, true, nil
}

// Fresh reports whether key holds an entry younger than maxAge.
func (c *Cache) Fresh(ctx context.Context, key string, maxAge time.Duration) bool {
	e, ok, err := c.Get(ctx, key)
	if err != nil || !ok || maxAge <= 0 {
		return false
	}
	return e.Age(c.clock.Now()) < maxAge
}

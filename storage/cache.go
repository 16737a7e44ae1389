package storage

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache is an in-process cache of serialized chats with per-entry expiry
// and LRU eviction.
type TTLCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewTTLCache creates a cache holding at most size entries for ttl each.
func NewTTLCache(size int, ttl time.Duration) *TTLCache {
	return &TTLCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns a copy of the value stored under key.
func (c *TTLCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (c *TTLCache) Set(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, slices.Clone(value))
	return nil
}

// MGet returns one entry per key; misses are nil.
func (c *TTLCache) MGet(_ context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if v, ok := c.lru.Get(key); ok {
			out[i] = slices.Clone(v)
		}
	}
	return out, nil
}

func (c *TTLCache) MSet(_ context.Context, entries map[string][]byte) error {
	for key, value := range entries {
		c.lru.Add(key, slices.Clone(value))
	}
	return nil
}

// Delete drops key from the cache.
func (c *TTLCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (c *TTLCache) Len() int {
	return c.lru.Len()
}

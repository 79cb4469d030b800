// Package cache is the response cache shared by ecoroute's collaborators:
// an expiring LRU that reports every lookup to tracing and to an optional
// metrics callback.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// Recorder receives the outcome of each lookup
type Recorder func(hit bool)

// Cache holds at most size entries, each for at most ttl. A size of zero
// is unbounded and a ttl of zero never expires.
type Cache[K comparable, V any] struct {
	kind     string
	entries  *expirable.LRU[K, V]
	onLookup Recorder
}

// New creates a cache whose lookups are labelled kind in traces
func New[K comparable, V any](kind string, size int, ttl time.Duration, onLookup Recorder) *Cache[K, V] {
	return &Cache[K, V]{
		kind:     kind,
		entries:  expirable.NewLRU[K, V](size, nil, ttl),
		onLookup: onLookup,
	}
}

// Get returns the live entry for key and marks it recently used
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, hit := c.entries.Get(key)
	tracing.SetAttributes(ctx, tracing.CacheAttributes(c.kind, hit, fmt.Sprint(key))...)
	if c.onLookup != nil {
		c.onLookup(hit)
	}
	return v, hit
}

// Add stores value under key, evicting the least recently used entry when full
func (c *Cache[K, V]) Add(key K, value V) {
	c.entries.Add(key, value)
}

// Remove drops key
func (c *Cache[K, V]) Remove(key K) {
	c.entries.Remove(key)
}

// Len counts stored entries, including expired ones not yet swept
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// Purge empties the cache
func (c *Cache[K, V]) Purge() {
	c.entries.Purge()
}

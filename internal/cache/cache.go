// Package cache keeps recently fetched source images in memory.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/wb-go/wbf/zlog"
)

// fetcher retrieves the raw bytes behind a url.
type fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Cache is a bounded LRU of source image bytes keyed by url hash.
//
// A single mutex covers lookup, fetch-on-miss and insert, so a slow fetch
// makes every other caller wait. Concurrent misses for the same url are
// serialized by that lock: the second caller finds the entry the first one
// stored.
type Cache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[uint64, []byte]
	fetcher fetcher

	size atomic.Int64 // entries.Len, readable without mu
}

// New creates a Cache holding at most size entries.
func New(size int, f fetcher) (*Cache, error) {
	entries, err := simplelru.NewLRU[uint64, []byte](size, func(key uint64, value []byte) {
		zlog.Logger.Debug().Uint64("key", key).Int("bytes", len(value)).Msg("evicted source")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	return &Cache{entries: entries, fetcher: f}, nil
}

// Key returns the cache key for url.
func Key(url string) uint64 {
	return xxhash.Sum64String(strings.TrimSpace(url))
}

// Get returns the bytes for url, fetching and storing them on a miss.
// Fetch errors are returned as is and nothing is cached.
//
// The fetch is detached from ctx cancellation: a caller that goes away
// does not abort it, and the result is still cached.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, error) {
	key := Key(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.entries.Get(key); ok {
		zlog.Logger.Info().Uint64("key", key).Msg("cache hit")
		return data, nil
	}

	zlog.Logger.Info().Uint64("key", key).Str("url", url).Msg("cache miss, fetching")

	data, err := c.fetcher.Fetch(context.WithoutCancel(ctx), url)
	if err != nil {
		return nil, err
	}

	c.entries.Add(key, data)
	c.size.Store(int64(c.entries.Len()))

	return data, nil
}

// contains reports whether url is cached without touching its recency.
func (c *Cache) contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entries.Contains(Key(url))
}

// Len returns the number of cached entries. It does not wait for an
// in-flight fetch.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

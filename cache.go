package datafetch

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the provider cache capacity when none is configured.
const DefaultCacheSize = 50

// ResponseCache is a bounded LRU map from cache key to the last successful response.
// Get hits and Set both refresh recency.
type ResponseCache struct {
	lru *lru.Cache[string, *Response]
}

func newResponseCache(size int) (*ResponseCache, error) {
	if size <= 0 {
		return nil, ErrInvalidCacheSize
	}

	c, err := lru.New[string, *Response](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	return &ResponseCache{lru: c}, nil
}

// Get returns the cached response and marks it recently used.
func (c *ResponseCache) Get(key string) (*Response, bool) {
	return c.lru.Get(key)
}

// Set stores resp, evicting the least recently used entry when full.
func (c *ResponseCache) Set(key string, resp *Response) {
	c.lru.Add(key, resp)
}

// Peek returns the cached response without touching recency.
func (c *ResponseCache) Peek(key string) (*Response, bool) {
	return c.lru.Peek(key)
}

// Contains reports whether key is cached without touching recency.
func (c *ResponseCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Keys returns the cached keys from oldest to newest.
func (c *ResponseCache) Keys() []string {
	return c.lru.Keys()
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *ResponseCache) Purge() {
	c.lru.Purge()
}

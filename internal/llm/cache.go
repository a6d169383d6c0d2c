package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry represents a cached completion.
type cacheEntry struct {
	expiry   time.Time
	response Response
}

// responseCache provides thread-safe caching of completions keyed by request.
type responseCache struct {
	entries  map[string]cacheEntry
	stopCh   chan struct{}
	ttl      time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
}

// newResponseCache creates a new cache with the specified TTL.
func newResponseCache(ttl time.Duration) *responseCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write(req.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// get retrieves a completion if it exists and hasn't expired.
func (c *responseCache) get(key string) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return Response{}, false
	}
	return entry.response, true
}

func (c *responseCache) set(key string, response Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		response: response,
		expiry:   time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *responseCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *responseCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// cachedClient answers repeated identical prompts from memory.
type cachedClient struct {
	Client
	cache *responseCache
}

func withCache(c Client, ttl time.Duration) *cachedClient {
	return &cachedClient{Client: c, cache: newResponseCache(ttl)}
}

func (c *cachedClient) Complete(ctx context.Context, req Request) (Response, error) {
	key := cacheKey(req)
	if resp, ok := c.cache.get(key); ok {
		return resp, nil
	}

	resp, err := c.Client.Complete(ctx, req)
	if err != nil {
		return Response{}, err
	}
	c.cache.set(key, resp)
	return resp, nil
}

func (c *cachedClient) Close() {
	c.cache.Close()
	if closer, ok := c.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}

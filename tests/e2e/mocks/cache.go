package mocks

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/godilite/qa-review-engine/pkg/cache"
)

type CacheEntry struct {
	Value  []byte
	Expiry time.Time
}

// TrackingCache is an in-process stand-in for the Redis cache. It stores
// values as JSON, like the real client, and counts calls.
type TrackingCache struct {
	mu          sync.Mutex
	data        map[string]CacheEntry
	Hits        int
	Misses      int
	SetCalls    int
	DeleteCalls int
}

func NewTrackingCache() *TrackingCache {
	return &TrackingCache{
		data: make(map[string]CacheEntry),
	}
}

func (c *TrackingCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.data[key]
	if !exists || time.Now().After(entry.Expiry) {
		c.Misses++
		return cache.ErrMiss
	}
	c.Hits++
	return json.Unmarshal(entry.Value, dest)
}

func (c *TrackingCache) Set(ctx context.Context, key string, value any, exp time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetCalls++
	c.data[key] = CacheEntry{
		Value:  data,
		Expiry: time.Now().Add(exp),
	}
	return nil
}

func (c *TrackingCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeleteCalls++

	var n int64
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
			n++
		}
	}
	return n, nil
}

func (c *TrackingCache) Close() error {
	return nil
}

// Stats returns hit and invalidation counts under the lock.
func (c *TrackingCache) Stats() (hits, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Hits, c.DeleteCalls
}

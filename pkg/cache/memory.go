package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache with the same contract as Cache. It backs the
// series cache when no Redis address is configured, so values still go
// through JSON and a hit decodes into a fresh copy.
type Memory struct {
	store *gocache.Cache
}

// NewMemory creates a Memory cache. Entries set without an expiration live
// for defaultTTL; expired entries are purged every cleanupInterval.
func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	return &Memory{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (m *Memory) Get(ctx context.Context, key string, dest any) error {
	v, found := m.store.Get(key)
	if !found {
		return ErrMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *Memory) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	m.store.Set(key, data, expiration)
	return nil
}

func (m *Memory) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errors.New("empty prefix")
	}
	var deleted int64
	for key := range m.store.Items() {
		if strings.HasPrefix(key, prefix) {
			m.store.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Close() error {
	m.store.Flush()
	return nil
}

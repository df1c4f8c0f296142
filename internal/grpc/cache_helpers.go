package grpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/godilite/qa-review-engine/pkg/cache"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

const (
	fetchTimeout = 15 * time.Second
	setTimeout   = 5 * time.Second
)

// addTTLJitter spreads expirations by up to ±10% of ttl so series keys
// written together by one invalidation wave do not all expire together.
func addTTLJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	spread := int64(ttl / 10)
	if spread == 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int64N(2*spread+1)-spread)
}

// readThrough carries one key's lookup state through a FindAndCache call.
type readThrough[T any] struct {
	cache  Cacher
	sf     *singleflight.Group
	key    string
	ttl    time.Duration
	logger *zap.Logger
	fetch  FetchFunc[T]
}

func (r readThrough[T]) store(value T) {
	ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
	defer cancel()

	ttl := addTTLJitter(r.ttl)
	if err := r.cache.Set(ctx, r.key, value, ttl); err != nil {
		r.logger.Warn("cache set failed", zap.String("key", r.key), zap.Error(err))
		return
	}
	r.logger.Debug("cache populated", zap.String("key", r.key), zap.Duration("ttl", ttl))
}

// refresh re-reads the key in the background after a hit. At most one
// refresh per key is in flight.
func (r readThrough[T]) refresh() {
	go func() {
		time.Sleep(time.Duration(rand.IntN(1000)) * time.Millisecond)

		_, _, _ = r.sf.Do(r.key+":refresh", func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			defer cancel()

			value, err := r.fetch(ctx)
			if err != nil {
				r.logger.Warn("background refresh failed", zap.String("key", r.key), zap.Error(err))
				return nil, err
			}
			r.store(value)
			return value, nil
		})
	}()
}

// fill fetches on a miss and writes the cache without holding up the caller.
func (r readThrough[T]) fill(ctx context.Context) (T, error) {
	v, err, shared := r.sf.Do(r.key, func() (any, error) {
		value, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		go r.store(value)
		return value, nil
	})
	if err != nil {
		var zero T
		r.logger.Error("fetch failed", zap.String("key", r.key), zap.Error(err))
		return zero, err
	}
	if shared {
		r.logger.Debug("singleflight shared result", zap.String("key", r.key))
	}

	value, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type mismatch for key %q", r.key)
	}
	return value, nil
}

// FindAndCache is a read-through lookup with singleflight on misses and
// refresh-ahead on hits. hit reports whether the value came from the cache.
// A nil cache always fetches. Cache read errors are treated as misses.
func FindAndCache[T any](
	ctx context.Context,
	c Cacher,
	sf *singleflight.Group,
	key string,
	ttl time.Duration,
	logger *zap.Logger,
	fn FetchFunc[T],
) (value T, hit bool, err error) {
	if c == nil {
		value, err = fn(ctx)
		return value, false, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := readThrough[T]{cache: c, sf: sf, key: key, ttl: ttl, logger: logger, fetch: fn}

	var cached T
	switch err := c.Get(ctx, key, &cached); {
	case err == nil:
		r.refresh()
		return cached, true, nil
	case errors.Is(err, cache.ErrMiss):
		logger.Debug("cache miss", zap.String("key", key))
	default:
		logger.Warn("cache get failed, fetching", zap.String("key", key), zap.Error(err))
	}

	value, err = r.fill(ctx)
	return value, false, err
}

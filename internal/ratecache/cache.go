// Package ratecache is a TTL cache for provider rate listings. Concurrent
// misses on the same key share one upstream fetch.
package ratecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"golang.org/x/sync/singleflight"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Store holds raw cached values with an expiry. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultLoadTimeout bounds a shared upstream fetch.
const DefaultLoadTimeout = 30 * time.Second

type Cache struct {
	store       Store
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

func New(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl, loadTimeout: DefaultLoadTimeout}
}

// Get returns the cached bytes for key, calling load on a miss. Store
// failures degrade to a direct load. The shared fetch is detached from any
// one caller, so a caller that gives up does not fail the others waiting.
func (c *Cache) Get(ctx context.Context, key string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	log := logging.FromContext(ctx)

	if b, ok, err := c.store.Get(ctx, key); err != nil {
		log.Warn("rate cache read failed", "key", key, "error", err)
	} else if ok {
		return b, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		if b, ok, err := c.store.Get(fctx, key); err == nil && ok {
			return b, nil
		}
		b, err := load(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fctx, key, b, c.ttl); err != nil {
			log.Warn("rate cache write failed", "key", key, "error", err)
		}
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ratecache.Get: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("ratecache.Get: %w", res.Err)
		}
		return res.Val.([]byte), nil
	}
}

// Fetch is Get for JSON-encodable values.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var out T
	b, err := c.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("ratecache.Fetch: decode %s: %w", key, err)
	}
	return out, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	redisx "github.com/lahjaprojekti/lahja-go/internal/redis"
)

// Cache is a read-through JSON cache. Concurrent loads of the same key are
// collapsed with singleflight so a cold key hits the store once.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) set(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Del removes keys; deleting a key that is not cached is not an error.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetOrSetJSON returns the cached value under key, or runs loader and caches
// the result for ttl. Failing to write the cache entry is not surfaced; the
// loaded value is still returned.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	decode := func(b []byte) (T, error) {
		var out T
		err := json.Unmarshal(b, &out)
		return out, err
	}

	if b, ok, err := c.get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		return decode(b)
	}

	got, err, _ := c.sf.Do(key, func() (any, error) {
		// Another flight may have populated the key while we waited.
		if b, ok, err := c.get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return decode(b)
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.set(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}

	v, ok := got.(T)
	if !ok {
		return zero, errors.New("cache: unexpected value type")
	}
	return v, nil
}

// InvalidateRegion drops the cached slot listing for a region after any
// write that can change it.
func (c *Cache) InvalidateRegion(ctx context.Context, region string) error {
	return c.Del(ctx, redisx.KeyRegionSlots(region))
}

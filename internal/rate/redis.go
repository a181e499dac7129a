package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the limiter with shared Redis counters so multiple
// service instances enforce one budget. INCR is atomic server-side, which
// gives the same no-double-spend guarantee the in-memory store gets from
// its mutex.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using the given client. Keys are namespaced
// under prefix (default "arl").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "arl"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// Incr implements Store. Fixed-window semantics: the TTL is set only for the
// first hit in the window, so the window never slides.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	namespaced := s.key(key)

	count, err := s.client.Incr(ctx, namespaced).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, namespaced, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, namespaced).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		// Key exists without a TTL (EXPIRE raced a crash). Re-arm the window
		// rather than leave an immortal counter.
		if err := s.client.Expire(ctx, namespaced, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		ttl = window
	}

	return count, time.Now().Add(ttl), nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (int64, time.Time, bool, error) {
	namespaced := s.key(key)

	count, err := s.client.Get(ctx, namespaced).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ttl, err := s.client.PTTL(ctx, namespaced).Result()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		return 0, time.Time{}, false, nil
	}

	return count, time.Now().Add(ttl), true, nil
}

// Sweep implements Store. Redis expires counters itself; nothing to do.
func (s *RedisStore) Sweep(context.Context) (int64, error) {
	return 0, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

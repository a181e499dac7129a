package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "arl"), mr
}

func TestRedisIncrFixedWindow(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	count, resetAt, err := store.Incr(ctx, "login:ip:10.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if until := time.Until(resetAt); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("expected reset about an hour out, got %v", until)
	}

	// TTL is armed on the first hit only; later hits must not slide it.
	mr.FastForward(30 * time.Minute)
	count, resetAt, err = store.Incr(ctx, "login:ip:10.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if until := time.Until(resetAt); until > 31*time.Minute {
		t.Fatalf("window slid: reset %v out", until)
	}
}

func TestRedisWindowExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Incr(ctx, "register:ip:10.0.0.1", time.Hour); err != nil {
			t.Fatalf("Incr error: %v", err)
		}
	}

	mr.FastForward(time.Hour + time.Second)

	count, _, err := store.Incr(ctx, "register:ip:10.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window count 1, got %d", count)
	}
}

func TestRedisPeek(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, _, ok, err := store.Peek(ctx, "login:ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Peek error: %v", err)
	}
	if ok {
		t.Fatal("expected no live window before first hit")
	}

	if _, _, err := store.Incr(ctx, "login:ip:10.0.0.1", time.Hour); err != nil {
		t.Fatalf("Incr error: %v", err)
	}

	count, resetAt, ok, err := store.Peek(ctx, "login:ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Peek error: %v", err)
	}
	if !ok || count != 1 {
		t.Fatalf("expected live window with count 1, got ok=%v count=%d", ok, count)
	}
	if time.Until(resetAt) <= 0 {
		t.Fatal("expected future reset time")
	}
}

func TestRedisClear(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if _, _, err := store.Incr(ctx, "login:ip:10.0.0.1", time.Hour); err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if err := store.Clear(ctx, "login:ip:10.0.0.1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	count, _, err := store.Incr(ctx, "login:ip:10.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count restart after Clear, got %d", count)
	}
}

func TestLimiterOverRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t)
	limiter, err := New(store, Config{
		Window: time.Hour,
		Limits: map[Category]int{CategoryLogin: 5},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		result, err := limiter.Check(ctx, CategoryLogin, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
	}

	result, err := limiter.Check(ctx, CategoryLogin, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected throttled past the budget")
	}
	if result.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %d", result.RetryAfter)
	}
}

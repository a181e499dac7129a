// Package rate implements fixed-window rate limiting for the credential
// flows: counters keyed by (category, actor key), check-and-increment in one
// atomic step, reset-time reporting.
//
// The backing counter store is injected. The in-memory [MemoryStore] is
// single-instance only; a multi-instance deployment swaps in [RedisStore] so
// counters live in a shared, atomically-incrementable store. The limiter
// algorithm is identical either way.
package rate

import (
	"context"
	"errors"
	"time"
)

// Category names one limited action. Limits are configured per category.
type Category string

const (
	CategoryLogin              Category = "login"
	CategoryRegister           Category = "register"
	CategoryResetRequest       Category = "password_reset_request"
	CategoryResetRedeem        Category = "password_reset_redeem"
	CategoryResendVerification Category = "resend_verification"
)

// AnonymousActor is the sentinel bucket used when neither an IP nor an email
// is available. All such callers share one bucket; this merging is a
// deliberate tradeoff, not an accident; tightening it would change the
// abuse-resistance characteristics.
const AnonymousActor = "anon"

// ErrStoreUnavailable wraps backing-store failures.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store is an atomically-incrementable counter store with fixed-window
// semantics.
type Store interface {
	// Incr increments the counter for key, starting a fresh window when no
	// live window exists, and returns the post-increment count together with
	// the window's reset time. Check-and-record is this single step: each
	// call consumes one unit of quota.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Peek reports the current count and reset time without consuming quota.
	// ok is false when no live window exists.
	Peek(ctx context.Context, key string) (count int64, resetAt time.Time, ok bool, err error)

	// Sweep removes entries whose window has passed and reports how many
	// were removed.
	Sweep(ctx context.Context) (int64, error)

	// Clear drops the counter for key. Operational escape hatch only.
	Clear(ctx context.Context, key string) error
}

// Config carries the per-category attempt budgets and the shared window.
type Config struct {
	Window time.Duration
	Limits map[Category]int
}

// Result is the outcome of a single check.
type Result struct {
	Allowed bool

	// RetryAfter is the whole seconds until the window resets, clamped to
	// >= 0. Only meaningful when Allowed is false.
	RetryAfter int
}

// Limiter enforces the fixed-window budgets over an injected Store.
type Limiter struct {
	store  Store
	config Config
}

// New creates a Limiter. Categories absent from cfg.Limits are unlimited.
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limiter requires a store")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate limiter window must be positive")
	}
	return &Limiter{store: store, config: cfg}, nil
}

// Check consumes one unit of quota for (category, actorKey) and reports
// whether the action may proceed. The first call past the reset time starts
// a new window with count 1.
func (l *Limiter) Check(ctx context.Context, category Category, actorKey string) (Result, error) {
	limit, limited := l.config.Limits[category]
	if !limited {
		return Result{Allowed: true}, nil
	}

	count, resetAt, err := l.store.Incr(ctx, bucketKey(category, actorKey), l.config.Window)
	if err != nil {
		return Result{}, err
	}

	if count > int64(limit) {
		return Result{Allowed: false, RetryAfter: secondsUntil(resetAt)}, nil
	}

	return Result{Allowed: true}, nil
}

// SecondsUntilReset reports the remaining window for (category, actorKey)
// without consuming quota. Zero when no live window exists.
func (l *Limiter) SecondsUntilReset(ctx context.Context, category Category, actorKey string) (int, error) {
	_, resetAt, ok, err := l.store.Peek(ctx, bucketKey(category, actorKey))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return secondsUntil(resetAt), nil
}

// Sweep removes expired entries from the backing store.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	return l.store.Sweep(ctx)
}

// Clear drops the counter for (category, actorKey). Exposed to operators
// through the engine's escape hatch; never called on request paths.
func (l *Limiter) Clear(ctx context.Context, category Category, actorKey string) error {
	return l.store.Clear(ctx, bucketKey(category, actorKey))
}

// ActorKey selects the bucket identity for an unauthenticated caller:
// network origin first, email second, the shared anonymous sentinel last.
// Two different actors never collide unless both land on the sentinel.
func ActorKey(ip, email string) string {
	if ip != "" {
		return "ip:" + ip
	}
	if email != "" {
		return "email:" + email
	}
	return AnonymousActor
}

func bucketKey(category Category, actorKey string) string {
	return string(category) + ":" + actorKey
}

func secondsUntil(resetAt time.Time) int {
	seconds := int(time.Until(resetAt).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

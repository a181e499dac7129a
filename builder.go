package authcore

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mintlane/authcore/internal/rate"
	"github.com/mintlane/authcore/jwt"
	"github.com/mintlane/authcore/password"
	"github.com/mintlane/authcore/token"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// [Builder.Build], which validates the configuration and starts the
// background workers.
type Builder struct {
	config Config

	repo      AccountRepository
	sender    EmailSender
	auditSink AuditSink
	rateStore rate.Store
	logger    *slog.Logger

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRepository sets the account repository. Required.
func (b *Builder) WithRepository(repo AccountRepository) *Builder {
	b.repo = repo
	return b
}

// WithEmailSender sets the outbound email transport. Optional; without one,
// token mail is dropped with a log line (useful in tests).
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink sets the audit destination. Optional; defaults to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRateLimitStore injects a counter store. Optional; defaults to the
// process-local in-memory store, which is single-instance only.
func (b *Builder) WithRateLimitStore(store rate.Store) *Builder {
	b.rateStore = store
	return b
}

// WithRedis is shorthand for backing the rate limiter with shared Redis
// counters, the substitution a multi-instance deployment needs.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.rateStore = rate.NewRedisStore(client, b.config.RateLimit.RedisPrefix)
	return b
}

// WithLogger sets the structured logger for server-side error detail.
// Optional; defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates and wires the engine. A Builder builds once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.validate(); err != nil {
		return nil, err
	}
	if b.repo == nil {
		return nil, errors.New("account repository is required")
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(hasher)
	if err != nil {
		return nil, err
	}

	sessions, err := jwt.NewManager(jwt.Config{
		Secret:      b.config.Session.Secret,
		DefaultTTL:  b.config.Session.DefaultTTL,
		ExtendedTTL: b.config.Session.ExtendedTTL,
		Issuer:      b.config.Session.Issuer,
		Leeway:      b.config.Session.Leeway,
	})
	if err != nil {
		return nil, err
	}

	store := b.rateStore
	if store == nil {
		store = rate.NewMemoryStore()
	}

	// A zero budget disables the category rather than blocking it.
	limits := make(map[rate.Category]int)
	for category, limit := range map[rate.Category]int{
		rate.CategoryLogin:              b.config.RateLimit.LoginLimit,
		rate.CategoryRegister:           b.config.RateLimit.RegisterLimit,
		rate.CategoryResetRequest:       b.config.RateLimit.ResetRequestLimit,
		rate.CategoryResetRedeem:        b.config.RateLimit.ResetRedeemLimit,
		rate.CategoryResendVerification: b.config.RateLimit.ResendVerificationLimit,
	} {
		if limit > 0 {
			limits[category] = limit
		}
	}

	limiter, err := rate.New(store, rate.Config{
		Window: b.config.RateLimit.Window,
		Limits: limits,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:     b.config,
		repo:       b.repo,
		sender:     b.sender,
		hasher:     hasher,
		codec:      codec,
		sessions:   sessions,
		limiter:    limiter,
		dispatcher: newAuditDispatcher(b.config.Audit, b.auditSink),
		logger:     logger,
		done:       make(chan struct{}),
	}

	if b.config.Sweep.Enabled {
		engine.startSweeps()
	}

	b.built = true
	return engine, nil
}

package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config is the explicit, typed configuration injected at construction.
// There is no environment inspection inside the engine: behavior that
// differs between deployments (test-profile limits, manual counter clears)
// is a named field here.
type Config struct {
	Session   SessionConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Tokens    TokenConfig
	Account   AccountConfig
	Email     EmailConfig
	Audit     AuditConfig
	Sweep     SweepConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the signed bearer session tokens. Secret is required:
// Build fails without it so a misconfigured process dies at startup.
type SessionConfig struct {
	Secret      []byte
	DefaultTTL  time.Duration // 15 minutes
	ExtendedTTL time.Duration // 7 days, "remember me"
	Issuer      string
	Leeway      time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost shared by the password hasher
// and the secret-token slow hash.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig carries the fixed-window budgets, one per category, over
// a shared window. AllowManualClear gates the operational escape hatch and
// must stay false in production.
type RateLimitConfig struct {
	Window time.Duration

	LoginLimit              int
	RegisterLimit           int
	ResetRequestLimit       int
	ResetRedeemLimit        int
	ResendVerificationLimit int

	AllowManualClear bool

	// RedisPrefix namespaces counters when a Redis store is injected.
	RedisPrefix string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the expiry windows for the two secret-token purposes
// and the retention cutoff for the expired-reset-token sweep.
type TokenConfig struct {
	ResetTTL        time.Duration // 1 hour
	VerificationTTL time.Duration // 24 hours

	// ResetRetention is how long past expiry the sweep keeps reset token
	// fields before nulling them (data minimization).
	ResetRetention time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig tunes registration.
type AccountConfig struct {
	DefaultRole Role
}

/*
====================================
EMAIL CONFIG
====================================
*/

// EmailConfig builds the links embedded in outbound token mail. The
// plaintext secret appears only in the link handed to the sender; it is
// never persisted.
type EmailConfig struct {
	LinkBaseURL string // e.g. "https://app.mintlane.com"
	ResetPath   string // e.g. "/reset-password"
	VerifyPath  string // e.g. "/verify-email"
	TokenParam  string // query parameter name, default "token"
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
SWEEP CONFIG
====================================
*/

// SweepConfig tunes the two periodic cleanups. Both sweeps only delete
// already-expired state, so they are idempotent and safe alongside
// in-flight requests.
type SweepConfig struct {
	Enabled           bool
	TokenInterval     time.Duration // daily
	RateLimitInterval time.Duration // hourly
}

// DefaultConfig returns the production profile.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			DefaultTTL:  15 * time.Minute,
			ExtendedTTL: 7 * 24 * time.Hour,
			Issuer:      "authcore",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			Window:                  time.Hour,
			LoginLimit:              5,
			RegisterLimit:           3,
			ResetRequestLimit:       3,
			ResetRedeemLimit:        5,
			ResendVerificationLimit: 3,
		},
		Tokens: TokenConfig{
			ResetTTL:        time.Hour,
			VerificationTTL: 24 * time.Hour,
			ResetRetention:  24 * time.Hour,
		},
		Account: AccountConfig{
			DefaultRole: RoleCustomer,
		},
		Email: EmailConfig{
			ResetPath:  "/reset-password",
			VerifyPath: "/verify-email",
			TokenParam: "token",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Sweep: SweepConfig{
			Enabled:           true,
			TokenInterval:     24 * time.Hour,
			RateLimitInterval: time.Hour,
		},
	}
}

// TestConfig returns a profile for test and staging environments: cheap
// argon2 cost and a raised registration budget so suites can create many
// accounts inside one window. Never use in production.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.RateLimit.RegisterLimit = 100
	cfg.RateLimit.AllowManualClear = true
	cfg.Sweep.Enabled = false
	return cfg
}

func (c *Config) validate() error {
	if len(c.Session.Secret) == 0 {
		return errors.New("session signing secret is required")
	}
	if c.Session.DefaultTTL <= 0 || c.Session.ExtendedTTL <= 0 {
		return errors.New("session TTLs must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if c.RateLimit.LoginLimit < 0 || c.RateLimit.RegisterLimit < 0 ||
		c.RateLimit.ResetRequestLimit < 0 || c.RateLimit.ResetRedeemLimit < 0 ||
		c.RateLimit.ResendVerificationLimit < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.Tokens.ResetTTL <= 0 || c.Tokens.VerificationTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Tokens.ResetRetention < 0 {
		return errors.New("reset retention must not be negative")
	}
	if !ValidRole(c.Account.DefaultRole) {
		return errors.New("default role is not in the role set")
	}
	if c.Email.LinkBaseURL != "" && !strings.Contains(c.Email.LinkBaseURL, "://") {
		return errors.New("email link base URL must be absolute")
	}
	if c.Sweep.Enabled && (c.Sweep.TokenInterval <= 0 || c.Sweep.RateLimitInterval <= 0) {
		return errors.New("sweep intervals must be positive when sweeps are enabled")
	}
	return nil
}

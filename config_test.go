package authcore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = []byte("unit-test-signing-secret-32-bytes!!")
	return cfg
}

func TestDefaultConfigProfile(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.DefaultTTL != 15*time.Minute {
		t.Fatalf("default session TTL = %v", cfg.Session.DefaultTTL)
	}
	if cfg.Session.ExtendedTTL != 7*24*time.Hour {
		t.Fatalf("extended session TTL = %v", cfg.Session.ExtendedTTL)
	}
	if cfg.Tokens.ResetTTL != time.Hour || cfg.Tokens.VerificationTTL != 24*time.Hour {
		t.Fatalf("token TTLs = %v / %v", cfg.Tokens.ResetTTL, cfg.Tokens.VerificationTTL)
	}
	if cfg.RateLimit.LoginLimit != 5 || cfg.RateLimit.Window != time.Hour {
		t.Fatalf("login budget = %d per %v", cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
	}
	if cfg.Account.DefaultRole != RoleCustomer {
		t.Fatalf("default role = %q", cfg.Account.DefaultRole)
	}
	if cfg.RateLimit.AllowManualClear {
		t.Fatal("manual clear must be off in the production profile")
	}
}

func TestTestConfigProfile(t *testing.T) {
	cfg := TestConfig()

	if cfg.Password.Memory >= DefaultConfig().Password.Memory {
		t.Fatal("test profile should use cheaper argon2 parameters")
	}
	if cfg.RateLimit.RegisterLimit <= DefaultConfig().RateLimit.RegisterLimit {
		t.Fatal("test profile should raise the register budget")
	}
	if !cfg.RateLimit.AllowManualClear {
		t.Fatal("test profile should allow manual clears")
	}
	if cfg.Sweep.Enabled {
		t.Fatal("test profile should not start sweep workers")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"valid":             {func(*Config) {}, ""},
		"missing secret":    {func(c *Config) { c.Session.Secret = nil }, "secret"},
		"zero session ttl":  {func(c *Config) { c.Session.DefaultTTL = 0 }, "TTL"},
		"zero window":       {func(c *Config) { c.RateLimit.Window = 0 }, "window"},
		"negative limit":    {func(c *Config) { c.RateLimit.LoginLimit = -1 }, "negative"},
		"zero reset ttl":    {func(c *Config) { c.Tokens.ResetTTL = 0 }, "TTL"},
		"bad retention":     {func(c *Config) { c.Tokens.ResetRetention = -time.Hour }, "retention"},
		"bad default role":  {func(c *Config) { c.Account.DefaultRole = "superuser" }, "role"},
		"relative base URL": {func(c *Config) { c.Email.LinkBaseURL = "app.test/x" }, "absolute"},
		"bad sweep interval": {func(c *Config) {
			c.Sweep.Enabled = true
			c.Sweep.TokenInterval = 0
		}, "sweep"},
	}

	for name, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.validate()
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tc.wantErr)) {
			t.Fatalf("%s: got %v, want error mentioning %q", name, err, tc.wantErr)
		}
	}
}

func TestZeroRateLimitMeansDisabledCategory(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, func(cfg *Config) {
		cfg.RateLimit.LoginLimit = 0
	})

	registerAccount(t, engine, "alice@example.com", testPassword)

	// A zero budget disables the category rather than blocking everything.
	for i := 0; i < 20; i++ {
		if _, err := engine.Login(context.Background(), "alice@example.com", testPassword, false); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
}

package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mintlane/authcore/password"
)

const testPassword = "CorrectHorse1!"

func TestLoginSuccess(t *testing.T) {
	repo := newFakeRepo()
	engine, _, sink := newTestEngine(t, repo, nil)
	ctx := context.Background()

	account := registerAccount(t, engine, "alice@example.com", testPassword)

	session, err := engine.Login(ctx, "Alice@Example.com ", testPassword, false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a session token")
	}
	if session.Subject.SubjectID != account.ID || session.Subject.Role != RoleCustomer {
		t.Fatalf("unexpected subject: %+v", session.Subject)
	}

	claims, err := engine.ValidateSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if claims.SubjectID != account.ID {
		t.Fatalf("claims subject %q, want %q", claims.SubjectID, account.ID)
	}

	if got := counter(t, engine, "login_success"); got != 1 {
		t.Fatalf("login_success = %d, want 1", got)
	}
	event := sink.waitForAudit(t, "login", true)
	if event.ActorID != account.ID {
		t.Fatalf("audit actor %q, want %q", event.ActorID, account.ID)
	}
}

func TestLoginFailuresShareOneError(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, nil)
	ctx := context.Background()

	account := registerAccount(t, engine, "alice@example.com", testPassword)

	// Passwordless account, e.g. a future federated identity.
	repo.get(t, account.ID).PasswordHash = ""

	cases := map[string]struct {
		email    string
		password string
	}{
		"unknown email":         {"nobody@example.com", testPassword},
		"account without hash":  {"alice@example.com", testPassword},
		"wrong password (seed)": {"alice@example.com", "WrongPassword1!"},
	}

	var payloads []string
	for name, tc := range cases {
		_, err := engine.Login(ctx, tc.email, tc.password, false)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: got %v, want ErrInvalidCredentials", name, err)
		}
		payloads = append(payloads, err.Error())
	}
	for _, p := range payloads[1:] {
		if p != payloads[0] {
			t.Fatalf("failure payloads differ: %q vs %q", payloads[0], p)
		}
	}
}

func TestLoginThrottled(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, func(cfg *Config) {
		cfg.RateLimit.LoginLimit = 2
	})
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", testPassword)

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "WrongPassword1!", false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}

	// Budget exhausted: even the correct password is refused now.
	_, err := engine.Login(ctx, "alice@example.com", testPassword, false)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("got %v, want ErrThrottled", err)
	}
	var throttled *Error
	if !errors.As(err, &throttled) {
		t.Fatalf("throttle error is not *Error: %T", err)
	}
	if throttled.Kind != KindThrottled || throttled.RetryAfter <= 0 {
		t.Fatalf("unexpected throttle error: %+v", throttled)
	}

	if got := counter(t, engine, "login_throttled"); got != 1 {
		t.Fatalf("login_throttled = %d, want 1", got)
	}
}

func TestLoginBucketsAreIndependentPerEmail(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, func(cfg *Config) {
		cfg.RateLimit.LoginLimit = 1
	})
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", testPassword)
	registerAccount(t, engine, "bob@example.com", testPassword)

	if _, err := engine.Login(ctx, "alice@example.com", "WrongPassword1!", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("alice attempt: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", testPassword, false); !errors.Is(err, ErrThrottled) {
		t.Fatal("alice should be throttled")
	}

	// Bob's bucket is untouched by Alice's failures.
	if _, err := engine.Login(ctx, "bob@example.com", testPassword, false); err != nil {
		t.Fatalf("bob login failed: %v", err)
	}
}

func TestLoginRememberMeExtendsExpiry(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, nil)
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", testPassword)

	short, err := engine.Login(ctx, "alice@example.com", testPassword, false)
	if err != nil {
		t.Fatalf("short login: %v", err)
	}
	long, err := engine.Login(ctx, "alice@example.com", testPassword, true)
	if err != nil {
		t.Fatalf("remembered login: %v", err)
	}

	gap := long.ExpiresAt.Sub(short.ExpiresAt)
	if gap < 6*24*time.Hour {
		t.Fatalf("remember-me gap %v, want at least 6 days", gap)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, func(cfg *Config) {
		cfg.Password.Memory = 16 * 1024
		cfg.Password.UpgradeOnLogin = true
	})
	ctx := context.Background()

	// Seed a hash produced under weaker parameters than the engine's.
	weak, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("weak hasher: %v", err)
	}
	weakHash, err := weak.Hash(testPassword)
	if err != nil {
		t.Fatalf("weak hash: %v", err)
	}

	account := &Account{ID: "legacy-1", Email: "legacy@example.com", PasswordHash: weakHash, Role: RoleCustomer, CreatedAt: time.Now()}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := engine.Login(ctx, "legacy@example.com", testPassword, false); err != nil {
		t.Fatalf("login: %v", err)
	}

	upgraded := repo.get(t, "legacy-1").PasswordHash
	if upgraded == weakHash {
		t.Fatal("stored hash was not upgraded")
	}

	// The upgraded hash still verifies.
	if _, err := engine.Login(ctx, "legacy@example.com", testPassword, false); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestLoginStoreFailureIsInternal(t *testing.T) {
	repo := newFakeRepo()
	engine, _, _ := newTestEngine(t, repo, nil)
	registerAccount(t, engine, "alice@example.com", testPassword)

	repo.findByEmailErr = errors.New("connection refused")

	_, err := engine.Login(context.Background(), "alice@example.com", testPassword, false)
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Kind != KindInternal {
		t.Fatalf("got %v, want internal error", err)
	}
	// The storage detail stays server-side.
	if got := authErr.Message; got != "Internal server error" {
		t.Fatalf("message %q leaks detail", got)
	}
}

package authcore

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRepo is an in-memory AccountRepository with per-method error
// injection for exercising storage failure paths.
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account

	createErr       error
	findByEmailErr  error
	setTokenErr     error
	redeemResetErr  error
	redeemVerifyErr error
	updateHashErr   error
	clearExpiredN   int64
	clearExpiredErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[string]*Account)}
}

func (r *fakeRepo) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *account
	r.accounts[cp.ID] = &cp
	return nil
}

func (r *fakeRepo) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	for _, account := range r.accounts {
		if account.Email == email {
			cp := *account
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *fakeRepo) FindByTokenDigest(_ context.Context, purpose TokenPurpose, digest string, now time.Time) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		stored, expires := account.ResetTokenDigest, account.ResetTokenExpiresAt
		if purpose == PurposeEmailVerification {
			stored, expires = account.VerifyTokenDigest, account.VerifyTokenExpiresAt
		}
		if stored != "" && stored == digest && expires.After(now) {
			cp := *account
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *fakeRepo) SetToken(_ context.Context, id string, purpose TokenPurpose, slowHash, digest string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setTokenErr != nil {
		return r.setTokenErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if purpose == PurposeEmailVerification {
		account.VerifyTokenHash = slowHash
		account.VerifyTokenDigest = digest
		account.VerifyTokenExpiresAt = expiresAt
	} else {
		account.ResetTokenHash = slowHash
		account.ResetTokenDigest = digest
		account.ResetTokenExpiresAt = expiresAt
	}
	return nil
}

func (r *fakeRepo) RedeemResetToken(_ context.Context, id, digest, newPasswordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redeemResetErr != nil {
		return r.redeemResetErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if digest == "" || account.ResetTokenDigest != digest {
		return ErrTokenConsumed
	}
	account.PasswordHash = newPasswordHash
	account.ResetTokenHash = ""
	account.ResetTokenDigest = ""
	account.ResetTokenExpiresAt = time.Time{}
	return nil
}

func (r *fakeRepo) RedeemVerifyToken(_ context.Context, id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redeemVerifyErr != nil {
		return r.redeemVerifyErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if digest == "" || account.VerifyTokenDigest != digest {
		return ErrTokenConsumed
	}
	account.Verified = true
	account.VerifyTokenHash = ""
	account.VerifyTokenDigest = ""
	account.VerifyTokenExpiresAt = time.Time{}
	return nil
}

func (r *fakeRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateHashErr != nil {
		return r.updateHashErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = hash
	return nil
}

func (r *fakeRepo) ClearExpiredResetTokens(context.Context, time.Time) (int64, error) {
	return r.clearExpiredN, r.clearExpiredErr
}

// get returns the live stored account for direct inspection and mutation.
func (r *fakeRepo) get(t *testing.T, id string) *Account {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		t.Fatalf("account %q not in fake repo", id)
	}
	return account
}

type sentMail struct {
	purpose TokenPurpose
	to      string
	link    string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *recordingSender) Send(_ context.Context, purpose TokenPurpose, to, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{purpose: purpose, to: to, link: link})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) last(t *testing.T) sentMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no mail captured")
	}
	return s.sent[len(s.sent)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, AuditEvent{
		Timestamp: event.Timestamp,
		Action:    event.Action,
		ActorID:   event.ActorID,
		Success:   event.Success,
		Reason:    event.Reason,
		Context:   event.Context,
		IP:        event.IP,
		UserAgent: event.UserAgent,
	})
}

func (s *recordingSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// waitForAudit polls for an event matching action and success; delivery is
// async through the dispatcher.
func (s *recordingSink) waitForAudit(t *testing.T, action string, success bool) AuditEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range s.snapshot() {
			if event.Action == action && event.Success == success {
				return event
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no audit event action=%q success=%v", action, success)
	return AuditEvent{}
}

func testEngineConfig() Config {
	cfg := TestConfig()
	cfg.Session.Secret = []byte("unit-test-signing-secret-32-bytes!!")
	cfg.Email.LinkBaseURL = "https://app.test"
	return cfg
}

// newTestEngine builds an engine over the fake repo with a recording sender
// and audit sink. mutate, when non-nil, adjusts the test config first.
func newTestEngine(t *testing.T, repo AccountRepository, mutate func(*Config)) (*Engine, *recordingSender, *recordingSink) {
	t.Helper()

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	sender := &recordingSender{}
	sink := &recordingSink{}

	engine, err := New().
		WithConfig(cfg).
		WithRepository(repo).
		WithEmailSender(sender).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, sender, sink
}

// registerAccount runs a real registration and returns the account.
func registerAccount(t *testing.T, engine *Engine, email, password string) *Account {
	t.Helper()
	account, err := engine.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", email, err)
	}
	return account
}

// secretFromLink extracts the plaintext token from a captured mail link.
func secretFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad link %q: %v", link, err)
	}
	secret := u.Query().Get("token")
	if secret == "" {
		t.Fatalf("link %q carries no token parameter", link)
	}
	return secret
}

func counter(t *testing.T, engine *Engine, name string) uint64 {
	t.Helper()
	value, ok := engine.MetricsSnapshot().Counters[name]
	if !ok {
		t.Fatalf("unknown metric %q", name)
	}
	return value
}

func assertNoSecretInAudit(t *testing.T, sink *recordingSink, secrets ...string) {
	t.Helper()
	for _, event := range sink.snapshot() {
		fields := []string{event.Action, event.ActorID, event.Reason, event.IP, event.UserAgent}
		for _, v := range event.Context {
			fields = append(fields, v)
		}
		for _, field := range fields {
			for _, secret := range secrets {
				if secret != "" && strings.Contains(field, secret) {
					t.Fatalf("audit event leaks secret material: %+v", event)
				}
			}
		}
	}
}

package integration

import (
	"net/url"
	"testing"

	"github.com/mintlane/authcore"
	"github.com/mintlane/authcore/email"
	"github.com/mintlane/authcore/store/memstore"
)

const (
	password    = "CorrectHorse1!"
	newPassword = "FreshSecret9#"
)

type harness struct {
	engine  *authcore.Engine
	store   *memstore.Store
	mailbox *email.Recorder
	audit   *authcore.ChannelSink
}

// newHarness assembles an engine over the public construction surface only:
// in-memory store, recording mail, channel audit sink.
func newHarness(t *testing.T, mutate func(*authcore.Config)) *harness {
	t.Helper()

	cfg := authcore.TestConfig()
	cfg.Session.Secret = []byte("integration-test-secret-32-bytes!!!")
	cfg.Email.LinkBaseURL = "https://app.test"
	if mutate != nil {
		mutate(&cfg)
	}

	store := memstore.New()
	mailbox := email.NewRecorder()
	sink := authcore.NewChannelSink(128)

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRepository(store).
		WithEmailSender(mailbox).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{engine: engine, store: store, mailbox: mailbox, audit: sink}
}

// lastSecret extracts the token from the most recently captured mail.
func (h *harness) lastSecret(t *testing.T, purpose authcore.TokenPurpose) string {
	t.Helper()
	msg, ok := h.mailbox.Last()
	if !ok {
		t.Fatal("no mail captured")
	}
	if msg.Purpose != purpose {
		t.Fatalf("mail purpose %q, want %q", msg.Purpose, purpose)
	}
	u, err := url.Parse(msg.Link)
	if err != nil {
		t.Fatalf("bad link %q: %v", msg.Link, err)
	}
	secret := u.Query().Get("token")
	if secret == "" {
		t.Fatalf("no token in link %q", msg.Link)
	}
	return secret
}
